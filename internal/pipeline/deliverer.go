package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tinywideclouds/go-apns-gateway/pkg/apns"
	"github.com/tinywideclouds/go-apns-gateway/pkg/dispatch"
)

// DeliveryReport summarizes one delivered request.
type DeliveryReport struct {
	Sent    int      `json:"sent"`
	Skipped []string `json:"skipped,omitempty"`
}

// Deliverer drops tokens the feedback service reported dead and sends the
// rest as one gateway batch.
type Deliverer struct {
	sender dispatch.Sender
	store  dispatch.FeedbackStore
	logger *slog.Logger
}

func NewDeliverer(sender dispatch.Sender, store dispatch.FeedbackStore, logger *slog.Logger) *Deliverer {
	return &Deliverer{
		sender: sender,
		store:  store,
		logger: logger.With("component", "Deliverer"),
	}
}

func (d *Deliverer) Deliver(ctx context.Context, req *dispatch.PushRequest) (DeliveryReport, error) {
	report := DeliveryReport{}
	live := make([]string, 0, len(req.DeviceTokens))

	for _, token := range req.DeviceTokens {
		invalid, err := dispatch.IsInvalid(ctx, d.store, token, req.RegisteredAt)
		if err != nil {
			// Fail open: a store outage must not stop deliveries.
			d.logger.Warn("Feedback lookup failed; sending anyway", "token", token, "err", err)
		}
		if invalid {
			report.Skipped = append(report.Skipped, token)
			continue
		}
		live = append(live, token)
	}

	if len(report.Skipped) > 0 {
		d.logger.Info("Skipping dead device tokens", "count", len(report.Skipped))
	}
	if len(live) == 0 {
		return report, nil
	}

	if err := d.sender.SendAll(ctx, req.Notifications(live)); err != nil {
		return report, err
	}
	report.Sent = len(live)
	return report, nil
}

// IsCallerError reports errors that no retry or redelivery can fix.
func IsCallerError(err error) bool {
	return errors.Is(err, apns.ErrPayloadTooLarge) || errors.Is(err, apns.ErrInvalidToken)
}
