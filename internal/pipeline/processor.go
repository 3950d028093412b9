package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-apns-gateway/pkg/dispatch"
)

// NewProcessor creates the stage that delivers each request to the gateway.
// Transport failures are returned so the message is redelivered; caller
// errors are logged and acknowledged.
func NewProcessor(deliverer *Deliverer, logger *slog.Logger) messagepipeline.StreamProcessor[dispatch.PushRequest] {
	return func(ctx context.Context, original messagepipeline.Message, request *dispatch.PushRequest) error {
		procLogger := logger.With(
			"pubsub_msg_id", original.ID,
			"tokens", len(request.DeviceTokens),
		)

		report, err := deliverer.Deliver(ctx, request)
		if err != nil {
			if IsCallerError(err) {
				procLogger.Error("Dropping undeliverable push request", "err", err)
				return nil
			}
			procLogger.Error("Gateway delivery failed", "err", err)
			return err // Retryable
		}

		if report.Sent == 0 {
			procLogger.Info("No live device tokens; dropping notification.", "skipped", len(report.Skipped))
			return nil
		}
		procLogger.Info("Push delivered", "sent", report.Sent, "skipped", len(report.Skipped))
		return nil
	}
}
