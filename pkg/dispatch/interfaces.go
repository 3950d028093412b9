package dispatch

import (
	"context"
	"time"

	"github.com/tinywideclouds/go-apns-gateway/pkg/apns"
)

// Sender defines the contract for a component that delivers notifications
// to the push gateway (e.g. *apns.Gateway).
type Sender interface {
	// SendAll delivers the batch in order; the whole batch succeeds or fails.
	SendAll(ctx context.Context, notifications []apns.Notification) error
}

// FeedbackSource yields the device tokens the push service reports as dead.
type FeedbackSource interface {
	Fetch(ctx context.Context) ([]apns.FeedbackRecord, error)
}

// FeedbackStore remembers dead device tokens so later pushes can skip them.
type FeedbackStore interface {
	// Record stores the records, keeping the newest timestamp per token.
	Record(ctx context.Context, records []apns.FeedbackRecord) error

	// Lookup returns the stored record for token, if any.
	Lookup(ctx context.Context, token string) (apns.FeedbackRecord, bool, error)

	// List returns every stored record.
	List(ctx context.Context) ([]apns.FeedbackRecord, error)
}

// IsInvalid reports whether token was reported dead at or after
// registeredAt. A device that registered again after the report is valid;
// a zero registeredAt matches any report.
func IsInvalid(ctx context.Context, store FeedbackStore, token string, registeredAt time.Time) (bool, error) {
	record, found, err := store.Lookup(ctx, apns.NormalizeToken(token))
	if err != nil || !found {
		return false, err
	}
	return registeredAt.IsZero() || !record.Timestamp.Before(registeredAt), nil
}
