package apns

import (
	"context"
	"fmt"
	"log/slog"
)

// MaxAttempts is the fixed number of tries for one logical operation.
const MaxAttempts = 5

// connector is the part of Connection the retry loop drives.
type connector interface {
	Unavailable() bool
	EnsureConnected(ctx context.Context) error
	Close() error
}

// RetryPolicy reconnects and repeats an operation after transport failures.
// Attempts are strictly sequential with no delay between them.
type RetryPolicy struct {
	MaxAttempts int
	logger      *slog.Logger
	observer    Observer
}

func newRetryPolicy(logger *slog.Logger, observer Observer) RetryPolicy {
	return RetryPolicy{MaxAttempts: MaxAttempts, logger: logger, observer: observer}
}

// Do runs op against conn, re-establishing conn before every attempt that
// finds it unavailable. Only *TransportError failures are retried.
func (p RetryPolicy) Do(ctx context.Context, conn connector, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = p.attempt(ctx, conn, op)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}

		p.observer.AttemptFailed(attempt, lastErr)
		p.logger.Warn("Gateway attempt failed", "attempt", attempt, "max_attempts", p.MaxAttempts, "err", lastErr)
	}

	p.observer.RetriesExhausted()
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, p.MaxAttempts, lastErr)
}

func (p RetryPolicy) attempt(ctx context.Context, conn connector, op func() error) error {
	if conn.Unavailable() {
		_ = conn.Close()
		if err := conn.EnsureConnected(ctx); err != nil {
			return err
		}
		p.observer.ConnectionOpened()
	}
	return op()
}
