package apns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// FeedbackOption customizes a FeedbackClient.
type FeedbackOption func(*FeedbackClient)

// WithFeedbackObserver reports the number of records fetched to o.
func WithFeedbackObserver(o Observer) FeedbackOption {
	return func(f *FeedbackClient) {
		if o != nil {
			f.observer = o
		}
	}
}

// FeedbackClient reads the list of unreachable device tokens. Every Fetch
// uses its own short-lived connection, so it needs no locking.
type FeedbackClient struct {
	cfg      Config
	logger   *slog.Logger
	observer Observer
}

func NewFeedbackClient(cfg Config, logger *slog.Logger, opts ...FeedbackOption) *FeedbackClient {
	cfg = cfg.withDefaults()
	f := &FeedbackClient{
		cfg:      cfg,
		logger:   logger.With("component", "APNSFeedback", "addr", cfg.FeedbackAddr()),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch connects to the feedback service and decodes records until the
// service closes the stream. A trailing partial record is discarded. An
// empty result means nothing is pending.
func (f *FeedbackClient) Fetch(ctx context.Context) ([]FeedbackRecord, error) {
	conn := newConnection(f.cfg.FeedbackAddr(), FeedbackHost(f.cfg.Host), f.cfg, f.logger)
	defer func() {
		if err := conn.Close(); err != nil {
			f.logger.Debug("Error closing feedback connection", "err", err)
		}
	}()

	if err := conn.EnsureConnected(ctx); err != nil {
		return nil, err
	}

	// A silent peer would block ReadFull forever; cancellation expires the
	// session deadline to unblock it.
	session := conn.ssl
	stop := context.AfterFunc(ctx, func() {
		_ = session.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	records := make([]FeedbackRecord, 0)
	chunk := make([]byte, FeedbackRecordSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := io.ReadFull(conn, chunk)
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if n > 0 {
				f.logger.Warn("Discarding partial feedback record", "bytes", n)
			}
			break
		}
		if err != nil {
			return nil, &TransportError{Op: "read", Addr: f.cfg.FeedbackAddr(), Err: err}
		}

		record, err := DecodeFeedbackRecord(chunk)
		if err != nil {
			return nil, fmt.Errorf("feedback record %d: %w", len(records), err)
		}
		records = append(records, record)
	}

	f.observer.FeedbackReceived(len(records))
	f.logger.Info("Feedback fetched", "count", len(records))
	return records, nil
}
