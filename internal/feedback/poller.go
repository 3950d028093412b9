// Package feedback polls the feedback service and records dead tokens.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-apns-gateway/pkg/apns"
	"github.com/tinywideclouds/go-apns-gateway/pkg/dispatch"
)

type Poller struct {
	source   dispatch.FeedbackSource
	store    dispatch.FeedbackStore
	interval time.Duration
	logger   *slog.Logger
}

func NewPoller(source dispatch.FeedbackSource, store dispatch.FeedbackStore, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		source:   source,
		store:    store,
		interval: interval,
		logger:   logger.With("component", "FeedbackPoller"),
	}
}

// Poll runs one fetch-and-record cycle.
func (p *Poller) Poll(ctx context.Context) ([]apns.FeedbackRecord, error) {
	records, err := p.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feedback: %w", err)
	}
	if len(records) == 0 {
		return records, nil
	}
	if err := p.store.Record(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to record %d feedback entries: %w", len(records), err)
	}
	p.logger.Info("Recorded dead device tokens", "count", len(records))
	return records, nil
}

// Run polls immediately and then every interval until ctx is done. Failed
// cycles are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("Feedback poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			p.logger.Info("Feedback poller stopped")
			return
		case <-ticker.C:
		}
	}
}
