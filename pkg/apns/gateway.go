// Package apns is a client for the binary Apple push gateway: it keeps one
// TLS connection per Gateway, writes simple-format notification frames with
// a bounded reconnect-and-retry loop, and reads the feedback service.
package apns

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Notification is one push addressed to a single device. Payload is usually
// a *payload.Payload from github.com/sideshow/apns2/payload; any JSON
// marshaler (including json.RawMessage) works.
type Notification struct {
	DeviceToken string
	Payload     json.Marshaler
}

// Encode renders the notification into a wire frame.
func (n Notification) Encode() ([]byte, error) {
	token, err := ParseToken(n.DeviceToken)
	if err != nil {
		return nil, err
	}
	if n.Payload == nil {
		return nil, fmt.Errorf("apns: notification for %s has no payload", n.DeviceToken)
	}
	body, err := n.Payload.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return EncodeNotification(token, body)
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithObserver reports gateway events to o.
func WithObserver(o Observer) Option {
	return func(g *Gateway) {
		if o != nil {
			g.observer = o
		}
	}
}

// Gateway delivers notifications over a single shared connection. SendAll
// and Close are mutually exclusive per instance.
type Gateway struct {
	cfg      Config
	base     *slog.Logger
	logger   *slog.Logger
	observer Observer

	mu    sync.Mutex
	conn  *Connection
	retry RetryPolicy
}

// New validates cfg and returns an unconnected Gateway. The connection is
// opened lazily by the first send.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	g := &Gateway{
		cfg:      cfg,
		base:     logger,
		logger:   logger.With("component", "APNSGateway", "addr", cfg.Addr()),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.conn = NewConnection(cfg, g.logger)
	g.retry = newRetryPolicy(g.logger, g.observer)
	return g, nil
}

// Config returns the resolved configuration.
func (g *Gateway) Config() Config {
	return g.cfg
}

// Send delivers a single notification.
func (g *Gateway) Send(ctx context.Context, n Notification) error {
	return g.SendAll(ctx, []Notification{n})
}

// SendAll writes the notifications in order over one connection. Every
// notification is encoded before the network is touched, so a caller error
// never leaves a partial batch behind. A transport failure rewrites the
// whole batch on a fresh connection, up to MaxAttempts times; the error
// does not say which frames reached the gateway.
func (g *Gateway) SendAll(ctx context.Context, notifications []Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	frames := make([][]byte, 0, len(notifications))
	for i, n := range notifications {
		frame, err := n.Encode()
		if err != nil {
			return fmt.Errorf("notification %d: %w", i, err)
		}
		frames = append(frames, frame)
	}

	batchLogger := g.logger.With("batch_id", uuid.NewString(), "size", len(frames))

	g.mu.Lock()
	defer g.mu.Unlock()

	err := g.retry.Do(ctx, g.conn, func() error {
		for _, frame := range frames {
			if err := g.conn.Write(frame); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil || !g.cfg.Persistent {
		if closeErr := g.conn.Close(); closeErr != nil {
			batchLogger.Debug("Error closing gateway connection", "err", closeErr)
		}
	}
	if err != nil {
		batchLogger.Error("Batch delivery failed", "err", err)
		return err
	}

	g.observer.FramesWritten(len(frames))
	batchLogger.Debug("Batch delivered")
	return nil
}

// Close releases the gateway connection. The Gateway stays usable; the next
// send reconnects.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conn.Close()
}

// Available reports whether the shared connection is currently open.
func (g *Gateway) Available() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.conn.Unavailable()
}

// Feedback returns a client for the feedback service of this gateway.
func (g *Gateway) Feedback() *FeedbackClient {
	return NewFeedbackClient(g.cfg, g.base, WithFeedbackObserver(g.observer))
}
