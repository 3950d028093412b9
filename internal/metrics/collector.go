// Package metrics exposes gateway activity as Prometheus counters.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tinywideclouds/go-apns-gateway/pkg/apns"
)

const Namespace = "apns"

// Collector implements apns.Observer.
type Collector struct {
	connectionsOpened prometheus.Counter
	attemptFailures   *prometheus.CounterVec
	retriesExhausted  prometheus.Counter
	framesWritten     prometheus.Counter
	feedbackRecords   prometheus.Counter
}

var _ apns.Observer = (*Collector)(nil)

// NewCollector registers the gateway counters with reg.
// A nil reg falls back to prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		connectionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connections_opened_total",
			Help:      "Total number of TLS sessions opened to the gateway",
		}),
		attemptFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "attempt_failures_total",
			Help:      "Total number of send attempts that failed with a transport error",
		}, []string{"op"}),
		retriesExhausted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "retries_exhausted_total",
			Help:      "Total number of batches abandoned after the retry ceiling",
		}),
		framesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_written_total",
			Help:      "Total number of notification frames written",
		}),
		feedbackRecords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "feedback_records_total",
			Help:      "Total number of feedback records received",
		}),
	}
}

func (c *Collector) ConnectionOpened() { c.connectionsOpened.Inc() }

func (c *Collector) AttemptFailed(_ int, err error) {
	op := "unknown"
	var te *apns.TransportError
	if errors.As(err, &te) && te.Op != "" {
		op = te.Op
	}
	c.attemptFailures.WithLabelValues(op).Inc()
}

func (c *Collector) RetriesExhausted() { c.retriesExhausted.Inc() }

func (c *Collector) FramesWritten(n int) { c.framesWritten.Add(float64(n)) }

func (c *Collector) FeedbackReceived(n int) { c.feedbackRecords.Add(float64(n)) }
