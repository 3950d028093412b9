// Package pushservice assembles the push gateway microservice: the Pub/Sub
// ingestion pipeline, the feedback poller and the HTTP API.
package pushservice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-apns-gateway/internal/api"
	"github.com/tinywideclouds/go-apns-gateway/internal/feedback"
	"github.com/tinywideclouds/go-apns-gateway/internal/pipeline"
	"github.com/tinywideclouds/go-apns-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-apns-gateway/pushservice/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[dispatch.PushRequest]
	poller          *feedback.Poller
	sender          dispatch.Sender

	pollerCancel context.CancelFunc
	pollerDone   sync.WaitGroup
	logger       *slog.Logger
}

// New assembles the service. The sender is usually an *apns.Gateway and the
// source its FeedbackClient; Shutdown closes the sender when it is an io.Closer.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	sender dispatch.Sender,
	source dispatch.FeedbackSource,
	store dispatch.FeedbackStore,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Delivery
	deliverer := pipeline.NewDeliverer(sender, store, logger)
	processor := pipeline.NewProcessor(deliverer, logger)

	// 3. Pipeline
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.PushRequestTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. Feedback
	poller := feedback.NewPoller(source, store, cfg.FeedbackInterval, logger)

	// 5. API
	pushAPI := api.NewPushAPI(deliverer, logger)
	feedbackAPI := api.NewFeedbackAPI(poller, store, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	handle("POST /api/v1/push", pushAPI.Send)
	handle("POST /api/v1/feedback/sync", feedbackAPI.Sync)
	handle("GET /api/v1/feedback", feedbackAPI.List)

	// CORS preflight for the API namespace
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	mux.Handle("GET /metrics", promhttp.Handler())

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		poller:          poller,
		sender:          sender,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	w.pollerCancel = cancel
	w.pollerDone.Add(1)
	go func() {
		defer w.pollerDone.Done()
		w.poller.Run(pollCtx)
	}()

	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if w.pollerCancel != nil {
		w.pollerCancel()
		w.pollerDone.Wait()
	}
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	if closer, ok := w.sender.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			w.logger.Error("Gateway connection close failed.", "err", err)
			finalErr = err
		}
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
