package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-apns-gateway/pkg/apns"
	"github.com/tinywideclouds/go-apns-gateway/pkg/dispatch"
)

// Poller is satisfied by *feedback.Poller.
type Poller interface {
	Poll(ctx context.Context) ([]apns.FeedbackRecord, error)
}

type FeedbackAPI struct {
	Poller Poller
	Store  dispatch.FeedbackStore
	Logger *slog.Logger
}

func NewFeedbackAPI(poller Poller, store dispatch.FeedbackStore, logger *slog.Logger) *FeedbackAPI {
	return &FeedbackAPI{
		Poller: poller,
		Store:  store,
		Logger: logger,
	}
}

type feedbackResponse struct {
	Count   int                   `json:"count"`
	Records []apns.FeedbackRecord `json:"records"`
}

// Sync runs one feedback poll now and returns what it recorded.
func (api *FeedbackAPI) Sync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := middleware.GetUserHandleFromContext(ctx); !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	records, err := api.Poller.Poll(ctx)
	if err != nil {
		api.Logger.Error("Sync: feedback poll failed", "err", err)
		response.WriteJSONError(w, http.StatusBadGateway, "feedback service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, feedbackResponse{Count: len(records), Records: records})
}

// List returns every stored dead token.
func (api *FeedbackAPI) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := middleware.GetUserHandleFromContext(ctx); !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	records, err := api.Store.List(ctx)
	if err != nil {
		api.Logger.Error("List: storage failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	writeJSON(w, http.StatusOK, feedbackResponse{Count: len(records), Records: records})
}
