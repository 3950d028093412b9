package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-apns-gateway/internal/pipeline"
	"github.com/tinywideclouds/go-apns-gateway/pkg/apns"
	"github.com/tinywideclouds/go-apns-gateway/pkg/dispatch"
)

// Deliverer is satisfied by *pipeline.Deliverer.
type Deliverer interface {
	Deliver(ctx context.Context, req *dispatch.PushRequest) (pipeline.DeliveryReport, error)
}

type PushAPI struct {
	Deliverer Deliverer
	Logger    *slog.Logger
}

func NewPushAPI(deliverer Deliverer, logger *slog.Logger) *PushAPI {
	return &PushAPI{
		Deliverer: deliverer,
		Logger:    logger,
	}
}

// Send delivers a push request synchronously.
func (api *PushAPI) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req dispatch.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := req.Validate(); err != nil {
		api.Logger.Warn("Send: Validation failed", "reason", err.Error())
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := api.Deliverer.Deliver(ctx, &req)
	switch {
	case err == nil:
	case pipeline.IsCallerError(err):
		response.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, apns.ErrRetriesExhausted):
		api.Logger.Error("Send: gateway unavailable", "caller", caller, "err", err)
		response.WriteJSONError(w, http.StatusBadGateway, "gateway unavailable")
		return
	default:
		api.Logger.Error("Send: delivery failed", "caller", caller, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "delivery failed")
		return
	}

	api.Logger.Info("Send: Push delivered", "caller", caller, "sent", report.Sent, "skipped", len(report.Skipped))
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
