// Package api exposes the ingest and dashboard endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"txn-anomaly-alerts/internal/httpx"
	"txn-anomaly-alerts/internal/service"
)

// Backend is the part of service.Service the handlers call.
type Backend interface {
	Ingest(ctx context.Context, raw service.RawEvent) (service.IngestResult, error)
	Report(ctx context.Context, windowHours int) (service.Report, error)
}

// Handler serves the HTTP endpoints.
type Handler struct {
	backend       Backend
	defaultWindow int
	maxBodyBytes  int64
	logger        zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(backend Backend, defaultWindow int, maxBodyBytes int64, logger zerolog.Logger) *Handler {
	if defaultWindow <= 0 {
		defaultWindow = 24
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &Handler{
		backend:       backend,
		defaultWindow: defaultWindow,
		maxBodyBytes:  maxBodyBytes,
		logger:        logger.With().Str("component", "api").Logger(),
	}
}

// HandleIngest accepts one {timestamp, status, count} event.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var raw service.RawEvent
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.RespondErrorString(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		httpx.RespondErrorString(w, http.StatusBadRequest, "Invalid data format: "+err.Error())
		return
	}

	result, err := h.backend.Ingest(r.Context(), raw)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, result)
}

// HandleDashboardData returns hourly aggregates and recent verdicts.
func (h *Handler) HandleDashboardData(w http.ResponseWriter, r *http.Request) {
	window := h.defaultWindow
	if v := r.URL.Query().Get("window_hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			httpx.RespondErrorString(w, http.StatusBadRequest, "window_hours must be an integer")
			return
		}
		window = parsed
	}

	report, err := h.backend.Report(r.Context(), window)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, report)
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	httpx.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		httpx.RespondError(w, http.StatusBadRequest, verr)
		return
	}

	var serr *service.StoreError
	if errors.As(err, &serr) {
		h.logger.Error().Err(err).Str("op", serr.Op).Msg("store failure")
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Database error")
		return
	}

	h.logger.Error().Err(err).Msg("unexpected error")
	httpx.RespondErrorString(w, http.StatusInternalServerError, "Internal server error")
}
