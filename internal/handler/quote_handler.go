package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/omerorhan/points-quote-service/internal/service"
)

const maxBodyBytes = 1 << 20

// Quoter is the part of the quote service the HTTP layer needs
type Quoter interface {
	Quote(ctx context.Context, req service.QuoteRequest) (service.PointsQuote, error)
	Health(ctx context.Context) service.HealthReport
}

type QuoteHandler struct {
	quoter Quoter
	logger *zap.Logger
	now    func() time.Time
}

func NewQuoteHandler(quoter Quoter, logger *zap.Logger) *QuoteHandler {
	return &QuoteHandler{
		quoter: quoter,
		logger: logger,
		now:    time.Now,
	}
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// HandleQuote handles POST /v1/points/quote
func (h *QuoteHandler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	var req service.QuoteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Info("malformed quote request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed request body")
		return
	}

	quote, err := h.quoter.Quote(r.Context(), req)
	if err != nil {
		status, code := classify(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("quote request failed",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Int("status", status),
				zap.Error(err))
		}
		h.writeError(w, status, code, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

// HandleHealth handles GET /health
func (h *QuoteHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.quoter.Health(r.Context()))
}

// classify maps a quote error onto an HTTP status and error code
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, service.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT_ERROR"
	case errors.Is(err, service.ErrExternalService):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func (h *QuoteHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
