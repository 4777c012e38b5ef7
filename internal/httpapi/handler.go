// Package httpapi exposes the order pipeline over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"mailorder/internal"
	"mailorder/internal/pipeline"
	"mailorder/internal/remoteparser"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 20

type ProcessEmailRequest struct {
	EmailDetails string `json:"emailDetails"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Handler struct {
	processor *pipeline.ProcessingService
	logger    *slog.Logger
}

func NewHandler(processor *pipeline.ProcessingService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{processor: processor, logger: logger}
}

// Routes serves POST /process-email, POST /api/parser and GET /healthz.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /process-email", h.ProcessEmail)
	mux.HandleFunc("POST /api/parser", h.Parse)
	mux.HandleFunc("GET /healthz", h.Health)
	return mux
}

// Health reports store reachability with order counts.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	st, err := h.processor.Stats(r.Context())
	if err != nil {
		h.logger.Error("Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ProcessEmail turns the tagged markup in emailDetails into a stored order.
func (h *Handler) ProcessEmail(w http.ResponseWriter, r *http.Request) {
	var req ProcessEmailRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn("Could not decode request body", "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body must be JSON with an emailDetails field"})
		return
	}
	if strings.TrimSpace(req.EmailDetails) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "emailDetails is required"})
		return
	}

	res, err := h.processor.ProcessMarkup(r.Context(), req.EmailDetails, nil)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Parse answers the delegated parser contract with the in-process parser,
// flag included.
func (h *Handler) Parse(w http.ResponseWriter, r *http.Request) {
	var req remoteparser.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body must be JSON with products and text"})
		return
	}

	parsed := pipeline.ParseText(req.Products, req.Text)
	blob, err := json.Marshal(remoteparser.NewResponse(parsed.Items, pipeline.DetectSpecialRequest(req.Text)))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, internal.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, internal.ErrExternalService):
		return http.StatusBadGateway
	case internal.ErrorKind(err) == "canceled":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
