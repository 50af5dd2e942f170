package job

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"elis/backend/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

type submitRequest struct {
	Kind      string `json:"kind"`
	SubjectID string `json:"subject_id"`
	Params    struct {
		InputPath      string `json:"input_path"`
		Aggressiveness *int   `json:"aggressiveness"`
		SaveNoiseprint bool   `json:"save_noiseprint"`
	} `json:"params"`
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "invalid request body", http.StatusBadRequest)
		return
	}

	ownerID := middleware.GetUserID(r)
	if ownerID == "" {
		h.writeError(ctx, w, "BAD_REQUEST", "X-User-ID header is required", http.StatusBadRequest)
		return
	}

	params := Params{
		InputPath:      req.Params.InputPath,
		SaveNoiseprint: req.Params.SaveNoiseprint,
	}
	if req.Params.Aggressiveness != nil {
		params.Aggressiveness = *req.Params.Aggressiveness
	} else if Kind(req.Kind) == KindRemoveWatermark {
		params.Aggressiveness = 2
	}

	slog.InfoContext(ctx, "submitting job", "kind", req.Kind, "subject_id", req.SubjectID, "correlationId", correlationID)

	j, err := h.service.Submit(ctx, Kind(req.Kind), req.SubjectID, ownerID, params)
	if err != nil {
		if errors.Is(err, ErrInvalidParams) || errors.Is(err, ErrUnknownKind) {
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "failed to submit job", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": j}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID := middleware.GetUserID(r)
	if ownerID == "" {
		h.writeError(ctx, w, "BAD_REQUEST", "X-User-ID header is required", http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(ctx, w, "NOT_FOUND", "Job not found", http.StatusNotFound)
		return
	}

	j, err := h.service.Get(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "Job not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to get job", "id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": j}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID := middleware.GetUserID(r)
	if ownerID == "" {
		h.writeError(ctx, w, "BAD_REQUEST", "X-User-ID header is required", http.StatusBadRequest)
		return
	}

	jobs, err := h.service.List(ctx, ownerID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []Job{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": jobs,
		"meta": map[string]int{"count": len(jobs)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
