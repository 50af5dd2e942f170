package annotation

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
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

type createRequest struct {
	Label  string          `json:"label"`
	Note   string          `json:"note"`
	Region json.RawMessage `json:"region"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imageID := r.PathValue("id")

	ownerID := middleware.GetUserID(r)
	if ownerID == "" {
		h.writeError(ctx, w, "BAD_REQUEST", "X-User-ID header is required", http.StatusBadRequest)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Label == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "label is required", http.StatusBadRequest)
		return
	}

	a := &Annotation{
		ImageID: imageID,
		OwnerID: ownerID,
		Label:   req.Label,
		Note:    req.Note,
		Region:  req.Region,
	}
	if err := h.repo.Save(ctx, a); err != nil {
		slog.ErrorContext(ctx, "failed to save annotation", "image_id", imageID, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": a}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imageID := r.PathValue("id")

	annotations, err := h.repo.ListByImage(ctx, imageID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list annotations", "image_id", imageID, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if annotations == nil {
		annotations = []Annotation{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": annotations,
		"meta": map[string]int{"count": len(annotations)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID := middleware.GetUserID(r)
	if ownerID == "" {
		h.writeError(ctx, w, "BAD_REQUEST", "X-User-ID header is required", http.StatusBadRequest)
		return
	}

	id := r.PathValue("annotationId")
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(ctx, w, "NOT_FOUND", "Annotation not found", http.StatusNotFound)
		return
	}

	if err := h.repo.Delete(ctx, id, ownerID); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "Annotation not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to delete annotation", "id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": "annotation deleted"}); err != nil {
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
