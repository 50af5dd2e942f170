package image

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

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID := middleware.GetUserID(r)
	if ownerID == "" {
		h.writeError(ctx, w, "BAD_REQUEST", "X-User-ID header is required", http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(ctx, w, "NOT_FOUND", "Image not found", http.StatusNotFound)
		return
	}

	img, err := h.repo.Get(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "Image not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to get image", "id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": img}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		imgs []Image
		err  error
	)
	if documentID := r.URL.Query().Get("document_id"); documentID != "" {
		imgs, err = h.repo.ListByDocument(ctx, documentID)
	} else {
		ownerID := middleware.GetUserID(r)
		if ownerID == "" {
			h.writeError(ctx, w, "BAD_REQUEST", "X-User-ID header is required", http.StatusBadRequest)
			return
		}
		imgs, err = h.repo.ListByOwner(ctx, ownerID)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to list images", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if imgs == nil {
		imgs = []Image{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": imgs,
		"meta": map[string]int{"count": len(imgs)},
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

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(ctx, w, "NOT_FOUND", "Image not found", http.StatusNotFound)
		return
	}

	if err := h.repo.Delete(ctx, id, ownerID); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "Image not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to delete image", "id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": "image deleted"}); err != nil {
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
