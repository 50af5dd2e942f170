package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"elis/backend/features/job"
	"elis/backend/internal/middleware"
)

type DocumentRepo interface {
	Count(ctx context.Context) (int, error)
}

type ImageRepo interface {
	Count(ctx context.Context) (int, error)
}

type JobRepo interface {
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[job.Status]int, error)
}

type Handler struct {
	documentRepo DocumentRepo
	imageRepo    ImageRepo
	jobRepo      JobRepo
}

func NewHandler(d DocumentRepo, i ImageRepo, j JobRepo) *Handler {
	return &Handler{documentRepo: d, imageRepo: i, jobRepo: j}
}

type StatsResponse struct {
	Documents    int            `json:"documents"`
	Images       int            `json:"images"`
	Jobs         int            `json:"jobs"`
	JobsByStatus map[string]int `json:"jobs_by_status"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	dCount, err := h.documentRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError)
		return
	}

	iCount, err := h.imageRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count images", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count images", http.StatusInternalServerError)
		return
	}

	jCount, err := h.jobRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	byStatus, err := h.jobRepo.CountByStatus(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs by status", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs by status", http.StatusInternalServerError)
		return
	}

	jobsByStatus := make(map[string]int, len(byStatus))
	for s, n := range byStatus {
		jobsByStatus[string(s)] = n
	}

	resp := StatsResponse{
		Documents:    dCount,
		Images:       iCount,
		Jobs:         jCount,
		JobsByStatus: jobsByStatus,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
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
