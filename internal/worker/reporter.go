package worker

import (
	"context"
	"log/slog"

	"elis/backend/features/job"
)

// RepoReporter writes progress notes to the job row. Failures are logged
// and dropped: a lost progress note must never interfere with execution.
type RepoReporter struct {
	repo   job.Repository
	logger *slog.Logger
}

func NewRepoReporter(repo job.Repository, logger *slog.Logger) *RepoReporter {
	return &RepoReporter{repo: repo, logger: logger}
}

func (r *RepoReporter) Report(ctx context.Context, jobID, message string) {
	if err := r.repo.UpdateStatusMessage(ctx, jobID, message); err != nil {
		r.logger.WarnContext(ctx, "failed to write progress note", "job_id", jobID, "error", err)
	}
}
