package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"elis/backend/features/job"
)

// Reaper is the lease-expiry sweep: a worker that dies mid-processing
// leaves its job stuck with a lapsed lease, and the sweep forces it back
// into the queue (or fails it once retries are spent). Races with live
// workers are resolved by the conditional transition inside RequeueExpired.
type Reaper struct {
	repo     job.Repository
	pub      TaskPublisher
	interval time.Duration
	batch    int
	// queuedGrace is how long a queued row may sit untouched before the
	// sweep assumes its broker message was lost and republishes it. Must
	// exceed the largest backoff delay or deferred retries get duplicated
	// early (harmless, but noisy).
	queuedGrace time.Duration
	logger      *slog.Logger
}

func NewReaper(repo job.Repository, pub TaskPublisher, interval time.Duration, batch int, queuedGrace time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{repo: repo, pub: pub, interval: interval, batch: batch, queuedGrace: queuedGrace, logger: logger}
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.logger.ErrorContext(ctx, "lease sweep failed", "error", err)
			} else if n > 0 {
				r.logger.InfoContext(ctx, "lease sweep requeued jobs", "count", n)
			}
		}
	}
}

// Sweep requeues expired-lease jobs and republishes them, then republishes
// queued jobs whose broker message appears lost.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	jobs, err := r.repo.RequeueExpired(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	for _, j := range jobs {
		r.republish(ctx, j, "requeued stuck job")
	}

	stale, err := r.repo.ListStuckQueued(ctx, int(r.queuedGrace.Seconds()), r.batch)
	if err != nil {
		return len(jobs), err
	}
	for _, j := range stale {
		r.republish(ctx, j, "republished stale queued job")
	}

	return len(jobs) + len(stale), nil
}

func (r *Reaper) republish(ctx context.Context, j job.Job, note string) {
	body, _ := json.Marshal(JobMessage{
		JobID:      j.ID,
		Kind:       string(j.Kind),
		SubjectID:  j.SubjectID,
		OwnerID:    j.OwnerID,
		Params:     j.Params,
		RetryCount: j.RetryCount,
	})
	if err := r.pub.Publish(job.TopicFor(j.Kind), body); err != nil {
		// Row stays queued; the stale-queued pass retries on a later sweep.
		r.logger.ErrorContext(ctx, "failed to republish job", "job_id", j.ID, "error", err)
		return
	}
	r.logger.InfoContext(ctx, note, "job_id", j.ID, "kind", j.Kind, "retry_count", j.RetryCount)
}
