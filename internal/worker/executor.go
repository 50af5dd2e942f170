package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/nsqio/go-nsq"

	"elis/backend/features/job"
	"elis/backend/internal/adapter/dockertool"
	"elis/backend/internal/middleware"
)

// Executor is the single task body shared by every job kind: claim the job,
// run its tool, classify, and persist the terminal state or re-enqueue.
//
// Errors returned from HandleMessage requeue the NSQ message; the
// conditional claim makes redelivery idempotent, and the lease sweep
// backstops any attempt that dies without finishing its writes.
type Executor struct {
	repo         job.Repository
	invoker      Invoker
	tools        map[string]dockertool.Tool
	images       ImageCreator
	pub          TaskPublisher
	reporter     StatusReporter
	workspaceDir string
	leaseSeconds int
	baseDelay    time.Duration
	logger       *slog.Logger

	// TouchInterval is how often an in-flight delivery is touched while the
	// tool runs. Must stay well under the consumer's MsgTimeout.
	TouchInterval time.Duration
}

const defaultTouchInterval = 45 * time.Second

func NewExecutor(
	repo job.Repository,
	invoker Invoker,
	tools map[string]dockertool.Tool,
	images ImageCreator,
	pub TaskPublisher,
	reporter StatusReporter,
	workspaceDir string,
	leaseSeconds int,
	baseDelay time.Duration,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		repo:          repo,
		invoker:       invoker,
		tools:         tools,
		images:        images,
		pub:           pub,
		reporter:      reporter,
		workspaceDir:  workspaceDir,
		leaseSeconds:  leaseSeconds,
		baseDelay:     baseDelay,
		logger:        logger,
		TouchInterval: defaultTouchInterval,
	}
}

func (e *Executor) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var msg JobMessage
	if err := json.Unmarshal(m.Body, &msg); err != nil {
		// Poison pill: requeueing invalid JSON cannot help.
		e.logger.Error("poison pill: invalid job message", "error", err)
		return nil
	}
	if msg.JobID == "" {
		e.logger.Error("poison pill: job message without job_id")
		return nil
	}

	ctx := context.Background()
	if msg.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, msg.CorrelationID)
	}

	// Touch the delivery while the tool runs: MsgTimeout is far shorter
	// than the hard execution limit, so without the keep-alive nsqd would
	// redeliver a job that is still legitimately processing.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(e.TouchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.Touch()
			}
		}
	}()

	return e.Execute(ctx, msg)
}

func (e *Executor) Execute(ctx context.Context, msg JobMessage) error {
	lease := e.leaseSeconds
	startMsg := fmt.Sprintf("Starting %s...", msg.Kind)
	claimed, err := e.repo.Transition(ctx, msg.JobID,
		[]job.Status{job.StatusQueued}, job.StatusProcessing,
		job.TransitionFields{
			StatusMessage: &startMsg,
			LeaseSeconds:  &lease,
			MarkStarted:   true,
		})
	if err != nil {
		return fmt.Errorf("claim job %s: %w", msg.JobID, err)
	}
	if !claimed {
		// Another worker or the lease sweep already advanced this job.
		e.logger.InfoContext(ctx, "job already claimed, skipping", "job_id", msg.JobID)
		return nil
	}

	// The row is the authoritative attempt counter; the message copy can be
	// stale after a sweep-driven requeue.
	j, err := e.repo.Get(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", msg.JobID, err)
	}

	var params job.Params
	if err := json.Unmarshal(j.Params, &params); err != nil {
		return e.finalize(ctx, j, Outcome{
			Status:  job.StatusFailed,
			Message: "Failed",
			Error:   fmt.Sprintf("unreadable job parameters: %v", err),
		})
	}

	tool, ok := e.tools[string(j.Kind)]
	if !ok {
		return e.finalize(ctx, j, Outcome{
			Status:  job.StatusFailed,
			Message: "Failed",
			Error:   fmt.Sprintf("no tool registered for kind %q", j.Kind),
		})
	}

	e.reporter.Report(ctx, j.ID, fmt.Sprintf("Running %s...", tool.Name))

	outputDir := filepath.Join(e.workspaceDir, j.OwnerID, "jobs", j.ID)
	opts := dockertool.Options{
		Aggressiveness: params.Aggressiveness,
		SaveNoiseprint: params.SaveNoiseprint,
	}

	res, invokeErr := e.invoker.Invoke(ctx, tool, params.InputPath, outputDir, opts)

	var badOption *dockertool.ErrBadOption
	if errors.As(invokeErr, &badOption) {
		// Configuration error: fails fast, never retried. Submission
		// validates the same range, so this only fires on drift between
		// the two layers.
		return e.finalize(ctx, j, Outcome{
			Status:  job.StatusFailed,
			Message: "Failed",
			Error:   badOption.Error(),
		})
	}

	outcome := Classify(res, invokeErr, j.RetryCount, j.MaxRetries, e.baseDelay)
	if outcome.Decision.Retry {
		return e.requeue(ctx, j, msg, outcome)
	}
	return e.finalize(ctx, j, outcome)
}

// requeue moves the job back to queued with the bumped attempt counter and
// schedules redelivery after the backoff delay.
func (e *Executor) requeue(ctx context.Context, j *job.Job, msg JobMessage, outcome Outcome) error {
	next := outcome.Decision.NextRetryCount
	note := fmt.Sprintf("Retrying (%d/%d) in %s: %s", next, j.MaxRetries, outcome.Decision.Delay, outcome.Message)
	ok, err := e.repo.Transition(ctx, j.ID,
		[]job.Status{job.StatusProcessing}, job.StatusQueued,
		job.TransitionFields{
			StatusMessage: &note,
			RetryCount:    &next,
		})
	if err != nil {
		return fmt.Errorf("requeue job %s: %w", j.ID, err)
	}
	if !ok {
		e.logger.InfoContext(ctx, "job advanced elsewhere, not requeuing", "job_id", j.ID)
		return nil
	}

	msg.RetryCount = next
	body, _ := json.Marshal(msg)
	if err := e.pub.DeferredPublish(job.TopicFor(j.Kind), outcome.Decision.Delay, body); err != nil {
		// The row is queued again, so letting NSQ redeliver the original
		// message re-claims it without losing the attempt.
		return fmt.Errorf("schedule retry for job %s: %w", j.ID, err)
	}

	e.logger.InfoContext(ctx, "job retry scheduled",
		"job_id", j.ID, "retry_count", next, "delay", outcome.Decision.Delay, "reason", outcome.Message)
	return nil
}

// finalize runs success post-processing and writes the terminal status.
// Post-processing happens before the terminal write so a failure there can
// downgrade completed to completed_with_errors without losing the primary
// result.
func (e *Executor) finalize(ctx context.Context, j *job.Job, outcome Outcome) error {
	if outcome.Result != nil && j.Kind == job.KindExtractImages && len(outcome.Result.Artifacts) > 0 {
		artifacts := make([]dockertool.Artifact, len(outcome.Result.Artifacts))
		for i, a := range outcome.Result.Artifacts {
			artifacts[i] = dockertool.Artifact{Name: a.Name, Path: a.Path, Size: a.Size}
		}
		if err := e.images.CreateExtracted(ctx, j.OwnerID, j.SubjectID, artifacts); err != nil {
			e.logger.ErrorContext(ctx, "post-processing failed", "job_id", j.ID, "error", err)
			outcome.Result.ToolErrors = append(outcome.Result.ToolErrors,
				fmt.Sprintf("post-processing: %v", err))
			if outcome.Status == job.StatusCompleted {
				outcome.Status = job.StatusCompletedWithErrors
				outcome.Message = "Completed with errors"
			}
		}
	}

	fields := job.TransitionFields{
		StatusMessage: &outcome.Message,
		MarkCompleted: true,
	}
	if outcome.Error != "" {
		fields.Error = &outcome.Error
	}
	if outcome.Result != nil {
		result, err := json.Marshal(outcome.Result)
		if err != nil {
			return fmt.Errorf("marshal result for job %s: %w", j.ID, err)
		}
		fields.Result = result
	}

	ok, err := e.repo.Transition(ctx, j.ID,
		[]job.Status{job.StatusProcessing}, outcome.Status, fields)
	if err != nil {
		// Best effort exhausted; redelivery plus the lease sweep will pick
		// this attempt up again.
		e.logger.ErrorContext(ctx, "failed to persist terminal status",
			"job_id", j.ID, "status", outcome.Status, "error", err)
		return err
	}
	if !ok {
		e.logger.InfoContext(ctx, "terminal write skipped, job advanced elsewhere", "job_id", j.ID)
		return nil
	}

	e.logger.InfoContext(ctx, "job finished",
		"job_id", j.ID, "kind", j.Kind, "status", outcome.Status, "retry_count", j.RetryCount)
	return nil
}
