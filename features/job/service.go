package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"elis/backend/internal/config"
	"elis/backend/internal/middleware"
)

// ErrInvalidParams is the configuration-error class: the submission is
// rejected before a row or message exists, and is never retried.
var ErrInvalidParams = errors.New("invalid job parameters")

var ErrUnknownKind = errors.New("unknown job kind")

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo       Repository
	pub        EventPublisher
	maxRetries int
	logger     *slog.Logger
}

func NewService(repo Repository, pub EventPublisher, maxRetries int, logger *slog.Logger) *Service {
	return &Service{repo: repo, pub: pub, maxRetries: maxRetries, logger: logger}
}

// TopicFor maps a job kind to its NSQ topic.
func TopicFor(kind Kind) string {
	switch kind {
	case KindExtractImages:
		return config.TopicJobExtract
	case KindDetectTamper:
		return config.TopicJobTamper
	case KindRemoveWatermark:
		return config.TopicJobWatermark
	}
	return ""
}

// Validate checks p against kind's accepted option set. Runs before any
// database row or broker message is created.
func (p Params) Validate(kind Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if p.InputPath == "" {
		return fmt.Errorf("%w: input_path is required", ErrInvalidParams)
	}
	if kind == KindRemoveWatermark {
		if p.Aggressiveness < 1 || p.Aggressiveness > 3 {
			return fmt.Errorf("%w: aggressiveness must be 1, 2 or 3, got %d", ErrInvalidParams, p.Aggressiveness)
		}
	}
	return nil
}

// Submit validates, persists a queued job and publishes it to the kind's
// topic. Execution is decoupled: every failure past this point surfaces as
// job status, never as an error to the submitter.
func (s *Service) Submit(ctx context.Context, kind Kind, subjectID, ownerID string, p Params) (*Job, error) {
	if err := p.Validate(kind); err != nil {
		return nil, err
	}

	params, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	j := &Job{
		Kind:       kind,
		SubjectID:  subjectID,
		OwnerID:    ownerID,
		Status:     StatusQueued,
		MaxRetries: s.maxRetries,
		Params:     params,
	}
	if err := s.repo.Create(ctx, j); err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"job_id":         j.ID,
		"kind":           string(kind),
		"subject_id":     subjectID,
		"owner_id":       ownerID,
		"params":         json.RawMessage(params),
		"retry_count":    0,
		"correlation_id": middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(TopicFor(kind), payload); err != nil {
		// The row exists but nothing will ever deliver it. Finalize as
		// failed so the submitter sees a terminal status when polling.
		msg := fmt.Sprintf("enqueue failed: %v", err)
		if _, terr := s.repo.Transition(ctx, j.ID, []Status{StatusQueued}, StatusFailed, TransitionFields{
			Error:         &msg,
			MarkCompleted: true,
		}); terr != nil {
			s.logger.ErrorContext(ctx, "failed to finalize unpublishable job", "job_id", j.ID, "error", terr)
		}
		return nil, fmt.Errorf("publish job: %w", err)
	}

	s.logger.InfoContext(ctx, "job submitted", "job_id", j.ID, "kind", kind, "subject_id", subjectID)
	return j, nil
}

// Get is the polling entry point for status surfaces. Jobs are only
// visible to their submitter; anyone else gets not-found.
func (s *Service) Get(ctx context.Context, id, ownerID string) (*Job, error) {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return j, nil
}

func (s *Service) List(ctx context.Context, ownerID string) ([]Job, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}
