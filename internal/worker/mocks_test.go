package worker_test

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/mock"

	"elis/backend/features/job"
	"elis/backend/internal/adapter/dockertool"
)

// Mocks

type MockJobRepo struct{ mock.Mock }

func (m *MockJobRepo) Create(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *MockJobRepo) Get(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *MockJobRepo) Transition(ctx context.Context, id string, from []job.Status, to job.Status, fields job.TransitionFields) (bool, error) {
	args := m.Called(ctx, id, from, to, fields)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobRepo) RequeueExpired(ctx context.Context, limit int) ([]job.Job, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]job.Job), args.Error(1)
}

func (m *MockJobRepo) ListStuckQueued(ctx context.Context, olderThanSeconds, limit int) ([]job.Job, error) {
	args := m.Called(ctx, olderThanSeconds, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]job.Job), args.Error(1)
}

func (m *MockJobRepo) ListByOwner(ctx context.Context, ownerID string) ([]job.Job, error) {
	return nil, nil
}
func (m *MockJobRepo) Count(ctx context.Context) (int, error) { return 0, nil }
func (m *MockJobRepo) CountByStatus(ctx context.Context) (map[job.Status]int, error) {
	return nil, nil
}

func (m *MockJobRepo) UpdateStatusMessage(ctx context.Context, id, message string) error {
	args := m.Called(ctx, id, message)
	return args.Error(0)
}

type MockInvoker struct{ mock.Mock }

func (m *MockInvoker) Invoke(ctx context.Context, tool dockertool.Tool, inputPath, outputDir string, opts dockertool.Options) (*dockertool.InvocationResult, error) {
	args := m.Called(ctx, tool, inputPath, outputDir, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dockertool.InvocationResult), args.Error(1)
}

type MockImageCreator struct{ mock.Mock }

func (m *MockImageCreator) CreateExtracted(ctx context.Context, ownerID, documentID string, artifacts []dockertool.Artifact) error {
	args := m.Called(ctx, ownerID, documentID, artifacts)
	return args.Error(0)
}

type MockTaskPublisher struct{ mock.Mock }

func (m *MockTaskPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

func (m *MockTaskPublisher) DeferredPublish(topic string, delay time.Duration, body []byte) error {
	args := m.Called(topic, delay, body)
	return args.Error(0)
}

// touchCounter records keep-alive touches on a delivery.
type touchCounter struct{ n atomic.Int32 }

func (d *touchCounter) OnFinish(*nsq.Message)                      {}
func (d *touchCounter) OnRequeue(*nsq.Message, time.Duration, bool) {}
func (d *touchCounter) OnTouch(*nsq.Message)                       { d.n.Add(1) }
func (d *touchCounter) Touches() int32                             { return d.n.Load() }

// NopReporter swallows progress notes; executor tests only care about the
// state machine.
type NopReporter struct{}

func (NopReporter) Report(ctx context.Context, jobID, message string) {}

// Helper to create a test context
func NewTestContext() context.Context {
	return context.Background()
}
