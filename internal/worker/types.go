package worker

import (
	"context"
	"time"

	"elis/backend/internal/adapter/dockertool"
)

// Invoker runs one containerized tool to completion.
type Invoker interface {
	Invoke(ctx context.Context, tool dockertool.Tool, inputPath, outputDir string, opts dockertool.Options) (*dockertool.InvocationResult, error)
}

// StatusReporter is the progress-reporting capability handed to the
// executor. Implementations write status_message for polling surfaces;
// reporting failures are swallowed, progress notes are best effort.
type StatusReporter interface {
	Report(ctx context.Context, jobID, message string)
}

// ImageCreator materializes derived image records after a successful
// extraction run.
type ImageCreator interface {
	CreateExtracted(ctx context.Context, ownerID, documentID string, artifacts []dockertool.Artifact) error
}

// TaskPublisher is the broker handle used for retry re-enqueues.
// *nsq.Producer satisfies it.
type TaskPublisher interface {
	Publish(topic string, body []byte) error
	DeferredPublish(topic string, delay time.Duration, body []byte) error
}
