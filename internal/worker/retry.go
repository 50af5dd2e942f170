package worker

import (
	"fmt"
	"time"

	"elis/backend/features/job"
	"elis/backend/internal/adapter/dockertool"
)

// RetryDecision is the explicit retry signal produced by classification and
// consumed by the executor, instead of conflating retries with error
// propagation.
type RetryDecision struct {
	Retry          bool
	Delay          time.Duration
	NextRetryCount int
}

// Outcome is the classified result of one execution attempt. When
// Decision.Retry is false, Status/Error/Result describe the terminal write.
type Outcome struct {
	Status   job.Status
	Message  string
	Error    string
	Result   *job.Result
	Decision RetryDecision
}

// Classify maps an invocation result onto the job state machine:
//
//	tool ran clean, produced artifacts        -> completed
//	tool ran, complained, >=1 artifact        -> completed_with_errors
//	tool ran clean, zero artifacts            -> failed (not retried)
//	tool reported failure (non-zero exit)     -> failed (not retried)
//	timeout or infrastructure failure         -> retry with backoff, or
//	                                             failed once retries are spent
//
// Retrying a deterministic tool on the same input is assumed not to help,
// so only timeouts and infrastructure failures burn retries.
func Classify(res *dockertool.InvocationResult, invokeErr error, retryCount, maxRetries int, baseDelay time.Duration) Outcome {
	if invokeErr != nil {
		return retryOrFail(fmt.Sprintf("infrastructure failure: %v", invokeErr), retryCount, maxRetries, baseDelay)
	}
	if res.TimedOut {
		return retryOrFail(res.Message, retryCount, maxRetries, baseDelay)
	}
	if !res.OK {
		msg := res.Message
		if res.Stderr != "" {
			msg = fmt.Sprintf("%s: %s", msg, res.Stderr)
		}
		return Outcome{Status: job.StatusFailed, Message: "Failed", Error: msg}
	}

	result := &job.Result{Message: res.Message}
	for _, a := range res.Artifacts {
		result.Artifacts = append(result.Artifacts, job.ResultArtifact{Name: a.Name, Path: a.Path, Size: a.Size})
	}
	if res.Stderr != "" {
		result.ToolErrors = append(result.ToolErrors, res.Stderr)
	}

	switch {
	case len(res.Artifacts) == 0:
		// Exit code 0 with nothing produced is a tool failure, not success.
		return Outcome{Status: job.StatusFailed, Message: "Failed", Error: "tool produced no output artifacts"}
	case len(result.ToolErrors) > 0:
		return Outcome{Status: job.StatusCompletedWithErrors, Message: "Completed with errors", Result: result}
	default:
		return Outcome{Status: job.StatusCompleted, Message: "Completed", Result: result}
	}
}

func retryOrFail(reason string, retryCount, maxRetries int, baseDelay time.Duration) Outcome {
	if retryCount >= maxRetries {
		return Outcome{
			Status:  job.StatusFailed,
			Message: "Failed",
			Error:   fmt.Sprintf("%s (retries exhausted after %d attempts)", reason, retryCount+1),
		}
	}
	return Outcome{
		Message: reason,
		Decision: RetryDecision{
			Retry:          true,
			Delay:          Backoff(baseDelay, retryCount),
			NextRetryCount: retryCount + 1,
		},
	}
}

// Backoff returns baseDelay * 2^retryCount: 60s, 120s, 240s for the
// defaults.
func Backoff(baseDelay time.Duration, retryCount int) time.Duration {
	return baseDelay * time.Duration(1<<uint(retryCount))
}
