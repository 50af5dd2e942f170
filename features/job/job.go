package job

import (
	"encoding/json"
	"time"
)

// Kind identifies which external analysis tool a job runs.
type Kind string

const (
	KindExtractImages   Kind = "extract_images"
	KindDetectTamper    Kind = "detect_tamper"
	KindRemoveWatermark Kind = "remove_watermark"
)

func (k Kind) Valid() bool {
	switch k {
	case KindExtractImages, KindDetectTamper, KindRemoveWatermark:
		return true
	}
	return false
}

// Status is the job lifecycle state. Transitions only move forward:
// queued -> processing -> {completed, completed_with_errors, failed},
// plus processing/failed back to queued while retries remain.
type Status string

const (
	StatusQueued              Status = "queued"
	StatusProcessing          Status = "processing"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusFailed              Status = "failed"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithErrors, StatusFailed:
		return true
	}
	return false
}

type Job struct {
	ID             string          `json:"id"`
	Kind           Kind            `json:"kind"`
	SubjectID      string          `json:"subject_id"`
	OwnerID        string          `json:"owner_id"`
	Status         Status          `json:"status"`
	RetryCount     int             `json:"retry_count"`
	MaxRetries     int             `json:"max_retries"`
	StatusMessage  string          `json:"status_message,omitempty"`
	Error          string          `json:"error,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	LeaseExpiresAt *time.Time      `json:"-"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Params is the flat option set carried from submission to execution.
// InputPath points at the file the tool consumes. Aggressiveness is only
// meaningful for remove_watermark (1, 2 or 3); SaveNoiseprint only for
// detect_tamper.
type Params struct {
	InputPath      string `json:"input_path"`
	Aggressiveness int    `json:"aggressiveness,omitempty"`
	SaveNoiseprint bool   `json:"save_noiseprint,omitempty"`
}

// Result is the opaque payload written on completed / completed_with_errors.
type Result struct {
	Artifacts  []ResultArtifact `json:"artifacts"`
	ToolErrors []string         `json:"tool_errors,omitempty"`
	Message    string           `json:"message,omitempty"`
}

type ResultArtifact struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}
