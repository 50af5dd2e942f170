package worker

import "encoding/json"

// JobMessage is the wire payload delivered through NSQ for one execution
// attempt. RetryCount is informational; the row in the job store is the
// authoritative attempt counter.
type JobMessage struct {
	JobID         string          `json:"job_id"`
	Kind          string          `json:"kind"`
	SubjectID     string          `json:"subject_id"`
	OwnerID       string          `json:"owner_id"`
	Params        json.RawMessage `json:"params"`
	RetryCount    int             `json:"retry_count"`
	CorrelationID string          `json:"correlation_id"`
}
