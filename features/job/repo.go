package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"
)

var ErrNotFound = errors.New("job not found")

// TransitionFields carries the columns a status transition may set. Nil
// pointers leave the column untouched. All timestamps are written by the
// database (now()), never by the caller, so worker clock skew cannot
// reorder a job's history.
type TransitionFields struct {
	StatusMessage *string
	Error         *string
	Result        json.RawMessage
	RetryCount    *int
	LeaseSeconds  *int
	MarkStarted   bool
	MarkCompleted bool
}

type Repository interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Transition(ctx context.Context, id string, from []Status, to Status, fields TransitionFields) (bool, error)
	RequeueExpired(ctx context.Context, limit int) ([]Job, error)
	ListStuckQueued(ctx context.Context, olderThanSeconds, limit int) ([]Job, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Job, error)
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	UpdateStatusMessage(ctx context.Context, id, message string) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const jobColumns = `id, kind, subject_id, owner_id, status, retry_count, max_retries,
	status_message, error, result, params, lease_expires_at, started_at, completed_at,
	created_at, updated_at`

func (r *PostgresRepo) Create(ctx context.Context, j *Job) error {
	query := `INSERT INTO jobs (kind, subject_id, owner_id, status, max_retries, params)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		string(j.Kind), j.SubjectID, j.OwnerID, string(StatusQueued), j.MaxRetries, []byte(j.Params),
	).Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// Transition applies a conditional status update: the row changes only when
// its current status is in `from`. Returns false when the precondition
// fails, meaning another worker (or the lease sweep) already advanced the
// job; callers must treat false as "not ours anymore" and back off.
func (r *PostgresRepo) Transition(ctx context.Context, id string, from []Status, to Status, f TransitionFields) (bool, error) {
	fromSet := make([]string, len(from))
	for i, s := range from {
		fromSet[i] = string(s)
	}

	query := `UPDATE jobs SET
		status = $3,
		status_message = COALESCE($4, status_message),
		error = COALESCE($5, error),
		result = COALESCE($6, result),
		retry_count = COALESCE($7, retry_count),
		lease_expires_at = CASE WHEN $8::int IS NULL THEN NULL ELSE now() + make_interval(secs => $8::int) END,
		started_at = CASE WHEN $9 THEN COALESCE(started_at, now()) ELSE started_at END,
		completed_at = CASE WHEN $10 THEN COALESCE(completed_at, now()) ELSE completed_at END,
		updated_at = now()
	WHERE id = $1 AND status = ANY($2)`

	var result []byte
	if f.Result != nil {
		result = []byte(f.Result)
	}

	res, err := r.db.ExecContext(ctx, query,
		id, pq.Array(fromSet), string(to),
		f.StatusMessage, f.Error, result, f.RetryCount, f.LeaseSeconds,
		f.MarkStarted, f.MarkCompleted,
	)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// RequeueExpired is the lease sweep. Processing jobs whose lease has lapsed
// go back to queued with retry_count+1; those already at the retry ceiling
// are finalized as failed. Returns the requeued jobs so the caller can
// republish them to the broker.
func (r *PostgresRepo) RequeueExpired(ctx context.Context, limit int) ([]Job, error) {
	failQuery := `UPDATE jobs SET
		status = 'failed',
		error = 'worker lease expired, no retries remaining',
		status_message = 'Failed',
		lease_expires_at = NULL,
		completed_at = COALESCE(completed_at, now()),
		updated_at = now()
	WHERE status = 'processing' AND lease_expires_at < now() AND retry_count >= max_retries`
	if _, err := r.db.ExecContext(ctx, failQuery); err != nil {
		return nil, err
	}

	requeueQuery := `UPDATE jobs SET
		status = 'queued',
		retry_count = retry_count + 1,
		status_message = 'Requeued after lease expiry',
		lease_expires_at = NULL,
		updated_at = now()
	WHERE id IN (
		SELECT id FROM jobs
		WHERE status = 'processing' AND lease_expires_at < now() AND retry_count < max_retries
		ORDER BY updated_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING ` + jobColumns

	rows, err := r.db.QueryContext(ctx, requeueQuery, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// ListStuckQueued finds queued jobs that have not moved for a while,
// meaning their broker message was likely lost (publish failure after a
// requeue, nsqd restart). Republishing them is safe: duplicate deliveries
// die at the conditional claim.
func (r *PostgresRepo) ListStuckQueued(ctx context.Context, olderThanSeconds, limit int) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
	WHERE status = 'queued' AND updated_at < now() - make_interval(secs => $1)
	ORDER BY updated_at ASC
	LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, olderThanSeconds, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) ListByOwner(ctx context.Context, ownerID string) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&count)
	return count, err
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[Status(s)] = n
	}
	return counts, rows.Err()
}

// UpdateStatusMessage is the mid-run progress write. It deliberately skips
// the conditional-transition machinery: a stale progress note on a job that
// just went terminal is harmless, losing the terminal write is not.
func (r *PostgresRepo) UpdateStatusMessage(ctx context.Context, id, message string) error {
	query := `UPDATE jobs SET status_message = $2, updated_at = now() WHERE id = $1 AND status = 'processing'`
	_, err := r.db.ExecContext(ctx, query, id, message)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	j := &Job{}
	var kind, status string
	var statusMessage, jobErr sql.NullString
	var result, params []byte
	var leaseExpiresAt, startedAt, completedAt sql.NullTime

	err := row.Scan(&j.ID, &kind, &j.SubjectID, &j.OwnerID, &status, &j.RetryCount, &j.MaxRetries,
		&statusMessage, &jobErr, &result, &params, &leaseExpiresAt, &startedAt, &completedAt,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}

	j.Kind = Kind(kind)
	j.Status = Status(status)
	j.StatusMessage = statusMessage.String
	j.Error = jobErr.String
	if result != nil {
		j.Result = json.RawMessage(result)
	}
	if params != nil {
		j.Params = json.RawMessage(params)
	}
	if leaseExpiresAt.Valid {
		t := leaseExpiresAt.Time
		j.LeaseExpiresAt = &t
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return j, nil
}
