package job_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"elis/backend/features/job"
)

var jobCols = []string{"id", "kind", "subject_id", "owner_id", "status", "retry_count", "max_retries",
	"status_message", "error", "result", "params", "lease_expires_at", "started_at", "completed_at",
	"created_at", "updated_at"}

func jobRow() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(jobCols).
		AddRow("job-1", "detect_tamper", "img-1", "u1", "queued", 1, 3,
			"Requeued after lease expiry", nil, nil, []byte(`{"input_path":"/tmp/a.png"}`), nil, now, nil, now, now)
}

func TestPostgresRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := job.NewPostgresRepo(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO jobs (kind, subject_id, owner_id, status, max_retries, params)")).
		WithArgs("extract_images", "doc-1", "u1", "queued", 3, []byte(`{"input_path":"/tmp/a.pdf"}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("job-1", now, now))

	j := &job.Job{
		Kind:       job.KindExtractImages,
		SubjectID:  "doc-1",
		OwnerID:    "u1",
		MaxRetries: 3,
		Params:     []byte(`{"input_path":"/tmp/a.pdf"}`),
	}
	err = repo.Create(context.Background(), j)
	assert.NoError(t, err)
	assert.Equal(t, "job-1", j.ID)
}

func TestPostgresRepo_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := job.NewPostgresRepo(db)

	mock.ExpectQuery("SELECT .* FROM jobs WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(jobCols))

	_, err = repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, job.ErrNotFound)
}

func TestPostgresRepo_Transition(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := job.NewPostgresRepo(db)

	t.Run("ClaimSucceeds", func(t *testing.T) {
		lease := 2100
		msg := "Starting detect_tamper..."

		mock.ExpectExec(regexp.QuoteMeta("status = ANY($2)")).
			WithArgs("job-1", pq.Array([]string{"queued"}), "processing",
				&msg, nil, nil, nil, &lease, true, false).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.Transition(context.Background(), "job-1",
			[]job.Status{job.StatusQueued}, job.StatusProcessing,
			job.TransitionFields{StatusMessage: &msg, LeaseSeconds: &lease, MarkStarted: true})
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("PreconditionFails", func(t *testing.T) {
		// Someone else moved the job first; zero rows means the claim is
		// lost, not an error.
		mock.ExpectExec(regexp.QuoteMeta("status = ANY($2)")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.Transition(context.Background(), "job-1",
			[]job.Status{job.StatusQueued}, job.StatusProcessing, job.TransitionFields{})
		assert.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestPostgresRepo_RequeueExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := job.NewPostgresRepo(db)

	// First pass finalizes jobs out of retries, second requeues the rest.
	mock.ExpectExec(regexp.QuoteMeta("retry_count >= max_retries")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs(100).
		WillReturnRows(jobRow())

	jobs, err := repo.RequeueExpired(context.Background(), 100)
	assert.NoError(t, err)
	assert.Len(t, jobs, 1)
	assert.Equal(t, "job-1", jobs[0].ID)
	assert.Equal(t, 1, jobs[0].RetryCount)
	assert.Equal(t, job.StatusQueued, jobs[0].Status)
}

func TestPostgresRepo_ListStuckQueued(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := job.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("status = 'queued' AND updated_at < now()")).
		WithArgs(2100, 100).
		WillReturnRows(jobRow())

	jobs, err := repo.ListStuckQueued(context.Background(), 2100, 100)
	assert.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestPostgresRepo_UpdateStatusMessage(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := job.NewPostgresRepo(db)

	// Only processing rows take progress notes; a terminal row is left alone.
	mock.ExpectExec(regexp.QuoteMeta("status = 'processing'")).
		WithArgs("job-1", "Running trufor-detector...").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.UpdateStatusMessage(context.Background(), "job-1", "Running trufor-detector...")
	assert.NoError(t, err)
}

func TestPostgresRepo_CountByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := job.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) FROM jobs GROUP BY status")).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("queued", 2).
			AddRow("failed", 1))

	counts, err := repo.CountByStatus(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, counts[job.StatusQueued])
	assert.Equal(t, 1, counts[job.StatusFailed])
}
