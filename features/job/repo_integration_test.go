package job_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elis/backend/features/job"
	"elis/backend/internal/testutils"
)

func TestJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	repo := job.NewPostgresRepo(s.DB)
	ctx := context.Background()

	// 1. Create
	j := &job.Job{
		Kind:       job.KindDetectTamper,
		SubjectID:  "img-1",
		OwnerID:    "u1",
		MaxRetries: 3,
		Params:     json.RawMessage(`{"input_path": "/ws/u1/images/a.png"}`),
	}
	require.NoError(t, repo.Create(ctx, j))
	require.NotEmpty(t, j.ID)

	fetched, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, fetched.Status)
	assert.Equal(t, 0, fetched.RetryCount)
	assert.Nil(t, fetched.StartedAt)

	// 2. Claim: queued -> processing with a lease
	lease := 2100
	msg := "Starting detect_tamper..."
	claimed, err := repo.Transition(ctx, j.ID,
		[]job.Status{job.StatusQueued}, job.StatusProcessing,
		job.TransitionFields{StatusMessage: &msg, LeaseSeconds: &lease, MarkStarted: true})
	require.NoError(t, err)
	assert.True(t, claimed)

	// A second claim on the same row must lose: this is the whole
	// concurrency model.
	claimed, err = repo.Transition(ctx, j.ID,
		[]job.Status{job.StatusQueued}, job.StatusProcessing,
		job.TransitionFields{StatusMessage: &msg, LeaseSeconds: &lease, MarkStarted: true})
	require.NoError(t, err)
	assert.False(t, claimed)

	fetched, err = repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusProcessing, fetched.Status)
	require.NotNil(t, fetched.LeaseExpiresAt)
	require.NotNil(t, fetched.StartedAt)

	// 3. Finalize: processing -> completed with a result
	done := "Completed"
	result := json.RawMessage(`{"artifacts": [{"name": "heatmap.png", "path": "/out/heatmap.png", "size": 1024}]}`)
	ok, err := repo.Transition(ctx, j.ID,
		[]job.Status{job.StatusProcessing}, job.StatusCompleted,
		job.TransitionFields{StatusMessage: &done, Result: result, MarkCompleted: true})
	require.NoError(t, err)
	assert.True(t, ok)

	fetched, err = repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, fetched.Status)
	assert.NotNil(t, fetched.CompletedAt)
	assert.JSONEq(t, string(result), string(fetched.Result))

	// Terminal states take no further transitions.
	ok, err = repo.Transition(ctx, j.ID,
		[]job.Status{job.StatusProcessing}, job.StatusFailed, job.TransitionFields{})
	require.NoError(t, err)
	assert.False(t, ok)

	// 4. Lease sweep on an expired processing job
	j2 := &job.Job{
		Kind:       job.KindExtractImages,
		SubjectID:  "doc-1",
		OwnerID:    "u1",
		MaxRetries: 3,
		Params:     json.RawMessage(`{"input_path": "/ws/u1/documents/b.pdf"}`),
	}
	require.NoError(t, repo.Create(ctx, j2))

	// Claim with an already-lapsed lease to simulate a dead worker.
	_, err = s.DB.ExecContext(ctx,
		`UPDATE jobs SET status = 'processing', lease_expires_at = now() - interval '1 minute' WHERE id = $1`, j2.ID)
	require.NoError(t, err)

	requeued, err := repo.RequeueExpired(ctx, 10)
	require.NoError(t, err)
	require.Len(t, requeued, 1)
	assert.Equal(t, j2.ID, requeued[0].ID)
	assert.Equal(t, 1, requeued[0].RetryCount)
	assert.Equal(t, job.StatusQueued, requeued[0].Status)

	// 5. Out of retries: the sweep fails the job instead of requeuing
	_, err = s.DB.ExecContext(ctx,
		`UPDATE jobs SET status = 'processing', retry_count = 3, lease_expires_at = now() - interval '1 minute' WHERE id = $1`, j2.ID)
	require.NoError(t, err)

	requeued, err = repo.RequeueExpired(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, requeued)

	fetched, err = repo.Get(ctx, j2.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, fetched.Status)
	assert.Contains(t, fetched.Error, "lease expired")

	// 6. Counts
	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[job.StatusCompleted])
	assert.Equal(t, 1, counts[job.StatusFailed])
}
