package stats_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elis/backend/features/job"
	"elis/backend/features/stats"
)

type countRepo struct {
	n   int
	err error
}

func (r *countRepo) Count(ctx context.Context) (int, error) { return r.n, r.err }

type jobCountRepo struct {
	countRepo
	byStatus map[job.Status]int
}

func (r *jobCountRepo) CountByStatus(ctx context.Context) (map[job.Status]int, error) {
	return r.byStatus, r.err
}

func TestGetStats(t *testing.T) {
	h := stats.NewHandler(
		&countRepo{n: 4},
		&countRepo{n: 12},
		&jobCountRepo{
			countRepo: countRepo{n: 7},
			byStatus: map[job.Status]int{
				job.StatusQueued:    2,
				job.StatusCompleted: 4,
				job.StatusFailed:    1,
			},
		},
	)

	req := httptest.NewRequest("GET", "/stats", nil)
	rec := httptest.NewRecorder()
	h.GetStats(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data stats.StatsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Data.Documents)
	assert.Equal(t, 12, resp.Data.Images)
	assert.Equal(t, 7, resp.Data.Jobs)
	assert.Equal(t, 2, resp.Data.JobsByStatus["queued"])
	assert.Equal(t, 1, resp.Data.JobsByStatus["failed"])
}

func TestGetStats_CountError(t *testing.T) {
	h := stats.NewHandler(
		&countRepo{err: errors.New("db down")},
		&countRepo{},
		&jobCountRepo{},
	)

	req := httptest.NewRequest("GET", "/stats", nil)
	rec := httptest.NewRecorder()
	h.GetStats(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}
