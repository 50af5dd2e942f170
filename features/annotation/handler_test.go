package annotation_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"elis/backend/features/annotation"
)

type memRepo struct {
	saved      []*annotation.Annotation
	byImage    map[string][]annotation.Annotation
	deletedIDs []string
}

func (m *memRepo) Save(ctx context.Context, a *annotation.Annotation) error {
	a.ID = "ann-1"
	m.saved = append(m.saved, a)
	return nil
}

func (m *memRepo) ListByImage(ctx context.Context, imageID string) ([]annotation.Annotation, error) {
	return m.byImage[imageID], nil
}

// annID exists and belongs to u1.
const annID = "4c2e8f1a-6b9d-4e3f-8a50-b7c1d2e3f405"

func (m *memRepo) Delete(ctx context.Context, id, ownerID string) error {
	if id != annID || ownerID != "u1" {
		return annotation.ErrNotFound
	}
	m.deletedIDs = append(m.deletedIDs, id)
	return nil
}

func newAnnotationMux(repo annotation.Repository) *http.ServeMux {
	h := annotation.NewHandler(repo)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /images/{id}/annotations", h.Create)
	mux.HandleFunc("GET /images/{id}/annotations", h.List)
	mux.HandleFunc("DELETE /images/{id}/annotations/{annotationId}", h.Delete)
	return mux
}

func TestHandler_Create(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		repo := &memRepo{}
		mux := newAnnotationMux(repo)

		body := `{"label": "splice-suspect", "note": "corner", "region": {"x": 10, "y": 20}}`
		req := httptest.NewRequest("POST", "/images/img-1/annotations", strings.NewReader(body))
		req.Header.Set("X-User-ID", "u1")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Len(t, repo.saved, 1)
		assert.Equal(t, "img-1", repo.saved[0].ImageID)
		assert.Equal(t, "u1", repo.saved[0].OwnerID)
	})

	t.Run("LabelRequired", func(t *testing.T) {
		mux := newAnnotationMux(&memRepo{})

		req := httptest.NewRequest("POST", "/images/img-1/annotations", strings.NewReader(`{"note": "x"}`))
		req.Header.Set("X-User-ID", "u1")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("MissingUserHeader", func(t *testing.T) {
		mux := newAnnotationMux(&memRepo{})

		req := httptest.NewRequest("POST", "/images/img-1/annotations", strings.NewReader(`{"label": "x"}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_List_EmptyIsArray(t *testing.T) {
	mux := newAnnotationMux(&memRepo{})

	req := httptest.NewRequest("GET", "/images/img-1/annotations", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestHandler_Delete(t *testing.T) {
	t.Run("Deleted", func(t *testing.T) {
		repo := &memRepo{}
		mux := newAnnotationMux(repo)

		req := httptest.NewRequest("DELETE", "/images/img-1/annotations/"+annID, nil)
		req.Header.Set("X-User-ID", "u1")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{annID}, repo.deletedIDs)
	})

	t.Run("NotFound", func(t *testing.T) {
		mux := newAnnotationMux(&memRepo{})

		req := httptest.NewRequest("DELETE", "/images/img-1/annotations/2a7b4c9d-0e1f-4a5b-8c6d-7e8f90a1b2c3", nil)
		req.Header.Set("X-User-ID", "u1")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("MalformedID", func(t *testing.T) {
		mux := newAnnotationMux(&memRepo{})

		req := httptest.NewRequest("DELETE", "/images/img-1/annotations/abc", nil)
		req.Header.Set("X-User-ID", "u1")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("MissingUserHeader", func(t *testing.T) {
		mux := newAnnotationMux(&memRepo{})

		req := httptest.NewRequest("DELETE", "/images/img-1/annotations/"+annID, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("OtherUsersAnnotationUntouched", func(t *testing.T) {
		repo := &memRepo{}
		mux := newAnnotationMux(repo)

		req := httptest.NewRequest("DELETE", "/images/img-1/annotations/"+annID, nil)
		req.Header.Set("X-User-ID", "u2")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, repo.deletedIDs)
	})
}
