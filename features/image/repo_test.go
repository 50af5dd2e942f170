package image_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"elis/backend/features/image"
)

var imageCols = []string{"id", "owner_id", "document_id", "filename", "file_path", "size", "source_type", "created_at"}

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := image.NewPostgresRepo(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO images (owner_id, document_id, filename, file_path, size, source_type)")).
		WithArgs("u1", "doc-1", "page_1.png", "/ws/u1/jobs/job-1/page_1.png", int64(1024), "extracted").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("img-1", now))

	img := &image.Image{
		OwnerID:    "u1",
		DocumentID: "doc-1",
		Filename:   "page_1.png",
		FilePath:   "/ws/u1/jobs/job-1/page_1.png",
		Size:       1024,
		SourceType: image.SourceExtracted,
	}
	err = repo.Save(context.Background(), img)
	assert.NoError(t, err)
	assert.Equal(t, "img-1", img.ID)
}

func TestPostgresRepo_BulkCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := image.NewPostgresRepo(db)

	t.Run("AllOrNothing", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO images")).
			WithArgs("u1", "doc-1", "page_1.png", "/out/page_1.png", int64(100), "extracted").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO images")).
			WithArgs("u1", "doc-1", "page_2.png", "/out/page_2.png", int64(200), "extracted").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.BulkCreate(context.Background(), []image.Image{
			{OwnerID: "u1", DocumentID: "doc-1", Filename: "page_1.png", FilePath: "/out/page_1.png", Size: 100, SourceType: "extracted"},
			{OwnerID: "u1", DocumentID: "doc-1", Filename: "page_2.png", FilePath: "/out/page_2.png", Size: 200, SourceType: "extracted"},
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("EmptyBatchIsNoop", func(t *testing.T) {
		err := repo.BulkCreate(context.Background(), nil)
		assert.NoError(t, err)
	})
}

func TestPostgresRepo_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := image.NewPostgresRepo(db)

	mock.ExpectQuery("SELECT .* FROM images WHERE id .* AND owner_id").
		WithArgs("missing", "u1").
		WillReturnRows(sqlmock.NewRows(imageCols))

	_, err = repo.Get(context.Background(), "missing", "u1")
	assert.ErrorIs(t, err, image.ErrNotFound)
}

func TestPostgresRepo_ListByDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := image.NewPostgresRepo(db)

	rows := sqlmock.NewRows(imageCols).
		AddRow("img-1", "u1", "doc-1", "page_1.png", "/out/page_1.png", 100, "extracted", time.Now()).
		AddRow("img-2", "u1", "doc-1", "page_2.png", "/out/page_2.png", 200, "extracted", time.Now())

	mock.ExpectQuery("SELECT .* FROM images WHERE document_id").
		WithArgs("doc-1").
		WillReturnRows(rows)

	imgs, err := repo.ListByDocument(context.Background(), "doc-1")
	assert.NoError(t, err)
	assert.Len(t, imgs, 2)
	assert.Equal(t, "doc-1", imgs[0].DocumentID)
}

func TestPostgresRepo_Delete_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := image.NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM images WHERE id = $1 AND owner_id = $2")).
		WithArgs("missing", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Delete(context.Background(), "missing", "u1")
	assert.ErrorIs(t, err, image.ErrNotFound)
}
