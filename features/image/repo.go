package image

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const imageColumns = `id, owner_id, COALESCE(document_id::text, ''), filename, file_path, size, source_type, created_at`

func (r *PostgresRepo) Save(ctx context.Context, img *Image) error {
	query := `INSERT INTO images (owner_id, document_id, filename, file_path, size, source_type)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6) RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query,
		img.OwnerID, img.DocumentID, img.Filename, img.FilePath, img.Size, img.SourceType,
	).Scan(&img.ID, &img.CreatedAt)
}

// BulkCreate inserts extraction artifacts in one transaction so a partial
// batch never lands.
func (r *PostgresRepo) BulkCreate(ctx context.Context, imgs []Image) error {
	if len(imgs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO images (owner_id, document_id, filename, file_path, size, source_type)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6)`
	for _, img := range imgs {
		if _, err := tx.ExecContext(ctx, query,
			img.OwnerID, img.DocumentID, img.Filename, img.FilePath, img.Size, img.SourceType); err != nil {
			return fmt.Errorf("insert image %s: %w", img.Filename, err)
		}
	}
	return tx.Commit()
}

func (r *PostgresRepo) Get(ctx context.Context, id, ownerID string) (*Image, error) {
	img := &Image{}
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = $1 AND owner_id = $2`
	err := r.db.QueryRowContext(ctx, query, id, ownerID).Scan(
		&img.ID, &img.OwnerID, &img.DocumentID, &img.Filename, &img.FilePath, &img.Size, &img.SourceType, &img.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (r *PostgresRepo) ListByOwner(ctx context.Context, ownerID string) ([]Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE owner_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, ownerID)
}

func (r *PostgresRepo) ListByDocument(ctx context.Context, documentID string) ([]Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE document_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, documentID)
}

func (r *PostgresRepo) list(ctx context.Context, query string, arg interface{}) ([]Image, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var imgs []Image
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ID, &img.OwnerID, &img.DocumentID, &img.Filename, &img.FilePath,
			&img.Size, &img.SourceType, &img.CreatedAt); err != nil {
			return nil, err
		}
		imgs = append(imgs, img)
	}
	return imgs, rows.Err()
}

func (r *PostgresRepo) Delete(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM images WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&count)
	return count, err
}
