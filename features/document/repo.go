package document

import (
	"context"
	"database/sql"
	"errors"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, d *Document) error {
	query := `INSERT INTO documents (owner_id, filename, file_path, size, content_hash)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query, d.OwnerID, d.Filename, d.FilePath, d.Size, d.ContentHash).
		Scan(&d.ID, &d.CreatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id, ownerID string) (*Document, error) {
	d := &Document{}
	query := `SELECT id, owner_id, filename, file_path, size, content_hash, created_at
		FROM documents WHERE id = $1 AND owner_id = $2`
	err := r.db.QueryRowContext(ctx, query, id, ownerID).
		Scan(&d.ID, &d.OwnerID, &d.Filename, &d.FilePath, &d.Size, &d.ContentHash, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *PostgresRepo) ListByOwner(ctx context.Context, ownerID string) ([]Document, error) {
	query := `SELECT id, owner_id, filename, file_path, size, content_hash, created_at
		FROM documents WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Filename, &d.FilePath, &d.Size, &d.ContentHash, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) ExistsByHash(ctx context.Context, ownerID, hash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM documents WHERE owner_id = $1 AND content_hash = $2)`
	err := r.db.QueryRowContext(ctx, query, ownerID, hash).Scan(&exists)
	return exists, err
}

func (r *PostgresRepo) Delete(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1 AND owner_id = $2`, id, ownerID)
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
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}
