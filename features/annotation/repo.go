package annotation

import (
	"context"
	"database/sql"
	"encoding/json"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, a *Annotation) error {
	query := `INSERT INTO annotations (image_id, owner_id, label, note, region)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
	var region []byte
	if a.Region != nil {
		region = []byte(a.Region)
	}
	return r.db.QueryRowContext(ctx, query, a.ImageID, a.OwnerID, a.Label, a.Note, region).
		Scan(&a.ID, &a.CreatedAt)
}

func (r *PostgresRepo) ListByImage(ctx context.Context, imageID string) ([]Annotation, error) {
	query := `SELECT id, image_id, owner_id, label, note, region, created_at
		FROM annotations WHERE image_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var annotations []Annotation
	for rows.Next() {
		var a Annotation
		var note sql.NullString
		var region []byte
		if err := rows.Scan(&a.ID, &a.ImageID, &a.OwnerID, &a.Label, &note, &region, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Note = note.String
		if region != nil {
			a.Region = json.RawMessage(region)
		}
		annotations = append(annotations, a)
	}
	return annotations, rows.Err()
}

func (r *PostgresRepo) Delete(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM annotations WHERE id = $1 AND owner_id = $2`, id, ownerID)
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
