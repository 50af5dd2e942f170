package image

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("image not found")

const (
	SourceUploaded  = "uploaded"
	SourceExtracted = "extracted"
)

// Image is either uploaded directly or materialized from an extraction
// job's artifacts; DocumentID links extracted images back to their PDF.
type Image struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	DocumentID string    `json:"document_id,omitempty"`
	Filename   string    `json:"filename"`
	FilePath   string    `json:"file_path"`
	Size       int64     `json:"size"`
	SourceType string    `json:"source_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// Get and Delete are keyed by id AND owner; a mismatch reads as not found.
type Repository interface {
	Save(ctx context.Context, img *Image) error
	BulkCreate(ctx context.Context, imgs []Image) error
	Get(ctx context.Context, id, ownerID string) (*Image, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Image, error)
	ListByDocument(ctx context.Context, documentID string) ([]Image, error)
	Delete(ctx context.Context, id, ownerID string) error
	Count(ctx context.Context) (int, error)
}
