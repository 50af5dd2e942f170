package annotation

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("annotation not found")

// Annotation marks a region of interest on an image, optionally produced
// while reviewing a tamper-detection result.
type Annotation struct {
	ID        string          `json:"id"`
	ImageID   string          `json:"image_id"`
	OwnerID   string          `json:"owner_id"`
	Label     string          `json:"label"`
	Note      string          `json:"note,omitempty"`
	Region    json.RawMessage `json:"region,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Delete is keyed by id AND owner; a mismatch reads as not found.
type Repository interface {
	Save(ctx context.Context, a *Annotation) error
	ListByImage(ctx context.Context, imageID string) ([]Annotation, error)
	Delete(ctx context.Context, id, ownerID string) error
}
