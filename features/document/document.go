package document

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("document already uploaded")
)

type Document struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Filename    string    `json:"filename"`
	FilePath    string    `json:"file_path"`
	Size        int64     `json:"size"`
	ContentHash string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Point reads and deletes are keyed by id AND owner so one user can never
// touch another's documents; a mismatch reads as not found.
type Repository interface {
	Save(ctx context.Context, d *Document) error
	Get(ctx context.Context, id, ownerID string) (*Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Document, error)
	ExistsByHash(ctx context.Context, ownerID, hash string) (bool, error)
	Delete(ctx context.Context, id, ownerID string) error
	Count(ctx context.Context) (int, error)
}

type Service struct {
	repo         Repository
	workspaceDir string
}

func NewService(repo Repository, workspaceDir string) *Service {
	return &Service{repo: repo, workspaceDir: workspaceDir}
}

// Upload streams the PDF into the owner's workspace and registers it.
// The stored path is what job submissions later reference as input_path.
func (s *Service) Upload(ctx context.Context, ownerID, filename string, r io.Reader) (*Document, error) {
	dir := filepath.Join(s.workspaceDir, ownerID, "documents")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create document dir: %w", err)
	}

	// Job working directories are keyed by job id, so uploads only need to
	// be unique within the owner's document dir.
	storedName := uuid.New().String() + "_" + filepath.Base(filename)
	path := filepath.Join(dir, storedName)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create document file: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, hasher), r)
	closeErr := f.Close()
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write document file: %w", err)
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("close document file: %w", closeErr)
	}

	hash := fmt.Sprintf("%x", hasher.Sum(nil))
	exists, err := s.repo.ExistsByHash(ctx, ownerID, hash)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	if exists {
		_ = os.Remove(path)
		return nil, ErrDuplicate
	}

	d := &Document{
		OwnerID:     ownerID,
		Filename:    filename,
		FilePath:    path,
		Size:        size,
		ContentHash: hash,
	}
	if err := s.repo.Save(ctx, d); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	slog.InfoContext(ctx, "document uploaded", "document_id", d.ID, "owner_id", ownerID, "size", size)
	return d, nil
}

func (s *Service) Get(ctx context.Context, id, ownerID string) (*Document, error) {
	return s.repo.Get(ctx, id, ownerID)
}

func (s *Service) List(ctx context.Context, ownerID string) ([]Document, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// Delete removes the row first, then best-effort removes the file.
func (s *Service) Delete(ctx context.Context, id, ownerID string) error {
	d, err := s.repo.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, ownerID); err != nil {
		return err
	}
	if err := os.Remove(d.FilePath); err != nil && !os.IsNotExist(err) {
		slog.WarnContext(ctx, "failed to remove document file", "path", d.FilePath, "error", err)
	}
	return nil
}
