package attach

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/LeventeLantos/safety-checkin/internal/model"
)

// ErrNotFound is returned when no content exists for a file reference.
var ErrNotFound = errors.New("attachment not found")

// Store is the attachment storage collaborator. Check-in records hold
// only the returned references; the content lives here.
type Store interface {
	Store(ctx context.Context, name string, data []byte) (model.FileRef, error)
	Retrieve(ctx context.Context, ref model.FileRef) ([]byte, error)
	Remove(ctx context.Context, ref model.FileRef) error
}

// DirStore keeps attachment content in a local directory, one file per
// reference id.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) (*DirStore, error) {
	if dir == "" {
		return nil, errors.New("dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment dir: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) Store(ctx context.Context, name string, data []byte) (model.FileRef, error) {
	ref := model.FileRef{
		ID:   uuid.NewString(),
		Name: name,
		Size: int64(len(data)),
	}

	if err := os.WriteFile(s.path(ref.ID), data, 0o644); err != nil {
		return model.FileRef{}, fmt.Errorf("store attachment %q: %w", name, err)
	}
	return ref, nil
}

func (s *DirStore) Retrieve(ctx context.Context, ref model.FileRef) ([]byte, error) {
	data, err := os.ReadFile(s.path(ref.ID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("attachment %s: %w", ref.ID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *DirStore) Remove(ctx context.Context, ref model.FileRef) error {
	err := os.Remove(s.path(ref.ID))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("attachment %s: %w", ref.ID, ErrNotFound)
	}
	return err
}

func (s *DirStore) path(id string) string {
	// Reference ids are generated uuids, never user input, so they are
	// safe as file names.
	return filepath.Join(s.dir, id)
}

// FormatSize renders a byte count the way the authoring surface shows
// attachment sizes.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMG"[exp])
}
