// Package blobstore is the local filesystem store for media payloads.
// Blobs are addressed by a kind-scoped filename; the store knows
// nothing about sync status and performs no retries.
package blobstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/keepsake/internal/filex"
	"github.com/dmitrijs2005/keepsake/internal/models"
	"github.com/dmitrijs2005/keepsake/internal/syncerr"
)

// Store keeps blobs under root, one subdirectory per media kind.
// Subdirectories are created lazily on first save.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) kindDir(kind models.MediaKind) (string, error) {
	return filex.EnsureSubDir(s.root, string(kind))
}

// Save writes data under a freshly generated filename and returns it.
func (s *Store) Save(data []byte, kind models.MediaKind) (string, error) {
	name := uuid.NewString() + kind.Ext()
	if err := s.SaveAs(name, data, kind); err != nil {
		return "", err
	}
	return name, nil
}

// SaveAs writes data under a caller-supplied filename. Used to re-save
// a downloaded blob under a stable name so the operation stays
// idempotent.
func (s *Store) SaveAs(name string, data []byte, kind models.MediaKind) error {
	dir, err := s.kindDir(kind)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o660); err != nil {
		return fmt.Errorf("write blob %s: %w", name, err)
	}
	return nil
}

// Load reads the blob back. A missing file maps to syncerr.ErrNotFound
// so callers can distinguish it from transient I/O trouble.
func (s *Store) Load(name string, kind models.MediaKind) ([]byte, error) {
	path := s.Path(name, kind)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("blob %s: %w", name, syncerr.ErrNotFound)
		}
		return nil, fmt.Errorf("read blob %s: %w", name, err)
	}
	return data, nil
}

// Delete removes the blob. Deleting a blob that is already gone is not
// an error.
func (s *Store) Delete(name string, kind models.MediaKind) error {
	err := os.Remove(s.Path(name, kind))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", name, err)
	}
	return nil
}

// Exists reports whether the blob is present locally without reading it.
func (s *Store) Exists(name string, kind models.MediaKind) bool {
	if name == "" {
		return false
	}
	_, err := os.Stat(s.Path(name, kind))
	return err == nil
}

// Path returns the absolute location of a blob. The file may not exist.
func (s *Store) Path(name string, kind models.MediaKind) string {
	return filepath.Join(s.root, string(kind), name)
}

// Usage returns the total size in bytes of all stored blobs.
func (s *Store) Usage() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk blob store: %w", err)
	}
	return total, nil
}
