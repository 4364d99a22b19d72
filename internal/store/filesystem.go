package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"dtk-go/internal/dtk"
)

// FileSystemStore keeps one file per key:
//
//	<root>/
//	  <key>.json
//
// Writes go through a temp file and rename, so a reader never observes a
// partially written blob.
type FileSystemStore struct {
	root string
}

// NewFileSystemStore creates a store rooted at root, creating the directory
// if needed.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

func (s *FileSystemStore) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, key+".json"), nil
}

func (s *FileSystemStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, dtk.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return blob, nil
}

func (s *FileSystemStore) Set(_ context.Context, key string, blob []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	return writeFile(p, blob)
}

func (s *FileSystemStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// ValidateSetup verifies that the store root is an accessible directory.
func (s *FileSystemStore) ValidateSetup(context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("store root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("store root is not a directory: %s", s.root)
	}
	return nil
}

func (s *FileSystemStore) Close() error { return nil }

// writeFile replaces destPath with data atomically (temp file + rename).
func writeFile(destPath string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

var _ Store = (*FileSystemStore)(nil)
