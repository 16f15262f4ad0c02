// Package snapshot persists per-source snapshots and their compressed projections.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Load when no snapshot file exists yet.
var ErrNotFound = errors.New("snapshot not found")

const compressedSuffix = "_compressed"

// Store reads and writes snapshot files under one directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created on first save.
func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("snapshot dir is required")
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// ContentPath is the full snapshot file for a source.
func (s *Store) ContentPath(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// CompressedPath is the publishable projection file for a source.
func (s *Store) CompressedPath(name string) string {
	return filepath.Join(s.dir, name+compressedSuffix+".json")
}

// Load decodes the snapshot for name into v. It returns ErrNotFound when the
// file does not exist and a decode error when it cannot be parsed; v is left
// in an unspecified state on error.
func (s *Store) Load(name string, v any) error {
	data, err := os.ReadFile(s.ContentPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read snapshot %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse snapshot %s: %w", name, err)
	}
	return nil
}

// SaveCompressed writes entries wrapped as {"data": [...]}.
func (s *Store) SaveCompressed(name string, entries any) error {
	return s.writeJSON(s.CompressedPath(name), compressed{Data: entries})
}

// Commit writes the snapshot and its projection for name as a pair. Both are
// encoded and staged before either file is replaced; if the snapshot cannot
// be replaced the previous projection is restored, so a failed commit leaves
// the stored pair as it was.
func (s *Store) Commit(name string, content, entries any) error {
	contentPath, compressedPath := s.ContentPath(name), s.CompressedPath(name)
	contentData, err := encode(contentPath, content)
	if err != nil {
		return err
	}
	compressedData, err := encode(compressedPath, compressed{Data: entries})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	contentTmp, err := s.stage(contentPath, contentData)
	if err != nil {
		return err
	}
	compressedTmp, err := s.stage(compressedPath, compressedData)
	if err != nil {
		_ = os.Remove(contentTmp)
		return err
	}

	prev, prevErr := os.ReadFile(compressedPath)
	if err := replace(compressedTmp, compressedPath); err != nil {
		_ = os.Remove(contentTmp)
		return err
	}
	if err := replace(contentTmp, contentPath); err != nil {
		if prevErr == nil {
			if tmp, serr := s.stage(compressedPath, prev); serr == nil {
				_ = replace(tmp, compressedPath)
			}
		} else if errors.Is(prevErr, fs.ErrNotExist) {
			_ = os.Remove(compressedPath)
		}
		return err
	}
	return nil
}

type compressed struct {
	Data any `json:"data"`
}

func encode(path string, v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := encode(path, v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := s.stage(path, data)
	if err != nil {
		return err
	}
	return replace(tmp, path)
}

// stage writes data to a temp file next to path and returns its name.
func (s *Store) stage(path string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	return tmpName, nil
}

func replace(tmpName, path string) error {
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
