// Package filestore keeps each JSON blob in its own file under a data
// directory, written atomically via rename.
package filestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("file store: data dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) LoadJSON(key string, target any) (bool, error) {
	raw, ok, err := s.LoadRaw(key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return true, fmt.Errorf("file store: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) LoadRaw(key string) ([]byte, bool, error) {
	raw, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("file store: read %s: %w", key, err)
	}
	return raw, true, nil
}

func (s *Store) SaveJSON(key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: encode %s: %w", key, err)
	}

	target := s.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("file store: write %s: %w", key, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("file store: rename %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file store: delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error { return nil }
