package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the selection in a small JSON document on the local machine.
// Like browser local storage it holds one value per machine profile; userID is ignored.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore writing to path. An empty path uses DefaultFilePath.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		p, err := DefaultFilePath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &FileStore{path: path}, nil
}

// DefaultFilePath returns <user config dir>/orgscope/state.json.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("selection: resolve config dir: %w", err)
	}
	return filepath.Join(dir, "orgscope", "state.json"), nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load returns the stored organization id. A missing file is not an error.
func (s *FileStore) Load(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return "", err
	}
	return doc[Key], nil
}

// Save writes orgID atomically (temp file + rename), keeping any unrelated keys.
func (s *FileStore) Save(_ context.Context, _ string, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		// corrupt documents are overwritten
		doc = map[string]string{}
	}
	doc[Key] = orgID
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("selection: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("selection: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("selection: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("selection: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("selection: %w", err)
	}
	return nil
}

func (s *FileStore) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("selection: %w", err)
	}
	doc := map[string]string{}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("selection: decode %s: %w", s.path, err)
	}
	return doc, nil
}
