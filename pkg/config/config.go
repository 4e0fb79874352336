// ABOUTME: Persistence of the last-opened document path
// ABOUTME: One plain file; saved after open, cleared on unload or cancel

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoLastOpened indicates no usable last-opened path is recorded.
var ErrNoLastOpened = errors.New("config: no last-opened file")

// Store persists the last-opened document path. The core only calls these
// hooks; it does not define the storage format.
type Store interface {
	SaveLastOpened(path string) error
	LoadLastOpened() (string, error)
	ClearLastOpened() error
}

// FileStore keeps the path in a dotfile under a config directory.
type FileStore struct {
	file string
}

// NewFileStore creates a FileStore under dir, creating dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}
	return &FileStore{file: filepath.Join(dir, ".snappy")}, nil
}

// SaveLastOpened records path as the last-opened document.
func (s *FileStore) SaveLastOpened(path string) error {
	if err := os.WriteFile(s.file, []byte(path), 0o644); err != nil {
		return fmt.Errorf("save config file: %w", err)
	}
	return nil
}

// LoadLastOpened returns the recorded path. It fails with ErrNoLastOpened
// when nothing is recorded or the recorded file no longer exists.
func (s *FileStore) LoadLastOpened() (string, error) {
	content, err := os.ReadFile(s.file)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoLastOpened
		}
		return "", fmt.Errorf("read config file: %w", err)
	}
	path := strings.TrimSpace(string(content))
	if path == "" {
		return "", ErrNoLastOpened
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s no longer exists", ErrNoLastOpened, path)
	}
	return path, nil
}

// ClearLastOpened removes the recorded path.
func (s *FileStore) ClearLastOpened() error {
	if err := os.Remove(s.file); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove config file: %w", err)
	}
	return nil
}
