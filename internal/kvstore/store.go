// Package kvstore is the phone's durable key-value storage: one JSON file per
// key under a base directory (~/.banksim by default).
package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrCorrupt  = errors.New("stored value corrupt")
)

var keyRE = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

type FileStore struct {
	dir string
	mu  sync.Mutex
}

// DefaultDir resolves BANKSIM_HOME, falling back to ~/.banksim.
func DefaultDir() (string, error) {
	if v := strings.TrimSpace(os.Getenv("BANKSIM_HOME")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".banksim"), nil
}

func Open(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func OpenDefault() (*FileStore, error) {
	dir, err := DefaultDir()
	if err != nil {
		return nil, err
	}
	return Open(dir)
}

func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(key string) (string, error) {
	if !keyRE.MatchString(key) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// Get decodes the value stored under key into out.
func (s *FileStore) Get(key string, out any) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	raw, err := os.ReadFile(path)
	s.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	if len(raw) == 0 {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// Put writes through a temp file and rename so a crash never leaves a
// half-written value behind.
func (s *FileStore) Put(key string, v any) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *FileStore) Delete(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
