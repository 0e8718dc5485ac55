// Package config is the core's sole consumer view of persisted folder
// configuration: a one-way dependency on an afero.Fs-backed JSON document,
// owned exclusively by this package. The core never writes the file
// directly; it calls Load/Add/Remove and awaits completion.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

const fileName = "folders.json"

// Entry is one persisted folder binding.
type Entry struct {
	Path  string `json:"path"`
	Model string `json:"model"`
}

type document struct {
	Folders []Entry `json:"folders"`
}

// Store owns the persisted folder list. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

// New creates a Store rooted at dir/folders.json.
func New(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, path: filepath.Join(dir, fileName)}
}

// Load reads the persisted folder list, returning an empty list if the
// file does not yet exist (first run).
func (s *Store) Load() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return doc.Folders, nil
}

// Add appends entry and persists the updated list. No-op if path already
// present.
func (s *Store) Add(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return err
	}
	for _, e := range doc.Folders {
		if e.Path == entry.Path {
			return nil
		}
	}
	doc.Folders = append(doc.Folders, entry)
	return s.writeLocked(doc)
}

// Remove deletes the entry for path and persists the updated list. No-op
// if path is not present.
func (s *Store) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return err
	}
	out := doc.Folders[:0:0]
	for _, e := range doc.Folders {
		if e.Path != path {
			out = append(out, e)
		}
	}
	doc.Folders = out
	return s.writeLocked(doc)
}

func (s *Store) readLocked() (document, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if isNotExist(err) {
			return document{}, nil
		}
		return document{}, fmt.Errorf("read config: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("decode config: %w", err)
	}
	return doc, nil
}

func (s *Store) writeLocked(doc document) error {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return afero.WriteFile(s.fs, s.path, data, 0o644)
}

func isNotExist(err error) bool {
	return os.IsNotExist(err)
}
