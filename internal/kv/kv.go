// Package kv provides small scalar state that lives outside the relational
// cache: the schema version marker and the last full sync time.
// Values are stored in a JSON file that survives database resets.
package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Well-known keys.
const (
	KeySchemaVersion = "schema_version"
	KeyLastFullSync  = "last_full_sync"
)

// fileData represents the JSON file structure.
type fileData struct {
	Version int                        `json:"version"`
	Values  map[string]json.RawMessage `json:"values"`
}

// Store is a JSON-file backed key-value store. Every write is persisted
// immediately.
type Store struct {
	path  string
	mu    sync.RWMutex
	cache *fileData
}

func emptyData() *fileData {
	return &fileData{Version: 1, Values: map[string]json.RawMessage{}}
}

// Open loads the store at path. A missing or corrupted file starts empty.
func Open(path string) (*Store, error) {
	s := &Store{path: path, cache: emptyData()}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read kv store: %w", err)
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil || fd.Values == nil {
		return s, nil
	}
	s.cache = &fd
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get decodes the value stored under key into out. It reports false when
// the key is absent.
func (s *Store) Get(key string, out interface{}) (bool, error) {
	s.mu.RLock()
	raw, ok := s.cache.Values[key]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores value under key.
func (s *Store) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Values[key] = raw
	return s.saveLocked()
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache.Values[key]; !ok {
		return nil
	}
	delete(s.cache.Values, key)
	return s.saveLocked()
}

// LastFullSync returns the time of the last completed full refresh, or the
// zero time if none has run.
func (s *Store) LastFullSync() time.Time {
	var ms int64
	if ok, err := s.Get(KeyLastFullSync, &ms); !ok || err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// SetLastFullSync records a completed full refresh.
func (s *Store) SetLastFullSync(t time.Time) error {
	return s.Set(KeyLastFullSync, t.UnixMilli())
}

// SchemaVersion returns the persisted schema version, 0 if never set.
func (s *Store) SchemaVersion() int {
	var v int
	if ok, err := s.Get(KeySchemaVersion, &v); !ok || err != nil {
		return 0
	}
	return v
}

// SetSchemaVersion persists the schema version marker.
func (s *Store) SetSchemaVersion(v int) error {
	return s.Set(KeySchemaVersion, v)
}

// saveLocked writes the file atomically (caller must hold write lock).
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.cache, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}
