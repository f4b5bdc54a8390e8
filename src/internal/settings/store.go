// Package settings provides the persisted key-value store the update
// subsystem reads and writes. Serializing concurrent access is the store's
// responsibility, so orchestrator runs can overlap safely.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Keys consumed and produced by the update subsystem.
const (
	KeyCheckEnabled         = "update.check_enabled"
	KeyCheckIntervalHours   = "update.check_interval_hours"
	KeyLastCheckTimestamp   = "update.last_check_timestamp"
	KeySkippedVersions      = "update.skipped_versions"
	KeyRolloutGroupID       = "update.rollout_group_id"
	KeyPendingInstallerPath = "update.pending_installer_path"
)

// Store is the settings collaborator interface. Getters return the supplied
// default when the key is absent or holds a value of the wrong type.
type Store interface {
	GetBool(key string, def bool) bool
	GetInt(key string, def int) int
	GetFloat(key string, def float64) float64
	GetString(key string, def string) string
	Set(key string, value any) error
}

// FileStore is a JSON-file backed Store. Every Set rewrites the file.
type FileStore struct {
	path string

	mu     sync.Mutex
	values map[string]any
}

// NewFileStore loads the store from path, starting empty when the file does
// not exist yet. A corrupted file is reset rather than blocking updates.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		values: make(map[string]any),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		log.Warnf("settings file is corrupted, starting fresh: %v", err)
		s.values = make(map[string]any)
	}
	return s, nil
}

func (s *FileStore) GetBool(key string, def bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key].(bool); ok {
		return v
	}
	return def
}

func (s *FileStore) GetInt(key string, def int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch v := s.values[key].(type) {
	case int:
		return v
	case float64:
		// JSON numbers decode as float64
		return int(v)
	}
	return def
}

func (s *FileStore) GetFloat(key string, def float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch v := s.values[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func (s *FileStore) GetString(key string, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key].(string); ok {
		return v
	}
	return def
}

// Set stores the value and persists the whole file.
func (s *FileStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value

	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}
