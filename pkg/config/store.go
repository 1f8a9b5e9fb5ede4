// Package config persists a module's audio configuration between runs.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rslogger/rsaudio/pkg/wire"
)

// FormatVersion is the version of the stored document layout.
const FormatVersion = 1

// ErrUnsupportedFormat is returned when a stored document is newer than
// this build understands.
var ErrUnsupportedFormat = errors.New("unsupported config file format")

// Store loads and saves audio configuration.
type Store interface {
	// Load returns the stored configuration, or nil if nothing was saved.
	Load() (*wire.AudioConfig, error)

	// Save replaces the stored configuration.
	Save(cfg wire.AudioConfig) error
}

// Document is the on-disk layout.
type Document struct {
	Format   int              `json:"format" yaml:"format"`
	SavedAt  time.Time        `json:"saved_at" yaml:"saved_at"`
	ModuleID string           `json:"module_id,omitempty" yaml:"module_id,omitempty"`
	Audio    wire.AudioConfig `json:"audio" yaml:"audio"`
}

// FileStore keeps the configuration in a JSON or YAML file, chosen by the
// file extension (.yaml/.yml for YAML, anything else JSON).
type FileStore struct {
	mu       sync.Mutex
	path     string
	moduleID string
	now      func() time.Time
}

// NewFileStore returns a store for path.
func NewFileStore(path, moduleID string) *FileStore {
	return &FileStore{path: path, moduleID: moduleID, now: time.Now}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

// Save writes cfg atomically: the document goes to a temp file that is
// then renamed over the target.
func (s *FileStore) Save(cfg wire.AudioConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	doc := Document{
		Format:   FormatVersion,
		SavedAt:  s.now().UTC(),
		ModuleID: s.moduleID,
		Audio:    cfg,
	}

	var (
		data []byte
		err  error
	)
	if s.isYAML() {
		data, err = yaml.Marshal(&doc)
	} else {
		data, err = json.MarshalIndent(&doc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the stored configuration. A missing file yields nil, nil.
func (s *FileStore) Load() (*wire.AudioConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var doc Document
	if s.isYAML() {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if doc.Format > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, doc.Format)
	}
	if err := doc.Audio.Validate(); err != nil {
		return nil, fmt.Errorf("stored config in %s: %w", s.path, err)
	}

	cfg := doc.Audio
	return &cfg, nil
}

// Clear removes the file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryStore keeps the configuration in memory.
type MemoryStore struct {
	mu    sync.Mutex
	cfg   *wire.AudioConfig
	saves int

	// SaveErr, when set, is returned by every Save.
	SaveErr error
}

// Load returns the last saved configuration.
func (m *MemoryStore) Load() (*wire.AudioConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return nil, nil
	}
	cfg := *m.cfg
	return &cfg, nil
}

// Save stores cfg unless SaveErr is set.
func (m *MemoryStore) Save(cfg wire.AudioConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.cfg = &cfg
	m.saves++
	return nil
}

// Saves returns the number of successful saves.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// LoadOrDefault returns the stored configuration, falling back to def when
// nothing is stored.
func LoadOrDefault(s Store, def wire.AudioConfig) (wire.AudioConfig, error) {
	if s == nil {
		return def, nil
	}
	cfg, err := s.Load()
	if err != nil {
		return def, err
	}
	if cfg == nil {
		return def, nil
	}
	return *cfg, nil
}
