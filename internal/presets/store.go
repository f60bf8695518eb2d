package presets

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/playcue/backend/internal/physics"
)

// DefaultName is the preset every table gets unless a match asks for
// something else. The store creates it on first run.
const DefaultName = "standard"

var (
	ErrNotFound = errors.New("preset not found")
	ErrBadName  = errors.New("invalid preset name")
)

// Store keeps named physics configs as JSON files in one directory and a
// validated in-memory copy of each. Reads go through viper so presets
// unmarshal by the same mapstructure tags everywhere.
type Store struct {
	dir string

	mu    sync.RWMutex
	cache map[string]physics.PhysicsConfig
}

// NewStore opens (creating if needed) a preset directory, seeds the
// standard preset when absent, and loads everything it can.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create preset dir: %w", err)
	}
	s := &Store{dir: dir, cache: make(map[string]physics.PhysicsConfig)}

	if _, err := os.Stat(s.path(DefaultName)); errors.Is(err, os.ErrNotExist) {
		if err := s.write(DefaultName, physics.DefaultConfig()); err != nil {
			return nil, err
		}
		log.Printf("[PRESETS] seeded %s preset in %s", DefaultName, dir)
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// validName keeps preset names shell- and path-safe.
func validName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		ok := r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Reload rescans the directory. Unreadable or invalid files are skipped
// with a warning rather than taking the store down.
func (s *Store) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read preset dir: %w", err)
	}

	fresh := make(map[string]physics.PhysicsConfig)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		if !validName(name) {
			continue
		}
		cfg, err := s.read(name)
		if err != nil {
			log.Printf("[PRESETS] skipping %s: %v", entry.Name(), err)
			continue
		}
		fresh[name] = cfg
	}

	s.mu.Lock()
	s.cache = fresh
	s.mu.Unlock()
	return nil
}

// read parses and validates one preset file.
func (s *Store) read(name string) (physics.PhysicsConfig, error) {
	v := viper.New()
	v.SetConfigFile(s.path(name))
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return physics.PhysicsConfig{}, fmt.Errorf("read preset: %w", err)
	}
	var cfg physics.PhysicsConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return physics.PhysicsConfig{}, fmt.Errorf("parse preset: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return physics.PhysicsConfig{}, err
	}
	return cfg, nil
}

func (s *Store) write(name string, cfg physics.PhysicsConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode preset: %w", err)
	}
	if err := os.WriteFile(s.path(name), raw, 0o644); err != nil {
		return fmt.Errorf("write preset: %w", err)
	}
	return nil
}

// Get returns a named preset.
func (s *Store) Get(name string) (physics.PhysicsConfig, error) {
	if !validName(name) {
		return physics.PhysicsConfig{}, ErrBadName
	}
	s.mu.RLock()
	cfg, ok := s.cache[name]
	s.mu.RUnlock()
	if !ok {
		return physics.PhysicsConfig{}, ErrNotFound
	}
	return cfg, nil
}

// Save validates and persists a preset, then serves it immediately.
func (s *Store) Save(name string, cfg physics.PhysicsConfig) error {
	if !validName(name) {
		return ErrBadName
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.write(name, cfg); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache[name] = cfg
	s.mu.Unlock()
	log.Printf("[PRESETS] saved preset %s", name)
	return nil
}

// List returns the loaded preset names, sorted.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.cache))
	for name := range s.cache {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
