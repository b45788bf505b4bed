package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Store owns a config file: current value, persistence, watching, and the
// section accessor behind the get_config / update_config_section built-ins.
type Store struct {
	path   string
	logger *slog.Logger

	mu  sync.RWMutex
	cfg *Config

	watcher  *fsnotify.Watcher
	onChange func(*Config)
}

// NewStore opens the config at path, falling back to defaults when the
// file does not exist yet.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{path: path, logger: logger}
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		if err != nil {
			return nil, err
		}
		s.cfg = cfg
	} else {
		s.cfg = Default()
	}
	return s, nil
}

// Path returns the canonical config file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the current config.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

// Update applies a mutation under the lock and persists the result.
func (s *Store) Update(mutate func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(s.cfg)
	return s.saveLocked()
}

// Save persists the current config as JSON.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(s.cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", s.path, err)
	}
	return nil
}

// Section renders one top-level section as indented JSON, or the whole
// config when name is empty. Section names match the JSON keys.
func (s *Store) Section(name string) (string, error) {
	s.mu.RLock()
	cfg := *s.cfg
	s.mu.RUnlock()

	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	if name == "" {
		var pretty map[string]any
		if err := json.Unmarshal(data, &pretty); err != nil {
			return "", err
		}
		out, _ := json.MarshalIndent(pretty, "", "  ")
		return string(out), nil
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return "", err
	}
	raw, ok := sections[name]
	if !ok {
		return "", fmt.Errorf("unknown config section %q (available: %s)", name, strings.Join(sectionNames(sections), ", "))
	}

	var pretty any
	if err := json.Unmarshal(raw, &pretty); err != nil {
		return "", err
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	return string(out), nil
}

// UpdateSection merges values into one top-level section and persists. The
// merge goes through the JSON representation so section names match what
// get_config shows.
func (s *Store) UpdateSection(name string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(s.cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	section, ok := doc[name].(map[string]any)
	if !ok {
		if _, exists := doc[name]; exists {
			// Scalar sections (model, host) take a single "value" key.
			if v, hasValue := values["value"]; hasValue && len(values) == 1 {
				doc[name] = v
			} else {
				return fmt.Errorf("config section %q is not an object; update it with {\"value\": ...}", name)
			}
		} else {
			return fmt.Errorf("unknown config section %q", name)
		}
	} else {
		for k, v := range values {
			section[k] = v
		}
		doc[name] = section
	}

	merged, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	updated := Default()
	if err := json.Unmarshal(merged, updated); err != nil {
		return fmt.Errorf("invalid value for section %q: %w", name, err)
	}

	s.cfg = updated
	return s.saveLocked()
}

// Watch reloads the config when the file changes on disk and invokes the
// callback with the new value. Stop with Close.
func (s *Store) Watch(onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", s.path, err)
	}

	s.watcher = watcher
	s.onChange = onChange

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.path || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				cfg, err := Load(s.path)
				if err != nil {
					s.logger.Warn("Config reload failed", "path", s.path, "error", err)
					continue
				}
				s.mu.Lock()
				s.cfg = cfg
				s.mu.Unlock()
				s.logger.Info("Config reloaded", "path", s.path)
				if onChange != nil {
					onChange(cfg)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("Config watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Close stops the watcher if one is running.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func sectionNames(sections map[string]json.RawMessage) []string {
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
