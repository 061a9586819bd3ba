package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Store reads settings through a viper instance and persists each change to
// the config file.
type Store struct {
	v    *viper.Viper
	path string

	mu        sync.Mutex
	listeners []func(Settings)
	watching  bool
}

// NewStore wraps v. Changes are written to path; flag and environment
// overrides held by v are never written.
func NewStore(v *viper.Viper, path string) *Store {
	SetDefaults(v)
	return &Store{v: v, path: path}
}

// Path returns the file changes are written to.
func (s *Store) Path() string {
	return s.path
}

// Load returns the current settings.
func (s *Store) Load() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FromViper(s.v)
}

// Set validates and stores one value, then writes it to the config file.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.v.Get(key)
	s.v.Set(key, value)
	if err := FromViper(s.v).Validate(); err != nil {
		s.v.Set(key, old)
		return fmt.Errorf("invalid %s: %w", key, err)
	}

	if err := s.persist(key, value); err != nil {
		return err
	}
	log.Debug("Saved setting", "key", key, "path", s.path)
	return nil
}

func (s *Store) persist(key string, value any) error {
	if s.path == "" {
		return nil
	}

	f := viper.New()
	f.SetConfigFile(s.path)
	f.SetConfigPermissions(0o600)
	if err := f.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unable to read config file: %w", err)
	}
	f.Set(key, value)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}
	if err := f.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	return nil
}

// Watch calls fn with fresh settings whenever the config file changes on
// disk.
func (s *Store) Watch(fn func(Settings)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	start := !s.watching
	s.watching = true
	s.mu.Unlock()

	if !start {
		return
	}

	s.v.OnConfigChange(func(e fsnotify.Event) {
		log.Debug("Config file changed", "path", e.Name, "op", e.Op)

		s.mu.Lock()
		cur := FromViper(s.v)
		listeners := append(([]func(Settings))(nil), s.listeners...)
		s.mu.Unlock()

		if err := cur.Validate(); err != nil {
			log.Warn("Ignoring invalid config change", "err", err)
			return
		}
		for _, fn := range listeners {
			fn(cur)
		}
	})
	s.v.WatchConfig()
}
