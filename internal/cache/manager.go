package cache

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

// Manager combines the memory and disk tiers. Disk hits are promoted to
// memory.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache

	mu    sync.Mutex
	stats ManagerStats
}

// ManagerStats counts hits per tier.
type ManagerStats struct {
	MemoryHits int64
	DiskHits   int64
	Misses     int64
	Puts       int64
}

// DefaultDiskPath returns the per-user directory for cached audio.
func DefaultDiskPath() (string, error) {
	dir, err := gap.NewScope(gap.User, "kokoro-tts").CacheDir()
	if err != nil {
		return "", fmt.Errorf("could not find cache directory: %w", err)
	}
	return filepath.Join(dir, "audio"), nil
}

// NewManager opens the tiers described by cfg. An empty DiskPath keeps
// the cache in memory only.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{memory: NewMemoryCache(cfg.MemoryCapacity)}

	if cfg.DiskPath != "" {
		disk, err := NewDiskCache(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		if cfg.MaxAge > 0 {
			if n := disk.RemoveOlderThan(time.Now().Add(-cfg.MaxAge)); n > 0 {
				log.Debug("Removed expired cache entries", "count", n)
			}
		}
		m.disk = disk
	}

	return m, nil
}

// Get looks up key in memory, then on disk.
func (m *Manager) Get(key string) ([]byte, Level, bool) {
	if data, ok := m.memory.Get(key); ok {
		m.count(func(s *ManagerStats) { s.MemoryHits++ })
		return data, LevelMemory, true
	}

	if m.disk != nil {
		if data, ok := m.disk.Get(key); ok {
			m.count(func(s *ManagerStats) { s.DiskHits++ })
			if err := m.memory.Put(key, data); err != nil && !errors.Is(err, ErrItemTooLarge) {
				log.Debug("Could not promote cache entry", "err", err)
			}
			return data, LevelDisk, true
		}
	}

	m.count(func(s *ManagerStats) { s.Misses++ })
	return nil, LevelMemory, false
}

// Put stores value in both tiers. Items too large for a tier are skipped
// for that tier only.
func (m *Manager) Put(key string, value []byte) error {
	m.count(func(s *ManagerStats) { s.Puts++ })

	if err := m.memory.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return fmt.Errorf("memory cache: %w", err)
	}
	if m.disk != nil {
		if err := m.disk.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
			return fmt.Errorf("disk cache: %w", err)
		}
	}
	return nil
}

// Clear empties both tiers.
func (m *Manager) Clear() error {
	m.memory.Clear()
	if m.disk != nil {
		return m.disk.Clear()
	}
	return nil
}

// Stats returns the hit counters.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// TierStats returns the per-tier statistics. The disk entry is zero when the
// disk tier is disabled.
func (m *Manager) TierStats() (memory, disk Stats) {
	memory = m.memory.Stats()
	if m.disk != nil {
		disk = m.disk.Stats()
	}
	return memory, disk
}

// Close flushes the disk index.
func (m *Manager) Close() error {
	if m.disk != nil {
		return m.disk.Close()
	}
	return nil
}

func (m *Manager) count(fn func(*ManagerStats)) {
	m.mu.Lock()
	fn(&m.stats)
	m.mu.Unlock()
}
