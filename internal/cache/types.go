package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrClosed is returned when using a closed cache.
	ErrClosed = errors.New("cache is closed")
)

// Level is a cache tier.
type Level int

const (
	LevelMemory Level = iota
	LevelDisk
)

func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds cache counters.
type Stats struct {
	Capacity  int64
	Size      int64
	Items     int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / (hits + misses).
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Config holds cache settings.
type Config struct {
	MemoryCapacity   int64  // bytes
	DiskCapacity     int64  // bytes
	DiskPath         string // directory for cache files; empty disables L2
	CompressionLevel int    // zstd level, 0 disables compression

	// MaxAge removes disk entries older than this. Zero keeps them forever.
	MaxAge time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   64 * 1024 * 1024,
		DiskCapacity:     512 * 1024 * 1024,
		CompressionLevel: 3,
		MaxAge:           7 * 24 * time.Hour,
	}
}

// Key identifies one generation request.
type Key struct {
	Mode     string
	Endpoint string
	Format   string
	Text     string
	Voice    string
	Speed    float64
	Language string
	Dtype    string
}

// String returns a stable fingerprint for the key.
func (k Key) String() string {
	parts := []string{
		k.Mode,
		strings.TrimRight(k.Endpoint, "/"),
		k.Format,
		k.Voice,
		strconv.FormatFloat(k.Speed, 'f', 3, 64),
		k.Language,
		k.Dtype,
		k.Text,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
