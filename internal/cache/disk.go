package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const indexFile = "cache.index"

// DiskCache stores entries as files under a directory, optionally zstd
// compressed, with a gob index that survives restarts.
type DiskCache struct {
	basePath string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry

	mu     sync.Mutex
	stats  Stats
	closed bool
}

type diskEntry struct {
	Key          string
	FilePath     string
	Size         int64 // on disk
	OriginalSize int64
	Timestamp    time.Time
	LastAccess   time.Time
	Compressed   bool
}

// NewDiskCache opens (or creates) a disk cache at basePath. A
// compressionLevel of 0 stores entries uncompressed.
func NewDiskCache(basePath string, capacity int64, compressionLevel int) (*DiskCache, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dc := &DiskCache{
		basePath: basePath,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
	}

	if compressionLevel > 0 {
		var err error
		dc.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		dc.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
	}

	if err := dc.loadIndex(); err != nil {
		log.Warn("Discarding unreadable cache index", "path", basePath, "err", err)
		dc.index = make(map[string]*diskEntry)
	}
	for _, e := range dc.index {
		dc.size += e.Size
	}

	return dc, nil
}

// Get reads key from disk. Missing or corrupt files are dropped from the
// index and reported as a miss.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok || dc.closed {
		dc.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(entry.FilePath)
	if err == nil && entry.Compressed {
		if dc.decoder == nil {
			err = errors.New("compressed entry without decoder")
		} else {
			data, err = dc.decoder.DecodeAll(data, nil)
		}
	}
	if err != nil {
		log.Debug("Dropping unreadable cache entry", "key", key, "err", err)
		dc.removeLocked(key)
		dc.stats.Misses++
		return nil, false
	}

	entry.LastAccess = time.Now()
	dc.stats.Hits++
	return data, true
}

// Put writes value to disk, evicting least recently used entries to stay
// within capacity.
func (dc *DiskCache) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.closed {
		return ErrClosed
	}

	data := value
	compressed := false
	// only compress when it pays off
	if dc.encoder != nil && len(value) > 1024 {
		if c := dc.encoder.EncodeAll(value, nil); len(c) < len(value) {
			data = c
			compressed = true
		}
	}

	n := int64(len(data))
	if n > dc.capacity {
		return ErrItemTooLarge
	}

	if _, ok := dc.index[key]; ok {
		dc.removeLocked(key)
	}
	for dc.size+n > dc.capacity && len(dc.index) > 0 {
		dc.evictOldestLocked()
	}

	path := dc.filePath(key)
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := time.Now()
	dc.index[key] = &diskEntry{
		Key:          key,
		FilePath:     path,
		Size:         n,
		OriginalSize: int64(len(value)),
		Timestamp:    now,
		LastAccess:   now,
		Compressed:   compressed,
	}
	dc.size += n

	return dc.saveIndex()
}

// Delete removes key.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.removeLocked(key)
	return dc.saveIndex()
}

// Clear removes every entry.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for key := range dc.index {
		dc.removeLocked(key)
	}
	return dc.saveIndex()
}

// RemoveOlderThan drops entries written before cutoff and returns how many
// were removed.
func (dc *DiskCache) RemoveOlderThan(cutoff time.Time) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	removed := 0
	for key, e := range dc.index {
		if e.Timestamp.Before(cutoff) {
			dc.removeLocked(key)
			removed++
		}
	}
	if removed > 0 {
		_ = dc.saveIndex()
	}
	return removed
}

// Contains reports whether key is indexed.
func (dc *DiskCache) Contains(key string) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	_, ok := dc.index[key]
	return ok
}

// Size returns the bytes used on disk.
func (dc *DiskCache) Size() int64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.size
}

// Stats returns a snapshot of the counters.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	s := dc.stats
	s.Capacity = dc.capacity
	s.Size = dc.size
	s.Items = int64(len(dc.index))
	return s
}

// Close saves the index and releases the codecs.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.closed {
		return nil
	}
	dc.closed = true

	err := dc.saveIndex()
	if dc.encoder != nil {
		_ = dc.encoder.Close()
	}
	if dc.decoder != nil {
		dc.decoder.Close()
	}
	return err
}

func (dc *DiskCache) removeLocked(key string) {
	e, ok := dc.index[key]
	if !ok {
		return
	}
	_ = os.Remove(e.FilePath)
	dc.size -= e.Size
	delete(dc.index, key)
}

func (dc *DiskCache) evictOldestLocked() {
	var (
		oldestKey  string
		oldestTime time.Time
	)
	for key, e := range dc.index {
		if oldestKey == "" || e.LastAccess.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.LastAccess
		}
	}
	if oldestKey != "" {
		dc.removeLocked(oldestKey)
		dc.stats.Evictions++
	}
}

func (dc *DiskCache) filePath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(dc.basePath, hex.EncodeToString(sum[:16])+".wav.zst")
}

func (dc *DiskCache) loadIndex() error {
	f, err := os.Open(filepath.Join(dc.basePath, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close() //nolint:errcheck

	return gob.NewDecoder(f).Decode(&dc.index)
}

func (dc *DiskCache) saveIndex() error {
	path := filepath.Join(dc.basePath, indexFile)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(f).Encode(dc.index)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
