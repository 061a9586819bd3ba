// Package artifact owns the single playable audio result of a generation
// and the revocable handle consumers use to reach it.
package artifact

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

var (
	// ErrRevoked is returned when a released handle is used.
	ErrRevoked = errors.New("audio handle has been revoked")

	// ErrEmpty is returned when publishing an empty byte sequence.
	ErrEmpty = errors.New("cannot publish empty audio")
)

// Artifact is a published, playable result of a successful generation.
type Artifact struct {
	ID        string
	CreatedAt time.Time
	Handle    *Handle

	size int
}

// Size returns the length of the WAV bytes in the artifact.
func (a *Artifact) Size() int {
	return a.size
}

// Handle is an opaque, revocable reference to the bytes of an artifact.
type Handle struct {
	id      string
	mu      sync.RWMutex
	data    []byte
	revoked bool
}

// ID returns the identifier of the artifact the handle was derived from.
func (h *Handle) ID() string {
	return h.id
}

// Bytes returns the audio bytes, or ErrRevoked once the handle has been
// released.
func (h *Handle) Bytes() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.revoked {
		return nil, ErrRevoked
	}
	return h.data, nil
}

// Valid reports whether the handle is still live.
func (h *Handle) Valid() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.revoked
}

func (h *Handle) revoke() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.revoked = true
	h.data = nil
}

// Manager holds at most one live artifact.
type Manager struct {
	mu        sync.Mutex
	current   *Artifact
	onRelease []func(*Artifact)

	live      atomic.Int32
	published atomic.Int64
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// OnRelease registers a hook that runs whenever an artifact is released,
// either explicitly or because a newer one replaced it. Hooks run with the
// manager unlocked.
func (m *Manager) OnRelease(fn func(*Artifact)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRelease = append(m.onRelease, fn)
}

// Publish releases the current artifact and stores b behind a fresh handle.
// The previously issued handle is invalid once Publish returns.
func (m *Manager) Publish(b []byte) (*Artifact, error) {
	if len(b) == 0 {
		return nil, ErrEmpty
	}

	data := make([]byte, len(b))
	copy(data, b)

	id := uuid.NewString()
	a := &Artifact{
		ID:        id,
		CreatedAt: time.Now(),
		Handle:    &Handle{id: id, data: data},
		size:      len(data),
	}

	m.mu.Lock()
	prev := m.releaseLocked()
	m.current = a
	m.live.Add(1)
	m.published.Add(1)
	hooks := m.onRelease
	m.mu.Unlock()

	m.runHooks(hooks, prev)
	log.Debug("Published audio artifact", "id", id, "bytes", len(data))

	return a, nil
}

// Release revokes the current handle and drops the stored bytes. It is safe
// to call when nothing is published.
func (m *Manager) Release() {
	m.mu.Lock()
	prev := m.releaseLocked()
	hooks := m.onRelease
	m.mu.Unlock()

	m.runHooks(hooks, prev)
}

func (m *Manager) releaseLocked() *Artifact {
	if m.current == nil {
		return nil
	}
	prev := m.current
	prev.Handle.revoke()
	m.current = nil
	m.live.Add(-1)
	return prev
}

func (m *Manager) runHooks(hooks []func(*Artifact), prev *Artifact) {
	if prev == nil {
		return
	}
	log.Debug("Released audio artifact", "id", prev.ID)
	for _, fn := range hooks {
		fn(prev)
	}
}

// Current returns the live artifact, or nil.
func (m *Manager) Current() *Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CurrentBytes returns the bytes of the live artifact for download.
func (m *Manager) CurrentBytes() ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, false
	}
	b, err := m.current.Handle.Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

// LiveHandles returns the number of handles that have not been revoked.
// It is never more than one.
func (m *Manager) LiveHandles() int {
	return int(m.live.Load())
}

// Published returns how many artifacts have been published over the
// manager's lifetime.
func (m *Manager) Published() int64 {
	return m.published.Load()
}
