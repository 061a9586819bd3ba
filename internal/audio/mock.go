package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgnsrekt/kokoro-tts/internal/wav"
)

// MockPlayer records playback without touching an audio device.
type MockPlayer struct {
	mu sync.Mutex

	format   wav.Format
	state    State
	data     []byte
	position time.Duration
	hooks    []func()

	// PlayErr, when set, is returned by the next Play call.
	PlayErr error

	plays  int
	stops  int
	closed bool
}

var _ Player = (*MockPlayer)(nil)

// NewMockPlayer returns a MockPlayer in the device format.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{format: wav.DeviceFormat()}
}

func (m *MockPlayer) Format() wav.Format {
	return m.format
}

func (m *MockPlayer) Play(pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.PlayErr != nil {
		err := m.PlayErr
		m.PlayErr = nil
		return err
	}
	if len(pcm) == 0 {
		return errors.New("audio data is empty")
	}

	m.data = append([]byte(nil), pcm...)
	m.state = StatePlaying
	m.position = 0
	m.plays++
	return nil
}

func (m *MockPlayer) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StatePlaying {
		return fmt.Errorf("cannot pause: player is %s", m.state)
	}
	m.state = StatePaused
	return nil
}

func (m *MockPlayer) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StatePaused {
		return fmt.Errorf("cannot resume: player is %s", m.state)
	}
	m.state = StatePlaying
	return nil
}

func (m *MockPlayer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StatePlaying || m.state == StatePaused {
		m.stops++
	}
	if !m.closed {
		m.state = StateStopped
	}
	m.position = 0
	return nil
}

func (m *MockPlayer) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MockPlayer) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *MockPlayer) OnFinished(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

func (m *MockPlayer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.state = StateClosed
	return nil
}

// Finish simulates playback reaching the end.
func (m *MockPlayer) Finish() {
	m.mu.Lock()
	if m.state != StatePlaying {
		m.mu.Unlock()
		return
	}
	m.state = StateStopped
	m.position = m.format.Duration(len(m.data))
	hooks := m.hooks
	m.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// Data returns the PCM passed to the last Play call.
func (m *MockPlayer) Data() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data
}

// Plays reports how many times playback started.
func (m *MockPlayer) Plays() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plays
}

// Stops reports how many times active playback was stopped.
func (m *MockPlayer) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}
