//go:build !nocgo

package audio

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/kokoro-tts/internal/wav"
)

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
	otoFmt  wav.Format
)

func sharedContext(f wav.Format) (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   f.SampleRate,
			ChannelCount: f.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		}

		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("%w: %v", ErrNoDevice, err)
			return
		}

		select {
		case <-ready:
		case <-time.After(5 * time.Second):
			otoErr = fmt.Errorf("%w: audio context initialization timeout", ErrNoDevice)
			return
		}
		otoCtx = ctx
		otoFmt = f
	})

	if otoErr != nil {
		return nil, otoErr
	}
	if otoFmt != f {
		return nil, fmt.Errorf("audio device already opened at %d Hz", otoFmt.SampleRate)
	}
	return otoCtx, nil
}

// DevicePlayer plays through the system audio device.
type DevicePlayer struct {
	context *oto.Context
	format  wav.Format

	player *oto.Player
	// data must stay referenced while oto reads from it
	data []byte

	state atomic.Int32

	startTime  time.Time
	pausedAt   time.Duration
	totalPause time.Duration
	duration   time.Duration

	onFinished  []func()
	generation  int
	stopMonitor chan struct{}

	mu sync.Mutex
}

var _ Player = (*DevicePlayer)(nil)

// NewDevicePlayer opens the default output device in format f.
func NewDevicePlayer(f wav.Format) (Player, error) {
	if f.BitDepth != 16 {
		return nil, fmt.Errorf("bit depth must be 16, got %d", f.BitDepth)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return nil, fmt.Errorf("channels must be 1 or 2, got %d", f.Channels)
	}

	ctx, err := sharedContext(f)
	if err != nil {
		return nil, err
	}

	p := &DevicePlayer{context: ctx, format: f}
	p.state.Store(int32(StateStopped))
	return p, nil
}

// Format implements Player.
func (p *DevicePlayer) Format() wav.Format {
	return p.format
}

// Play stops whatever is playing and starts pcm from the beginning.
func (p *DevicePlayer) Play(pcm []byte) error {
	if len(pcm) == 0 {
		return errors.New("audio data is empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if State(p.state.Load()) == StateClosed {
		return ErrClosed
	}
	p.stopLocked()

	p.data = make([]byte, len(pcm))
	copy(p.data, pcm)

	player := p.context.NewPlayer(bytes.NewReader(p.data))
	p.player = player
	p.startTime = time.Now()
	p.pausedAt = 0
	p.totalPause = 0
	p.duration = p.format.Duration(len(p.data))
	p.generation++
	p.stopMonitor = make(chan struct{})

	player.Play()
	p.state.Store(int32(StatePlaying))

	go p.monitor(p.generation, player, p.stopMonitor)

	log.Debug("Playback started", "duration", p.duration)
	return nil
}

// monitor notices when oto has drained the buffer.
func (p *DevicePlayer) monitor(gen int, player *oto.Player, stop <-chan struct{}) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		if p.generation != gen {
			p.mu.Unlock()
			return
		}
		if State(p.state.Load()) != StatePlaying || player.IsPlaying() {
			p.mu.Unlock()
			continue
		}

		p.stopLocked()
		hooks := p.onFinished
		p.mu.Unlock()

		for _, fn := range hooks {
			fn()
		}
		return
	}
}

// Pause implements Player.
func (p *DevicePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s := State(p.state.Load()); s != StatePlaying {
		return fmt.Errorf("cannot pause: player is %s", s)
	}
	p.player.Pause()
	p.pausedAt = p.positionLocked()
	p.state.Store(int32(StatePaused))
	return nil
}

// Resume implements Player.
func (p *DevicePlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s := State(p.state.Load()); s != StatePaused {
		return fmt.Errorf("cannot resume: player is %s", s)
	}
	p.player.Play()
	p.totalPause += time.Since(p.startTime.Add(p.pausedAt + p.totalPause))
	p.state.Store(int32(StatePlaying))
	return nil
}

// Stop implements Player.
func (p *DevicePlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	return nil
}

func (p *DevicePlayer) stopLocked() {
	s := State(p.state.Load())
	if s == StateStopped || s == StateClosed {
		return
	}

	if p.stopMonitor != nil {
		close(p.stopMonitor)
		p.stopMonitor = nil
	}
	if p.player != nil {
		p.player.Pause()
		_ = p.player.Close()
		p.player = nil
	}
	p.data = nil
	p.pausedAt = 0
	p.totalPause = 0
	p.duration = 0
	p.state.Store(int32(StateStopped))
}

// State implements Player.
func (p *DevicePlayer) State() State {
	return State(p.state.Load())
}

// Position implements Player.
func (p *DevicePlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *DevicePlayer) positionLocked() time.Duration {
	switch State(p.state.Load()) {
	case StatePlaying:
		elapsed := time.Since(p.startTime) - p.totalPause
		if elapsed > p.duration {
			elapsed = p.duration
		}
		return elapsed
	case StatePaused:
		return p.pausedAt
	default:
		return 0
	}
}

// OnFinished implements Player.
func (p *DevicePlayer) OnFinished(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFinished = append(p.onFinished, fn)
}

// Close stops playback. The shared oto context stays open for the life of
// the process.
func (p *DevicePlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.state.Store(int32(StateClosed))
	return nil
}
