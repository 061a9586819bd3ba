package audio

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgnsrekt/kokoro-tts/internal/wav"
)

var (
	// ErrClosed is returned when using a closed player.
	ErrClosed = errors.New("player is closed")

	// ErrNoDevice is returned when audio output is unavailable.
	ErrNoDevice = errors.New("no audio output device available")
)

// State is the playback state of a Player.
type State int32

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Player plays 16-bit PCM in its device format.
type Player interface {
	Format() wav.Format
	Play(pcm []byte) error
	Pause() error
	Resume() error
	// Stop halts playback and resets the position to zero.
	Stop() error
	State() State
	Position() time.Duration
	// OnFinished registers a callback for playback that ran to the end.
	OnFinished(func())
	Close() error
}

// PlayWAV converts a WAV file to the player's format and starts it. It
// returns the playback duration.
func PlayWAV(p Player, b []byte) (time.Duration, error) {
	pcm, d, err := wav.ForDevice(b, p.Format())
	if err != nil {
		return 0, fmt.Errorf("prepare audio: %w", err)
	}
	if len(pcm) == 0 {
		return 0, errors.New("audio is empty")
	}
	if err := p.Play(pcm); err != nil {
		return 0, err
	}
	return d, nil
}
