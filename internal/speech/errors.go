package speech

import (
	"errors"
	"fmt"

	"github.com/dgnsrekt/kokoro-tts/internal/model"
	"github.com/dgnsrekt/kokoro-tts/internal/service"
	"github.com/dgnsrekt/kokoro-tts/internal/wav"
)

var (
	// ErrCancelled is returned by Generate when Stop ended the session.
	ErrCancelled = errors.New("generation stopped")

	// ErrNoAudio is returned by Replay and Download with nothing published.
	ErrNoAudio = errors.New("no audio available")

	// ErrNoBackend is returned when the requested mode has no backend.
	ErrNoBackend = errors.New("backend not configured")
)

// BusyError rejects a generation while another one is in flight.
type BusyError struct {
	Phase Phase
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("generation already in progress (%s)", e.Phase)
}

// ErrorKind is a coarse classification used for status display.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindBusy
	KindInvalid
	KindCancelled
	KindModelLoad
	KindGeneration
	KindService
	KindNetwork
	KindEncoding
)

func (k ErrorKind) String() string {
	switch k {
	case KindBusy:
		return "busy"
	case KindInvalid:
		return "invalid"
	case KindCancelled:
		return "cancelled"
	case KindModelLoad:
		return "model-load"
	case KindGeneration:
		return "generation"
	case KindService:
		return "service"
	case KindNetwork:
		return "network"
	case KindEncoding:
		return "encoding"
	default:
		return "unknown"
	}
}

// Kind classifies err.
func Kind(err error) ErrorKind {
	var (
		busy    *BusyError
		load    *model.ModelLoadError
		gen     *model.GenerationError
		svc     *service.ServiceError
		network *service.NetworkError
		enc     *wav.EncodingError
	)

	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &busy):
		return KindBusy
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalid
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.As(err, &load):
		return KindModelLoad
	case errors.As(err, &gen):
		return KindGeneration
	case errors.As(err, &svc):
		return KindService
	case errors.As(err, &network):
		return KindNetwork
	case errors.As(err, &enc):
		return KindEncoding
	default:
		return KindUnknown
	}
}

// failureMessage renders err the way the status line shows it.
func failureMessage(err error) string {
	var load *model.ModelLoadError
	if errors.As(err, &load) && load.Err != nil {
		return "Failed to load model: " + load.Err.Error()
	}
	return "Failed to generate speech: " + err.Error()
}
