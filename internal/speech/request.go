// Package speech turns text into a published audio artifact using either
// the local model or a remote Kokoro server, one generation at a time.
package speech

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgnsrekt/kokoro-tts/internal/service"
)

var (
	// ErrInvalidRequest is wrapped by every validation failure.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrEmptyText is returned for blank text.
	ErrEmptyText = fmt.Errorf("%w: text is empty", ErrInvalidRequest)
)

// Mode selects the backend a request is sent to.
type Mode int

const (
	// Service sends the text to a remote Kokoro server.
	Service Mode = iota
	// Model synthesizes on this machine.
	Model
)

func (m Mode) String() string {
	switch m {
	case Service:
		return "service"
	case Model:
		return "model"
	default:
		return "unknown"
	}
}

// ParseMode parses "service" or "model". The popup's "server" and "local"
// spellings are accepted too.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "service", "server", "":
		return Service, nil
	case "model", "local", "embedded":
		return Model, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want service or model)", s)
	}
}

// Request is one generation. Format, Endpoint and APIKey only apply to
// Service mode.
type Request struct {
	Text     string
	Voice    string
	Speed    float64
	Language string
	Mode     Mode

	Format   service.Format
	Endpoint string
	APIKey   string
}

// Validate checks the request without modifying it.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}
	if r.Speed <= 0 {
		return fmt.Errorf("%w: speed must be positive, got %g", ErrInvalidRequest, r.Speed)
	}

	switch r.Mode {
	case Model:
	case Service:
		if strings.TrimSpace(r.Endpoint) == "" {
			return fmt.Errorf("%w: service mode needs an endpoint", ErrInvalidRequest)
		}
		if r.Format != service.Native && r.Format != service.OpenAI {
			return fmt.Errorf("%w: unknown wire format %d", ErrInvalidRequest, r.Format)
		}
	default:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidRequest, r.Mode)
	}
	return nil
}

func (r Request) serviceRequest() service.Request {
	return service.Request{
		Target: service.Target{
			Endpoint: r.Endpoint,
			APIKey:   r.APIKey,
		},
		Format:   r.Format,
		Text:     strings.TrimSpace(r.Text),
		Voice:    r.Voice,
		Speed:    r.Speed,
		Language: r.Language,
	}
}
