package ui

import (
	"time"

	"github.com/dgnsrekt/kokoro-tts/internal/settings"
)

// Config contains TUI-specific configuration.
type Config struct {
	Settings    settings.Settings
	Text        string
	EnableMouse bool

	// For debugging the UI
	StatusTimeout time.Duration `env:"KOKORO_TTS_STATUS_TIMEOUT" envDefault:"3s"`
	AltScreen     bool          `env:"KOKORO_TTS_ALT_SCREEN"     envDefault:"true"`
}
