// Package settings holds the user's persisted generation preferences.
package settings

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dgnsrekt/kokoro-tts/internal/model"
	"github.com/dgnsrekt/kokoro-tts/internal/service"
	"github.com/dgnsrekt/kokoro-tts/internal/speech"
)

// Keys as they appear in the config file.
const (
	KeyVoice           = "voice"
	KeySpeed           = "speed"
	KeyLanguage        = "language"
	KeyMode            = "mode"
	KeyAPIEndpoint     = "apiEndpoint"
	KeyAPIKey          = "apiKey"
	KeyUseOpenAIFormat = "useOpenAIFormat"

	KeyDtype          = "dtype"
	KeyTimeout        = "timeout"
	KeyOutputDir      = "outputDir"
	KeyRuntimeCommand = "runtime.command"
	KeyRuntimeArgs    = "runtime.args"
	KeyRuntimeTimeout = "runtime.timeout"
	KeyCacheEnabled   = "cache.enabled"
	KeyRateLimit      = "rateLimit"
)

// Default values.
const (
	DefaultServiceVoice = "af_heart"
	DefaultSpeed        = 1.0
	DefaultLanguage     = "a"
	DefaultMode         = "service"
	DefaultEndpoint     = "http://localhost:8000"
	DefaultCommand      = "kokoro-onnx"
	DefaultRateLimit    = 60

	MinSpeed = 0.25
	MaxSpeed = 4.0
)

// Settings is a snapshot of the stored preferences.
type Settings struct {
	Voice           string
	Speed           float64
	Language        string
	Mode            string
	APIEndpoint     string
	APIKey          string
	UseOpenAIFormat bool

	Dtype          string
	Timeout        time.Duration
	OutputDir      string
	RuntimeCommand string
	RuntimeArgs    []string
	RuntimeTimeout time.Duration
	CacheEnabled   bool
	RateLimit      int
}

// SetDefaults registers the default for every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyVoice, "")
	v.SetDefault(KeySpeed, DefaultSpeed)
	v.SetDefault(KeyLanguage, DefaultLanguage)
	v.SetDefault(KeyMode, DefaultMode)
	v.SetDefault(KeyAPIEndpoint, DefaultEndpoint)
	v.SetDefault(KeyAPIKey, "")
	v.SetDefault(KeyUseOpenAIFormat, false)

	v.SetDefault(KeyDtype, string(model.DefaultDtype))
	v.SetDefault(KeyTimeout, service.DefaultTimeout)
	v.SetDefault(KeyOutputDir, ".")
	v.SetDefault(KeyRuntimeCommand, DefaultCommand)
	v.SetDefault(KeyRuntimeArgs, []string{})
	v.SetDefault(KeyRuntimeTimeout, model.DefaultRuntimeTimeout)
	v.SetDefault(KeyCacheEnabled, true)
	v.SetDefault(KeyRateLimit, DefaultRateLimit)
}

// FromViper reads a snapshot from v.
func FromViper(v *viper.Viper) Settings {
	return Settings{
		Voice:           strings.TrimSpace(v.GetString(KeyVoice)),
		Speed:           v.GetFloat64(KeySpeed),
		Language:        strings.TrimSpace(v.GetString(KeyLanguage)),
		Mode:            strings.ToLower(strings.TrimSpace(v.GetString(KeyMode))),
		APIEndpoint:     strings.TrimSpace(v.GetString(KeyAPIEndpoint)),
		APIKey:          v.GetString(KeyAPIKey),
		UseOpenAIFormat: v.GetBool(KeyUseOpenAIFormat),

		Dtype:          strings.ToLower(strings.TrimSpace(v.GetString(KeyDtype))),
		Timeout:        v.GetDuration(KeyTimeout),
		OutputDir:      v.GetString(KeyOutputDir),
		RuntimeCommand: v.GetString(KeyRuntimeCommand),
		RuntimeArgs:    v.GetStringSlice(KeyRuntimeArgs),
		RuntimeTimeout: v.GetDuration(KeyRuntimeTimeout),
		CacheEnabled:   v.GetBool(KeyCacheEnabled),
		RateLimit:      v.GetInt(KeyRateLimit),
	}
}

// Validate reports every invalid value.
func (s Settings) Validate() error {
	var errs []error

	if s.Speed < MinSpeed || s.Speed > MaxSpeed {
		errs = append(errs, fmt.Errorf("speed must be between %.2f and %.1f, got %g", MinSpeed, MaxSpeed, s.Speed))
	}

	mode, err := speech.ParseMode(s.Mode)
	if err != nil {
		errs = append(errs, err)
	}
	if _, err := model.ParseDtype(s.Dtype); err != nil {
		errs = append(errs, err)
	}

	if err == nil && mode == speech.Service {
		u, err := url.Parse(s.APIEndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("apiEndpoint must be an http(s) URL, got %q", s.APIEndpoint))
		}
	}

	if s.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout cannot be negative, got %s", s.Timeout))
	}
	if s.RuntimeTimeout < 0 {
		errs = append(errs, fmt.Errorf("runtime.timeout cannot be negative, got %s", s.RuntimeTimeout))
	}
	if s.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rateLimit cannot be negative, got %d", s.RateLimit))
	}

	return errors.Join(errs...)
}

// ModeValue returns the parsed mode, falling back to Service.
func (s Settings) ModeValue() speech.Mode {
	m, err := speech.ParseMode(s.Mode)
	if err != nil {
		return speech.Service
	}
	return m
}

// EffectiveVoice returns the stored voice or the default of the mode.
func (s Settings) EffectiveVoice() string {
	if s.Voice != "" {
		return s.Voice
	}
	if s.ModeValue() == speech.Model {
		return model.DefaultVoice
	}
	return DefaultServiceVoice
}

// Format returns the wire format selected by UseOpenAIFormat.
func (s Settings) Format() service.Format {
	if s.UseOpenAIFormat {
		return service.OpenAI
	}
	return service.Native
}

// Request builds a generation request for text.
func (s Settings) Request(text string) speech.Request {
	return speech.Request{
		Text:     text,
		Voice:    s.EffectiveVoice(),
		Speed:    s.Speed,
		Language: s.Language,
		Mode:     s.ModeValue(),
		Format:   s.Format(),
		Endpoint: s.APIEndpoint,
		APIKey:   s.APIKey,
	}
}

// Target returns the service target for discovery calls.
func (s Settings) Target() service.Target {
	return service.Target{Endpoint: s.APIEndpoint, APIKey: s.APIKey}
}

// Loader returns the model loader for the configured runtime. Synthesis is
// bounded by runtime.timeout, not by the server timeout.
func (s Settings) Loader(f *model.Fetcher) *model.SubprocessLoader {
	return &model.SubprocessLoader{
		Fetcher: f,
		Command: s.RuntimeCommand,
		Args:    s.RuntimeArgs,
		Timeout: s.RuntimeTimeout,
		Voice:   s.EffectiveVoice(),
	}
}
