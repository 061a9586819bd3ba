package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/kokoro-tts/internal/artifact"
	"github.com/dgnsrekt/kokoro-tts/internal/audio"
	"github.com/dgnsrekt/kokoro-tts/internal/cache"
	"github.com/dgnsrekt/kokoro-tts/internal/model"
	"github.com/dgnsrekt/kokoro-tts/internal/service"
	"github.com/dgnsrekt/kokoro-tts/internal/voices"
	"github.com/dgnsrekt/kokoro-tts/internal/wav"
)

// ModelBackend synthesizes speech locally. *model.Adapter implements it.
type ModelBackend interface {
	EnsureReady(ctx context.Context) error
	Generate(ctx context.Context, text string, opts model.Options) ([]float32, int, error)
	State() model.State
	Dtype() model.Dtype
	OnProgress(fn model.ProgressFunc)
}

// ServiceBackend posts requests to a Kokoro server. *service.Client
// implements it.
type ServiceBackend interface {
	Generate(ctx context.Context, req service.Request) ([]byte, error)
}

// AudioCache stores generated WAV bytes. *cache.Manager implements it.
type AudioCache interface {
	Get(key string) ([]byte, cache.Level, bool)
	Put(key string, value []byte) error
}

// Config wires a Controller. Any field may be nil; a missing backend makes
// the matching mode fail with ErrNoBackend.
type Config struct {
	Model    ModelBackend
	Service  ServiceBackend
	Player   audio.Player
	Cache    AudioCache
	Notifier Notifier

	// AutoPlay starts playback as soon as an artifact is published.
	AutoPlay bool
}

// Controller runs at most one generation at a time and owns the artifact
// it produces.
type Controller struct {
	model    ModelBackend
	service  ServiceBackend
	player   audio.Player
	cache    AudioCache
	notifier Notifier
	autoPlay bool

	artifacts *artifact.Manager

	mu      sync.Mutex
	phase   Phase
	seq     int64
	session Session
	cancel  context.CancelFunc
	stopped bool
	stops   int64
	voice   string

	// playMu orders autoplay against Stop.
	playMu sync.Mutex
}

// New returns an idle Controller.
func New(cfg Config) *Controller {
	c := &Controller{
		model:     cfg.Model,
		service:   cfg.Service,
		player:    cfg.Player,
		cache:     cfg.Cache,
		notifier:  cfg.Notifier,
		autoPlay:  cfg.AutoPlay,
		artifacts: artifact.NewManager(),
	}

	// a revoked handle must never keep sounding
	c.artifacts.OnRelease(func(*artifact.Artifact) {
		c.stopPlayback()
	})

	if c.model != nil {
		c.model.OnProgress(func(p model.Progress) {
			if pct := p.Percent(); pct >= 0 && p.Status == "progress" {
				c.notify(fmt.Sprintf("Downloading model: %d%%", pct), Loading)
			}
		})
	}

	return c
}

// Generate runs req to completion and publishes the result. It fails with
// *BusyError while another generation is in flight. On any failure the
// previous artifact is gone and no new one is published.
func (c *Controller) Generate(ctx context.Context, req Request) (*artifact.Artifact, error) {
	c.mu.Lock()
	if c.session.Status == InFlight {
		phase := c.phase
		c.mu.Unlock()
		return nil, &BusyError{Phase: phase}
	}
	if err := req.Validate(); err != nil {
		c.mu.Unlock()
		c.notify(invalidMessage(err), Error)
		return nil, err
	}
	if (req.Mode == Model && c.model == nil) || (req.Mode == Service && c.service == nil) {
		c.mu.Unlock()
		err := fmt.Errorf("%w: %s", ErrNoBackend, req.Mode)
		c.notify(failureMessage(err), Error)
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.seq++
	id := c.seq
	c.session = Session{ID: id, Mode: req.Mode, Status: InFlight}
	c.phase = phaseFor(req.Mode)
	c.cancel = cancel
	c.stopped = false
	c.mu.Unlock()

	c.artifacts.Release()

	log.Debug("Generation started", "session", id, "mode", req.Mode, "voice", req.Voice, "chars", len(req.Text))

	b, err := c.run(ctx, req)

	c.mu.Lock()
	if c.stopped {
		err = ErrCancelled
	}

	var a *artifact.Artifact
	if err == nil {
		a, err = c.artifacts.Publish(b)
	}

	status := Succeeded
	switch {
	case errors.Is(err, ErrCancelled):
		status = Cancelled
	case err != nil:
		status = Failed
	}

	c.session.Status = status
	c.session.Err = err
	c.phase = PhaseIdle
	c.cancel = nil
	if err == nil {
		c.voice = req.Voice
	}
	stops := c.stops
	c.mu.Unlock()

	switch status {
	case Cancelled:
		log.Info("Generation stopped", "session", id)
		return nil, err
	case Failed:
		c.artifacts.Release()
		log.Error("Generation failed", "session", id, "kind", Kind(err), "err", err)
		c.notify(failureMessage(err), Error)
		return nil, err
	}

	log.Info("Generation finished", "session", id, "bytes", a.Size())
	c.notify("Speech generated successfully!", Success)

	if c.autoPlay {
		c.autoplay(a, stops)
	}
	return a, nil
}

func (c *Controller) run(ctx context.Context, req Request) ([]byte, error) {
	key := c.cacheKey(req)
	if c.cache != nil {
		if b, level, ok := c.cache.Get(key); ok {
			log.Debug("Audio cache hit", "level", level)
			return b, nil
		}
	}

	var (
		b   []byte
		err error
	)
	switch req.Mode {
	case Model:
		b, err = c.runModel(ctx, req)
	default:
		c.notify("Generating speech...", Loading)
		b, err = c.service.Generate(ctx, req.serviceRequest())
	}
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Put(key, b); err != nil {
			log.Warn("Could not cache generated audio", "err", err)
		}
	}
	return b, nil
}

func (c *Controller) runModel(ctx context.Context, req Request) ([]byte, error) {
	if c.model.State() != model.Ready {
		c.notify(fmt.Sprintf("Loading model (%s)...", c.model.Dtype()), Loading)
		if err := c.model.EnsureReady(ctx); err != nil {
			return nil, err
		}
		c.notify("Model loaded successfully!", Success)
	}

	c.notify("Generating speech...", Loading)
	samples, rate, err := c.model.Generate(ctx, strings.TrimSpace(req.Text), model.Options{
		Voice:    req.Voice,
		Speed:    req.Speed,
		Language: req.Language,
	})
	if err != nil {
		return nil, err
	}

	return wav.Encode(samples, rate)
}

func (c *Controller) cacheKey(req Request) string {
	k := cache.Key{
		Mode:     req.Mode.String(),
		Text:     strings.TrimSpace(req.Text),
		Voice:    req.Voice,
		Speed:    req.Speed,
		Language: req.Language,
	}
	switch req.Mode {
	case Model:
		if c.model != nil {
			k.Dtype = string(c.model.Dtype())
		}
	case Service:
		k.Endpoint = req.Endpoint
		k.Format = req.Format.String()
	}
	return k.String()
}

// Stop halts playback and rewinds it. An in-flight service call is
// abandoned; an in-flight model synthesis runs on but its result is
// discarded. Both end the session as Cancelled.
func (c *Controller) Stop() {
	c.playMu.Lock()
	c.stopPlayback()

	c.mu.Lock()
	c.stops++
	if c.session.Status == InFlight {
		c.stopped = true
		if c.cancel != nil {
			c.cancel()
		}
	}
	c.mu.Unlock()
	c.playMu.Unlock()

	c.notify("Stopped", Success)
}

// Clear stops playback and drops the current artifact.
func (c *Controller) Clear() {
	c.stopPlayback()
	c.artifacts.Release()
}

// Replay plays the current artifact from the start.
func (c *Controller) Replay() error {
	a := c.artifacts.Current()
	if a == nil || c.player == nil {
		c.notify("No audio to replay", Error)
		return ErrNoAudio
	}

	c.stopPlayback()
	if err := c.play(a); err != nil {
		return err
	}
	c.notify("Replaying audio...", Success)
	return nil
}

// autoplay plays a unless Stop was called since the session ended.
func (c *Controller) autoplay(a *artifact.Artifact, stops int64) {
	c.playMu.Lock()
	defer c.playMu.Unlock()

	c.mu.Lock()
	stopped := c.stops != stops
	c.mu.Unlock()
	if stopped {
		log.Debug("Skipping autoplay after stop", "artifact", a.ID)
		return
	}
	_ = c.play(a)
}

func (c *Controller) play(a *artifact.Artifact) error {
	if c.player == nil {
		return nil
	}

	b, err := a.Handle.Bytes()
	if err != nil {
		return err
	}
	if _, err := audio.PlayWAV(c.player, b); err != nil {
		log.Error("Playback failed", "err", err)
		c.notify("Failed to play audio: "+err.Error(), Error)
		return err
	}
	return nil
}

func (c *Controller) stopPlayback() {
	if c.player == nil {
		return
	}
	if err := c.player.Stop(); err != nil {
		log.Debug("Stopping playback", "err", err)
	}
}

// CurrentDownloadableBytes returns the WAV bytes of the current artifact.
func (c *Controller) CurrentDownloadableBytes() ([]byte, bool) {
	return c.artifacts.CurrentBytes()
}

// Current returns the published artifact, or nil.
func (c *Controller) Current() *artifact.Artifact {
	return c.artifacts.Current()
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9]`)

// DownloadName returns the file name a download is saved under.
func DownloadName(voice string, t time.Time) string {
	name := unsafeName.ReplaceAllString(voices.DisplayName(voice), "_")
	return fmt.Sprintf("kokoro_tts_%s_%s.wav", name, t.UTC().Format("2006-01-02T15-04-05"))
}

// Download writes the current artifact into dir and returns the file path.
func (c *Controller) Download(dir string) (string, error) {
	b, ok := c.artifacts.CurrentBytes()
	if !ok {
		c.notify("No audio to download", Error)
		return "", ErrNoAudio
	}

	c.mu.Lock()
	voice := c.voice
	c.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec
		c.notify("Failed to download audio", Error)
		return "", fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(dir, DownloadName(voice, time.Now()))
	if err := os.WriteFile(path, b, 0o644); err != nil { //nolint:gosec
		c.notify("Failed to download audio", Error)
		return "", fmt.Errorf("write audio: %w", err)
	}

	log.Info("Saved audio", "path", path, "bytes", len(b))
	c.notify("Audio downloaded successfully!", Success)
	return path, nil
}

// Phase returns what the controller is doing now.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Session returns the most recent session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Busy reports whether a generation is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Status == InFlight
}

func (c *Controller) notify(msg string, kind StatusKind) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(Status{Message: msg, Kind: kind})
}

func phaseFor(m Mode) Phase {
	if m == Model {
		return GeneratingModel
	}
	return GeneratingService
}

func invalidMessage(err error) string {
	if errors.Is(err, ErrEmptyText) {
		return "Please enter some text"
	}
	return err.Error()
}
