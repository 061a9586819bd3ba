package model

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// ErrEmptyText is returned when Generate is called without text.
var ErrEmptyText = errors.New("text cannot be empty")

// Runtime synthesizes speech with loaded model assets.
type Runtime interface {
	Generate(ctx context.Context, text string, opts Options) (*Output, error)
	Close() error
}

// Loader fetches the assets for a quantization profile and builds a
// Runtime from them.
type Loader interface {
	Load(ctx context.Context, dtype Dtype, progress ProgressFunc) (Runtime, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, dtype Dtype, progress ProgressFunc) (Runtime, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, dtype Dtype, progress ProgressFunc) (Runtime, error) {
	return f(ctx, dtype, progress)
}

// pendingLoad is the single in-flight load every caller waits on.
type pendingLoad struct {
	done chan struct{}
	err  error
}

// Adapter exposes a lazily loaded model behind a uniform Generate call.
type Adapter struct {
	loader Loader
	dtype  Dtype

	mu       sync.Mutex
	state    State
	pending  *pendingLoad
	runtime  Runtime
	lastErr  error
	progress []ProgressFunc

	// ctx bounds background loads; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	loads atomic.Int64
}

// NewAdapter creates an Adapter that loads with loader using the given
// quantization profile.
func NewAdapter(loader Loader, dtype Dtype) *Adapter {
	if dtype == "" {
		dtype = DefaultDtype
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter{
		loader: loader,
		dtype:  dtype,
		state:  Uninitialized,
		ctx:    ctx,
		cancel: cancel,
	}
}

// OnProgress registers a load progress listener.
func (a *Adapter) OnProgress(fn ProgressFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.progress = append(a.progress, fn)
}

// State returns the current lifecycle state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err returns the reason for the last failed load.
func (a *Adapter) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Dtype returns the quantization profile.
func (a *Adapter) Dtype() Dtype {
	return a.dtype
}

// Loads returns how many loads have been started.
func (a *Adapter) Loads() int64 {
	return a.loads.Load()
}

// EnsureReady loads the model if needed. Callers arriving while a load is
// running wait for that same load and see its outcome. After a failure the
// next call starts a fresh load. Cancelling ctx stops the wait, not the
// shared load.
func (a *Adapter) EnsureReady(ctx context.Context) error {
	a.mu.Lock()
	var p *pendingLoad
	switch a.state {
	case Ready:
		a.mu.Unlock()
		return nil
	case Loading:
		p = a.pending
	default:
		p = &pendingLoad{done: make(chan struct{})}
		a.pending = p
		a.state = Loading
		a.lastErr = nil
		a.loads.Add(1)
		go a.load(p)
	}
	a.mu.Unlock()

	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return &ModelLoadError{Err: ctx.Err()}
	}
}

func (a *Adapter) load(p *pendingLoad) {
	log.Info("Loading speech model", "model", ModelID, "dtype", a.dtype)

	rt, err := a.loader.Load(a.ctx, a.dtype, a.monotonic())

	a.mu.Lock()
	if err != nil {
		p.err = &ModelLoadError{Err: err}
		a.state = Failed
		a.lastErr = p.err
		log.Error("Speech model failed to load", "err", err)
	} else {
		a.runtime = rt
		a.state = Ready
		log.Info("Speech model ready", "dtype", a.dtype)
	}
	a.pending = nil
	a.mu.Unlock()

	close(p.done)
}

// monotonic returns a progress callback for one load that fans out to the
// listeners and drops updates that would move the percentage backwards.
func (a *Adapter) monotonic() ProgressFunc {
	a.mu.Lock()
	listeners := append([]ProgressFunc(nil), a.progress...)
	a.mu.Unlock()

	var (
		mu   sync.Mutex
		last = -1
	)
	return func(p Progress) {
		mu.Lock()
		pct := p.Percent()
		if pct >= 0 {
			if pct < last {
				mu.Unlock()
				return
			}
			last = pct
		}
		mu.Unlock()

		for _, fn := range listeners {
			fn(p)
		}
	}
}

// Generate synthesizes text, loading the model first if needed. A failed
// generation leaves the model Ready. Synthesis is not interrupted when ctx
// is cancelled; the runtime runs to completion.
func (a *Adapter) Generate(ctx context.Context, text string, opts Options) ([]float32, int, error) {
	if strings.TrimSpace(text) == "" {
		return nil, 0, &GenerationError{Err: ErrEmptyText}
	}

	if err := a.EnsureReady(ctx); err != nil {
		return nil, 0, err
	}

	a.mu.Lock()
	rt := a.runtime
	a.mu.Unlock()
	if rt == nil {
		return nil, 0, &ModelLoadError{Err: errors.New("model was reset")}
	}

	opts = opts.withDefaults()
	log.Debug("Synthesizing locally", "voice", opts.Voice, "speed", opts.Speed, "chars", len(text))

	out, err := rt.Generate(context.WithoutCancel(ctx), text, opts)
	if err != nil {
		return nil, 0, &GenerationError{Err: err}
	}
	if out == nil || len(out.Samples) == 0 {
		return nil, 0, &GenerationError{Err: errors.New("model produced no audio")}
	}

	rate := out.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return out.Samples, rate, nil
}

// Reset drops a loaded runtime and returns to Uninitialized. It fails while
// a load is running.
func (a *Adapter) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == Loading {
		return errors.New("cannot reset while loading")
	}

	var err error
	if a.runtime != nil {
		err = a.runtime.Close()
		a.runtime = nil
	}
	a.state = Uninitialized
	a.lastErr = nil
	return err
}

// Close stops any background load and releases the runtime.
func (a *Adapter) Close() error {
	a.cancel()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.runtime != nil {
		err := a.runtime.Close()
		a.runtime = nil
		return err
	}
	return nil
}
