package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/kokoro-tts/internal/audio"
	"github.com/dgnsrekt/kokoro-tts/internal/cache"
	"github.com/dgnsrekt/kokoro-tts/internal/model"
	"github.com/dgnsrekt/kokoro-tts/internal/service"
	"github.com/dgnsrekt/kokoro-tts/internal/wav"
)

// statusLog records every status the controller emits.
type statusLog struct {
	mu   sync.Mutex
	list []Status
}

func (l *statusLog) Notify(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list = append(l.list, s)
}

func (l *statusLog) has(msg string, kind StatusKind) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.list {
		if s.Message == msg && s.Kind == kind {
			return true
		}
	}
	return false
}

func (l *statusLog) last() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.list) == 0 {
		return Status{}
	}
	return l.list[len(l.list)-1]
}

// fakeRuntime returns fixed samples, optionally blocking until released.
type fakeRuntime struct {
	samples []float32
	rate    int
	err     error

	started chan struct{}
	release chan struct{}
}

func (f *fakeRuntime) Generate(context.Context, string, model.Options) (*model.Output, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &model.Output{Samples: f.samples, SampleRate: f.rate}, nil
}

func (f *fakeRuntime) Close() error { return nil }

// mapCache is an in-memory AudioCache.
type mapCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (c *mapCache) Get(key string) ([]byte, cache.Level, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.m[key]
	return b, cache.LevelMemory, ok
}

func (c *mapCache) Put(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = map[string][]byte{}
	}
	c.m[key] = value
	return nil
}

func newAdapter(t *testing.T, loader model.LoaderFunc) *model.Adapter {
	t.Helper()
	a := model.NewAdapter(loader, model.Q8)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func runtimeLoader(rt model.Runtime) model.LoaderFunc {
	return func(context.Context, model.Dtype, model.ProgressFunc) (model.Runtime, error) {
		return rt, nil
	}
}

func testClient() *service.Client {
	return service.NewClient(service.Config{Timeout: 5 * time.Second})
}

func serverWAV(t *testing.T) []byte {
	t.Helper()
	b, err := wav.Encode([]float32{0.1, -0.1, 0.2, -0.2}, 24000)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func serviceRequest(endpoint string) Request {
	return Request{
		Text:     "hello",
		Voice:    "af_heart",
		Speed:    1.0,
		Language: "a",
		Mode:     Service,
		Format:   service.Native,
		Endpoint: endpoint,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestGenerate_NativeService verifies that service bytes are published
// unchanged.
func TestGenerate_NativeService(t *testing.T) {
	reply := serverWAV(t)
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			t.Errorf("path = %s, want /generate", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		_, _ = w.Write(reply)
	}))
	defer srv.Close()

	log := &statusLog{}
	c := New(Config{Service: testClient(), Notifier: log})

	a, err := c.Generate(context.Background(), serviceRequest(srv.URL))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	got, ok := c.CurrentDownloadableBytes()
	if !ok || !bytes.Equal(got, reply) {
		t.Fatal("artifact bytes differ from server bytes")
	}
	if a.Size() != len(reply) {
		t.Errorf("artifact size = %d, want %d", a.Size(), len(reply))
	}
	if s := c.Session(); s.Status != Succeeded || s.Mode != Service {
		t.Errorf("session = %+v", s)
	}
	if c.Phase() != PhaseIdle || c.Busy() {
		t.Error("controller did not return to idle")
	}
	if body["text"] != "hello" || body["voice"] != "af_heart" || body["language"] != "a" {
		t.Errorf("body = %v", body)
	}
	if !log.has("Generating speech...", Loading) || !log.has("Speech generated successfully!", Success) {
		t.Errorf("statuses = %v", log.list)
	}
}

// TestGenerate_OpenAIBearer verifies the OpenAI request shape and auth.
func TestGenerate_OpenAIBearer(t *testing.T) {
	var (
		auth string
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		_, _ = w.Write(serverWAV(t))
	}))
	defer srv.Close()

	req := serviceRequest(srv.URL)
	req.Format = service.OpenAI
	req.APIKey = "k"

	c := New(Config{Service: testClient()})
	if _, err := c.Generate(context.Background(), req); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if auth != "Bearer k" {
		t.Errorf("Authorization = %q, want %q", auth, "Bearer k")
	}
	if body["model"] != "kokoro" || body["input"] != "hello" {
		t.Errorf("body = %v", body)
	}
}

// TestGenerate_ServiceError verifies that a failed call leaves no artifact,
// including the one published before it.
func TestGenerate_ServiceError(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
			return
		}
		_, _ = w.Write(serverWAV(t))
	}))
	defer srv.Close()

	log := &statusLog{}
	c := New(Config{Service: testClient(), Notifier: log})

	if _, err := c.Generate(context.Background(), serviceRequest(srv.URL)); err != nil {
		t.Fatal(err)
	}
	first := c.Current()

	fail.Store(true)
	_, err := c.Generate(context.Background(), serviceRequest(srv.URL))

	var se *service.ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *service.ServiceError", err)
	}
	if se.Status != 500 || se.Body != "boom" {
		t.Errorf("ServiceError = %+v", se)
	}
	if Kind(err) != KindService {
		t.Errorf("Kind = %v, want service", Kind(err))
	}
	if _, ok := c.CurrentDownloadableBytes(); ok {
		t.Error("artifact still present after failure")
	}
	if first.Handle.Valid() {
		t.Error("previous handle still valid")
	}
	if c.Session().Status != Failed {
		t.Errorf("session = %v, want failed", c.Session().Status)
	}
	want := Status{Message: "Failed to generate speech: Server error: 500 - boom", Kind: Error}
	if got := log.last(); got != want {
		t.Errorf("last status = %+v, want %+v", got, want)
	}
}

// TestGenerate_NetworkError verifies unreachable hosts surface distinctly.
func TestGenerate_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{Service: testClient()})
	_, err := c.Generate(context.Background(), serviceRequest(url))
	if Kind(err) != KindNetwork {
		t.Fatalf("Kind(%v) = %v, want network", err, Kind(err))
	}
	if c.Busy() {
		t.Error("controller stuck in flight")
	}
}

// TestGenerate_ModelScenario verifies local synthesis is WAV encoded.
func TestGenerate_ModelScenario(t *testing.T) {
	rt := &fakeRuntime{samples: []float32{0.5, -1.2, 0.0}, rate: 24000}
	c := New(Config{Model: newAdapter(t, runtimeLoader(rt))})

	_, err := c.Generate(context.Background(), Request{
		Text:  "hello",
		Voice: "af_sky",
		Speed: 1.0,
		Mode:  Model,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	b, ok := c.CurrentDownloadableBytes()
	if !ok {
		t.Fatal("no artifact")
	}
	if len(b) != wav.HeaderSize+6 {
		t.Fatalf("wav length = %d, want %d", len(b), wav.HeaderSize+6)
	}
	if rate := binary.LittleEndian.Uint32(b[24:]); rate != 24000 {
		t.Errorf("sample rate = %d", rate)
	}

	// -1.2 clamps to -1, and -1 * 32767 truncates to -32767, never -32768
	want := []int16{16383, -32767, 0}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(b[wav.HeaderSize+i*2:])) //nolint:gosec
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
	if c.Session().Mode != Model {
		t.Error("session mode not recorded")
	}
}

// TestGenerate_Busy verifies a second call is rejected while the first is
// in flight and that the first still completes.
func TestGenerate_Busy(t *testing.T) {
	reply := serverWAV(t)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write(reply)
	}))
	defer srv.Close()

	c := New(Config{Service: testClient()})

	done := make(chan error, 1)
	go func() {
		_, err := c.Generate(context.Background(), serviceRequest(srv.URL))
		done <- err
	}()
	waitFor(t, c.Busy)

	_, err := c.Generate(context.Background(), serviceRequest(srv.URL))
	var busy *BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("err = %v, want *BusyError", err)
	}
	if busy.Phase != GeneratingService {
		t.Errorf("phase = %v", busy.Phase)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first generation: %v", err)
	}
	if b, _ := c.CurrentDownloadableBytes(); !bytes.Equal(b, reply) {
		t.Error("first generation result lost")
	}
}

// TestGenerate_SharedModelLoad verifies concurrent first-time model
// generations across controllers share one load.
func TestGenerate_SharedModelLoad(t *testing.T) {
	var loads atomic.Int32
	gate := make(chan struct{})
	rt := &fakeRuntime{samples: []float32{0.1}, rate: 24000}
	adapter := newAdapter(t, func(context.Context, model.Dtype, model.ProgressFunc) (model.Runtime, error) {
		loads.Add(1)
		<-gate
		return rt, nil
	})

	c1 := New(Config{Model: adapter})
	c2 := New(Config{Model: adapter})

	req := Request{Text: "hi", Voice: "af_sky", Speed: 1, Mode: Model}
	errs := make(chan error, 2)
	for _, c := range []*Controller{c1, c2} {
		go func(c *Controller) {
			_, err := c.Generate(context.Background(), req)
			errs <- err
		}(c)
	}

	waitFor(t, func() bool { return c1.Busy() && c2.Busy() })
	close(gate)

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("generate: %v", err)
		}
	}
	if n := loads.Load(); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}
}

// TestGenerate_ModelLoadError verifies load failures leave no artifact and
// a retry loads again.
func TestGenerate_ModelLoadError(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	rt := &fakeRuntime{samples: []float32{0.1}, rate: 24000}
	adapter := newAdapter(t, func(context.Context, model.Dtype, model.ProgressFunc) (model.Runtime, error) {
		if fail.Load() {
			return nil, errors.New("hub unreachable")
		}
		return rt, nil
	})

	log := &statusLog{}
	c := New(Config{Model: adapter, Notifier: log})
	req := Request{Text: "hi", Speed: 1, Mode: Model}

	_, err := c.Generate(context.Background(), req)
	var le *model.ModelLoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *model.ModelLoadError", err)
	}
	if _, ok := c.CurrentDownloadableBytes(); ok {
		t.Error("artifact present after load failure")
	}
	if adapter.State() != model.Failed {
		t.Errorf("state = %v, want failed", adapter.State())
	}
	if !log.has("Loading model (q8)...", Loading) || !log.has("Failed to load model: hub unreachable", Error) {
		t.Errorf("statuses = %v", log.list)
	}

	fail.Store(false)
	if _, err := c.Generate(context.Background(), req); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if adapter.Loads() != 2 {
		t.Errorf("loads = %d, want 2", adapter.Loads())
	}
	if !log.has("Model loaded successfully!", Success) {
		t.Error("missing loaded status")
	}
}

// TestGenerate_ModelGenerationError verifies the model stays usable.
func TestGenerate_ModelGenerationError(t *testing.T) {
	rt := &fakeRuntime{err: errors.New("phonemizer crashed")}
	adapter := newAdapter(t, runtimeLoader(rt))
	c := New(Config{Model: adapter})

	_, err := c.Generate(context.Background(), Request{Text: "hi", Speed: 1, Mode: Model})
	if Kind(err) != KindGeneration {
		t.Fatalf("Kind(%v) = %v, want generation", err, Kind(err))
	}
	if adapter.State() != model.Ready {
		t.Errorf("state = %v, want ready", adapter.State())
	}
}

// TestGenerate_DownloadProgress verifies load progress reaches the
// notifier.
func TestGenerate_DownloadProgress(t *testing.T) {
	rt := &fakeRuntime{samples: []float32{0.1}, rate: 24000}
	adapter := newAdapter(t, func(_ context.Context, _ model.Dtype, progress model.ProgressFunc) (model.Runtime, error) {
		progress(model.Progress{Status: "progress", Loaded: 42, Total: 100})
		return rt, nil
	})

	log := &statusLog{}
	c := New(Config{Model: adapter, Notifier: log})
	if _, err := c.Generate(context.Background(), Request{Text: "hi", Speed: 1, Mode: Model}); err != nil {
		t.Fatal(err)
	}
	if !log.has("Downloading model: 42%", Loading) {
		t.Errorf("statuses = %v", log.list)
	}
}

// TestStop_CancelsServiceCall verifies Stop abandons the request.
func TestStop_CancelsServiceCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	log := &statusLog{}
	c := New(Config{Service: testClient(), Notifier: log})

	done := make(chan error, 1)
	go func() {
		_, err := c.Generate(context.Background(), serviceRequest(srv.URL))
		done <- err
	}()
	waitFor(t, c.Busy)

	c.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("err = %v, want ErrCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Generate did not return after Stop")
	}

	if c.Session().Status != Cancelled {
		t.Errorf("session = %v, want cancelled", c.Session().Status)
	}
	if !log.has("Stopped", Success) {
		t.Error("missing Stopped status")
	}
	if c.Busy() {
		t.Error("controller still busy")
	}
}

// TestStop_DiscardsModelResult verifies a model run finishes but is not
// published after Stop.
func TestStop_DiscardsModelResult(t *testing.T) {
	rt := &fakeRuntime{
		samples: []float32{0.1},
		rate:    24000,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := New(Config{Model: newAdapter(t, runtimeLoader(rt))})

	done := make(chan error, 1)
	go func() {
		_, err := c.Generate(context.Background(), Request{Text: "hi", Speed: 1, Mode: Model})
		done <- err
	}()

	<-rt.started
	c.Stop()
	close(rt.release)

	if err := <-done; !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if _, ok := c.CurrentDownloadableBytes(); ok {
		t.Error("discarded result was published")
	}
}

// TestPlayback verifies autoplay, replay, clear and stop drive the player.
func TestPlayback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(serverWAV(t))
	}))
	defer srv.Close()

	player := audio.NewMockPlayer()
	log := &statusLog{}
	c := New(Config{Service: testClient(), Player: player, Notifier: log, AutoPlay: true})

	if err := c.Replay(); !errors.Is(err, ErrNoAudio) {
		t.Errorf("Replay with nothing = %v, want ErrNoAudio", err)
	}

	if _, err := c.Generate(context.Background(), serviceRequest(srv.URL)); err != nil {
		t.Fatal(err)
	}
	if player.State() != audio.StatePlaying || player.Plays() != 1 {
		t.Fatalf("autoplay: state = %v plays = %d", player.State(), player.Plays())
	}

	if err := c.Replay(); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if player.Plays() != 2 || !log.has("Replaying audio...", Success) {
		t.Errorf("replay did not restart playback")
	}

	c.Stop()
	if player.State() != audio.StateStopped || player.Position() != 0 {
		t.Errorf("stop: state = %v position = %v", player.State(), player.Position())
	}
	if _, ok := c.CurrentDownloadableBytes(); !ok {
		t.Error("stop dropped the artifact")
	}

	_ = c.Replay()
	c.Clear()
	if player.State() != audio.StateStopped {
		t.Error("clear did not stop playback")
	}
	if _, ok := c.CurrentDownloadableBytes(); ok {
		t.Error("clear kept the artifact")
	}
}

type stopOnSuccess struct {
	statusLog
	c *Controller
}

func (n *stopOnSuccess) Notify(s Status) {
	n.statusLog.Notify(s)
	if s.Message == "Speech generated successfully!" {
		n.c.Stop()
	}
}

// TestStop_BeforeAutoplay verifies a stop arriving between the end of a
// session and the start of playback keeps the audio silent.
func TestStop_BeforeAutoplay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(serverWAV(t))
	}))
	defer srv.Close()

	player := audio.NewMockPlayer()
	n := &stopOnSuccess{}
	c := New(Config{Service: testClient(), Player: player, Notifier: n, AutoPlay: true})
	n.c = c

	a, err := c.Generate(context.Background(), serviceRequest(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	if a == nil || c.Session().Status != Succeeded {
		t.Fatalf("session = %+v, want Succeeded", c.Session())
	}
	if player.Plays() != 0 || player.State() == audio.StatePlaying {
		t.Errorf("autoplay ignored stop: plays = %d state = %v", player.Plays(), player.State())
	}
	if _, ok := c.CurrentDownloadableBytes(); !ok {
		t.Error("stop after success dropped the artifact")
	}

	// a stop from an earlier session does not silence the next one
	c2 := New(Config{Service: testClient(), Player: player, AutoPlay: true})
	c2.Stop()
	if _, err := c2.Generate(context.Background(), serviceRequest(srv.URL)); err != nil {
		t.Fatal(err)
	}
	if player.Plays() != 1 {
		t.Errorf("plays = %d, want 1", player.Plays())
	}
}

// TestDownload verifies the artifact is written under the popup's naming
// scheme.
func TestDownload(t *testing.T) {
	reply := serverWAV(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(reply)
	}))
	defer srv.Close()

	c := New(Config{Service: testClient()})
	dir := filepath.Join(t.TempDir(), "out")

	if _, err := c.Download(dir); !errors.Is(err, ErrNoAudio) {
		t.Errorf("Download with nothing = %v, want ErrNoAudio", err)
	}

	if _, err := c.Generate(context.Background(), serviceRequest(srv.URL)); err != nil {
		t.Fatal(err)
	}
	path, err := c.Download(dir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	name := filepath.Base(path)
	if !strings.HasPrefix(name, "kokoro_tts_American_Female__Heart__") || !strings.HasSuffix(name, ".wav") {
		t.Errorf("file name = %q", name)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, reply) {
		t.Error("downloaded bytes differ")
	}
}

func TestDownloadName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	got := DownloadName("bm_george", ts)
	want := "kokoro_tts_British_Male__George__2024-03-09T14-05-06.wav"
	if got != want {
		t.Errorf("DownloadName = %q, want %q", got, want)
	}
}

// TestGenerate_CacheHit verifies cached audio skips the backend.
func TestGenerate_CacheHit(t *testing.T) {
	var calls atomic.Int32
	reply := serverWAV(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write(reply)
	}))
	defer srv.Close()

	c := New(Config{Service: testClient(), Cache: &mapCache{}})
	for i := 0; i < 2; i++ {
		if _, err := c.Generate(context.Background(), serviceRequest(srv.URL)); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}

	req := serviceRequest(srv.URL)
	req.Voice = "af_bella"
	if _, err := c.Generate(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("server calls = %d, want 2 for a different voice", calls.Load())
	}
}

// TestGenerate_Invalid verifies validation failures never start a session.
func TestGenerate_Invalid(t *testing.T) {
	log := &statusLog{}
	c := New(Config{Service: testClient(), Notifier: log})

	_, err := c.Generate(context.Background(), Request{Text: "   ", Speed: 1, Endpoint: "http://x"})
	if !errors.Is(err, ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	if !log.has("Please enter some text", Error) {
		t.Error("missing empty text status")
	}
	if c.Session().ID != 0 {
		t.Error("session started for an invalid request")
	}

	_, err = c.Generate(context.Background(), Request{Text: "hi", Speed: 1, Mode: Model})
	if !errors.Is(err, ErrNoBackend) {
		t.Errorf("err = %v, want ErrNoBackend", err)
	}
}
