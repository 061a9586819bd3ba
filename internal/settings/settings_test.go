package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/dgnsrekt/kokoro-tts/internal/model"
	"github.com/dgnsrekt/kokoro-tts/internal/service"
	"github.com/dgnsrekt/kokoro-tts/internal/speech"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kokoro-tts.yml")
	return NewStore(viper.New(), path), path
}

func TestDefaults(t *testing.T) {
	s, _ := newStore(t)
	cur := s.Load()

	if err := cur.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cur.Speed != 1.0 || cur.Language != "a" || cur.Mode != "service" {
		t.Errorf("defaults = %+v", cur)
	}
	if cur.APIEndpoint != "http://localhost:8000" || cur.APIKey != "" || cur.UseOpenAIFormat {
		t.Errorf("service defaults = %+v", cur)
	}
	if cur.Dtype != "q8" || cur.Timeout != service.DefaultTimeout || !cur.CacheEnabled {
		t.Errorf("supplementary defaults = %+v", cur)
	}
	if cur.RuntimeTimeout != model.DefaultRuntimeTimeout {
		t.Errorf("runtime timeout = %s, want %s", cur.RuntimeTimeout, model.DefaultRuntimeTimeout)
	}
	if cur.EffectiveVoice() != "af_heart" {
		t.Errorf("service voice = %q, want af_heart", cur.EffectiveVoice())
	}

	cur.Mode = "model"
	if cur.EffectiveVoice() != "af_sky" {
		t.Errorf("model voice = %q, want af_sky", cur.EffectiveVoice())
	}
}

// TestSetPersists verifies each change lands in the config file and a new
// store reads it back.
func TestSetPersists(t *testing.T) {
	s, path := newStore(t)

	if err := s.Set(KeyVoice, "bf_emma"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(KeySpeed, 1.5); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(KeyUseOpenAIFormat, true); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		t.Errorf("config file mode = %v, want owner only", info.Mode().Perm())
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}
	got := NewStore(v, path).Load()
	if got.Voice != "bf_emma" || got.Speed != 1.5 || !got.UseOpenAIFormat {
		t.Errorf("reloaded = %+v", got)
	}
}

// TestSetSkipsOverrides verifies flag and env overrides are not written.
func TestSetSkipsOverrides(t *testing.T) {
	v := viper.New()
	path := filepath.Join(t.TempDir(), "kokoro-tts.yml")
	s := NewStore(v, path)

	v.Set(KeyAPIKey, "from-flag")
	if err := s.Set(KeyLanguage, "b"); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "from-flag") {
		t.Errorf("override persisted:\n%s", b)
	}
	if !strings.Contains(string(b), "language: b") {
		t.Errorf("language missing:\n%s", b)
	}
}

func TestSetRejectsInvalid(t *testing.T) {
	tests := []struct {
		key   string
		value any
	}{
		{KeySpeed, 0.0},
		{KeySpeed, 9.0},
		{KeyMode, "cloud"},
		{KeyDtype, "int3"},
		{KeyAPIEndpoint, "localhost:8000"},
		{KeyTimeout, -time.Second},
		{KeyRuntimeTimeout, -time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			s, path := newStore(t)
			before := s.Load()

			if err := s.Set(tt.key, tt.value); err == nil {
				t.Fatalf("Set(%s, %v) succeeded", tt.key, tt.value)
			}
			if _, err := os.Stat(path); !os.IsNotExist(err) {
				t.Error("invalid value was written")
			}
			after := s.Load()
			if after.Speed != before.Speed || after.Mode != before.Mode || after.APIEndpoint != before.APIEndpoint {
				t.Errorf("store changed: %+v", after)
			}
		})
	}
}

func TestModelModeSkipsEndpoint(t *testing.T) {
	cur := Settings{Speed: 1, Mode: "model", Dtype: "q4"}
	if err := cur.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestRequest(t *testing.T) {
	cur := Settings{
		Voice:           "am_adam",
		Speed:           1.25,
		Language:        "a",
		Mode:            "service",
		APIEndpoint:     "http://tts.local:8880",
		APIKey:          "secret",
		UseOpenAIFormat: true,
	}

	req := cur.Request("hello")
	want := speech.Request{
		Text:     "hello",
		Voice:    "am_adam",
		Speed:    1.25,
		Language: "a",
		Mode:     speech.Service,
		Format:   service.OpenAI,
		Endpoint: "http://tts.local:8880",
		APIKey:   "secret",
	}
	if req != want {
		t.Errorf("Request = %+v, want %+v", req, want)
	}
	if err := req.Validate(); err != nil {
		t.Errorf("request invalid: %v", err)
	}
}

// TestWatch verifies edits made outside the program reach listeners.
func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kokoro-tts.yml")
	if err := os.WriteFile(path, []byte("speed: 1.0\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}
	s := NewStore(v, path)

	changed := make(chan Settings, 4)
	s.Watch(func(cur Settings) { changed <- cur })

	// the watcher starts asynchronously
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("speed: 2.0\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cur := <-changed:
			if cur.Speed == 2.0 {
				return
			}
		case <-deadline:
			t.Fatal("no change notification")
		}
	}
}

func TestLoaderUsesRuntimeTimeout(t *testing.T) {
	s := Settings{
		Mode:           "model",
		Timeout:        5 * time.Second,
		RuntimeCommand: "kokoro-onnx",
		RuntimeArgs:    []string{"--threads", "2"},
		RuntimeTimeout: 3 * time.Minute,
	}

	f := model.NewFetcher(t.TempDir())
	l := s.Loader(f)
	if l.Timeout != 3*time.Minute {
		t.Errorf("loader timeout = %s, want the runtime bound", l.Timeout)
	}
	if l.Fetcher != f || l.Command != "kokoro-onnx" || len(l.Args) != 2 || l.Voice != model.DefaultVoice {
		t.Errorf("unexpected loader %+v", l)
	}
}
