package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeServer struct {
	voices     []Voice
	models     []string
	health     *Health
	authHeader string
}

func (f *fakeServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/voices", func(w http.ResponseWriter, r *http.Request) {
		f.authHeader = r.Header.Get("Authorization")
		if f.voices == nil {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": f.voices})
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		if f.models == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"not found","type":"invalid_request_error"}}`))
			return
		}
		data := make([]map[string]any, 0, len(f.models))
		for _, id := range f.models {
			data = append(data, map[string]any{"id": id, "object": "model", "owned_by": "kokoro"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if f.health == nil {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(f.health)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscover_PrefersVoicesEndpoint(t *testing.T) {
	f := &fakeServer{
		voices: []Voice{{ID: "af_sky"}, {ID: "xx_custom", Name: "Custom"}},
		models: []string{"kokoro", "am_adam"},
		health: &Health{AvailableVoices: []string{"bf_emma"}, AvailableLanguages: []string{"a", "j"}},
	}
	srv := f.start(t)

	cat := NewClient(Config{}).Discover(context.Background(), Target{Endpoint: srv.URL, APIKey: "secret"})

	if !cat.Connected || cat.Source != "voices" {
		t.Fatalf("catalog = %+v, want connected from voices", cat)
	}
	if len(cat.Voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(cat.Voices))
	}
	if cat.Voices[0].Name != "American Female (Sky)" || cat.Voices[1].Name != "Custom" {
		t.Errorf("voice names = %q, %q", cat.Voices[0].Name, cat.Voices[1].Name)
	}
	if len(cat.Languages) != 2 || cat.Languages[1].Name != "Japanese" {
		t.Errorf("languages = %+v", cat.Languages)
	}
	if f.authHeader != "Bearer secret" {
		t.Errorf("voices request Authorization = %q", f.authHeader)
	}
}

func TestDiscover_FallsBackToModels(t *testing.T) {
	f := &fakeServer{models: []string{"kokoro", "am_adam", "af_nova"}}
	srv := f.start(t)

	cat := NewClient(Config{}).Discover(context.Background(), Target{Endpoint: srv.URL})

	if cat.Source != "models" {
		t.Fatalf("Source = %q, want models", cat.Source)
	}
	for _, v := range cat.Voices {
		if v.ID == "kokoro" {
			t.Error("kokoro model id should be filtered out")
		}
	}
	if len(cat.Voices) != 2 {
		t.Errorf("got %d voices, want 2", len(cat.Voices))
	}
	if len(cat.Languages) != 9 {
		t.Errorf("expected built-in languages, got %d", len(cat.Languages))
	}
}

func TestDiscover_FallsBackToHealth(t *testing.T) {
	f := &fakeServer{health: &Health{AvailableVoices: []string{"bf_emma", "bm_lewis"}}}
	srv := f.start(t)

	cat := NewClient(Config{}).Discover(context.Background(), Target{Endpoint: srv.URL})

	if cat.Source != "health" || len(cat.Voices) != 2 {
		t.Errorf("catalog = %+v, want 2 voices from health", cat)
	}
}

func TestDiscover_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cat := NewClient(Config{}).Discover(context.Background(), Target{Endpoint: url})

	if cat.Connected {
		t.Error("expected Connected to be false")
	}
	if cat.Source != "builtin" || len(cat.Voices) != 28 {
		t.Errorf("catalog = %s with %d voices, want builtin with 28", cat.Source, len(cat.Voices))
	}
}

func TestModels_ServiceError(t *testing.T) {
	f := &fakeServer{}
	srv := f.start(t)

	_, err := NewClient(Config{}).Models(context.Background(), Target{Endpoint: srv.URL})
	svcErr, ok := err.(*ServiceError)
	if !ok {
		t.Fatalf("expected *ServiceError, got %T: %v", err, err)
	}
	if svcErr.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", svcErr.Status)
	}
}
