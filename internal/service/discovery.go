package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/dgnsrekt/kokoro-tts/internal/voices"
)

// Health is the body of GET /health.
type Health struct {
	AvailableVoices    []string `json:"available_voices"`
	AvailableLanguages []string `json:"available_languages"`
}

// Voice is one entry of GET /v1/voices.
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type voiceList struct {
	Data []Voice `json:"data"`
}

// Health probes GET {endpoint}/health.
func (c *Client) Health(ctx context.Context, t Target) (*Health, error) {
	body, err := c.do(ctx, Target{Endpoint: t.Endpoint}, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}

	var h Health
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &h, nil
}

// Voices lists GET {endpoint}/v1/voices.
func (c *Client) Voices(ctx context.Context, t Target) ([]Voice, error) {
	body, err := c.do(ctx, t, http.MethodGet, "/v1/voices", nil)
	if err != nil {
		return nil, err
	}

	var list voiceList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode voices response: %w", err)
	}
	return list.Data, nil
}

// Models lists the model ids from GET {endpoint}/v1/models.
func (c *Client) Models(ctx context.Context, t Target) ([]string, error) {
	cfg := openai.DefaultConfig(t.APIKey)
	cfg.BaseURL = t.url("/v1")
	cfg.HTTPClient = c.http
	client := openai.NewClientWithConfig(cfg)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	list, err := client.ListModels(ctx)
	if err != nil {
		return nil, c.classifyOpenAIError(t.url("/v1/models"), err)
	}

	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (c *Client) classifyOpenAIError(url string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &ServiceError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &ServiceError{Status: reqErr.HTTPStatusCode, Body: body}
	}

	return &NetworkError{Op: http.MethodGet, URL: url, Err: err, timeout: c.timeout}
}

// Catalog is what a server offers, with built-in fallbacks filled in.
type Catalog struct {
	Voices    []voices.Voice
	Languages []voices.Language

	// Source names where the voices came from: "voices", "models",
	// "health" or "builtin".
	Source string

	// Connected is true when at least one probe reached the server.
	Connected bool
}

// Discover asks the server for voices and languages. Voices come from
// /v1/voices, then /v1/models (without the kokoro model itself), then
// /health. Languages come from /health. Anything missing falls back to the
// built-in catalogs.
func (c *Client) Discover(ctx context.Context, t Target) Catalog {
	var cat Catalog

	if vs, err := c.Voices(ctx, t); err == nil {
		cat.Connected = true
		if len(vs) > 0 {
			cat.Source = "voices"
			for _, v := range vs {
				name := v.Name
				if voices.Known(v.ID) || name == "" {
					name = voices.DisplayName(v.ID)
				}
				cat.Voices = append(cat.Voices, voices.Voice{ID: v.ID, Name: name})
			}
		}
	} else {
		log.Debug("Voices endpoint unavailable", "err", err)
	}

	if len(cat.Voices) == 0 {
		if ids, err := c.Models(ctx, t); err == nil {
			cat.Connected = true
			var filtered []string
			for _, id := range ids {
				if id != ModelName {
					filtered = append(filtered, id)
				}
			}
			if len(filtered) > 0 {
				cat.Source = "models"
				cat.Voices = voices.FromIDs(filtered)
			}
		} else {
			log.Debug("Models endpoint unavailable", "err", err)
		}
	}

	h, err := c.Health(ctx, t)
	if err == nil {
		cat.Connected = true
		if len(cat.Voices) == 0 && len(h.AvailableVoices) > 0 {
			cat.Source = "health"
			cat.Voices = voices.FromIDs(h.AvailableVoices)
		}
		cat.Languages = voices.Languages(h.AvailableLanguages)
	} else {
		log.Debug("Health endpoint unavailable", "err", err)
	}

	if len(cat.Voices) == 0 {
		cat.Source = "builtin"
		cat.Voices = voices.Builtin()
	}
	if len(cat.Languages) == 0 {
		cat.Languages = voices.BuiltinLanguages()
	}

	return cat
}
