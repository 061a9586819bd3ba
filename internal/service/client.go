// Package service talks to a remote Kokoro text-to-speech HTTP server in
// either its native wire format or the OpenAI-compatible one.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// Format selects the request shape sent to the server.
type Format int

const (
	// Native posts {text, voice, speed, language} to /generate.
	Native Format = iota
	// OpenAI posts an OpenAI speech request to /v1/audio/speech.
	OpenAI
)

func (f Format) String() string {
	switch f {
	case Native:
		return "native"
	case OpenAI:
		return "openai"
	default:
		return "unknown"
	}
}

// ModelName is the model id sent in OpenAI-compatible requests.
const ModelName = "kokoro"

// DefaultTimeout bounds a single request unless configured otherwise.
const DefaultTimeout = 60 * time.Second

// Target identifies a server and the credentials used with it.
type Target struct {
	Endpoint string
	APIKey   string
}

func (t Target) url(path string) string {
	return strings.TrimRight(strings.TrimSpace(t.Endpoint), "/") + path
}

func (t Target) authorize(req *http.Request) {
	if key := strings.TrimSpace(t.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

// Request is one speech generation call.
type Request struct {
	Target
	Format   Format
	Text     string
	Voice    string
	Speed    float64
	Language string
}

type nativeBody struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Speed    float64 `json:"speed"`
	Language string  `json:"language"`
}

type openAIBody struct {
	Model          string  `json:"model"`
	Voice          string  `json:"voice"`
	Input          string  `json:"input"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
	Language       string  `json:"language"`
}

// Config configures a Client.
type Config struct {
	// Timeout bounds each request. Zero disables the bound.
	Timeout time.Duration

	// RequestsPerMinute limits how often the server is called. Zero
	// disables limiting.
	RequestsPerMinute int

	// HTTPClient is used for all requests. Defaults to a plain client.
	HTTPClient *http.Client
}

// DefaultConfig returns the client defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:           DefaultTimeout,
		RequestsPerMinute: 60,
	}
}

// Client issues speech and discovery requests.
type Client struct {
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	c := &Client{http: hc, timeout: cfg.Timeout}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c
}

// Timeout returns the per-request bound, zero when disabled.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Generate posts req and returns the audio bytes exactly as the server sent
// them. Non-2xx answers yield *ServiceError; transport failures, timeouts
// and cancellation yield *NetworkError.
func (c *Client) Generate(ctx context.Context, req Request) ([]byte, error) {
	var (
		path string
		body any
	)

	switch req.Format {
	case Native:
		path = "/generate"
		body = nativeBody{Text: req.Text, Voice: req.Voice, Speed: req.Speed, Language: req.Language}
	case OpenAI:
		path = "/v1/audio/speech"
		body = openAIBody{
			Model:          ModelName,
			Voice:          req.Voice,
			Input:          req.Text,
			ResponseFormat: "wav",
			Speed:          req.Speed,
			Language:       req.Language,
		}
	default:
		return nil, fmt.Errorf("unknown wire format %d", req.Format)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &NetworkError{Op: http.MethodPost, URL: req.url(path), Err: err}
		}
	}

	log.Debug("Sending speech request", "url", req.url(path), "format", req.Format, "voice", req.Voice, "chars", len(req.Text))

	audio, err := c.do(ctx, req.Target, http.MethodPost, path, data)
	if err != nil {
		return nil, err
	}

	log.Debug("Received speech response", "bytes", len(audio))
	return audio, nil
}

// do runs one bounded request and returns the response body of a 2xx answer.
func (c *Client) do(ctx context.Context, t Target, method, path string, body []byte) ([]byte, error) {
	url := t.url(path)
	netErr := func(err error) error {
		return &NetworkError{Op: method, URL: url, Err: err, timeout: c.timeout}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	t.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		// prefer the context error so Timeout and Canceled classify it
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, netErr(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, netErr(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServiceError{Status: resp.StatusCode, Body: string(payload)}
	}

	return payload, nil
}
