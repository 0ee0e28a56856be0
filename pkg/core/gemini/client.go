// Package gemini adapts the Google Gen AI SDK to the text, image, video,
// audio-analysis and chat operations used by the ZENITH studios and gateway.
package gemini

import (
	"context"
	"errors"
	"net/http"
	"time"

	"google.golang.org/genai"
)

const (
	// TextModel backs the text studio and the orchestrator brief.
	TextModel = "gemini-3-pro-preview"

	// ImageModel is the default image model.
	ImageModel = "gemini-2.5-flash-image"

	// HighResImageModel is used when a caller asks for high resolution output.
	HighResImageModel = "gemini-3-pro-image-preview"

	// VideoModel renders video.
	VideoModel = "veo-3.1-fast-generate-preview"

	// AudioAnalysisModel turns an audio sample into a visual prompt.
	AudioAnalysisModel = "gemini-3-flash-preview"

	// ChatModel is the default model of the agent endpoint.
	ChatModel = "gemini-2.5-flash"

	// ThinkingBudget is the thinking token budget for text generation.
	ThinkingBudget int32 = 16384

	// DefaultPollInterval is how often a video operation is polled.
	DefaultPollInterval = 10 * time.Second
)

// ErrMissingAPIKey is returned by New when no key is configured.
var ErrMissingAPIKey = errors.New("gemini: api key is required")

// Client wraps a genai client bound to the Gemini API backend.
type Client struct {
	genai        *genai.Client
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client used for API requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithPollInterval sets the video operation polling interval.
// Default: 10s
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// New creates a Client for apiKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	c := &Client{
		apiKey:       apiKey,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	gc, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.genai = gc
	return c, nil
}

// GenAI exposes the underlying SDK client, used by the live dialer.
func (c *Client) GenAI() *genai.Client {
	return c.genai
}
