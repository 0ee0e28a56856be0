// Package studio implements the ZENITH creative studios: text, image,
// queued video rendering, the multi-stage orchestrator and the
// cross-studio history search.
//
// Studios persist their history in the embedded store (see pkg/store) under
// fixed keys, newest first, each with its own cap. Generation itself is
// delegated to small interfaces that *gemini.Client satisfies, so studios
// can be driven by fakes in tests.
package studio

import (
	"context"
	"log/slog"
	"time"

	"github.com/vango-go/zenith/pkg/core"
	"github.com/vango-go/zenith/pkg/core/types"
)

// History keys and caps.
const (
	TextHistoryKey  = "text_studio_history"
	TextHistoryCap  = 20
	ImageHistoryKey = "image_studio_history"
	ImageHistoryCap = 15
	VideoHistoryKey = "video_studio_history_v2"
	VideoHistoryCap = 10
)

// ErrEmptyPrompt is returned when a generation is requested without a prompt.
var ErrEmptyPrompt = core.NewInvalidRequestErrorWithParam("prompt is required", "prompt")

// TextGenerator produces text, optionally grounded with web search.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, useSearch bool) (types.TextResult, error)
}

// ImageGenerator renders an image and returns it as a data URL.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, model string) (string, error)
}

// VideoGenerator renders a video and returns the encoded bytes.
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, req types.VideoRequest) ([]byte, error)
}

// AudioAnalyzer turns an audio sample into a visual prompt.
type AudioAnalyzer interface {
	AnalyzeAudioToVisualPrompt(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Option configures a studio.
type Option func(*options)

type options struct {
	logger *slog.Logger
	now    func() time.Time
	tick   time.Duration
}

// WithLogger sets the studio logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithProgressTick sets how often a rendering video task advances its
// progress. Only the video studio uses it.
func WithProgressTick(d time.Duration) Option {
	return func(o *options) { o.tick = d }
}

func buildOptions(opts []Option) options {
	o := options{
		logger: slog.Default(),
		now:    time.Now,
		tick:   DefaultProgressTick,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
