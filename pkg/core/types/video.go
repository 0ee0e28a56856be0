package types

import (
	"fmt"
	"strings"
)

type AspectRatio string

const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
)

type Resolution string

const (
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
)

const (
	DefaultVideoStyle    = "Cinematic"
	DefaultVideoDuration = 5
)

// VideoRequest describes one video render.
type VideoRequest struct {
	Prompt          string      `json:"prompt" msgpack:"prompt"`
	AspectRatio     AspectRatio `json:"aspectRatio" msgpack:"aspect_ratio"`
	Resolution      Resolution  `json:"resolution" msgpack:"resolution"`
	DurationSeconds int         `json:"duration" msgpack:"duration"`
	Style           string      `json:"style" msgpack:"style"`
}

// WithDefaults fills unset fields with 16:9, 720p, 5 seconds, Cinematic.
func (r VideoRequest) WithDefaults() VideoRequest {
	if r.AspectRatio == "" {
		r.AspectRatio = AspectLandscape
	}
	if r.Resolution == "" {
		r.Resolution = Resolution720p
	}
	if r.DurationSeconds <= 0 {
		r.DurationSeconds = DefaultVideoDuration
	}
	if strings.TrimSpace(r.Style) == "" {
		r.Style = DefaultVideoStyle
	}
	return r
}

// Validate checks the aspect ratio and resolution against the supported set.
// The prompt may be empty when an audio track drives the render.
func (r VideoRequest) Validate() error {
	switch r.AspectRatio {
	case AspectLandscape, AspectPortrait:
	default:
		return fmt.Errorf("unsupported aspect ratio %q", r.AspectRatio)
	}
	switch r.Resolution {
	case Resolution720p, Resolution1080p:
	default:
		return fmt.Errorf("unsupported resolution %q", r.Resolution)
	}
	if r.DurationSeconds < 0 {
		return fmt.Errorf("duration must be >= 0")
	}
	return nil
}

// VideoHistoryItem is one completed render.
type VideoHistoryItem struct {
	ID          string      `json:"id" msgpack:"id"`
	Prompt      string      `json:"prompt" msgpack:"prompt"`
	AspectRatio AspectRatio `json:"aspectRatio" msgpack:"aspect_ratio"`
	Resolution  Resolution  `json:"resolution" msgpack:"resolution"`
	Style       string      `json:"style" msgpack:"style"`
	Duration    int         `json:"duration" msgpack:"duration"`
	VideoURL    string      `json:"videoUrl,omitempty" msgpack:"video_url"`
	Timestamp   int64       `json:"timestamp" msgpack:"timestamp"`
}
