package live

import (
	"fmt"
	"slices"
	"time"
)

// Phase is the lifecycle phase of a Session.
type Phase int

const (
	// PhaseIdle is the phase before Start and after Stop.
	PhaseIdle Phase = iota
	// PhaseHandshaking is while the connection is being dialed.
	PhaseHandshaking
	// PhaseActive is while audio and frames flow in both directions.
	PhaseActive
	// PhaseError is entered when dialing or receiving fails.
	PhaseError
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseHandshaking:
		return "HANDSHAKING"
	case PhaseActive:
		return "ACTIVE"
	case PhaseError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// DefaultModel is the native audio model used for live sessions.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// DefaultVoice is the prebuilt voice used when none is configured.
const DefaultVoice = "Zephyr"

// AvailableVoices lists the prebuilt voices a session may select.
var AvailableVoices = []string{"Zephyr", "Puck", "Charon", "Kore", "Fenrir"}

// InputMIMEType is the MIME type of outbound microphone audio.
const InputMIMEType = "audio/pcm;rate=16000"

// FrameMIMEType is the MIME type of outbound vision frames.
const FrameMIMEType = "image/jpeg"

// SessionConfig holds all configuration for a live session.
type SessionConfig struct {
	// Model is the live model identifier.
	Model string `json:"model"`

	// Voice is the prebuilt voice name. Must be one of AvailableVoices.
	Voice string `json:"voice"`

	// System is the system instruction for the model.
	System string `json:"system,omitempty"`

	// InputSampleRate is the rate of audio sent upstream. Default: 16000.
	InputSampleRate int `json:"input_sample_rate"`

	// OutputSampleRate is the rate of audio the model speaks. Default: 24000.
	OutputSampleRate int `json:"output_sample_rate"`

	// Channels of model audio. Default: 1.
	Channels int `json:"channels"`

	// ChunkSamples is the number of samples per outbound audio chunk. Default: 4096.
	ChunkSamples int `json:"chunk_samples"`

	// TurnSilenceTimeout commits a turn when no transcript arrives for this long.
	// Default: 1500ms
	TurnSilenceTimeout time.Duration `json:"turn_silence_timeout"`

	// VisionInterval is the period between camera frames. Default: 2s.
	VisionInterval time.Duration `json:"vision_interval"`

	// VisionJPEGQuality is the JPEG quality of frames, 1-100. Default: 50.
	VisionJPEGQuality int `json:"vision_jpeg_quality"`

	// InputSpeechThreshold is the mean input bin level above which the user
	// is considered speaking. Range 0.0 to 1.0. Default: 0.04.
	InputSpeechThreshold float64 `json:"input_speech_threshold"`

	// OutputSpeechThreshold is the mean level of the low output bins above
	// which the model is considered speaking. Default: 0.05.
	OutputSpeechThreshold float64 `json:"output_speech_threshold"`
}

// DefaultSessionConfig returns a SessionConfig with the standard defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Model:                 DefaultModel,
		Voice:                 DefaultVoice,
		InputSampleRate:       16000,
		OutputSampleRate:      24000,
		Channels:              1,
		ChunkSamples:          4096,
		TurnSilenceTimeout:    1500 * time.Millisecond,
		VisionInterval:        2 * time.Second,
		VisionJPEGQuality:     50,
		InputSpeechThreshold:  0.04,
		OutputSpeechThreshold: 0.05,
	}
}

// withDefaults fills zero fields from DefaultSessionConfig.
func (c SessionConfig) withDefaults() SessionConfig {
	d := DefaultSessionConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.Voice == "" {
		c.Voice = d.Voice
	}
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = d.InputSampleRate
	}
	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = d.OutputSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = d.Channels
	}
	if c.ChunkSamples <= 0 {
		c.ChunkSamples = d.ChunkSamples
	}
	if c.TurnSilenceTimeout <= 0 {
		c.TurnSilenceTimeout = d.TurnSilenceTimeout
	}
	if c.VisionInterval <= 0 {
		c.VisionInterval = d.VisionInterval
	}
	if c.VisionJPEGQuality <= 0 {
		c.VisionJPEGQuality = d.VisionJPEGQuality
	}
	if c.InputSpeechThreshold <= 0 {
		c.InputSpeechThreshold = d.InputSpeechThreshold
	}
	if c.OutputSpeechThreshold <= 0 {
		c.OutputSpeechThreshold = d.OutputSpeechThreshold
	}
	return c
}

// Validate reports configuration errors.
func (c SessionConfig) Validate() error {
	if c.Voice != "" && !IsAvailableVoice(c.Voice) {
		return fmt.Errorf("live: unknown voice %q", c.Voice)
	}
	if c.VisionJPEGQuality < 0 || c.VisionJPEGQuality > 100 {
		return fmt.Errorf("live: vision jpeg quality must be within 1..100")
	}
	if c.Channels < 0 || c.Channels > 2 {
		return fmt.Errorf("live: channels must be 1 or 2")
	}
	return nil
}

// IsAvailableVoice reports whether name is a supported prebuilt voice.
func IsAvailableVoice(name string) bool {
	return slices.Contains(AvailableVoices, name)
}

// AudioConfig specifies audio format parameters.
type AudioConfig struct {
	// SampleRate in Hz. Common values: 16000, 24000, 44100, 48000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// BytesPerSecond returns the audio byte rate.
func (c AudioConfig) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// Duration returns the playback duration of a byte count.
func (c AudioConfig) Duration(bytes int) time.Duration {
	bps := c.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(bytes) * time.Second / time.Duration(bps)
}
