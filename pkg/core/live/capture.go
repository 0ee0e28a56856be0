package live

import (
	"context"
	"errors"
	"io"
)

// CaptureConfig describes the microphone stream and the outbound chunking.
type CaptureConfig struct {
	// DeviceRate is the microphone sample rate.
	DeviceRate int
	// DeviceChannels is the microphone channel count; channels are averaged.
	DeviceChannels int
	// TargetRate is the rate sent upstream. Default: 16000.
	TargetRate int
	// ChunkSamples is the number of samples per outbound chunk. Default: 4096.
	ChunkSamples int
}

// Capture reads s16le microphone PCM, resamples it to the target rate and
// hands fixed-size PCM chunks to a send function.
type Capture struct {
	src       io.Reader
	cfg       CaptureConfig
	send      func(pcm []byte) error
	resampler *Resampler
	pending   []float32
}

// NewCapture creates a Capture reading from src.
func NewCapture(src io.Reader, cfg CaptureConfig, send func(pcm []byte) error) *Capture {
	if cfg.DeviceChannels <= 0 {
		cfg.DeviceChannels = 1
	}
	if cfg.TargetRate <= 0 {
		cfg.TargetRate = 16000
	}
	if cfg.DeviceRate <= 0 {
		cfg.DeviceRate = cfg.TargetRate
	}
	if cfg.ChunkSamples <= 0 {
		cfg.ChunkSamples = 4096
	}
	return &Capture{
		src:       src,
		cfg:       cfg,
		send:      send,
		resampler: NewResampler(cfg.DeviceRate, cfg.TargetRate),
	}
}

// Run pumps audio until src is exhausted, ctx is done or send fails.
// A partial chunk left at end of input is discarded.
func (c *Capture) Run(ctx context.Context) error {
	frameBytes := 2 * c.cfg.DeviceChannels
	buf := make([]byte, frameBytes*1024)
	var carry []byte

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := c.src.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			whole := len(data) - len(data)%frameBytes
			if werr := c.Write(data[:whole]); werr != nil {
				return werr
			}
			carry = append(carry[:0:0], data[whole:]...)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Write feeds interleaved device PCM and sends every completed chunk.
func (c *Capture) Write(pcm []byte) error {
	mono := DownmixPCM16(pcm, c.cfg.DeviceChannels)
	c.pending = append(c.pending, c.resampler.Process(mono)...)
	for len(c.pending) >= c.cfg.ChunkSamples {
		chunk := EncodePCM16(c.pending[:c.cfg.ChunkSamples])
		c.pending = c.pending[c.cfg.ChunkSamples:]
		if err := c.send(chunk); err != nil {
			return err
		}
	}
	return nil
}
