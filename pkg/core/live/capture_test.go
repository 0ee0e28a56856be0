package live

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestCapture_ChunksAtTargetRate(t *testing.T) {
	// One second of 48 kHz stereo.
	frames := make([]float32, 48000*2)
	for i := range frames {
		frames[i] = 0.5
	}
	src := bytes.NewReader(EncodePCM16(frames))

	var chunks [][]byte
	c := NewCapture(src, CaptureConfig{DeviceRate: 48000, DeviceChannels: 2, ChunkSamples: 4096}, func(pcm []byte) error {
		chunks = append(chunks, pcm)
		return nil
	})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 16000 samples resampled, 3 whole chunks of 4096.
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch) != 4096*2 {
			t.Fatalf("chunk %d has %d bytes", i, len(ch))
		}
	}
	if _, peak := PCMLevels(chunks[1]); peak < 0.49 || peak > 0.51 {
		t.Fatalf("peak = %.3f, want ~0.5", peak)
	}
}

func TestCapture_SendErrorStops(t *testing.T) {
	src := bytes.NewReader(make([]byte, 16000*2))
	boom := errors.New("link down")
	c := NewCapture(src, CaptureConfig{DeviceRate: 16000, ChunkSamples: 1024}, func([]byte) error {
		return boom
	})
	if err := c.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestCapture_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewCapture(bytes.NewReader(make([]byte, 64)), CaptureConfig{}, func([]byte) error { return nil })
	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
