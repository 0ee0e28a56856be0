package live

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// PCMLevels returns the RMS and peak of 16-bit little-endian PCM, both
// normalized to 0..1. A trailing odd byte is ignored.
func PCMLevels(pcm []byte) (rms, peak float64) {
	n := len(pcm) / 2
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
		sum += v * v
		peak = max(peak, math.Abs(v))
	}
	return math.Sqrt(sum / float64(n)), peak
}

// EncodePCM16 converts float samples to 16-bit little-endian PCM.
// Samples are clamped to [-1, 1]; negative values scale by 32768 and
// positive values by 32767.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// DecodePCM16 splits interleaved 16-bit little-endian PCM into per-channel
// float samples in [-1, 1), dividing each sample by 32768.
func DecodePCM16(pcm []byte, channels int) [][]float32 {
	if channels <= 0 {
		channels = 1
	}
	frames := len(pcm) / 2 / channels
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			out[ch][i] = float32(int16(binary.LittleEndian.Uint16(pcm[off:]))) / 32768.0
		}
	}
	return out
}

// DownmixPCM16 decodes interleaved PCM and averages channels into mono.
func DownmixPCM16(pcm []byte, channels int) []float32 {
	chans := DecodePCM16(pcm, channels)
	if len(chans) == 1 {
		return chans[0]
	}
	mono := make([]float32, len(chans[0]))
	for _, c := range chans {
		for i, s := range c {
			mono[i] += s / float32(len(chans))
		}
	}
	return mono
}

// EncodeBase64 encodes raw bytes for JSON transport.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes a base64 audio or image payload.
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("live: invalid base64 payload: %w", err)
	}
	return data, nil
}

// Resampler converts a mono float stream between sample rates with linear
// interpolation. State carries across calls so chunk boundaries are seamless.
type Resampler struct {
	from, to int
	step     float64
	pos      float64
	prev     float32
	hasPrev  bool
}

// NewResampler creates a Resampler from one rate to another.
func NewResampler(from, to int) *Resampler {
	return &Resampler{from: from, to: to, step: float64(from) / float64(to)}
}

// Process resamples the next block of input.
func (r *Resampler) Process(in []float32) []float32 {
	if r.from == r.to || r.from <= 0 || r.to <= 0 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	if len(in) == 0 {
		return nil
	}

	buf := in
	if r.hasPrev {
		buf = make([]float32, 0, len(in)+1)
		buf = append(buf, r.prev)
		buf = append(buf, in...)
	}

	last := len(buf) - 1
	out := make([]float32, 0, int(float64(len(buf))/r.step)+1)
	for r.pos < float64(last) {
		i := int(r.pos)
		frac := float32(r.pos - float64(i))
		out = append(out, buf[i]*(1-frac)+buf[i+1]*frac)
		r.pos += r.step
	}

	r.pos -= float64(last)
	r.prev = buf[last]
	r.hasPrev = true
	return out
}

// Reset clears interpolation state.
func (r *Resampler) Reset() {
	r.pos = 0
	r.prev = 0
	r.hasPrev = false
}

// RingBuffer is a fixed-size circular buffer for audio data.
// It automatically overwrites old data when full.
type RingBuffer struct {
	mu       sync.Mutex
	data     []byte
	size     int
	writePos int
	filled   int // How much of the buffer has been written to
}

// NewRingBuffer creates a ring buffer that holds exactly size bytes.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		data: make([]byte, size),
		size: size,
	}
}

// Write adds data to the ring buffer, overwriting old data if necessary.
func (r *RingBuffer) Write(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(data) >= r.size {
		copy(r.data, data[len(data)-r.size:])
		r.writePos = 0
		r.filled = r.size
		return
	}
	for _, b := range data {
		r.data[r.writePos] = b
		r.writePos = (r.writePos + 1) % r.size
		if r.filled < r.size {
			r.filled++
		}
	}
}

// Read returns all data in the buffer in chronological order.
func (r *RingBuffer) Read() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.filled < r.size {
		result := make([]byte, r.filled)
		copy(result, r.data[:r.filled])
		return result
	}

	result := make([]byte, r.size)
	firstPart := r.size - r.writePos
	copy(result[:firstPart], r.data[r.writePos:])
	copy(result[firstPart:], r.data[:r.writePos])
	return result
}

// Clear resets the ring buffer.
func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writePos = 0
	r.filled = 0
}

// Filled returns how many bytes have been written.
func (r *RingBuffer) Filled() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filled
}
