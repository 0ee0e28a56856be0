package live

import (
	"math"
	"sync"
)

const (
	// FrequencyBins is the number of frequency bins reported by the meter.
	FrequencyBins = 128

	// outputSpeechBins is how many low-frequency output bins decide whether
	// the model is speaking.
	outputSpeechBins = 15

	fftSize     = FrequencyBins * 2
	minDecibels = -100.0
	maxDecibels = -30.0
)

// Activity is a snapshot of the meter.
type Activity struct {
	InputLevel    float64 `json:"input_level"`
	InputRMS      float64 `json:"input_rms"`
	OutputLevel   float64 `json:"output_level"`
	UserSpeaking  bool    `json:"user_speaking"`
	ModelSpeaking bool    `json:"model_speaking"`
}

// Meter keeps the most recent analysis window of input and output audio and
// derives speaking flags from their frequency data.
type Meter struct {
	mu              sync.Mutex
	input           *RingBuffer
	output          *RingBuffer
	inputThreshold  float64
	outputThreshold float64
	last            Activity
}

// NewMeter creates a Meter with the given speaking thresholds.
func NewMeter(inputThreshold, outputThreshold float64) *Meter {
	return &Meter{
		input:           NewRingBuffer(fftSize * 2),
		output:          NewRingBuffer(fftSize * 2),
		inputThreshold:  inputThreshold,
		outputThreshold: outputThreshold,
	}
}

// ObserveInput records microphone PCM. It returns the new snapshot and
// whether a speaking flag changed.
func (m *Meter) ObserveInput(pcm []byte) (Activity, bool) {
	m.input.Write(pcm)
	return m.update()
}

// SetOutput replaces the output window with the model audio that has most
// recently played. An empty window means nothing is playing.
func (m *Meter) SetOutput(window []byte) (Activity, bool) {
	m.output.Clear()
	m.output.Write(window)
	return m.update()
}

// ResetOutput forgets model audio, used when playback is flushed.
func (m *Meter) ResetOutput() (Activity, bool) {
	m.output.Clear()
	return m.update()
}

// Reset forgets all audio.
func (m *Meter) Reset() {
	m.input.Clear()
	m.output.Clear()
	m.mu.Lock()
	m.last = Activity{}
	m.mu.Unlock()
}

// InputFrequencyData returns byte frequency data for the input window.
func (m *Meter) InputFrequencyData() []byte {
	return FrequencyData(m.input.Read())
}

// OutputFrequencyData returns byte frequency data for the output window.
func (m *Meter) OutputFrequencyData() []byte {
	return FrequencyData(m.output.Read())
}

// Snapshot returns the latest activity without observing new audio.
func (m *Meter) Snapshot() Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Meter) update() (Activity, bool) {
	inPCM := m.input.Read()
	rms, inPeak := PCMLevels(inPCM)
	outPCM := m.output.Read()
	_, outPeak := PCMLevels(outPCM)

	a := Activity{InputRMS: rms}
	if inPeak > 0 {
		a.InputLevel = meanLevel(FrequencyData(inPCM))
	}
	if outPeak > 0 {
		a.OutputLevel = meanLevel(FrequencyData(outPCM)[:outputSpeechBins])
	}
	a.UserSpeaking = a.InputLevel > m.inputThreshold
	a.ModelSpeaking = a.OutputLevel > m.outputThreshold

	m.mu.Lock()
	defer m.mu.Unlock()
	changed := a.UserSpeaking != m.last.UserSpeaking || a.ModelSpeaking != m.last.ModelSpeaking
	m.last = a
	return a, changed
}

func meanLevel(bins []byte) float64 {
	if len(bins) == 0 {
		return 0
	}
	var sum int
	for _, b := range bins {
		sum += int(b)
	}
	return float64(sum) / float64(len(bins)) / 255
}

// FrequencyData converts the last fftSize samples of 16-bit PCM into
// FrequencyBins byte magnitudes (0-255) on a -100..-30 dB scale, using a
// Blackman window. Shorter input is zero padded.
func FrequencyData(pcm []byte) []byte {
	samples := DownmixPCM16(pcm, 1)
	if len(samples) > fftSize {
		samples = samples[len(samples)-fftSize:]
	}

	windowed := make([]float64, fftSize)
	offset := fftSize - len(samples)
	for i, s := range samples {
		n := offset + i
		windowed[n] = float64(s) * blackman(n, fftSize)
	}

	out := make([]byte, FrequencyBins)
	for k := 0; k < FrequencyBins; k++ {
		var re, im float64
		for n, x := range windowed {
			if x == 0 {
				continue
			}
			angle := -2 * math.Pi * float64(k*n) / fftSize
			re += x * math.Cos(angle)
			im += x * math.Sin(angle)
		}
		mag := math.Hypot(re, im) / fftSize
		if mag == 0 {
			continue
		}
		db := 20 * math.Log10(mag)
		scaled := 255 * (db - minDecibels) / (maxDecibels - minDecibels)
		switch {
		case scaled <= 0:
			out[k] = 0
		case scaled >= 255:
			out[k] = 255
		default:
			out[k] = byte(scaled)
		}
	}
	return out
}

func blackman(n, size int) float64 {
	const a0, a1, a2 = 0.42, 0.5, 0.08
	x := 2 * math.Pi * float64(n) / float64(size)
	return a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
}
