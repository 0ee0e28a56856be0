package live

import "testing"

// noisePCM returns deterministic broadband PCM at the given amplitude.
func noisePCM(samples int, amplitude float32) []byte {
	out := make([]float32, samples)
	seed := uint32(12345)
	for i := range out {
		seed = seed*1664525 + 1013904223
		out[i] = amplitude * (float32(seed>>8)/float32(1<<24)*2 - 1)
	}
	return EncodePCM16(out)
}

func TestFrequencyData_Silence(t *testing.T) {
	bins := FrequencyData(make([]byte, 1024))
	if len(bins) != FrequencyBins {
		t.Fatalf("len = %d", len(bins))
	}
	for i, b := range bins {
		if b != 0 {
			t.Fatalf("bin %d = %d, want 0", i, b)
		}
	}
}

func TestFrequencyData_NoiseIsBroadband(t *testing.T) {
	bins := FrequencyData(noisePCM(512, 0.3))
	if lvl := meanLevel(bins); lvl < 0.2 {
		t.Fatalf("mean level %.3f too low for noise", lvl)
	}
}

func TestMeter_SpeakingFlags(t *testing.T) {
	m := NewMeter(0.04, 0.05)

	a, changed := m.ObserveInput(make([]byte, 512))
	if changed || a.UserSpeaking {
		t.Fatalf("silence should not flip flags: %+v changed=%v", a, changed)
	}

	a, changed = m.ObserveInput(noisePCM(256, 0.3))
	if !changed || !a.UserSpeaking || a.ModelSpeaking {
		t.Fatalf("expected user speaking: %+v changed=%v", a, changed)
	}
	if a.InputRMS < 0.1 || a.InputRMS > 0.3 {
		t.Fatalf("input rms = %.3f", a.InputRMS)
	}

	a, changed = m.SetOutput(noisePCM(256, 0.3))
	if !changed || !a.ModelSpeaking {
		t.Fatalf("expected model speaking: %+v changed=%v", a, changed)
	}

	a, changed = m.ResetOutput()
	if !changed || a.ModelSpeaking || !a.UserSpeaking {
		t.Fatalf("expected model silent after reset: %+v changed=%v", a, changed)
	}
	if m.Snapshot() != a {
		t.Fatalf("snapshot mismatch")
	}

	// A full window of silence replaces the noise.
	a, _ = m.ObserveInput(make([]byte, 512))
	if a.UserSpeaking {
		t.Fatalf("expected user silent: %+v", a)
	}
}

func TestMeter_FrequencyDataAccessors(t *testing.T) {
	m := NewMeter(0.04, 0.05)
	m.SetOutput(noisePCM(256, 0.3))
	if got := len(m.OutputFrequencyData()); got != FrequencyBins {
		t.Fatalf("output bins = %d", got)
	}
	if meanLevel(m.InputFrequencyData()) != 0 {
		t.Fatal("input should be silent")
	}
	m.Reset()
	if meanLevel(m.OutputFrequencyData()) != 0 {
		t.Fatal("output should be silent after reset")
	}
}

func TestMeter_SetOutputReplacesWindow(t *testing.T) {
	m := NewMeter(0.04, 0.05)
	if a, changed := m.SetOutput(noisePCM(256, 0.3)); !changed || !a.ModelSpeaking {
		t.Fatalf("expected model speaking: %+v changed=%v", a, changed)
	}
	// A short window is not mixed with the previous one.
	if a, changed := m.SetOutput(make([]byte, 16)); !changed || a.ModelSpeaking || a.OutputLevel != 0 {
		t.Fatalf("expected model silent: %+v changed=%v", a, changed)
	}
	if a, changed := m.SetOutput(nil); changed || a.ModelSpeaking {
		t.Fatalf("empty window: %+v changed=%v", a, changed)
	}
}
