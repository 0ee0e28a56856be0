package studio

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/zenith/pkg/core"
	"github.com/vango-go/zenith/pkg/core/gemini"
	"github.com/vango-go/zenith/pkg/core/types"
	"github.com/vango-go/zenith/pkg/store"
)

type fakeGen struct {
	mu sync.Mutex

	textPrompts  []string
	textSearch   []bool
	imagePrompts []string
	imageModels  []string
	videoReqs    []types.VideoRequest
	audioCalls   int

	textErr  error
	imageErr error
	videoErr error
	audioErr error

	// videoGate, when set, blocks GenerateVideo until it is closed.
	videoGate chan struct{}
	started   chan string
}

func (f *fakeGen) GenerateText(_ context.Context, prompt string, useSearch bool) (types.TextResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textPrompts = append(f.textPrompts, prompt)
	f.textSearch = append(f.textSearch, useSearch)
	if f.textErr != nil {
		return types.TextResult{}, f.textErr
	}
	return types.TextResult{Text: "report for " + prompt[:min(len(prompt), 10)], Sources: []types.GroundingSource{{Title: "Source", URI: "https://a"}}}, nil
}

func (f *fakeGen) GenerateImage(_ context.Context, prompt, model string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imagePrompts = append(f.imagePrompts, prompt)
	f.imageModels = append(f.imageModels, model)
	if f.imageErr != nil {
		return "", f.imageErr
	}
	return "data:image/png;base64,aGVsbG8=", nil
}

func (f *fakeGen) GenerateVideo(ctx context.Context, req types.VideoRequest) ([]byte, error) {
	f.mu.Lock()
	f.videoReqs = append(f.videoReqs, req)
	gate, started, err := f.videoGate, f.started, f.videoErr
	f.mu.Unlock()

	if started != nil {
		started <- req.Prompt
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte("mp4:" + req.Prompt), nil
}

func (f *fakeGen) AnalyzeAudioToVisualPrompt(_ context.Context, audio []byte, mimeType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audioCalls++
	if f.audioErr != nil {
		return "", f.audioErr
	}
	return "neon pulses on the beat", nil
}

type memAssets struct {
	mu    sync.Mutex
	items map[string][]byte
}

func (m *memAssets) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string][]byte)
	}
	m.items[name] = data
	return "https://cdn.test/" + name, nil
}

func openLocal(t *testing.T) *store.Local {
	t.Helper()
	l, err := store.OpenLocal(store.LocalConfig{InMemory: true}, nil)
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// stepClock advances one millisecond per call so timestamps order strictly.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return start.Add(time.Duration(n) * time.Millisecond)
	}
}

var epoch = time.UnixMilli(1_750_000_000_000)

func TestTextStudio_GenerateAndHistory(t *testing.T) {
	gen := &fakeGen{}
	s := NewTextStudio(gen, openLocal(t), WithClock(stepClock(epoch)))

	if _, err := s.Generate(context.Background(), "   ", true); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("blank prompt err = %v", err)
	}
	if len(gen.textPrompts) != 0 {
		t.Fatal("blank prompt must not reach the model")
	}

	for i := 0; i < TextHistoryCap+2; i++ {
		if _, err := s.Generate(context.Background(), "prompt number "+string(rune('a'+i)), i%2 == 0); err != nil {
			t.Fatalf("Generate: %v", err)
		}
	}
	hist, err := s.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != TextHistoryCap {
		t.Fatalf("len = %d", len(hist))
	}
	if hist[0].Prompt != "prompt number v" || hist[0].Timestamp <= hist[1].Timestamp {
		t.Fatalf("newest first expected, got %q", hist[0].Prompt)
	}
	if len(hist[0].Sources) != 1 {
		t.Fatalf("sources = %+v", hist[0].Sources)
	}

	if err := s.ClearHistory(); err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	hist, _ = s.History()
	if len(hist) != 0 {
		t.Fatalf("history after clear = %d", len(hist))
	}
}

func TestTextStudio_ErrorNotSaved(t *testing.T) {
	gen := &fakeGen{textErr: core.NewRateLimitError("slow down", 5)}
	s := NewTextStudio(gen, openLocal(t))
	if _, err := s.Generate(context.Background(), "hi", false); err == nil {
		t.Fatal("expected error")
	}
	hist, _ := s.History()
	if len(hist) != 0 {
		t.Fatalf("failed generation saved: %+v", hist)
	}
}

func TestTemplates(t *testing.T) {
	ids := []string{}
	for _, tpl := range Templates() {
		ids = append(ids, tpl.ID)
	}
	if strings.Join(ids, ",") != "summary,blog,marketing,email" {
		t.Fatalf("templates = %v", ids)
	}
}

func TestImageStudio_StyleAndModel(t *testing.T) {
	gen := &fakeGen{}
	assets := &memAssets{}
	s := NewImageStudio(gen, assets, openLocal(t), WithClock(stepClock(epoch)))

	item, err := s.Generate(context.Background(), "a fox", "cyberpunk", true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := "a fox, cyberpunk aesthetic, neon lights, futuristic city vibes, synthwave"
	if gen.imagePrompts[0] != want || item.Prompt != want {
		t.Fatalf("prompt = %q", gen.imagePrompts[0])
	}
	if gen.imageModels[0] != gemini.HighResImageModel {
		t.Fatalf("model = %q", gen.imageModels[0])
	}
	if item.ImageURL != "https://cdn.test/images/"+item.ID+".png" {
		t.Fatalf("url = %q", item.ImageURL)
	}
	if string(assets.items["images/"+item.ID+".png"]) != "hello" {
		t.Fatal("image bytes not stored")
	}

	if _, err := s.Generate(context.Background(), "a fox", "", false); err != nil {
		t.Fatalf("Generate default: %v", err)
	}
	if gen.imagePrompts[1] != "a fox" || gen.imageModels[1] != gemini.ImageModel {
		t.Fatalf("default style prompt=%q model=%q", gen.imagePrompts[1], gen.imageModels[1])
	}

	if _, err := s.Generate(context.Background(), "a fox", "oil", false); err == nil {
		t.Fatal("expected unknown style error")
	}
	if _, err := s.Generate(context.Background(), "", "none", false); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("err = %v", err)
	}
}

func TestStudios_SameInstantIDsAreDistinct(t *testing.T) {
	frozen := func() time.Time { return epoch }
	gen := &fakeGen{}
	assets := &memAssets{}
	text := NewTextStudio(gen, openLocal(t), WithClock(frozen))
	img := NewImageStudio(gen, assets, openLocal(t), WithClock(frozen))

	seen := map[string]bool{}
	for range 3 {
		ti, err := text.Generate(context.Background(), "p", false)
		if err != nil {
			t.Fatalf("text Generate: %v", err)
		}
		ii, err := img.Generate(context.Background(), "p", "none", false)
		if err != nil {
			t.Fatalf("image Generate: %v", err)
		}
		for _, id := range []string{ti.ID, ii.ID} {
			if id == "" || seen[id] {
				t.Fatalf("duplicate or empty id %q", id)
			}
			seen[id] = true
		}
	}
	if len(assets.items) != 3 {
		t.Fatalf("stored images = %d, want 3", len(assets.items))
	}
}

func TestImageStudio_HistoryCap(t *testing.T) {
	s := NewImageStudio(&fakeGen{}, nil, openLocal(t), WithClock(stepClock(epoch)))
	for i := 0; i < ImageHistoryCap+3; i++ {
		if _, err := s.Generate(context.Background(), "p", "none", false); err != nil {
			t.Fatalf("Generate: %v", err)
		}
	}
	hist, _ := s.History()
	if len(hist) != ImageHistoryCap {
		t.Fatalf("len = %d", len(hist))
	}
	if !strings.HasPrefix(hist[0].ImageURL, "data:image/png;base64,") {
		t.Fatalf("without assets the data URL is kept, got %q", hist[0].ImageURL)
	}
}
