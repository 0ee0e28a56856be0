package zenith

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vango-go/zenith/pkg/core"
	"github.com/vango-go/zenith/pkg/core/types"
)

func TestText_PostsPrompt(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/text" {
			t.Errorf("request=%s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(types.TextHistoryItem{ID: "1", Text: "copy"})
	}))
	defer server.Close()

	item, err := NewClient(server.URL).Text(context.Background(), "launch", true)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if item.Text != "copy" || got["prompt"] != "launch" || got["useSearch"] != true {
		t.Fatalf("item=%+v got=%v", item, got)
	}
}

func TestEnqueueVideo_EncodesAudioAndPreset(t *testing.T) {
	var got struct {
		Prompt string `json:"prompt"`
		Preset string `json:"preset"`
		Audio  struct {
			DataB64  string `json:"data_b64"`
			MIMEType string `json:"mime_type"`
		} `json:"audio"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"v1","status":"queued"}`))
	}))
	defer server.Close()

	id, err := NewClient(server.URL).EnqueueVideo(context.Background(),
		types.VideoRequest{Prompt: "boat"},
		VideoOptions{Preset: "tiktok", Audio: []byte("mp3"), AudioMIMEType: "audio/mpeg"})
	if err != nil {
		t.Fatalf("EnqueueVideo: %v", err)
	}
	if id != "v1" || got.Prompt != "boat" || got.Preset != "tiktok" {
		t.Fatalf("id=%q got=%+v", id, got)
	}
	if got.Audio.DataB64 != base64.StdEncoding.EncodeToString([]byte("mp3")) || got.Audio.MIMEType != "audio/mpeg" {
		t.Fatalf("audio=%+v", got.Audio)
	}
}

func TestWaitVideo_PollsUntilDone(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/video/v1" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if polls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"id":"v1","status":"processing","progress":40}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"v1","status":"completed","progress":100,"videoUrl":"https://cdn/v1.mp4"}`))
	}))
	defer server.Close()

	task, err := NewClient(server.URL).WaitVideo(context.Background(), "v1", time.Millisecond)
	if err != nil {
		t.Fatalf("WaitVideo: %v", err)
	}
	if !task.Done() || task.VideoURL != "https://cdn/v1.mp4" || polls.Load() != 3 {
		t.Fatalf("task=%+v polls=%d", task, polls.Load())
	}
}

func TestVideoTask_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"not_found_error","message":"video task not found"}}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).VideoTask(context.Background(), "nope")
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrNotFound {
		t.Fatalf("err=%v", err)
	}
}

func TestHistory_QueryParameters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("uid") != "u1" {
			t.Errorf("uid=%q", q.Get("uid"))
		}
		if q.Has("q") {
			_, _ = w.Write([]byte(`{"items":[{"id":"2","tab":"image","prompt":"neon city","timestamp":2}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"1","tab":"text","prompt":"a","timestamp":1},{"id":"2","tab":"image","prompt":"neon city","timestamp":2}]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	all, err := c.History(context.Background(), "u1", "")
	if err != nil || len(all) != 2 {
		t.Fatalf("all=%+v err=%v", all, err)
	}
	found, err := c.History(context.Background(), "u1", "neon")
	if err != nil || len(found) != 1 || found[0].Tab != types.TabImage {
		t.Fatalf("found=%+v err=%v", found, err)
	}
}

func TestCampaigns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"campaigns":[{"id":"c1","userId":%q,"goal":"launch","createdAt":"2026-01-02T03:04:05Z"}]}`, r.URL.Query().Get("uid"))
	}))
	defer server.Close()

	list, err := NewClient(server.URL).Campaigns(context.Background(), "u7")
	if err != nil {
		t.Fatalf("Campaigns: %v", err)
	}
	if len(list) != 1 || list[0].UserID != "u7" || list[0].CreatedAt.Year() != 2026 {
		t.Fatalf("list=%+v", list)
	}
}

func TestOrchestrate_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("accept=%q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, s := range []string{"narrative", "visual", "temporal", "complete"} {
			_, _ = fmt.Fprintf(w, "event: stage\ndata: {\"stage\":%q}\n\n", s)
		}
		_, _ = fmt.Fprint(w, "event: result\ndata: {\"goal\":\"g\",\"text\":\"story\",\"campaignId\":\"c1\"}\n\n")
	}))
	defer server.Close()

	var stages []string
	res, err := NewClient(server.URL).Orchestrate(context.Background(), "u1", "g", false, func(s string) {
		stages = append(stages, s)
	})
	if err != nil {
		t.Fatalf("Orchestrate: %v", err)
	}
	if res.CampaignID != "c1" || res.Text != "story" {
		t.Fatalf("res=%+v", res)
	}
	if len(stages) != 4 || stages[0] != "narrative" || stages[3] != "complete" {
		t.Fatalf("stages=%v", stages)
	}
}

func TestOrchestrate_StreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "event: stage\ndata: {\"stage\":\"narrative\"}\n\n")
		_, _ = fmt.Fprint(w, "event: error\ndata: {\"error\":{\"type\":\"provider_error\",\"message\":\"video model unavailable\"}}\n\n")
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Orchestrate(context.Background(), "", "g", false, nil)
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrProvider || coreErr.Message != "video model unavailable" {
		t.Fatalf("err=%v", err)
	}
}

func TestOrchestrate_StreamWithoutResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "event: stage\ndata: {\"stage\":\"narrative\"}\n\n")
	}))
	defer server.Close()

	if _, err := NewClient(server.URL).Orchestrate(context.Background(), "", "g", false, nil); err == nil {
		t.Fatalf("expected error")
	}
}
