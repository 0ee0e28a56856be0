package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/vango-go/zenith/pkg/core"
	"github.com/vango-go/zenith/pkg/core/types"
	"github.com/vango-go/zenith/pkg/gateway/config"
	"github.com/vango-go/zenith/pkg/gateway/metrics"
	"github.com/vango-go/zenith/pkg/studio"
)

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rr
}

func TestTextHandler(t *testing.T) {
	m := metrics.New("test")
	h := TextHandler{
		Config:  config.Config{MaxBodyBytes: 1 << 10},
		Studio:  fakeTextStudio{item: types.TextHistoryItem{ID: "1", Text: "Launch plan"}},
		Metrics: m,
	}

	rr := post(h, "/v1/text", `{"prompt":"Write a launch plan","useSearch":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var item types.TextHistoryItem
	if err := json.Unmarshal(rr.Body.Bytes(), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if item.Prompt != "Write a launch plan" || item.Text != "Launch plan" {
		t.Fatalf("item=%+v", item)
	}
	if got := testutil.ToFloat64(m.GenerationsTotal.WithLabelValues("text", "ok")); got != 1 {
		t.Fatalf("generations ok=%v", got)
	}

	rr = post(h, "/v1/text", `{"prompt":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("truncated body status=%d", rr.Code)
	}

	rr = post(h, "/v1/text", `{"prompt":"`+strings.Repeat("x", 2048)+`"}`)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body status=%d", rr.Code)
	}
}

func TestTextHandler_StudioErrors(t *testing.T) {
	h := TextHandler{Studio: fakeTextStudio{err: studio.ErrEmptyPrompt}}
	rr := post(h, "/v1/text", `{"prompt":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
	if e := decodeErrorEnvelope(t, rr.Body.Bytes()); e.Type != core.ErrInvalidRequest || e.Param != "prompt" {
		t.Fatalf("error=%+v", e)
	}

	h = TextHandler{Studio: fakeTextStudio{err: errors.New("upstream detail")}}
	rr = post(h, "/v1/text", `{"prompt":"x"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "upstream detail") {
		t.Fatalf("internal detail leaked: %s", rr.Body.String())
	}
}

func TestTextHandler_PromptBudget(t *testing.T) {
	h := TextHandler{
		Config: config.Config{MaxPromptBytes: 4},
		Studio: fakeTextStudio{item: types.TextHistoryItem{ID: "1"}},
	}
	rr := post(h, "/v1/text", `{"prompt":"too long"}`)
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), `"param":"prompt"`) {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestImageHandler(t *testing.T) {
	fake := &fakeImageStudio{}
	h := ImageHandler{Studio: fake}

	rr := post(h, "/v1/image", `{"prompt":"a lighthouse","style":"watercolor","highRes":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if fake.style != "watercolor" || !fake.highRes {
		t.Fatalf("style=%q highRes=%v", fake.style, fake.highRes)
	}
	if !strings.Contains(rr.Body.String(), `"imageUrl":"https://cdn.example/images/img1.png"`) {
		t.Fatalf("body=%s", rr.Body.String())
	}
}

func videoMux(h VideoHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/video", h)
	mux.Handle("GET /v1/video", h)
	mux.Handle("GET /v1/video/{id}", h)
	return mux
}

func TestVideoHandler_EnqueueWithPresetAndAudio(t *testing.T) {
	q := newFakeQueue()
	m := metrics.New("test")
	mux := videoMux(VideoHandler{Queue: q, Metrics: m})

	audio := base64.StdEncoding.EncodeToString([]byte("ID3-track"))
	rr := post(mux, "/v1/video", `{"prompt":"neon city","style":"Animated","preset":"tiktok","audio":{"data_b64":"`+audio+`","mime_type":"audio/wav"}}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var got VideoEnqueued
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != "task-a" || got.Status != studio.TaskQueued {
		t.Fatalf("enqueued=%+v", got)
	}

	req := q.reqs[0]
	if req.AspectRatio != types.AspectPortrait || req.Resolution != types.Resolution1080p || req.Style != "Animated" {
		t.Fatalf("request=%+v", req)
	}
	if a := q.audio[0]; a == nil || string(a.Data) != "ID3-track" || a.MIMEType != "audio/wav" {
		t.Fatalf("audio=%+v", a)
	}
	if got := testutil.ToFloat64(m.VideoQueueDepth); got != 1 {
		t.Fatalf("queue depth=%v", got)
	}
}

func TestVideoHandler_Rejections(t *testing.T) {
	mux := videoMux(VideoHandler{Config: config.Config{MaxPromptBytes: 16, MaxAudioBytes: 3}, Queue: newFakeQueue()})

	cases := []struct {
		name string
		body string
	}{
		{"bad base64", `{"prompt":"x","audio":{"data_b64":"***"}}`},
		{"audio too large", `{"prompt":"x","audio":{"data_b64":"YWJjZA=="}}`},
		{"prompt too large", `{"prompt":"a prompt well over sixteen bytes"}`},
		{"unknown preset", `{"prompt":"x","preset":"myspace"}`},
		{"empty", `{"prompt":""}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := post(mux, "/v1/video", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestVideoHandler_TaskLookup(t *testing.T) {
	q := newFakeQueue()
	mux := videoMux(VideoHandler{Queue: q})
	post(mux, "/v1/video", `{"prompt":"waves"}`)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/video/task-a", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"queued"`) {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/video/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing status=%d", rr.Code)
	}
	if e := decodeErrorEnvelope(t, rr.Body.Bytes()); e.Type != core.ErrNotFound {
		t.Fatalf("error=%+v", e)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/video", nil))
	var list struct {
		Tasks []studio.RenderTask `json:"tasks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil || len(list.Tasks) != 1 {
		t.Fatalf("list=%s err=%v", rr.Body.String(), err)
	}
}

func TestOrchestrateHandler(t *testing.T) {
	runner := &fakeRunner{res: studio.OrchestrationResult{Text: "brief", ImageURL: "img", VideoURL: "vid", CampaignID: "c1"}}
	h := OrchestrateHandler{Runner: runner}

	rr := post(h, "/v1/orchestrate", `{"uid":"u1","goal":"Launch an eco sneaker"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var res studio.OrchestrationResult
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Goal != "Launch an eco sneaker" || res.CampaignID != "c1" || runner.uid != "u1" {
		t.Fatalf("res=%+v uid=%q", res, runner.uid)
	}

	runner.err = core.NewRateLimitError("slow down", 7)
	rr = post(h, "/v1/orchestrate", `{"goal":"x"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestOrchestrateHandler_StreamsStages(t *testing.T) {
	runner := &fakeRunner{res: studio.OrchestrationResult{CampaignID: "c1"}}
	h := OrchestrateHandler{Runner: runner}

	req := httptest.NewRequest(http.MethodPost, "/v1/orchestrate", strings.NewReader(`{"goal":"x"}`))
	req.Header.Set("Accept", "text/event-stream")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type=%q", ct)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"event: stage\ndata: {\"stage\":\"narrative\"}",
		"event: stage\ndata: {\"stage\":\"visual\"}",
		"event: result\ndata: ",
		`"campaignId":"c1"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in %q", want, body)
		}
	}

	runner.err = core.NewRateLimitError("slow down", 7)
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/orchestrate", strings.NewReader(`{"goal":"x"}`))
	req.Header.Set("Accept", "text/event-stream")
	h.ServeHTTP(rr, req)
	if !strings.Contains(rr.Body.String(), "event: error\ndata: {\"error\":{\"type\":\"rate_limit_error\"") {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestCampaignsHandler_EmptyIsArray(t *testing.T) {
	rr := httptest.NewRecorder()
	CampaignsHandler{Campaigns: fakeCampaigns{}}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/campaigns?uid=u1", nil))
	if got := strings.TrimSpace(rr.Body.String()); got != `{"campaigns":[]}` {
		t.Fatalf("body=%s", got)
	}
}

func TestHistoryHandler_AllAndSearch(t *testing.T) {
	hist := &fakeHistory{all: []types.HistoryItem{
		{ID: "2", Tab: types.TabImage, Prompt: "red fox", Timestamp: 2},
		{ID: "1", Tab: types.TabText, Prompt: "fox facts", Timestamp: 1},
	}}
	h := HistoryHandler{History: hist}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history", nil))
	var all struct {
		Items []types.HistoryItem `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &all); err != nil || len(all.Items) != 2 {
		t.Fatalf("all=%s err=%v", rr.Body.String(), err)
	}
	if len(hist.queries) != 0 {
		t.Fatalf("listing should not search")
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history?q=fox", nil))
	if !strings.Contains(rr.Body.String(), `"id":"2"`) || hist.queries[0] != "fox" {
		t.Fatalf("search=%s queries=%v", rr.Body.String(), hist.queries)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history?q=", nil))
	if got := strings.TrimSpace(rr.Body.String()); got != `{"items":[]}` {
		t.Fatalf("blank search=%s", got)
	}
}
