package handlers

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/zenith/pkg/core"
	"github.com/vango-go/zenith/pkg/core/types"
	"github.com/vango-go/zenith/pkg/gateway/apierror"
	"github.com/vango-go/zenith/pkg/gateway/config"
	"github.com/vango-go/zenith/pkg/gateway/limits"
	"github.com/vango-go/zenith/pkg/gateway/metrics"
	"github.com/vango-go/zenith/pkg/gateway/sse"
	"github.com/vango-go/zenith/pkg/studio"
)

// TextStudio generates and records text.
type TextStudio interface {
	Generate(ctx context.Context, prompt string, useSearch bool) (types.TextHistoryItem, error)
}

// ImageStudio generates and records images.
type ImageStudio interface {
	Generate(ctx context.Context, prompt, styleID string, highRes bool) (types.ImageHistoryItem, error)
}

// VideoQueue accepts render tasks and reports their state.
type VideoQueue interface {
	Enqueue(req types.VideoRequest, audio *studio.AudioInput) (string, error)
	Task(id string) (studio.RenderTask, bool)
	Tasks() []studio.RenderTask
}

// CampaignRunner runs the four-stage campaign pipeline, reporting each stage
// as it starts.
type CampaignRunner interface {
	RunWithProgress(ctx context.Context, userID, goal string, useSearch bool, onStage func(studio.Stage)) (studio.OrchestrationResult, error)
}

// CampaignLister lists saved campaigns.
type CampaignLister interface {
	List(ctx context.Context, userID string) ([]types.Campaign, error)
}

// HistorySearcher aggregates studio history.
type HistorySearcher interface {
	All(ctx context.Context, userID string) ([]types.HistoryItem, error)
	Search(ctx context.Context, userID, query string) ([]types.HistoryItem, error)
}

type TextRequest struct {
	Prompt    string `json:"prompt"`
	UseSearch bool   `json:"useSearch"`
}

type TextHandler struct {
	Config  config.Config
	Studio  TextStudio
	Metrics *metrics.Metrics
}

func (h TextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := limits.ValidatePrompt("prompt", req.Prompt, h.Config); err != nil {
		writeError(w, r, err)
		return
	}
	start := time.Now()
	item, err := h.Studio.Generate(r.Context(), req.Prompt, req.UseSearch)
	h.Metrics.RecordGeneration("text", err, time.Since(start))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type ImageRequest struct {
	Prompt  string `json:"prompt"`
	Style   string `json:"style"`
	HighRes bool   `json:"highRes"`
}

type ImageHandler struct {
	Config  config.Config
	Studio  ImageStudio
	Metrics *metrics.Metrics
}

func (h ImageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req ImageRequest
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := limits.ValidatePrompt("prompt", req.Prompt, h.Config); err != nil {
		writeError(w, r, err)
		return
	}
	start := time.Now()
	item, err := h.Studio.Generate(r.Context(), req.Prompt, req.Style, req.HighRes)
	h.Metrics.RecordGeneration("image", err, time.Since(start))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// VideoAudio is an optional base64 soundtrack attached to a render.
type VideoAudio struct {
	DataB64  string `json:"data_b64"`
	MIMEType string `json:"mime_type"`
}

type VideoRequest struct {
	types.VideoRequest
	Preset string      `json:"preset,omitempty"`
	Audio  *VideoAudio `json:"audio,omitempty"`
}

type VideoEnqueued struct {
	ID     string            `json:"id"`
	Status studio.TaskStatus `json:"status"`
}

// VideoHandler queues renders (POST /v1/video) and reports tasks
// (GET /v1/video, GET /v1/video/{id}).
type VideoHandler struct {
	Config  config.Config
	Queue   VideoQueue
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (h VideoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost:
		h.enqueue(w, r)
	case r.PathValue("id") != "":
		h.task(w, r, r.PathValue("id"))
	default:
		tasks := h.Queue.Tasks()
		h.recordDepth(tasks)
		writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
	}
}

func (h VideoHandler) enqueue(w http.ResponseWriter, r *http.Request) {
	var req VideoRequest
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := limits.ValidatePrompt("prompt", req.Prompt, h.Config); err != nil {
		writeError(w, r, err)
		return
	}
	render := req.VideoRequest
	if p := strings.TrimSpace(req.Preset); p != "" {
		var err error
		if render, err = studio.ApplyPreset(render, p); err != nil {
			writeError(w, r, err)
			return
		}
	}

	var audio *studio.AudioInput
	if req.Audio != nil && req.Audio.DataB64 != "" {
		if err := limits.ValidateAudioB64("audio.data_b64", req.Audio.DataB64, h.Config); err != nil {
			writeError(w, r, err)
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.Audio.DataB64)
		if err != nil {
			writeError(w, r, core.NewInvalidRequestErrorWithParam("audio.data_b64 is not valid base64", "audio.data_b64"))
			return
		}
		mimeType := req.Audio.MIMEType
		if mimeType == "" {
			mimeType = "audio/mpeg"
		}
		audio = &studio.AudioInput{Data: data, MIMEType: mimeType}
	}

	id, err := h.Queue.Enqueue(render, audio)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("video render queued", "request_id", requestIDFromContext(r.Context()), "task_id", id, "has_audio", audio != nil)
	}
	h.recordDepth(h.Queue.Tasks())
	writeJSON(w, http.StatusAccepted, VideoEnqueued{ID: id, Status: studio.TaskQueued})
}

func (h VideoHandler) task(w http.ResponseWriter, r *http.Request, id string) {
	task, ok := h.Queue.Task(id)
	if !ok {
		writeError(w, r, core.NewNotFoundError("video task not found"))
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h VideoHandler) recordDepth(tasks []studio.RenderTask) {
	pending := 0
	for _, t := range tasks {
		if !t.Status.Done() {
			pending++
		}
	}
	h.Metrics.SetVideoQueueDepth(pending)
}

type OrchestrateRequest struct {
	UID       string `json:"uid"`
	Goal      string `json:"goal"`
	UseSearch bool   `json:"useSearch"`
}

type OrchestrateHandler struct {
	Config  config.Config
	Runner  CampaignRunner
	Metrics *metrics.Metrics
}

func (h OrchestrateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req OrchestrateRequest
	if err := decodeJSON(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := limits.ValidatePrompt("goal", req.Goal, h.Config); err != nil {
		writeError(w, r, err)
		return
	}
	if sse.Wants(r) {
		if sw, err := sse.New(w); err == nil {
			h.stream(sw, r, req)
			return
		}
	}

	start := time.Now()
	res, err := h.Runner.RunWithProgress(r.Context(), req.UID, req.Goal, req.UseSearch, nil)
	h.Metrics.RecordGeneration("orchestrate", err, time.Since(start))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// stream emits a "stage" event per pipeline stage, then "result" or "error".
func (h OrchestrateHandler) stream(sw *sse.Writer, r *http.Request, req OrchestrateRequest) {
	start := time.Now()
	res, err := h.Runner.RunWithProgress(r.Context(), req.UID, req.Goal, req.UseSearch, func(s studio.Stage) {
		_ = sw.Send("stage", map[string]string{"stage": s.String()})
	})
	h.Metrics.RecordGeneration("orchestrate", err, time.Since(start))
	if err != nil {
		coreErr, _ := apierror.FromError(err, requestIDFromContext(r.Context()))
		_ = sw.Send("error", apierror.Envelope{Error: coreErr})
		return
	}
	_ = sw.Send("result", res)
}

type CampaignsHandler struct {
	Campaigns CampaignLister
}

func (h CampaignsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	list, err := h.Campaigns.List(r.Context(), r.URL.Query().Get("uid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []types.Campaign{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"campaigns": list})
}

// HistoryHandler lists every studio item, or searches them when q is given.
type HistoryHandler struct {
	History HistorySearcher
}

func (h HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uid := q.Get("uid")
	var (
		items []types.HistoryItem
		err   error
	)
	if q.Has("q") {
		items, err = h.History.Search(r.Context(), uid, q.Get("q"))
	} else {
		items, err = h.History.All(r.Context(), uid)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []types.HistoryItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
