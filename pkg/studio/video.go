package studio

import (
	"context"
	"encoding/base64"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/zenith/pkg/core"
	"github.com/vango-go/zenith/pkg/core/types"
	"github.com/vango-go/zenith/pkg/store"
)

// DefaultProgressTick is how often a rendering task gains progress.
const DefaultProgressTick = 6 * time.Second

// Progress milestones of a render task.
const (
	progressStarted  = 2
	progressAnalyzed = 10
	progressStep     = 3
	progressCeiling  = 98
	progressDone     = 100
)

// ErrStudioClosed is returned by Enqueue after Close.
var ErrStudioClosed = errors.New("studio: video studio closed")

// TaskStatus is the lifecycle state of a render task.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Done reports whether the task reached a terminal state.
func (s TaskStatus) Done() bool {
	return s == TaskCompleted || s == TaskFailed
}

// VideoStyles are the accepted render styles.
var VideoStyles = []string{"Cinematic", "Animated", "Documentary", "Experimental"}

// Preset locks aspect ratio and resolution for a target platform.
type Preset struct {
	ID          string            `json:"id"`
	Label       string            `json:"label"`
	AspectRatio types.AspectRatio `json:"aspectRatio"`
	Resolution  types.Resolution  `json:"resolution"`
}

// Presets are the platform presets.
var Presets = []Preset{
	{ID: "youtube", Label: "YouTube", AspectRatio: types.AspectLandscape, Resolution: types.Resolution1080p},
	{ID: "instagram", Label: "Instagram", AspectRatio: types.AspectPortrait, Resolution: types.Resolution1080p},
	{ID: "tiktok", Label: "TikTok", AspectRatio: types.AspectPortrait, Resolution: types.Resolution1080p},
}

// ApplyPreset returns req with the preset's aspect ratio and resolution.
func ApplyPreset(req types.VideoRequest, id string) (types.VideoRequest, error) {
	for _, p := range Presets {
		if p.ID == id {
			req.AspectRatio = p.AspectRatio
			req.Resolution = p.Resolution
			return req, nil
		}
	}
	return req, core.NewInvalidRequestErrorWithParam("unknown preset "+id, "preset")
}

// AudioInput is an optional soundtrack that drives the visual prompt.
type AudioInput struct {
	Data     []byte
	MIMEType string
}

// RenderTask is a snapshot of a queued render.
type RenderTask struct {
	ID        string             `json:"id"`
	Request   types.VideoRequest `json:"request"`
	HasAudio  bool               `json:"hasAudio"`
	Status    TaskStatus         `json:"status"`
	Progress  int                `json:"progress"`
	Prompt    string             `json:"finalPrompt,omitempty"`
	VideoURL  string             `json:"videoUrl,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

type renderTask struct {
	RenderTask
	audio *AudioInput
	done  chan struct{}
}

// VideoStudio renders queued video requests one at a time in FIFO order.
type VideoStudio struct {
	gen      VideoGenerator
	analyzer AudioAnalyzer
	assets   store.AssetStore
	local    *store.Local
	opts     options

	mu      sync.Mutex
	tasks   []*renderTask
	byID    map[string]*renderTask
	pending []*renderTask
	closed  bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewVideoStudio creates a video studio and starts its worker. analyzer is
// required only for tasks with audio; assets and local may be nil.
func NewVideoStudio(gen VideoGenerator, analyzer AudioAnalyzer, assets store.AssetStore, local *store.Local, opts ...Option) *VideoStudio {
	ctx, cancel := context.WithCancel(context.Background())
	s := &VideoStudio{
		gen:      gen,
		analyzer: analyzer,
		assets:   assets,
		local:    local,
		opts:     buildOptions(opts),
		byID:     make(map[string]*renderTask),
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	if s.opts.tick <= 0 {
		s.opts.tick = DefaultProgressTick
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

// Enqueue validates req and appends it to the render queue.
func (s *VideoStudio) Enqueue(req types.VideoRequest, audio *AudioInput) (string, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return "", core.NewInvalidRequestError(err.Error())
	}
	if !slices.Contains(VideoStyles, req.Style) {
		return "", core.NewInvalidRequestErrorWithParam("unknown video style "+req.Style, "style")
	}
	if audio != nil && len(audio.Data) == 0 {
		audio = nil
	}
	if req.Prompt == "" && audio == nil {
		return "", ErrEmptyPrompt
	}

	t := &renderTask{
		RenderTask: RenderTask{
			ID:        uuid.NewString(),
			Request:   req,
			HasAudio:  audio != nil,
			Status:    TaskQueued,
			CreatedAt: s.opts.now(),
		},
		audio: audio,
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrStudioClosed
	}
	s.tasks = append(s.tasks, t)
	s.byID[t.ID] = t
	s.pending = append(s.pending, t)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.opts.logger.Info("video task queued", "task_id", t.ID, "style", req.Style, "audio", t.HasAudio)
	return t.ID, nil
}

// Tasks returns snapshots of every task in submission order.
func (s *VideoStudio) Tasks() []RenderTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RenderTask, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.RenderTask
	}
	return out
}

// Task returns a snapshot of one task.
func (s *VideoStudio) Task(id string) (RenderTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return RenderTask{}, false
	}
	return t.RenderTask, true
}

// Wait blocks until the task finishes or ctx is done.
func (s *VideoStudio) Wait(ctx context.Context, id string) (RenderTask, error) {
	s.mu.Lock()
	t, ok := s.byID[id]
	s.mu.Unlock()
	if !ok {
		return RenderTask{}, core.NewNotFoundError("video task not found: " + id)
	}
	select {
	case <-t.done:
		task, _ := s.Task(id)
		return task, nil
	case <-ctx.Done():
		return RenderTask{}, ctx.Err()
	}
}

// History returns completed renders, newest first.
func (s *VideoStudio) History() ([]types.VideoHistoryItem, error) {
	if s.local == nil {
		return []types.VideoHistoryItem{}, nil
	}
	return store.ListOf[types.VideoHistoryItem](s.local, VideoHistoryKey)
}

// ClearHistory removes every saved render.
func (s *VideoStudio) ClearHistory() error {
	if s.local == nil {
		return nil
	}
	return s.local.Delete(VideoHistoryKey)
}

// Close stops the worker. The task in flight and any queued tasks fail.
func (s *VideoStudio) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, t := range pending {
		s.finish(t, TaskFailed, 0, "", ErrStudioClosed)
	}
	return nil
}

func (s *VideoStudio) worker() {
	defer s.wg.Done()
	for {
		t := s.next()
		if t == nil {
			select {
			case <-s.wake:
				continue
			case <-s.ctx.Done():
				return
			}
		}
		s.process(t)
		if s.ctx.Err() != nil {
			return
		}
	}
}

func (s *VideoStudio) next() *renderTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 || s.ctx.Err() != nil {
		return nil
	}
	t := s.pending[0]
	s.pending = s.pending[1:]
	return t
}

func (s *VideoStudio) process(t *renderTask) {
	ctx := s.ctx
	logger := s.opts.logger.With("task_id", t.ID)
	s.update(t, TaskProcessing, progressStarted)

	req := t.Request
	if t.audio != nil {
		s.update(t, TaskProcessing, progressAnalyzed)
		if s.analyzer == nil {
			s.finish(t, TaskFailed, 0, "", errors.New("studio: no audio analyzer configured"))
			return
		}
		visual, err := s.analyzer.AnalyzeAudioToVisualPrompt(ctx, t.audio.Data, t.audio.MIMEType)
		if err != nil {
			logger.Error("audio analysis failed", "error", err)
			s.finish(t, TaskFailed, 0, "", err)
			return
		}
		if req.Prompt != "" {
			req.Prompt = req.Prompt + ". " + visual
		} else {
			req.Prompt = visual
		}
	}
	s.mu.Lock()
	t.Prompt = req.Prompt
	s.mu.Unlock()

	stopTicker := s.startProgress(t)
	data, err := s.gen.GenerateVideo(ctx, req)
	stopTicker()
	if err != nil {
		logger.Error("video render failed", "error", err)
		s.finish(t, TaskFailed, 0, "", err)
		return
	}

	videoURL, err := s.storeVideo(ctx, t.ID, data)
	if err != nil {
		logger.Error("video store failed", "error", err)
		s.finish(t, TaskFailed, 0, "", err)
		return
	}
	// History is written before the task reports done so waiters see it.
	if s.local != nil {
		item := types.VideoHistoryItem{
			ID:          t.ID,
			Prompt:      req.Prompt,
			AspectRatio: req.AspectRatio,
			Resolution:  req.Resolution,
			Style:       req.Style,
			Duration:    req.DurationSeconds,
			VideoURL:    videoURL,
			Timestamp:   s.opts.now().UnixMilli(),
		}
		if err := s.local.PushFront(VideoHistoryKey, item, VideoHistoryCap); err != nil {
			logger.Warn("video history save failed", "error", err)
		}
	}
	s.finish(t, TaskCompleted, progressDone, videoURL, nil)
	logger.Info("video task completed", "bytes", len(data))
}

// startProgress advances the task by progressStep every tick, never past
// progressCeiling, until the returned func is called.
func (s *VideoStudio) startProgress(t *renderTask) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.opts.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if t.Status == TaskProcessing {
					t.Progress = min(t.Progress+progressStep, progressCeiling)
				}
				s.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

func (s *VideoStudio) storeVideo(ctx context.Context, id string, data []byte) (string, error) {
	if s.assets == nil {
		return "data:video/mp4;base64," + base64.StdEncoding.EncodeToString(data), nil
	}
	return s.assets.Put(ctx, "videos/"+id+".mp4", "video/mp4", data)
}

func (s *VideoStudio) update(t *renderTask, status TaskStatus, progress int) {
	s.mu.Lock()
	t.Status = status
	t.Progress = progress
	s.mu.Unlock()
}

func (s *VideoStudio) finish(t *renderTask, status TaskStatus, progress int, videoURL string, err error) {
	s.mu.Lock()
	if t.Status.Done() {
		s.mu.Unlock()
		return
	}
	t.Status = status
	t.Progress = progress
	t.VideoURL = videoURL
	if err != nil {
		t.Error = err.Error()
	}
	s.mu.Unlock()
	close(t.done)
}
