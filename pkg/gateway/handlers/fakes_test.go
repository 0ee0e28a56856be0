package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/vango-go/zenith/pkg/core"
	"github.com/vango-go/zenith/pkg/core/live"
	"github.com/vango-go/zenith/pkg/core/types"
	"github.com/vango-go/zenith/pkg/studio"
)

type fakeChat struct {
	reply string
	err   error

	model   string
	history []types.ChatMessage
	message string
}

func (f *fakeChat) Chat(_ context.Context, model string, history []types.ChatMessage, message string) (string, error) {
	f.model = model
	f.history = append([]types.ChatMessage(nil), history...)
	f.message = message
	return f.reply, f.err
}

type fakeMemory struct {
	mu   sync.Mutex
	msgs map[string][]types.ChatMessage
	err  error
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{msgs: make(map[string][]types.ChatMessage)}
}

func (m *fakeMemory) Load(_ context.Context, uid, sessionID string) ([]types.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]types.ChatMessage(nil), m.msgs[uid+"/"+sessionID]...), nil
}

func (m *fakeMemory) Append(_ context.Context, uid, sessionID string, msgs ...types.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	key := uid + "/" + sessionID
	m.msgs[key] = append(m.msgs[key], msgs...)
	return nil
}

func (m *fakeMemory) get(uid, sessionID string) []types.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.ChatMessage(nil), m.msgs[uid+"/"+sessionID]...)
}

type fakeTextStudio struct {
	item types.TextHistoryItem
	err  error
}

func (f fakeTextStudio) Generate(_ context.Context, prompt string, useSearch bool) (types.TextHistoryItem, error) {
	if f.err != nil {
		return types.TextHistoryItem{}, f.err
	}
	item := f.item
	item.Prompt = prompt
	return item, nil
}

type fakeImageStudio struct {
	style   string
	highRes bool
}

func (f *fakeImageStudio) Generate(_ context.Context, prompt, styleID string, highRes bool) (types.ImageHistoryItem, error) {
	f.style, f.highRes = styleID, highRes
	if prompt == "" {
		return types.ImageHistoryItem{}, studio.ErrEmptyPrompt
	}
	return types.ImageHistoryItem{ID: "img1", Prompt: prompt, ImageURL: "https://cdn.example/images/img1.png"}, nil
}

type fakeQueue struct {
	mu    sync.Mutex
	reqs  []types.VideoRequest
	audio []*studio.AudioInput
	tasks map[string]studio.RenderTask
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{tasks: make(map[string]studio.RenderTask)}
}

func (q *fakeQueue) Enqueue(req types.VideoRequest, audio *studio.AudioInput) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if req.Prompt == "" && audio == nil {
		return "", studio.ErrEmptyPrompt
	}
	q.reqs = append(q.reqs, req)
	q.audio = append(q.audio, audio)
	id := "task-" + string(rune('a'+len(q.reqs)-1))
	q.tasks[id] = studio.RenderTask{ID: id, Request: req, Status: studio.TaskQueued}
	return id, nil
}

func (q *fakeQueue) Task(id string) (studio.RenderTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	return t, ok
}

func (q *fakeQueue) Tasks() []studio.RenderTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]studio.RenderTask, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, t)
	}
	return out
}

type fakeRunner struct {
	uid string
	res studio.OrchestrationResult
	err error
}

func (f *fakeRunner) RunWithProgress(_ context.Context, userID, goal string, _ bool, onStage func(studio.Stage)) (studio.OrchestrationResult, error) {
	f.uid = userID
	if onStage != nil {
		onStage(studio.StageNarrative)
		onStage(studio.StageVisual)
	}
	if f.err != nil {
		return studio.OrchestrationResult{}, f.err
	}
	res := f.res
	res.Goal = goal
	return res, nil
}

type fakeCampaigns struct {
	list []types.Campaign
}

func (f fakeCampaigns) List(context.Context, string) ([]types.Campaign, error) {
	return f.list, nil
}

type fakeHistory struct {
	all     []types.HistoryItem
	queries []string
}

func (f *fakeHistory) All(context.Context, string) ([]types.HistoryItem, error) {
	return f.all, nil
}

func (f *fakeHistory) Search(_ context.Context, _ string, query string) ([]types.HistoryItem, error) {
	f.queries = append(f.queries, query)
	if query == "" {
		return nil, nil
	}
	return f.all[:1], nil
}

// fakeUpstream is a scripted live model connection.
type fakeUpstream struct {
	msgs   chan *live.ServerMessage
	closed chan struct{}
	once   sync.Once

	mu    sync.Mutex
	audio [][]byte
	video []string
	texts []string
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{msgs: make(chan *live.ServerMessage, 16), closed: make(chan struct{})}
}

func (f *fakeUpstream) SendAudio(pcm []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, pcm)
	return nil
}

func (f *fakeUpstream) SendVideo(frame []byte, mimeType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.video = append(f.video, mimeType)
	return nil
}

func (f *fakeUpstream) SendText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeUpstream) Receive() (*live.ServerMessage, error) {
	select {
	case msg, ok := <-f.msgs:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case <-f.closed:
		return nil, errors.New("closed")
	}
}

func (f *fakeUpstream) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeUpstream) sent() (audio, video, text int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.audio), len(f.video), len(f.texts)
}

func decodeErrorEnvelope(t *testing.T, body []byte) core.Error {
	t.Helper()
	var env struct {
		Error core.Error `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v (%s)", err, body)
	}
	return env.Error
}
