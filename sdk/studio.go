package zenith

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vango-go/zenith/pkg/core"
	"github.com/vango-go/zenith/pkg/core/types"
)

// VideoOptions are the optional parts of a render request.
type VideoOptions struct {
	Preset string
	// Audio drives the visual prompt when set.
	Audio         []byte
	AudioMIMEType string
}

// RenderTask mirrors the gateway's view of a queued video render.
type RenderTask struct {
	ID        string             `json:"id"`
	Request   types.VideoRequest `json:"request"`
	HasAudio  bool               `json:"hasAudio"`
	Status    string             `json:"status"`
	Progress  int                `json:"progress"`
	Prompt    string             `json:"finalPrompt,omitempty"`
	VideoURL  string             `json:"videoUrl,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

// Done reports whether the render has finished either way.
func (t RenderTask) Done() bool {
	return t.Status == "completed" || t.Status == "failed"
}

// OrchestrationResult is the combined output of one campaign run.
type OrchestrationResult struct {
	Goal       string `json:"goal"`
	Text       string `json:"text"`
	ImageURL   string `json:"imageUrl"`
	VideoURL   string `json:"videoUrl"`
	CampaignID string `json:"campaignId,omitempty"`
}

func (c *Client) Text(ctx context.Context, prompt string, useSearch bool) (types.TextHistoryItem, error) {
	var out types.TextHistoryItem
	err := c.do(ctx, http.MethodPost, "/v1/text", map[string]any{"prompt": prompt, "useSearch": useSearch}, &out)
	return out, err
}

func (c *Client) Image(ctx context.Context, prompt, style string, highRes bool) (types.ImageHistoryItem, error) {
	var out types.ImageHistoryItem
	err := c.do(ctx, http.MethodPost, "/v1/image", map[string]any{"prompt": prompt, "style": style, "highRes": highRes}, &out)
	return out, err
}

// EnqueueVideo queues a render and returns its task ID.
func (c *Client) EnqueueVideo(ctx context.Context, req types.VideoRequest, opts VideoOptions) (string, error) {
	payload := struct {
		types.VideoRequest
		Preset string         `json:"preset,omitempty"`
		Audio  map[string]any `json:"audio,omitempty"`
	}{VideoRequest: req, Preset: opts.Preset}
	if len(opts.Audio) > 0 {
		payload.Audio = map[string]any{
			"data_b64":  base64.StdEncoding.EncodeToString(opts.Audio),
			"mime_type": opts.AudioMIMEType,
		}
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/video", payload, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) VideoTask(ctx context.Context, id string) (RenderTask, error) {
	var out RenderTask
	err := c.do(ctx, http.MethodGet, "/v1/video/"+url.PathEscape(id), nil, &out)
	return out, err
}

// WaitVideo polls a render every interval until it is done or ctx ends.
func (c *Client) WaitVideo(ctx context.Context, id string, interval time.Duration) (RenderTask, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		task, err := c.VideoTask(ctx, id)
		if err != nil || task.Done() {
			return task, err
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) Campaigns(ctx context.Context, uid string) ([]types.Campaign, error) {
	var out struct {
		Campaigns []types.Campaign `json:"campaigns"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/campaigns?uid="+url.QueryEscape(uid), nil, &out)
	return out.Campaigns, err
}

// History lists every studio item for uid, or searches them when query is
// non-empty.
func (c *Client) History(ctx context.Context, uid, query string) ([]types.HistoryItem, error) {
	q := url.Values{"uid": {uid}}
	if query != "" {
		q.Set("q", query)
	}
	var out struct {
		Items []types.HistoryItem `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/history?"+q.Encode(), nil, &out)
	return out.Items, err
}

// Orchestrate runs a campaign and calls onStage with each stage name
// ("narrative", "visual", "temporal", "complete") as the gateway reports it.
// onStage may be nil. The call is not bounded by the default request timeout.
func (c *Client) Orchestrate(ctx context.Context, uid, goal string, useSearch bool, onStage func(stage string)) (OrchestrationResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/orchestrate", map[string]any{"uid": uid, "goal": goal, "useSearch": useSearch})
	if err != nil {
		return OrchestrationResult{}, err
	}
	req.Header.Set("Accept", "text/event-stream")
	endpoint := req.URL.String()

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return OrchestrationResult{}, &TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return OrchestrationResult{}, decodeErrorResponse(resp, endpoint, http.MethodPost)
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		var out OrchestrationResult
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return OrchestrationResult{}, &core.Error{Type: core.ErrAPI, Message: fmt.Sprintf("decode gateway response: %v", err)}
		}
		return out, nil
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	var event string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := []byte(strings.TrimPrefix(line, "data: "))
			switch event {
			case "stage":
				var s struct {
					Stage string `json:"stage"`
				}
				if json.Unmarshal(data, &s) == nil && onStage != nil {
					onStage(s.Stage)
				}
			case "result":
				var out OrchestrationResult
				if err := json.Unmarshal(data, &out); err != nil {
					return OrchestrationResult{}, &core.Error{Type: core.ErrAPI, Message: fmt.Sprintf("decode result event: %v", err)}
				}
				return out, nil
			case "error":
				var env struct {
					Error *core.Error `json:"error"`
				}
				if err := json.Unmarshal(data, &env); err != nil || env.Error == nil {
					return OrchestrationResult{}, &core.Error{Type: core.ErrAPI, Message: "malformed error event"}
				}
				return OrchestrationResult{}, env.Error
			}
		}
	}
	if err := sc.Err(); err != nil {
		return OrchestrationResult{}, &TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	return OrchestrationResult{}, &core.Error{Type: core.ErrAPI, Message: "orchestration stream ended without a result"}
}
