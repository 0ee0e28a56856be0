package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/vango-go/zenith/pkg/core"
	"github.com/vango-go/zenith/pkg/core/types"
)

// GenerateImage renders a square image and returns it as a PNG data URL.
// An empty model uses ImageModel.
func (c *Client) GenerateImage(ctx context.Context, prompt, model string) (string, error) {
	if model == "" {
		model = ImageModel
	}
	cfg := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: "1:1"},
	}
	resp, err := c.genai.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return "", mapError(err)
	}
	return imageDataURL(resp)
}

func imageDataURL(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrNoImage
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return "data:image/png;base64," + base64.StdEncoding.EncodeToString(part.InlineData.Data), nil
		}
	}
	return "", ErrNoImage
}

// VideoPrompt returns the style-enriched prompt sent to the video model.
func VideoPrompt(style, prompt string) string {
	return fmt.Sprintf("%s style video: %s. Production quality: High. Motion: Consistent and fluid.", style, prompt)
}

// GenerateVideo starts a render, polls the operation until it is done and
// downloads the first generated video.
func (c *Client) GenerateVideo(ctx context.Context, req types.VideoRequest) ([]byte, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, core.NewInvalidRequestError(err.Error())
	}

	cfg := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    string(req.AspectRatio),
		Resolution:     string(req.Resolution),
	}
	op, err := c.genai.Models.GenerateVideos(ctx, VideoModel, VideoPrompt(req.Style, req.Prompt), nil, cfg)
	if err != nil {
		return nil, mapError(err)
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		op, err = c.genai.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return nil, mapError(err)
		}
	}

	video, err := firstVideo(op)
	if err != nil {
		return nil, err
	}
	if len(video.Video.VideoBytes) > 0 {
		return video.Video.VideoBytes, nil
	}
	data, err := c.genai.Files.Download(ctx, genai.NewDownloadURIFromGeneratedVideo(video), nil)
	if err != nil {
		return nil, mapError(err)
	}
	return data, nil
}

func firstVideo(op *genai.GenerateVideosOperation) (*genai.GeneratedVideo, error) {
	if len(op.Error) > 0 {
		if msg, ok := op.Error["message"].(string); ok && msg != "" {
			return nil, mapError(errors.New(msg))
		}
		return nil, core.NewProviderError("gemini", fmt.Errorf("video operation %s failed", op.Name))
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		return nil, core.NewProviderError("gemini", errors.New("video operation returned no videos"))
	}
	v := op.Response.GeneratedVideos[0]
	if v == nil || v.Video == nil {
		return nil, core.NewProviderError("gemini", errors.New("video operation returned an empty video"))
	}
	return v, nil
}
