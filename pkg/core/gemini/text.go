package gemini

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/zenith/pkg/core/types"
)

// AudioAnalysisFallback is returned when the analysis model replies with no text.
const AudioAnalysisFallback = "Cinematic visual matching the audio rhythm."

const audioAnalysisInstruction = `Analyze this audio sample for its emotional mood, rhythmic tempo, and atmospheric qualities.
Based on this analysis, describe a highly detailed cinematic visual scene that perfectly synchronizes with the sound's pacing and character.
Focus on color palette, lighting transitions, specific camera motions (e.g., fast cuts for high tempo, slow panning for low tempo), and the overall aesthetic energy.
Respond with ONLY the descriptive visual prompt for video generation.`

// GenerateText runs prompt against the text model, optionally grounded with
// Google Search.
func (c *Client) GenerateText(ctx context.Context, prompt string, useSearch bool) (types.TextResult, error) {
	cfg := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(ThinkingBudget)},
	}
	if useSearch {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	resp, err := c.genai.Models.GenerateContent(ctx, TextModel, genai.Text(prompt), cfg)
	if err != nil {
		return types.TextResult{}, mapError(err)
	}
	return textResult(resp), nil
}

func textResult(resp *genai.GenerateContentResponse) types.TextResult {
	out := types.TextResult{Text: resp.Text(), Sources: []types.GroundingSource{}}
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return out
	}
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		title := chunk.Web.Title
		if title == "" {
			title = "Source"
		}
		out.Sources = append(out.Sources, types.GroundingSource{Title: title, URI: chunk.Web.URI})
	}
	return out
}

// AnalyzeAudioToVisualPrompt describes a video scene that matches the mood
// and tempo of audio.
func (c *Client) AnalyzeAudioToVisualPrompt(ctx context.Context, audio []byte, mimeType string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(audio, mimeType),
			genai.NewPartFromText(audioAnalysisInstruction),
		}, genai.RoleUser),
	}
	resp, err := c.genai.Models.GenerateContent(ctx, AudioAnalysisModel, contents, nil)
	if err != nil {
		return "", mapError(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return AudioAnalysisFallback, nil
	}
	return text, nil
}

// Chat sends message as the final user turn after history and returns the
// model reply. An empty model uses ChatModel.
func (c *Client) Chat(ctx context.Context, model string, history []types.ChatMessage, message string) (string, error) {
	if model == "" {
		model = ChatModel
	}
	resp, err := c.genai.Models.GenerateContent(ctx, model, chatContents(history, message), nil)
	if err != nil {
		return "", mapError(err)
	}
	return resp.Text(), nil
}

func chatContents(history []types.ChatMessage, message string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		role := genai.Role(genai.RoleUser)
		if m.Role == types.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}
	return append(contents, genai.NewContentFromText(message, genai.RoleUser))
}
