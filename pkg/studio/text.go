package studio

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/vango-go/zenith/pkg/core/types"
	"github.com/vango-go/zenith/pkg/store"
)

// Template is a starter prompt offered by the text studio.
type Template struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

var textTemplates = []Template{
	{ID: "summary", Label: "Summarize Article", Text: "Please summarize the following article into 5 key bullet points, highlighting the most important findings:\n\n[Paste Content Here]"},
	{ID: "blog", Label: "Blog Outline", Text: `Create a comprehensive blog post outline for the topic: "[Insert Topic]". Include an introduction, 3-5 main sections with sub-points, and a conclusion with a call to action.`},
	{ID: "marketing", Label: "Marketing Copy", Text: "Write three catchy marketing slogans and a 50-word product description for a new [Insert Product Name] that solves [Insert Problem]. Target audience: [Insert Audience]."},
	{ID: "email", Label: "Professional Email", Text: "Draft a professional email to [Recipient Name] regarding [Topic]. The tone should be [Polite/Urgent/Formal] and the goal is to [Goal]."},
}

// Templates returns the text studio's starter prompts.
func Templates() []Template {
	return append([]Template(nil), textTemplates...)
}

// TextStudio generates grounded text and keeps a history of results.
type TextStudio struct {
	gen   TextGenerator
	local *store.Local
	opts  options
}

// NewTextStudio creates a text studio. local may be nil to disable history.
func NewTextStudio(gen TextGenerator, local *store.Local, opts ...Option) *TextStudio {
	return &TextStudio{gen: gen, local: local, opts: buildOptions(opts)}
}

// Generate runs prompt and records the result in history.
func (s *TextStudio) Generate(ctx context.Context, prompt string, useSearch bool) (types.TextHistoryItem, error) {
	if strings.TrimSpace(prompt) == "" {
		return types.TextHistoryItem{}, ErrEmptyPrompt
	}
	res, err := s.gen.GenerateText(ctx, prompt, useSearch)
	if err != nil {
		return types.TextHistoryItem{}, err
	}

	now := s.opts.now()
	item := types.TextHistoryItem{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Text:      res.Text,
		Sources:   res.Sources,
		Timestamp: now.UnixMilli(),
	}
	if item.Sources == nil {
		item.Sources = []types.GroundingSource{}
	}
	if s.local != nil {
		if err := s.local.PushFront(TextHistoryKey, item, TextHistoryCap); err != nil {
			s.opts.logger.Warn("text history save failed", "error", err)
		}
	}
	return item, nil
}

// History returns saved generations, newest first.
func (s *TextStudio) History() ([]types.TextHistoryItem, error) {
	if s.local == nil {
		return []types.TextHistoryItem{}, nil
	}
	return store.ListOf[types.TextHistoryItem](s.local, TextHistoryKey)
}

// ClearHistory removes every saved generation.
func (s *TextStudio) ClearHistory() error {
	if s.local == nil {
		return nil
	}
	return s.local.Delete(TextHistoryKey)
}
