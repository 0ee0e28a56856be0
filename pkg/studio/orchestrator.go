package studio

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vango-go/zenith/pkg/core/gemini"
	"github.com/vango-go/zenith/pkg/core/types"
	"github.com/vango-go/zenith/pkg/store"
)

// Stage is a step of an orchestration run.
type Stage int

const (
	StageIdle Stage = iota
	StageNarrative
	StageVisual
	StageTemporal
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageNarrative:
		return "narrative"
	case StageVisual:
		return "visual"
	case StageTemporal:
		return "temporal"
	case StageComplete:
		return "complete"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// OrchestrationResult is the combined output of a run.
type OrchestrationResult struct {
	Goal       string `json:"goal"`
	Text       string `json:"text"`
	ImageURL   string `json:"imageUrl"`
	VideoURL   string `json:"videoUrl"`
	CampaignID string `json:"campaignId,omitempty"`
}

// Generator is everything an orchestration run needs.
type Generator interface {
	TextGenerator
	ImageGenerator
	VideoGenerator
}

// Orchestrator chains text, image and video generation into a campaign.
type Orchestrator struct {
	gen       Generator
	assets    store.AssetStore
	campaigns *store.Campaigns
	opts      options
}

// NewOrchestrator creates an orchestrator. assets and campaigns may be nil.
func NewOrchestrator(gen Generator, assets store.AssetStore, campaigns *store.Campaigns, opts ...Option) *Orchestrator {
	return &Orchestrator{gen: gen, assets: assets, campaigns: campaigns, opts: buildOptions(opts)}
}

// Run executes every stage and saves the result as a campaign.
func (o *Orchestrator) Run(ctx context.Context, userID, goal string, useSearch bool) (OrchestrationResult, error) {
	return o.RunWithProgress(ctx, userID, goal, useSearch, nil)
}

// RunWithProgress is Run with onStage called on every stage transition. A
// failed run reports StageIdle before returning the error.
func (o *Orchestrator) RunWithProgress(ctx context.Context, userID, goal string, useSearch bool, onStage func(Stage)) (OrchestrationResult, error) {
	if strings.TrimSpace(goal) == "" {
		return OrchestrationResult{}, ErrEmptyPrompt
	}
	report := func(s Stage) {
		if onStage != nil {
			onStage(s)
		}
	}
	logger := o.opts.logger.With("uid", userID)
	fail := func(stage Stage, err error) (OrchestrationResult, error) {
		logger.Error("orchestration failed", "stage", stage.String(), "error", err)
		report(StageIdle)
		return OrchestrationResult{}, fmt.Errorf("%s stage: %w", stage, err)
	}

	report(StageNarrative)
	text, err := o.gen.GenerateText(ctx, narrativePrompt(goal, useSearch), useSearch)
	if err != nil {
		return fail(StageNarrative, err)
	}

	report(StageVisual)
	imageURL, err := o.gen.GenerateImage(ctx, visualPrompt(goal), gemini.HighResImageModel)
	if err != nil {
		return fail(StageVisual, err)
	}
	id := uuid.NewString()
	if o.assets != nil {
		if stored, err := store.PutDataURL(ctx, o.assets, "campaigns/"+id, imageURL); err != nil {
			logger.Warn("campaign image store failed", "error", err)
		} else {
			imageURL = stored
		}
	}

	report(StageTemporal)
	video, err := o.gen.GenerateVideo(ctx, types.VideoRequest{
		Prompt:          temporalPrompt(goal),
		AspectRatio:     types.AspectLandscape,
		Resolution:      types.Resolution720p,
		DurationSeconds: 5,
		Style:           types.DefaultVideoStyle,
	})
	if err != nil {
		return fail(StageTemporal, err)
	}
	videoURL, err := o.storeVideo(ctx, id, video)
	if err != nil {
		return fail(StageTemporal, err)
	}

	res := OrchestrationResult{Goal: goal, Text: text.Text, ImageURL: imageURL, VideoURL: videoURL}
	report(StageComplete)

	if o.campaigns != nil {
		campaignID, err := o.campaigns.Save(ctx, userID, types.Campaign{
			Goal:      goal,
			Narrative: res.Text,
			ImageURL:  res.ImageURL,
			VideoURL:  res.VideoURL,
		})
		if err != nil {
			logger.Error("campaign save failed", "error", err)
		}
		res.CampaignID = campaignID
	}
	return res, nil
}

func (o *Orchestrator) storeVideo(ctx context.Context, id string, data []byte) (string, error) {
	if o.assets == nil {
		return "data:video/mp4;base64," + base64.StdEncoding.EncodeToString(data), nil
	}
	return o.assets.Put(ctx, "campaigns/"+id+".mp4", "video/mp4", data)
}

func narrativePrompt(goal string, useSearch bool) string {
	search := ""
	if useSearch {
		search = "Use Google Search to gather the latest industry trends, competitor insights, and cultural relevance."
	}
	return fmt.Sprintf(`You are a high-end Creative Director. Generate a detailed, factual, and visionary brand vision report for: %q.
%s
Include a punchy headline, a strategic executive summary, and specific descriptions of the visual assets we are synthesizing today.
Respond with ONLY the markdown-formatted report.`, goal, search)
}

func visualPrompt(goal string) string {
	return fmt.Sprintf("Masterpiece luxury commercial shot for %s. Aesthetic: 8k, hyper-detailed, ray-traced lighting. Style: Premium cinematic.", goal)
}

func temporalPrompt(goal string) string {
	return fmt.Sprintf("Cinematic 5-second product reveal for %s. Slow motion, fluid transitions, high production value.", goal)
}
