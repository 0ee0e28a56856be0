package studio

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/vango-go/zenith/pkg/core"
	"github.com/vango-go/zenith/pkg/core/gemini"
	"github.com/vango-go/zenith/pkg/core/types"
	"github.com/vango-go/zenith/pkg/store"
)

// ImageStyle is a style tag whose suffix is appended to the prompt.
type ImageStyle struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Suffix string `json:"suffix"`
}

// DefaultImageStyle leaves the prompt unchanged.
const DefaultImageStyle = "none"

var imageStyles = []ImageStyle{
	{ID: "none", Label: "Default", Suffix: ""},
	{ID: "photorealistic", Label: "Photorealistic", Suffix: ", highly detailed photorealistic style, 8k resolution, cinematic lighting"},
	{ID: "cartoon", Label: "Cartoon", Suffix: ", vibrant cartoon illustration, bold lines, expressive characters"},
	{ID: "abstract", Label: "Abstract", Suffix: ", abstract expressionism, geometric patterns, bold color palette"},
	{ID: "cyberpunk", Label: "Cyberpunk", Suffix: ", cyberpunk aesthetic, neon lights, futuristic city vibes, synthwave"},
	{ID: "watercolor", Label: "Watercolor", Suffix: ", soft watercolor painting style, delicate textures, bleeding colors"},
	{ID: "sketch", Label: "Pencil Sketch", Suffix: ", hand-drawn pencil sketch, charcoal textures, artistic shading"},
	{ID: "3d", Label: "3D Render", Suffix: ", octane render, 3D character design, soft shadows, claymorphism"},
}

// ImageStyles returns the available style tags.
func ImageStyles() []ImageStyle {
	return append([]ImageStyle(nil), imageStyles...)
}

// LookupImageStyle returns the style with id. An empty id is the default.
func LookupImageStyle(id string) (ImageStyle, bool) {
	if id == "" {
		id = DefaultImageStyle
	}
	for _, s := range imageStyles {
		if s.ID == id {
			return s, true
		}
	}
	return ImageStyle{}, false
}

// ImageModelFor picks the image model for the requested resolution.
func ImageModelFor(highRes bool) string {
	if highRes {
		return gemini.HighResImageModel
	}
	return gemini.ImageModel
}

// ImageStudio renders styled images.
type ImageStudio struct {
	gen    ImageGenerator
	assets store.AssetStore
	local  *store.Local
	opts   options
}

// NewImageStudio creates an image studio. assets and local may be nil; without
// assets the history keeps the data URL returned by the generator.
func NewImageStudio(gen ImageGenerator, assets store.AssetStore, local *store.Local, opts ...Option) *ImageStudio {
	return &ImageStudio{gen: gen, assets: assets, local: local, opts: buildOptions(opts)}
}

// Generate renders prompt with the style suffix appended.
func (s *ImageStudio) Generate(ctx context.Context, prompt, styleID string, highRes bool) (types.ImageHistoryItem, error) {
	if strings.TrimSpace(prompt) == "" {
		return types.ImageHistoryItem{}, ErrEmptyPrompt
	}
	style, ok := LookupImageStyle(styleID)
	if !ok {
		return types.ImageHistoryItem{}, core.NewInvalidRequestErrorWithParam("unknown image style "+styleID, "style")
	}

	finalPrompt := prompt + style.Suffix
	dataURL, err := s.gen.GenerateImage(ctx, finalPrompt, ImageModelFor(highRes))
	if err != nil {
		return types.ImageHistoryItem{}, err
	}

	now := s.opts.now()
	id := uuid.NewString()
	imageURL := dataURL
	if s.assets != nil {
		stored, err := store.PutDataURL(ctx, s.assets, "images/"+id, dataURL)
		if err != nil {
			s.opts.logger.Warn("image asset store failed", "id", id, "error", err)
		} else {
			imageURL = stored
		}
	}

	item := types.ImageHistoryItem{
		ID:        id,
		Prompt:    finalPrompt,
		ImageURL:  imageURL,
		Timestamp: now.UnixMilli(),
	}
	if s.local != nil {
		if err := s.local.PushFront(ImageHistoryKey, item, ImageHistoryCap); err != nil {
			s.opts.logger.Warn("image history save failed", "error", err)
		}
	}
	return item, nil
}

// History returns saved images, newest first.
func (s *ImageStudio) History() ([]types.ImageHistoryItem, error) {
	if s.local == nil {
		return []types.ImageHistoryItem{}, nil
	}
	return store.ListOf[types.ImageHistoryItem](s.local, ImageHistoryKey)
}

// ClearHistory removes every saved image.
func (s *ImageStudio) ClearHistory() error {
	if s.local == nil {
		return nil
	}
	return s.local.Delete(ImageHistoryKey)
}
