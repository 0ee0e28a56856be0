package studio

import (
	"context"
	"sort"
	"strings"

	"github.com/vango-go/zenith/pkg/core/types"
	"github.com/vango-go/zenith/pkg/store"
)

// MaxSearchResults caps Search.
const MaxSearchResults = 8

// HistorySearch aggregates every studio's history.
type HistorySearch struct {
	local     *store.Local
	campaigns *store.Campaigns
	opts      options
}

// NewHistorySearch creates a search over local studio histories and
// campaigns. campaigns may be nil.
func NewHistorySearch(local *store.Local, campaigns *store.Campaigns, opts ...Option) *HistorySearch {
	return &HistorySearch{local: local, campaigns: campaigns, opts: buildOptions(opts)}
}

// All returns every history item, newest first.
func (h *HistorySearch) All(ctx context.Context, userID string) ([]types.HistoryItem, error) {
	var out []types.HistoryItem

	if h.local != nil {
		texts, err := store.ListOf[types.TextHistoryItem](h.local, TextHistoryKey)
		if err != nil {
			return nil, err
		}
		for _, t := range texts {
			out = append(out, types.HistoryItem{ID: t.ID, Tab: types.TabText, Prompt: t.Prompt, Text: t.Text, Timestamp: t.Timestamp})
		}

		images, err := store.ListOf[types.ImageHistoryItem](h.local, ImageHistoryKey)
		if err != nil {
			return nil, err
		}
		for _, i := range images {
			out = append(out, types.HistoryItem{ID: i.ID, Tab: types.TabImage, Prompt: i.Prompt, URL: i.ImageURL, Timestamp: i.Timestamp})
		}

		videos, err := store.ListOf[types.VideoHistoryItem](h.local, VideoHistoryKey)
		if err != nil {
			return nil, err
		}
		for _, v := range videos {
			out = append(out, types.HistoryItem{ID: v.ID, Tab: types.TabVideo, Prompt: v.Prompt, URL: v.VideoURL, Timestamp: v.Timestamp})
		}
	}

	if h.campaigns != nil {
		campaigns, err := h.campaigns.List(ctx, userID)
		if err != nil {
			h.opts.logger.Warn("campaign history unavailable", "error", err)
		}
		for _, c := range campaigns {
			out = append(out, types.HistoryItem{
				ID:        c.ID,
				Tab:       types.TabOrchestrator,
				Prompt:    c.Goal,
				Text:      c.Narrative,
				URL:       c.ImageURL,
				Timestamp: c.CreatedAt.UnixMilli(),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if out == nil {
		out = []types.HistoryItem{}
	}
	return out, nil
}

// Search returns up to MaxSearchResults items whose prompt or text contains
// query, ignoring case. A blank query matches nothing.
func (h *HistorySearch) Search(ctx context.Context, userID, query string) ([]types.HistoryItem, error) {
	if strings.TrimSpace(query) == "" {
		return []types.HistoryItem{}, nil
	}
	all, err := h.All(ctx, userID)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	out := []types.HistoryItem{}
	for _, item := range all {
		if strings.Contains(strings.ToLower(item.Prompt), q) || strings.Contains(strings.ToLower(item.Text), q) {
			out = append(out, item)
			if len(out) == MaxSearchResults {
				break
			}
		}
	}
	return out, nil
}
