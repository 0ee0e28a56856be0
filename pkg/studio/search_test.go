package studio

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vango-go/zenith/pkg/core/types"
	"github.com/vango-go/zenith/pkg/store"
)

func TestHistorySearch(t *testing.T) {
	local := openLocal(t)
	ctx := context.Background()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(local.PushFront(TextHistoryKey, types.TextHistoryItem{ID: "t1", Prompt: "Summarize", Text: "The ROCKET launch went well", Timestamp: 100}, TextHistoryCap))
	must(local.PushFront(ImageHistoryKey, types.ImageHistoryItem{ID: "i1", Prompt: "a rocket at dawn", ImageURL: "https://img", Timestamp: 300}, ImageHistoryCap))
	must(local.PushFront(VideoHistoryKey, types.VideoHistoryItem{ID: "v1", Prompt: "ocean waves", VideoURL: "https://vid", Timestamp: 200}, VideoHistoryCap))

	campaigns := store.NewCampaigns(nil, local, nil)
	_, err := campaigns.Save(ctx, "", types.Campaign{Goal: "Rocket fuel brand", CreatedAt: time.UnixMilli(400)})
	must(err)

	h := NewHistorySearch(local, campaigns)
	all, err := h.All(ctx, "")
	must(err)
	if len(all) != 4 {
		t.Fatalf("all = %+v", all)
	}
	order := ""
	for _, item := range all {
		order += string(item.Tab) + " "
	}
	if order != "orchestrator image video text " {
		t.Fatalf("order = %q", order)
	}

	got, err := h.Search(ctx, "", "rocket")
	must(err)
	if len(got) != 3 || got[0].Tab != types.TabOrchestrator || got[2].ID != "t1" {
		t.Fatalf("search = %+v", got)
	}

	got, _ = h.Search(ctx, "", "   ")
	if len(got) != 0 {
		t.Fatalf("blank query = %+v", got)
	}
}

func TestHistorySearch_Limit(t *testing.T) {
	local := openLocal(t)
	for i := 0; i < 12; i++ {
		item := types.TextHistoryItem{ID: fmt.Sprint(i), Prompt: fmt.Sprintf("match %d", i), Timestamp: int64(i)}
		if err := local.PushFront(TextHistoryKey, item, TextHistoryCap); err != nil {
			t.Fatal(err)
		}
	}
	got, err := NewHistorySearch(local, nil).Search(context.Background(), "", "MATCH")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != MaxSearchResults || got[0].ID != "11" {
		t.Fatalf("got %d items, first %+v", len(got), got[0])
	}
}
