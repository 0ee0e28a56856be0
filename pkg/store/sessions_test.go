package store

import (
	"context"
	"testing"

	"github.com/vango-go/zenith/pkg/core/types"
)

func TestLocalChatMemory(t *testing.T) {
	m := NewLocalChatMemory(openTestLocal(t))
	ctx := context.Background()

	got, err := m.Load(ctx, "u1", "s1")
	if err != nil || len(got) != 0 {
		t.Fatalf("empty session: %v %v", got, err)
	}

	if err := m.Append(ctx, "u1", "s1",
		types.ChatMessage{Role: types.RoleUser, Text: "hi", TS: "2025-01-01T00:00:00Z"},
		types.ChatMessage{Role: types.RoleModel, Text: "hello", TS: "2025-01-01T00:00:01Z"},
	); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := m.Append(ctx, "u1", "s2", types.ChatMessage{Role: types.RoleUser, Text: "other"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, _ = m.Load(ctx, "u1", "s1")
	if len(got) != 2 || got[0].Text != "hi" || got[1].Role != types.RoleModel {
		t.Fatalf("got %+v", got)
	}
}

func TestLocalChatMemory_ColonIDsDoNotCollide(t *testing.T) {
	m := NewLocalChatMemory(openTestLocal(t))
	ctx := context.Background()

	if err := m.Append(ctx, "a:b", "c", types.ChatMessage{Role: types.RoleUser, Text: "first"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := m.Append(ctx, "a", "b:c", types.ChatMessage{Role: types.RoleUser, Text: "second"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	for _, tt := range []struct{ uid, sid, want string }{
		{"a:b", "c", "first"},
		{"a", "b:c", "second"},
	} {
		got, err := m.Load(ctx, tt.uid, tt.sid)
		if err != nil || len(got) != 1 || got[0].Text != tt.want {
			t.Fatalf("Load(%q, %q) = %+v, %v", tt.uid, tt.sid, got, err)
		}
	}
}
