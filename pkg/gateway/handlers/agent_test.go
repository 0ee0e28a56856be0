package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/zenith/pkg/core/types"
	"github.com/vango-go/zenith/pkg/gateway/config"
)

func agentConfig() config.Config {
	return config.Config{Region: "asia-southeast1", ChatModel: "gemini-2.5-flash", MemoryWindow: 10, MaxBodyBytes: 1 << 20}
}

func fixedNow() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func TestAgentHandler_GetReportsAlive(t *testing.T) {
	h := AgentHandler{Config: agentConfig(), Now: fixedNow}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var got AgentStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := AgentStatus{Status: "ZENITH alive", Region: "asia-southeast1", Time: "2026-01-02T03:04:05.000Z"}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestAgentHandler_MissingFields(t *testing.T) {
	h := AgentHandler{Config: agentConfig(), Chat: &fakeChat{}, Memory: newFakeMemory(), Now: fixedNow}

	for _, body := range []string{
		`{"uid":"u1","message":"hi"}`,
		`{"uid":"u1","sessionId":"s1"}`,
		`{"message":"hi","sessionId":"s1"}`,
		`{"uid":"u1","message":"   ","sessionId":"s1"}`,
		`not json`,
		``,
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/agent", strings.NewReader(body)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status=%d", body, rr.Code)
		}
		if got := strings.TrimSpace(rr.Body.String()); got != `{"error":"uid, message, sessionId required"}` {
			t.Fatalf("body %q: response=%s", body, got)
		}
	}
}

func TestAgentHandler_UsesRecentMemoryAndAppends(t *testing.T) {
	mem := newFakeMemory()
	for i := 0; i < 12; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleModel
		}
		mem.msgs["u1/s1"] = append(mem.msgs["u1/s1"], types.ChatMessage{Role: role, Text: fmt.Sprintf("m%d", i)})
	}
	chat := &fakeChat{reply: "Hello, operator."}
	h := AgentHandler{Config: agentConfig(), Chat: chat, Memory: mem, Now: fixedNow}

	rr := httptest.NewRecorder()
	body := `{"uid":"u1","message":"status report","sessionId":"s1"}`
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/agent", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var got AgentReply
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != "ok" || got.Reply != "Hello, operator." || got.MemoryUsed != 10 {
		t.Fatalf("reply=%+v", got)
	}
	if chat.model != "gemini-2.5-flash" || chat.message != "status report" {
		t.Fatalf("chat model=%q message=%q", chat.model, chat.message)
	}
	if len(chat.history) != 10 || chat.history[0].Text != "m2" || chat.history[9].Text != "m11" {
		t.Fatalf("history=%v", chat.history)
	}

	saved := mem.get("u1", "s1")
	if len(saved) != 14 {
		t.Fatalf("saved %d messages", len(saved))
	}
	user, model := saved[12], saved[13]
	if user.Role != types.RoleUser || user.Text != "status report" || user.TS != "2026-01-02T03:04:05.000Z" {
		t.Fatalf("user message=%+v", user)
	}
	if model.Role != types.RoleModel || model.Text != "Hello, operator." {
		t.Fatalf("model message=%+v", model)
	}
}

func TestAgentHandler_ChatFailure(t *testing.T) {
	mem := newFakeMemory()
	h := AgentHandler{Config: agentConfig(), Chat: &fakeChat{err: errors.New("quota exhausted")}, Memory: mem, Now: fixedNow}

	rr := httptest.NewRecorder()
	body := `{"uid":"u1","message":"hi","sessionId":"s1"}`
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/agent", strings.NewReader(body)))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"message":"quota exhausted","status":"error"}` {
		t.Fatalf("body=%s", got)
	}
	if n := len(mem.get("u1", "s1")); n != 0 {
		t.Fatalf("memory should be untouched, has %d", n)
	}
}
