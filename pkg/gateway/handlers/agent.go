package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/zenith/pkg/core/types"
	"github.com/vango-go/zenith/pkg/gateway/config"
	"github.com/vango-go/zenith/pkg/gateway/metrics"
	"github.com/vango-go/zenith/pkg/store"
)

// ChatClient sends one message on top of a chat history.
type ChatClient interface {
	Chat(ctx context.Context, model string, history []types.ChatMessage, message string) (string, error)
}

// AgentRequest is the body of POST /v1/agent.
type AgentRequest struct {
	UID       string `json:"uid"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// AgentReply is the success body of POST /v1/agent.
type AgentReply struct {
	Status     string `json:"status"`
	Reply      string `json:"reply"`
	MemoryUsed int    `json:"memory_used"`
}

// AgentStatus is the body of GET /v1/agent.
type AgentStatus struct {
	Status string `json:"status"`
	Region string `json:"region"`
	Time   string `json:"time"`
}

const agentAliveStatus = "ZENITH alive"

// AgentHandler is the memory-backed chat agent. Its responses keep their own
// flat shapes rather than the error envelope used by the studio endpoints.
type AgentHandler struct {
	Config  config.Config
	Chat    ChatClient
	Memory  store.ChatMemory
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func (h AgentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, AgentStatus{
			Status: agentAliveStatus,
			Region: h.Config.Region,
			Time:   isoTimestamp(now),
		})
		return
	}

	var req AgentRequest
	// A malformed body is reported the same way as missing fields.
	_ = decodeJSON(w, r, h.Config.MaxBodyBytes, &req)
	if strings.TrimSpace(req.UID) == "" || strings.TrimSpace(req.Message) == "" || strings.TrimSpace(req.SessionID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "uid, message, sessionId required"})
		return
	}

	logger := h.logger().With("request_id", requestIDFromContext(r.Context()), "uid", req.UID, "session_id", req.SessionID)
	logger.Info("agent request received")

	reply, used, err := h.respond(r.Context(), req)
	h.Metrics.RecordGeneration("chat", err, h.now().Sub(now))
	if err != nil {
		logger.Error("agent request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, AgentReply{Status: "ok", Reply: reply, MemoryUsed: used})
}

func (h AgentHandler) respond(ctx context.Context, req AgentRequest) (string, int, error) {
	history, err := h.Memory.Load(ctx, req.UID, req.SessionID)
	if err != nil {
		return "", 0, err
	}
	window := h.Config.MemoryWindow
	if window <= 0 {
		window = 10
	}
	recent := history
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}

	reply, err := h.Chat.Chat(ctx, h.Config.ChatModel, recent, req.Message)
	if err != nil {
		return "", 0, err
	}

	userTS := isoTimestamp(h.now())
	modelTS := isoTimestamp(h.now())
	if err := h.Memory.Append(ctx, req.UID, req.SessionID,
		types.ChatMessage{Role: types.RoleUser, Text: req.Message, TS: userTS},
		types.ChatMessage{Role: types.RoleModel, Text: reply, TS: modelTS},
	); err != nil {
		return "", 0, err
	}
	return reply, len(recent), nil
}

func (h AgentHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h AgentHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
