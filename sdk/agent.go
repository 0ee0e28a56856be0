package zenith

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/zenith/pkg/core"
)

const (
	// HandshakeMessage opens a live link; the agent answers with a greeting.
	HandshakeMessage = "INIT_ZENITH_HANDSHAKE"
	// SensorTapMessage asks the agent to acknowledge an active link.
	SensorTapMessage = "The user just tapped your core sensor. Give a brief, intelligent greeting acknowledging our Cloud Handshake is active via zenithagent."

	DefaultUID       = "User-ZL001"
	DefaultSessionID = "zenith-live-v1"
)

// AgentReply is the agent's answer to one message.
type AgentReply struct {
	Status     string `json:"status"`
	Reply      string `json:"reply"`
	MemoryUsed int    `json:"memory_used"`
}

// AgentStatus is the agent's liveness report.
type AgentStatus struct {
	Status string `json:"status"`
	Region string `json:"region"`
	Time   string `json:"time"`
}

type agentRequest struct {
	UID       string `json:"uid"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// Agent sends message to the memory-backed agent for the given session.
func (c *Client) Agent(ctx context.Context, uid, sessionID, message string) (AgentReply, error) {
	if strings.TrimSpace(uid) == "" || strings.TrimSpace(sessionID) == "" || strings.TrimSpace(message) == "" {
		return AgentReply{}, core.NewInvalidRequestError("uid, message, sessionId required")
	}
	var reply AgentReply
	if err := c.do(ctx, http.MethodPost, "/v1/agent", agentRequest{UID: uid, Message: message, SessionID: sessionID}, &reply); err != nil {
		return AgentReply{}, err
	}
	return reply, nil
}

// Handshake sends the handshake message and reports the round-trip latency.
// Empty uid and sessionID use DefaultUID and DefaultSessionID.
func (c *Client) Handshake(ctx context.Context, uid, sessionID string) (AgentReply, time.Duration, error) {
	if uid == "" {
		uid = DefaultUID
	}
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	start := time.Now()
	reply, err := c.Agent(ctx, uid, sessionID, HandshakeMessage)
	latency := time.Since(start)
	if err != nil {
		return AgentReply{}, latency, err
	}
	return reply, latency, nil
}

// Status fetches the agent liveness report.
func (c *Client) Status(ctx context.Context) (AgentStatus, error) {
	var status AgentStatus
	if err := c.do(ctx, http.MethodGet, "/v1/agent", nil, &status); err != nil {
		return AgentStatus{}, err
	}
	return status, nil
}
