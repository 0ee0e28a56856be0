package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/zenith/pkg/gateway/config"
	"github.com/vango-go/zenith/pkg/gateway/lifecycle"
	"github.com/vango-go/zenith/pkg/gateway/live/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports whether the gateway can take traffic. Ping, when set,
// checks the cloud document store.
type ReadyHandler struct {
	Config       config.Config
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
	CloudStore   bool
	Ping         func(ctx context.Context) error
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK            bool     `json:"ok"`
		Region        string   `json:"region"`
		AuthMode      string   `json:"auth_mode"`
		CloudStore    bool     `json:"cloud_store"`
		S3Assets      bool     `json:"s3_assets"`
		Draining      bool     `json:"draining"`
		DrainSeconds  int64    `json:"drain_seconds,omitempty"`
		LiveSessions  int      `json:"live_sessions"`
		UptimeSeconds int64    `json:"uptime_seconds"`
		Issues        []string `json:"issues,omitempty"`
	}

	now := time.Now()
	issues := make([]string, 0, 4)

	if strings.TrimSpace(h.Config.GeminiAPIKey) == "" {
		issues = append(issues, "gemini api key is not configured")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}
	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "draining")
	}
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.Ping(ctx)
		cancel()
		if err != nil {
			issues = append(issues, "database unreachable: "+err.Error())
		}
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResp{
		OK:            ok,
		Region:        h.Config.Region,
		AuthMode:      string(h.Config.AuthMode),
		CloudStore:    h.CloudStore,
		S3Assets:      h.Config.S3Enabled(),
		Draining:      draining,
		DrainSeconds:  int64(h.Lifecycle.DrainingFor(now) / time.Second),
		LiveSessions:  h.LiveSessions.Count(),
		UptimeSeconds: int64(h.Lifecycle.Uptime(now) / time.Second),
		Issues:        issues,
	})
}

// LiveSessionsHandler lists open live relay sessions, optionally for one uid.
type LiveSessionsHandler struct {
	LiveSessions *sessions.Tracker
}

func (h LiveSessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	list := h.LiveSessions.List(r.URL.Query().Get("uid"))
	if list == nil {
		list = []sessions.Info{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}
