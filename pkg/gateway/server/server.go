package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/vango-go/zenith/pkg/core/live"
	"github.com/vango-go/zenith/pkg/gateway/config"
	"github.com/vango-go/zenith/pkg/gateway/handlers"
	"github.com/vango-go/zenith/pkg/gateway/lifecycle"
	"github.com/vango-go/zenith/pkg/gateway/live/sessions"
	"github.com/vango-go/zenith/pkg/gateway/metrics"
	"github.com/vango-go/zenith/pkg/gateway/mw"
	"github.com/vango-go/zenith/pkg/gateway/ratelimit"
	"github.com/vango-go/zenith/pkg/store"
)

// Backends are the services the gateway routes to. Open builds the real set;
// tests pass fakes to New.
type Backends struct {
	Chat         handlers.ChatClient
	Memory       store.ChatMemory
	Text         handlers.TextStudio
	Image        handlers.ImageStudio
	Video        handlers.VideoQueue
	Orchestrator handlers.CampaignRunner
	Campaigns    handlers.CampaignLister
	History      handlers.HistorySearcher
	Dialer       live.Dialer

	// CloudStore reports whether campaigns write through to Postgres.
	CloudStore bool
	// Ping checks the cloud document store for readiness. Optional.
	Ping func(ctx context.Context) error
	// Metrics defaults to a fresh registry under the "zenith" namespace.
	Metrics *metrics.Metrics
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	backends     Backends
	metrics      *metrics.Metrics
	limiter      *ratelimit.Limiter
	lifecycle    *lifecycle.Lifecycle
	liveSessions *sessions.Tracker

	closers []func() error
}

func New(cfg config.Config, logger *slog.Logger, b Backends) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	m := b.Metrics
	if m == nil {
		m = metrics.New("")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		backends: b,
		metrics:  m,
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                   cfg.LimitRPS,
			Burst:                 cfg.LimitBurst,
			MaxConcurrentRequests: cfg.LimitMaxConcurrentRequests,
			MaxLiveSessions:       cfg.LiveMaxSessionsPerPrincipal,
		}),
		lifecycle:    lifecycle.New(time.Now()),
		liveSessions: sessions.NewTracker(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	b := s.backends

	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:       s.cfg,
		Lifecycle:    s.lifecycle,
		LiveSessions: s.liveSessions,
		CloudStore:   b.CloudStore,
		Ping:         b.Ping,
	})
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	agent := handlers.AgentHandler{
		Config:  s.cfg,
		Chat:    b.Chat,
		Memory:  b.Memory,
		Logger:  s.logger,
		Metrics: s.metrics,
	}
	s.mux.Handle("GET /v1/agent", agent)
	s.mux.Handle("POST /v1/agent", agent)
	s.mux.Handle("GET /{$}", agent)
	s.mux.Handle("POST /{$}", agent)

	s.mux.Handle("POST /v1/text", handlers.TextHandler{Config: s.cfg, Studio: b.Text, Metrics: s.metrics})
	s.mux.Handle("POST /v1/image", handlers.ImageHandler{Config: s.cfg, Studio: b.Image, Metrics: s.metrics})

	video := handlers.VideoHandler{Config: s.cfg, Queue: b.Video, Metrics: s.metrics, Logger: s.logger}
	s.mux.Handle("POST /v1/video", video)
	s.mux.Handle("GET /v1/video", video)
	s.mux.Handle("GET /v1/video/{id}", video)

	s.mux.Handle("POST /v1/orchestrate", handlers.OrchestrateHandler{Config: s.cfg, Runner: b.Orchestrator, Metrics: s.metrics})
	s.mux.Handle("GET /v1/campaigns", handlers.CampaignsHandler{Campaigns: b.Campaigns})
	s.mux.Handle("GET /v1/history", handlers.HistoryHandler{History: b.History})

	s.mux.Handle("GET /v1/live", handlers.LiveHandler{
		Config:       s.cfg,
		Dialer:       b.Dialer,
		Memory:       b.Memory,
		Logger:       s.logger,
		Limiter:      s.limiter,
		Lifecycle:    s.lifecycle,
		LiveSessions: s.liveSessions,
		Metrics:      s.metrics,
	})

	s.mux.Handle("GET /v1/live/sessions", handlers.LiveSessionsHandler{LiveSessions: s.liveSessions})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = mw.Metrics(s.metrics, s.mux)
	h = mw.RateLimit(s.cfg, s.limiter, s.metrics, h)
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips readiness to 503 and makes /v1/live refuse new sessions.
func (s *Server) SetDraining() {
	s.lifecycle.BeginDrain(time.Now())
}

// WarnLiveSessionsDraining tells every open live session the gateway is
// shutting down.
func (s *Server) WarnLiveSessionsDraining() int {
	return s.liveSessions.WarnAll("draining", "gateway is shutting down; reconnect to continue")
}

// WaitLiveSessions blocks until every live session has ended or ctx is done.
// It reports whether all sessions ended.
func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.liveSessions.Wait(ctx)
}

func (s *Server) CancelLiveSessions() int {
	return s.liveSessions.CancelAll()
}

// Close releases resources acquired by Open in reverse order.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
