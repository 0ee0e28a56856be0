package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vango-go/zenith/pkg/core/gemini"
	"github.com/vango-go/zenith/pkg/core/live"
	"github.com/vango-go/zenith/pkg/gateway/config"
	"github.com/vango-go/zenith/pkg/gateway/metrics"
	"github.com/vango-go/zenith/pkg/store"
	"github.com/vango-go/zenith/pkg/studio"
)

// Open builds the production backends from cfg and returns a ready Server.
// Postgres is used for campaigns and chat memory when DatabaseURL is set;
// Badger holds studio history either way. Close releases everything.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var closers []func() error
	fail := func(err error) (*Server, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	gemOpts := []gemini.Option{gemini.WithPollInterval(cfg.VideoPollInterval)}
	if cfg.GeminiBaseURL != "" {
		gemOpts = append(gemOpts, gemini.WithBaseURL(cfg.GeminiBaseURL))
	}
	gem, err := gemini.New(ctx, cfg.GeminiAPIKey, gemOpts...)
	if err != nil {
		return fail(fmt.Errorf("gemini client: %w", err))
	}

	local, err := store.OpenLocal(store.LocalConfig{
		Dir:      cfg.LocalDBPath,
		InMemory: strings.TrimSpace(cfg.LocalDBPath) == "",
	}, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, local.Close)

	assets, err := openAssets(cfg)
	if err != nil {
		return fail(err)
	}

	b := Backends{
		Chat:    gem,
		Dialer:  &live.GenAIDialer{Client: gem.GenAI()},
		Metrics: metrics.New(""),
	}

	var campaigns *store.Campaigns
	if cfg.DatabaseURL != "" {
		pool, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() error { pool.Close(); return nil })
		if err := store.Migrate(ctx, pool, logger); err != nil {
			return fail(err)
		}
		campaigns = store.NewCampaigns(store.NewPostgresCampaigns(pool), local, logger)
		b.Memory = store.NewPostgresChatMemory(pool)
		b.Ping = pool.Ping
	} else {
		campaigns = store.NewCampaigns(nil, local, logger)
		b.Memory = store.NewLocalChatMemory(local)
	}
	b.CloudStore = campaigns.CloudEnabled()
	logger.Info("campaign store ready", "cloud", b.CloudStore)

	studioOpts := []studio.Option{
		studio.WithLogger(logger),
		studio.WithProgressTick(cfg.VideoProgressTick),
	}
	video := studio.NewVideoStudio(gem, gem, assets, local, studioOpts...)
	closers = append(closers, video.Close)

	b.Text = studio.NewTextStudio(gem, local, studioOpts...)
	b.Image = studio.NewImageStudio(gem, assets, local, studioOpts...)
	b.Video = video
	b.Orchestrator = studio.NewOrchestrator(gem, assets, campaigns, studioOpts...)
	b.Campaigns = campaigns
	b.History = studio.NewHistorySearch(local, campaigns, studioOpts...)

	s := New(cfg, logger, b)
	s.closers = closers
	return s, nil
}

func openAssets(cfg config.Config) (store.AssetStore, error) {
	if cfg.S3Enabled() {
		return store.NewS3Assets(store.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
	}
	return store.NewFileAssets(cfg.AssetDir, cfg.AssetBaseURL)
}
