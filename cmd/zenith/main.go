// Command zenith runs the ZENITH studios from the terminal: grounded text,
// styled images, queued video renders and the campaign orchestrator.
// History is kept in a local store under --data-dir; campaigns also go to
// Postgres when ZENITH_DATABASE_URL is set.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-go/zenith/pkg/core/gemini"
	"github.com/vango-go/zenith/pkg/core/types"
	"github.com/vango-go/zenith/pkg/gateway/config"
	"github.com/vango-go/zenith/pkg/store"
	"github.com/vango-go/zenith/pkg/studio"
)

type textStudio interface {
	Generate(ctx context.Context, prompt string, useSearch bool) (types.TextHistoryItem, error)
}

type imageStudio interface {
	Generate(ctx context.Context, prompt, styleID string, highRes bool) (types.ImageHistoryItem, error)
}

type videoStudio interface {
	Enqueue(req types.VideoRequest, audio *studio.AudioInput) (string, error)
	Wait(ctx context.Context, id string) (studio.RenderTask, error)
	Task(id string) (studio.RenderTask, bool)
}

type orchestrator interface {
	RunWithProgress(ctx context.Context, userID, goal string, useSearch bool, onStage func(studio.Stage)) (studio.OrchestrationResult, error)
}

type historySearcher interface {
	All(ctx context.Context, userID string) ([]types.HistoryItem, error)
	Search(ctx context.Context, userID, query string) ([]types.HistoryItem, error)
}

type campaignLister interface {
	List(ctx context.Context, userID string) ([]types.Campaign, error)
}

// app is what the commands run against.
type app struct {
	text         textStudio
	image        imageStudio
	video        videoStudio
	orchestrator orchestrator
	history      historySearcher
	campaigns    campaignLister
}

// openApp wires the studios to Gemini and the stores. The returned close
// function releases them.
func openApp(ctx context.Context, dataDir string, logger *slog.Logger) (*app, func() error, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, err
	}

	gem, err := gemini.New(ctx, cfg.GeminiAPIKey, gemini.WithPollInterval(cfg.VideoPollInterval))
	if err != nil {
		return nil, nil, err
	}

	local, err := store.OpenLocal(store.LocalConfig{Dir: filepath.Join(dataDir, "db"), SyncWrites: true}, logger)
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{local.Close}
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	assetDir := filepath.Join(dataDir, "assets")
	if os.Getenv("ZENITH_ASSET_DIR") != "" {
		assetDir = cfg.AssetDir
	}
	var assets store.AssetStore
	if cfg.S3Enabled() {
		assets, err = store.NewS3Assets(store.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
	} else {
		assets, err = store.NewFileAssets(assetDir, cfg.AssetBaseURL)
	}
	if err != nil {
		_ = closeAll()
		return nil, nil, err
	}

	campaigns := store.NewCampaigns(nil, local, logger)
	if cfg.DatabaseURL != "" {
		pool, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() error { pool.Close(); return nil })
		if err := store.Migrate(ctx, pool, logger); err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		campaigns = store.NewCampaigns(store.NewPostgresCampaigns(pool), local, logger)
	}

	opts := []studio.Option{studio.WithLogger(logger), studio.WithProgressTick(cfg.VideoProgressTick)}
	video := studio.NewVideoStudio(gem, gem, assets, local, opts...)
	closers = append(closers, video.Close)

	return &app{
		text:         studio.NewTextStudio(gem, local, opts...),
		image:        studio.NewImageStudio(gem, assets, local, opts...),
		video:        video,
		orchestrator: studio.NewOrchestrator(gem, assets, campaigns, opts...),
		history:      studio.NewHistorySearch(local, campaigns, opts...),
		campaigns:    campaigns,
	}, closeAll, nil
}

func defaultDataDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".zenith")
	}
	return ".zenith"
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(stderr, "zenith: %v\n", err)
		return 1
	}

	var a *app
	var closeApp func() error
	open := func(cmd *cobra.Command) (*app, error) {
		if a != nil {
			return a, nil
		}
		dataDir, _ := cmd.Flags().GetString("data-dir")
		var err error
		a, closeApp, err = openApp(cmd.Context(), dataDir, logger)
		return a, err
	}
	defer func() {
		if closeApp != nil {
			if err := closeApp(); err != nil {
				logger.Warn("close failed", "error", err)
			}
		}
	}()

	root := newRootCmd(open)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "zenith: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
