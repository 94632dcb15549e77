package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heimdex/reeldraft/internal/api"
	"github.com/heimdex/reeldraft/internal/config"
	"github.com/heimdex/reeldraft/internal/db"
	"github.com/heimdex/reeldraft/internal/draft"
	"github.com/heimdex/reeldraft/internal/export"
	"github.com/heimdex/reeldraft/internal/filestore"
	"github.com/heimdex/reeldraft/internal/logging"
	"github.com/heimdex/reeldraft/internal/observe"
	"github.com/heimdex/reeldraft/internal/pipeline"
	"github.com/heimdex/reeldraft/internal/playback"
	"github.com/heimdex/reeldraft/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.MediaDir(), cfg.ExportDir(), cfg.WorkDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting reeldraft",
		"version", config.Version,
		"commit", config.GitCommit,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
		"config_file", logging.SanitizePath(cfg.ConfigFile()),
	)

	var (
		metrics         *observe.Metrics
		metricsHandler  http.Handler
		metricsShutdown func(context.Context) error
	)
	if cfg.MetricsEnabled() {
		metrics, metricsShutdown, err = observe.InitProvider()
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		metricsHandler = promhttp.Handler()
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	blobs := store.NewSQLiteStore(database.Conn())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	authToken, err := api.EnsureAuthToken(ctx, blobs)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Printf("  reeldraft %s\n", config.Version)
	fmt.Printf("  API URL:    http://127.0.0.1:%d\n", cfg.Port())
	fmt.Printf("  Auth Token: %s\n", authToken)
	fmt.Println()

	files, err := filestore.NewLocalStore(cfg.MediaDir(), logging.WithComponent(logger, "filestore"))
	if err != nil {
		return fmt.Errorf("failed to initialize media store: %w", err)
	}
	drafts := draft.NewStore(blobs, files)
	manager := draft.NewManager(draft.Config{
		Store:         drafts,
		Files:         files,
		Logger:        logger,
		Metrics:       metrics,
		AutosaveDelay: cfg.AutosaveDelay(),
		DefaultBudget: cfg.DurationBudgetSeconds(),
	})
	if err := manager.Load(ctx, "", draft.ModeCamera); err != nil {
		logger.Warn("failed to resume draft", "error", err)
	}

	concat, probe := newConcatenator(ctx, cfg, logger)

	quality, err := pipeline.ParseQuality(cfg.ExportQuality())
	if err != nil {
		return fmt.Errorf("invalid export quality: %w", err)
	}

	exporter := export.NewService(export.Config{
		ExportDir:    cfg.ExportDir(),
		Concatenator: concat,
		Transcriber:  pipeline.NewStubTranscriber(logging.WithComponent(logger, "transcriber")),
		Blobs:        blobs,
		Logger:       logging.WithComponent(logger, "export"),
		Metrics:      metrics,
	})

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Session:        manager,
		Drafts:         drafts,
		Exporter:       exporter,
		Media:          playback.NewServer(logger, cfg.MediaDir(), cfg.ExportDir()),
		Blobs:          blobs,
		Probe:          probe,
		FillerDetector: pipeline.StubFillerDetector{},
		DefaultQuality: quality,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		Logger:         logger,
		StartTime:      startTime,
		Version:        config.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := manager.Close(shutdownCtx); err != nil {
		logger.Error("failed to close draft session", "error", err)
	}
	manager.Teardown()
	if metricsShutdown != nil {
		if err := metricsShutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// newConcatenator prefers ffmpeg and falls back to byte-appending clips when
// it is not installed. The probe is nil in the fallback case.
func newConcatenator(ctx context.Context, cfg config.Config, logger *slog.Logger) (pipeline.Concatenator, *pipeline.CachedProbe) {
	pcfg := pipeline.DefaultConfig(cfg.DataDir(), logging.WithComponent(logger, "ffmpeg"))
	pcfg.WorkDir = cfg.WorkDir()
	pcfg.FFmpegPath = cfg.FFmpegPath()

	ff, err := pipeline.NewFFmpegConcatenator(pcfg)
	if err != nil {
		logger.Warn("ffmpeg unavailable, exports will byte-append clips", "error", err)
		return pipeline.NewStubConcatenator(logger), nil
	}

	probe := pipeline.NewCachedProbe(ff, logger)
	probeCtx, probeCancel := context.WithTimeout(ctx, pcfg.ProbeTimeout)
	defer probeCancel()
	if caps, err := probe.Refresh(probeCtx); err != nil {
		logger.Warn("initial ffmpeg probe failed", "error", err)
	} else {
		logger.Info("ffmpeg detected", "version", caps.Version)
	}
	return ff, probe
}
