package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/octapulse-dev/octapulse-core/internal/analyzer"
	"github.com/octapulse-dev/octapulse-core/internal/batch"
	"github.com/octapulse-dev/octapulse-core/internal/blobstore"
	"github.com/octapulse-dev/octapulse-core/internal/config"
	"github.com/octapulse-dev/octapulse-core/internal/domain"
	"github.com/octapulse-dev/octapulse-core/internal/imagewatch"
	"github.com/octapulse-dev/octapulse-core/internal/notify"
	"github.com/octapulse-dev/octapulse-core/web/api"
)

var (
	servePort      int
	serveSimulate  bool
	serveDebug     bool
	serveLogFormat string
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis engine",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveSimulate, "simulate", true, "use the built-in simulated analyzer")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "enable debug logging")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", "json", "log format (json or text)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// .env is optional; config reads OCTAPULSE_* variables afterwards.
	_ = godotenv.Load()

	cfg, err := config.LoadWithLocalFallback(configPath)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if !serveSimulate {
		return fmt.Errorf("no external model backend is available; run with --simulate")
	}

	logger, err := newServeLogger()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	store := blobstore.New()

	janitor, err := blobstore.NewJanitor(store, cfg.Store.SweepSchedule, logger)
	if err != nil {
		return fmt.Errorf("store janitor: %w", err)
	}
	janitor.Start()
	defer janitor.Stop()

	model := analyzer.NewSimulated(store, analyzer.SimulatedConfig{
		Latency:     cfg.Analyzer.Latency(),
		FailureRate: cfg.Analyzer.FailureRate,
		ArtifactTTL: cfg.Store.ArtifactTTL(),
	}, logger)

	orch := batch.New(batch.NewRepository(), store, model, batch.Options{
		MaxBatchSize: cfg.Batch.MaxBatchSize,
		Logger:       logger,
	})

	retention, err := batch.NewRetentionSweeper(orch, cfg.Batch.RetentionSchedule, cfg.Batch.RetentionAge(), logger)
	if err != nil {
		return fmt.Errorf("retention sweeper: %w", err)
	}
	retention.Start()
	defer retention.Stop()

	server := api.NewServer(orch, store, model, api.Options{
		Addr:      cfg.Server.Addr(),
		UploadTTL: cfg.Store.UploadTTL(),
		Version:   version,
		Logger:    logger,
	})

	notifier := buildNotifier(cfg, logger)
	orch.SetOnFinished(func(sum domain.BatchSummary) {
		server.BatchFinished(sum)
		if err := notifier.Send(notify.FromBatch(sum)); err != nil {
			logger.Warn("notification failed", "batch_id", sum.BatchID, "error", err)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Run(ctx)
	})

	if cfg.Watch.Dir != "" {
		watcher, err := imagewatch.New(store, watchSubmitter(ctx, orch, cfg, logger), imagewatch.Options{
			Extensions:  cfg.Watch.Extensions,
			Debounce:    cfg.Watch.Debounce(),
			MaxFileSize: cfg.Watch.MaxFileSize(),
			UploadTTL:   cfg.Store.UploadTTL(),
		}, logger)
		if err != nil {
			return fmt.Errorf("image watcher: %w", err)
		}
		if err := watcher.Add(cfg.Watch.Dir); err != nil {
			return fmt.Errorf("watching %s: %w", cfg.Watch.Dir, err)
		}
		g.Go(func() error {
			watcher.Start(ctx)
			<-ctx.Done()
			watcher.Stop()
			return nil
		})
		logger.Info("watching for images", "dir", cfg.Watch.Dir)
	}

	fmt.Printf("OctaPulse engine listening on http://%s\n", cfg.Server.Addr())
	return g.Wait()
}

func newServeLogger() (*slog.Logger, error) {
	level := slog.LevelInfo
	if serveDebug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	switch serveLogFormat {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", serveLogFormat)
	}
}

// buildNotifier assembles the delivery chain for batch notifications.
// The log notifier is always present so every completion leaves a trace.
func buildNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	notifiers := []notify.Notifier{notify.NewLogNotifier(logger)}
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	return notify.NewMultiNotifier(notifiers...)
}

// watchSubmitter turns settled watch-directory uploads into batches
// using the configured defaults.
func watchSubmitter(ctx context.Context, orch *batch.Orchestrator, cfg *config.Config, logger *slog.Logger) imagewatch.SubmitFunc {
	return func(refs []string) {
		bc := domain.DefaultBatchConfig()
		if cfg.Batch.DefaultGridSize > 0 {
			bc.GridSizeInches = cfg.Batch.DefaultGridSize
		}
		if cfg.Batch.DefaultConcurrency > 0 {
			bc.Concurrency = cfg.Batch.DefaultConcurrency
		}

		receipt, err := orch.CreateAndStart(ctx, refs, bc)
		if err != nil {
			logger.Error("watched batch rejected", "images", len(refs), "error", err)
			return
		}
		logger.Info("watched batch submitted", "batch_id", receipt.BatchID, "images", receipt.TotalImages)
	}
}
