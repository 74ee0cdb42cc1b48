// Package main wires together the retrieval service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"reelgrab/internal/api"
	"reelgrab/internal/archive"
	"reelgrab/internal/browser"
	"reelgrab/internal/config"
	"reelgrab/internal/ledger"
	"reelgrab/internal/logging"
	"reelgrab/internal/notify"
	"reelgrab/internal/orchestrator"
	"reelgrab/internal/probe"
	"reelgrab/internal/resolver"
	"reelgrab/internal/retriever"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := ledger.New(ctx, ledger.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	}, logger.Named("ledger"))
	if err != nil {
		logger.Fatal("ledger init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.InitSchema(ctx); err != nil {
		logger.Fatal("ledger schema init failed", zap.Error(err))
	}

	notifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("notifier init failed", zap.Error(err))
	}
	blobStore, err := buildArchive(ctx, cfg)
	if err != nil {
		logger.Fatal("archive init failed", zap.Error(err))
	}

	factory := browser.NewFactory(browser.Config{
		StepTimeout: cfg.StepTimeout(),
		Headless:    cfg.Browser.Headless,
		ProxyServer: cfg.Browser.ProxyServer,
		UserAgent:   cfg.Browser.UserAgent,
	}, logger.Named("browser"))

	webResolver := resolver.New(resolver.Config{
		VideoServiceURL: cfg.Services.VideoURL,
		PhotoServiceURL: cfg.Services.PhotoURL,
		ProfileBaseURL:  cfg.Services.ProfileBaseURL,
	}, logger.Named("resolver"))

	expander := probe.New(0, cfg.Browser.UserAgent, logger.Named("probe"))

	orch := orchestrator.New(
		store,
		factory,
		webResolver,
		notifier,
		expander,
		blobStore,
		orchestrator.Config{
			MaxWorkers:    cfg.Batch.MaxWorkers,
			Throttle:      cfg.Throttle(),
			ScrollCount:   cfg.Batch.ScrollCount,
			DownloadRoot:  cfg.Batch.DownloadRoot,
			ProgressEvery: cfg.Batch.ProgressEvery,
			ArchivePrefix: cfg.Archive.Prefix,
		},
		logger.Named("orchestrator"),
	)

	apiServer := api.NewServer(orch, store, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (retriever.Notifier, error) {
	switch cfg.Notify.Provider {
	case "telegram":
		return notify.NewTelegram(notify.TelegramConfig{Token: cfg.Notify.TelegramToken}, logger.Named("telegram"))
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.Notify.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		return notify.NewPubSub(client.Topic(cfg.Notify.TopicName), logger.Named("pubsub"))
	case "log":
		return notify.NewLog(logger), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown notify provider %q", cfg.Notify.Provider)
	}
}

func buildArchive(ctx context.Context, cfg config.Config) (retriever.BlobStore, error) {
	switch cfg.Archive.Provider {
	case "local":
		return archive.NewLocal(cfg.Archive.BaseDir)
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage client: %w", err)
		}
		return archive.NewGCS(client, cfg.Archive.Bucket)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown archive provider %q", cfg.Archive.Provider)
	}
}
