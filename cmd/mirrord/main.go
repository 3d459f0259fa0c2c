// cmd/mirrord/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github-issue-mirror/internal/api"
	"github-issue-mirror/internal/config"
	"github-issue-mirror/internal/dispatch"
	"github-issue-mirror/internal/gh"
	"github-issue-mirror/internal/store"
	"github-issue-mirror/internal/syncer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")

	repos := make([]dispatch.RepoRef, 0, len(cfg.ReposToSync))
	for _, slug := range cfg.ReposToSync {
		owner, name, err := syncer.SplitSlug(slug)
		if err != nil {
			return err
		}
		repos = append(repos, dispatch.RepoRef{Owner: owner, Name: name})
	}

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Open the cache and apply schema upgrades. This handle serves the
	// HTTP reads; background tasks open their own.
	cacheStore, err := store.Open(cfg.CachePath)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer cacheStore.Close()
	logger.Info("Cache opened", "path", cfg.CachePath)

	// 5. Initialize application components
	ghClient := gh.NewClient(cfg.GithubToken, cfg.PageSize, logger)

	dispatcher := dispatch.New(dispatch.Options{
		CachePath:           cfg.CachePath,
		API:                 ghClient,
		Repos:               repos,
		CommentTTL:          cfg.CommentTTL,
		CommentCap:          cfg.CommentCap,
		IssuePollInterval:   cfg.IssuePollInterval,
		CommentPollInterval: cfg.CommentPollInterval,
		ReviewPollInterval:  cfg.ReviewPollInterval,
		Listener:            eventLogger{logger: logger},
		Logger:              logger,
	})

	// 6. Start the coordinator and the HTTP server
	go dispatcher.Run(ctx)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewRouter(cacheStore, logger),
	}
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	// 7. Wait for shutdown signal
	logger.Info("Application started. Waiting for shutdown signal...")
	<-ctx.Done()
	logger.Info("Shutdown signal received. Exiting.")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", "error", err)
	}

	// Allow some time for graceful shutdown of background tasks
	time.Sleep(2 * time.Second)

	return nil
}

// eventLogger is the daemon's event sink. A TUI front end would consume the
// same events to refresh its views.
type eventLogger struct {
	logger *slog.Logger
}

func (e eventLogger) HandleEvent(ev dispatch.Event) {
	if ev.Err != nil {
		e.logger.Warn("background task failed",
			"kind", ev.Kind, "repo", ev.Owner+"/"+ev.Name, "number", ev.Number, "error", ev.Err)
		return
	}
	attrs := []any{"kind", ev.Kind, "repo", ev.Owner + "/" + ev.Name}
	if ev.Number != 0 {
		attrs = append(attrs, "number", ev.Number)
	}
	if ev.Stats != nil {
		attrs = append(attrs,
			"issues", ev.Stats.Issues, "pull_requests", ev.Stats.PullRequests,
			"pages", ev.Stats.Pages, "not_modified", ev.Stats.NotModified)
	}
	e.logger.Info("background task finished", attrs...)
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
