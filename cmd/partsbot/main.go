package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/partsbot/internal/api"
	"github.com/MikeSquared-Agency/partsbot/internal/catalog"
	"github.com/MikeSquared-Agency/partsbot/internal/chat"
	"github.com/MikeSquared-Agency/partsbot/internal/config"
	"github.com/MikeSquared-Agency/partsbot/internal/gemini"
	"github.com/MikeSquared-Agency/partsbot/internal/hermes"
	"github.com/MikeSquared-Agency/partsbot/internal/identity"
	"github.com/MikeSquared-Agency/partsbot/internal/models"
	"github.com/MikeSquared-Agency/partsbot/internal/session"
	"github.com/MikeSquared-Agency/partsbot/internal/slack"
	"github.com/MikeSquared-Agency/partsbot/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("partsbot starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}
	slog.Info("database connected")

	// Catalog seed (optional, only fills an empty catalog)
	if cfg.CatalogSeedFile != "" {
		parts, err := catalog.LoadSeedFile(cfg.CatalogSeedFile)
		if err != nil {
			slog.Error("failed to load catalog seed", "path", cfg.CatalogSeedFile, "error", err)
			os.Exit(1)
		}
		if _, err := catalog.Seed(ctx, db, parts, slog.Default()); err != nil {
			slog.Error("failed to seed catalog", "error", err)
			os.Exit(1)
		}
	}

	// Gemini client. A missing key is reported to visitors on each turn
	// rather than refusing to start.
	if cfg.GeminiAPIKey == "" {
		slog.Warn("GEMINI_API_KEY not set, replies will report a configuration error")
	}
	llm := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.MaxOutputTokens, cfg.Temperature)
	slog.Info("gemini client ready", "model", cfg.GeminiModel)

	// NATS/Hermes (optional)
	var events chat.Publisher
	if cfg.NatsURL != "" {
		hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		events = hermesClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, running without turn events")
	}

	// Slack alerts (optional)
	var slackPoster *slack.Poster
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		slackPoster = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack alerts ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured, running without operator alerts")
	}

	boot := identity.NewBootstrap(db, slog.Default())
	sessions := session.NewManager(func(u models.User) *chat.Orchestrator {
		o := chat.New(u, db, db, llm, events, slog.Default())
		if slackPoster != nil {
			o.SetAlerter(slackPoster)
		}
		return o
	}, slog.Default())
	go sessions.RunCleanup(ctx, time.Minute, cfg.SessionIdleTimeout)

	// HTTP API
	srv := api.NewServer(cfg.Port, boot, sessions, db, cfg.SecureCookies)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("partsbot ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("partsbot stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
