package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nomirelay/nomirelay/internal/channels/discord"
	"github.com/nomirelay/nomirelay/internal/config"
	"github.com/nomirelay/nomirelay/internal/nomi"
	"github.com/nomirelay/nomirelay/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

func runRelay() {
	setupLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Required secrets are checked before any client is created.
	if err := cfg.Validate(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	client := nomi.NewClient(cfg.Agent.APIKey, nomi.WithBaseURL(cfg.Agent.BaseURL))
	agent, err := nomi.FromUUID(ctx, client, cfg.Agent.ID)
	if err != nil {
		slog.Error("failed to resolve nomi", "id", cfg.Agent.ID, "error", err)
		os.Exit(1)
	}
	slog.Info("nomi resolved", "name", agent.Nomi().Name, "id", agent.Nomi().UUID)

	ch, err := discord.FromConfig(cfg, agent)
	if err != nil {
		slog.Error("failed to create discord channel", "error", err)
		os.Exit(1)
	}
	if err := ch.Start(ctx); err != nil {
		slog.Error("failed to start discord channel", "error", err)
		os.Exit(1)
	}

	slog.Info("nomirelay started",
		"version", Version,
		"max_message_length", cfg.Agent.MessageLimit(),
		"bot_id", ch.BotUserID(),
	)

	<-ctx.Done()
	slog.Info("graceful shutdown initiated")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := ch.Stop(stopCtx); err != nil {
		slog.Warn("discord shutdown failed", "error", err)
	}
	slog.Info("shutdown complete")
}
