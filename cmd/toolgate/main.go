package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/toolgate/toolgate/internal/buffer"
	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/core"
	"github.com/toolgate/toolgate/internal/db"
	"github.com/toolgate/toolgate/internal/httpapi"
	"github.com/toolgate/toolgate/internal/tools"
)

var (
	version   = ""
	gitCommit = ""
	buildTime = ""
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	profileName := strings.TrimSpace(os.Getenv("TOOLGATE_PROFILE"))
	cfg, err := config.Load(os.Getenv("TOOLGATE_CONFIG"), profileName)
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	var buffers buffer.Factory
	if cfg.Redis.Addr != "" {
		buffers = buffer.NewRedisFactory(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			buffer.WithTTL(time.Duration(cfg.Redis.TurnBufferTTLSeconds)*time.Second))
		logger.Info("turn buffer backend", "backend", "redis", "addr", cfg.Redis.Addr)
	} else {
		buffers = buffer.MemoryFactory{}
		logger.Info("turn buffer backend", "backend", "memory")
	}

	dispatcher := core.NewDispatcher(
		cfg.Dispatcher.MaxConcurrency,
		time.Duration(cfg.Dispatcher.CallTimeoutSeconds)*time.Second,
		tools.All(database)...,
	)
	policy := core.NewPolicy(cfg.Tools.Allowlist)
	audit := core.NewAuditRecorder(database, logger)
	promoter := core.NewPromoter(cfg.Tools.Promotion, database, logger)
	pipeline := core.NewPipeline(dispatcher, policy, audit, promoter, buffers, logger)

	logger.Info("effective config",
		"listen", cfg.Listen,
		"tool_allowlist", cfg.Tools.Allowlist,
		"max_concurrency", cfg.Dispatcher.MaxConcurrency,
		"call_timeout_seconds", cfg.Dispatcher.CallTimeoutSeconds,
		"version", version,
		"git_commit", gitCommit,
		"build_time", buildTime,
	)

	api := httpapi.NewServer(logger, pipeline, database, database, []byte(cfg.Auth.JWTSecret))
	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	logger.Info("listening", "addr", cfg.Listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	logger.Info("shutdown complete")
}
