package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"banksim/internal/api"
	"banksim/internal/bank"
	"banksim/internal/config"
	"banksim/internal/db"
	"banksim/internal/imagegen"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	opts := db.DefaultPoolOptions()
	opts.MaxConns = cfg.MaxConns
	pool, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	bankSvc := bank.NewService(pool, logger)
	if cfg.StartupSeed {
		if err := bankSvc.SeedDefaults(ctx); err != nil {
			logger.Error("seed defaults failed", "err", err)
			os.Exit(1)
		}
	}

	images := imagegen.New(cfg.OpenAIKey, cfg.ImageModel, logger)
	server := api.New(logger, bankSvc, images)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("banksim api listening", "addr", cfg.Addr, "image_generation", cfg.OpenAIKey != "")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
