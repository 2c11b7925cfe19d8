package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"banksim/internal/bank"
	"banksim/internal/config"
	"banksim/internal/db"
	"banksim/internal/poller"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadBotFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	opts := db.DefaultPoolOptions()
	opts.MaxConns = 4
	pool, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := bank.NewService(pool, logger)

	if cfg.RunOnce {
		res, err := svc.RunBotTick(ctx)
		if err != nil {
			logger.Error("bot tick failed", "err", err)
			os.Exit(1)
		}
		logger.Info("bot run-once completed", "purchases_made", res.PurchasesMade)
		return
	}

	tick := poller.TargetFunc(func(ctx context.Context) error {
		res, err := svc.RunBotTick(ctx)
		if err != nil {
			return err
		}
		logger.Info("bot tick complete", "purchases_made", res.PurchasesMade)
		return nil
	})
	p := poller.New(tick, poller.Options{Interval: cfg.TickEvery, Logger: logger})

	logger.Info("bot worker started", "tick_every", cfg.TickEvery.String())
	handle := p.Start(ctx)
	<-ctx.Done()
	handle.Stop()
	logger.Info("bot worker shutdown")
}
