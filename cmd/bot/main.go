package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"scrape_bot/internal/bot"
	"scrape_bot/internal/config"
	"scrape_bot/internal/scheduler"
	"scrape_bot/internal/taskapi"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireBotToken(); err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := config.NewLogger(cfg.LogLevel, os.Stderr)

	svc := taskapi.New(cfg.ServiceBaseURL,
		taskapi.WithTimeout(cfg.RequestTimeout),
		taskapi.WithRateLimit(cfg.RequestsPerSecond),
		taskapi.WithLogger(log),
	)

	b, err := bot.New(cfg.TelegramBotToken, svc, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(svc, b, b, log)
	sched.SetTickInterval(cfg.ResultCheckInterval)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot", "service", cfg.ServiceBaseURL)

	go sched.Run(ctx)

	b.Run(ctx)

	log.Info("bot stopped")
}
