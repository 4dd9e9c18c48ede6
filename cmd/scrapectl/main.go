package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"scrape_bot/internal/cli"
	"scrape_bot/internal/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.Execute(ctx, cli.Options{Config: cfg}); err != nil {
		cancel()
		os.Exit(1)
	}
}
