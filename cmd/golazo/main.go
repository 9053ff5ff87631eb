package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golazo/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration file")
	shutdownWindow := flag.Duration("shutdown-window", 2*time.Minute, "how long a signalled shutdown may run before the process gives up")
	flag.Parse()

	if err := run(*configPath, *shutdownWindow); err != nil {
		fmt.Fprintln(os.Stderr, "golazo:", err)
		os.Exit(1)
	}
}

func run(configPath string, shutdownWindow time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bot, err := config.LoadAndBuild(ctx, configPath)
	if err != nil {
		return err
	}

	slog.Info("Bot starting", "name", bot.Name(), "config", configPath)

	errCh := make(chan error, 1)
	go func() { errCh <- bot.Start(ctx) }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

	case <-ctx.Done():
		// Signalled. The in-flight delivery attempt is allowed to finish
		// and the ledger flushed, within the shutdown window.
		stop()
		slog.Info("Shutting down", "window", shutdownWindow)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWindow)
		defer cancel()
		if err := bot.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		<-errCh
	}

	slog.Info("Bot stopped")
	return nil
}
