package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golazo/internal/caption"
	"golazo/internal/core"
	"golazo/internal/delivery"
	"golazo/internal/deliverers/bluesky"
	"golazo/internal/deliverers/discord"
	"golazo/internal/deliverers/facebook"
	"golazo/internal/deliverers/telegram"
	"golazo/internal/ledger"
	"golazo/internal/sources"
	"golazo/internal/types"

	_ "golazo/internal/ledger/jsonfile"
	_ "golazo/internal/ledger/redis"
	_ "golazo/internal/ledger/sqlite"
)

// LoadAndBuild reads the config file and assembles the full bot graph:
// ledger, sources, deliverer, pipeline, orchestrator. This is the only
// place that reads files or environment; everything downstream gets
// explicit values.
func LoadAndBuild(ctx context.Context, path string) (*core.Bot, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Bot.LogLevel)
	slog.SetDefault(logger)

	led, err := ledger.New(ctx, cfg.Ledger.Backend, ledger.Options{
		Path:       cfg.Ledger.Path,
		Addr:       cfg.Ledger.Addr,
		Password:   cfg.Ledger.Password,
		DB:         cfg.Ledger.DB,
		MaxHistory: cfg.Ledger.MaxHistory,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build ledger: %w", err)
	}

	srcs, err := buildSources(cfg, logger)
	if err != nil {
		return nil, err
	}

	deliverer, err := buildDeliverer(cfg, logger)
	if err != nil {
		return nil, err
	}

	captions, err := caption.NewBuilder(cfg.Delivery.CaptionTemplate)
	if err != nil {
		return nil, err
	}

	pipeline := delivery.NewPipeline(deliverer, delivery.Config{
		MaxAttempts:    cfg.Delivery.MaxAttempts,
		InitialBackoff: Duration(cfg.Delivery.InitialBackoff),
		MaxBackoff:     Duration(cfg.Delivery.MaxBackoff),
		AttemptTimeout: Duration(cfg.Delivery.AttemptTimeout),
	}, logger)

	orchestrator := core.NewOrchestrator(led, pipeline, captions, core.OrchestratorConfig{
		MaxDeliveries:   cfg.Delivery.MaxPosts,
		PostDelay:       Duration(cfg.Delivery.PostDelay),
		ExcludeKeywords: cfg.Delivery.ExcludeKeywords,
		DryRun:          cfg.Bot.DryRun,
	}, logger)

	bot := core.NewBot(core.BotConfig{
		Name:     cfg.Bot.Name,
		Sources:  srcs,
		Interval: Duration(cfg.Bot.Interval),
		RunOnce:  cfg.Bot.RunOnce,
		Logger:   logger,
	}, orchestrator, led)

	return bot, nil
}

func newLogger(level string) *slog.Logger {
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

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func buildSources(cfg *Config, logger *slog.Logger) ([]types.Source, error) {
	var built []types.Source

	for name, src := range cfg.Sources {
		if !src.Enabled {
			continue
		}

		maxItems := GetInt(src.Settings, "max_items", 0)

		switch src.Type {
		case "scorebat":
			token := GetString(src.Settings, "token", "")
			built = append(built, sources.NewScorebatSource(name, token, "", maxItems, logger))

		case "rapidapi":
			apiKey := GetString(src.Settings, "api_key", "")
			source, err := sources.NewRapidAPISource(name, apiKey, "", maxItems, logger)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", name, err)
			}
			built = append(built, source)

		case "rss":
			feedURL := GetString(src.Settings, "feed_url", "")
			source, err := sources.NewRSSSource(name, feedURL, maxItems, logger)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", name, err)
			}
			built = append(built, source)

		default:
			return nil, fmt.Errorf("unsupported source type: %s", src.Type)
		}
	}

	if len(built) == 0 {
		return nil, fmt.Errorf("no enabled sources")
	}
	return built, nil
}

func buildDeliverer(cfg *Config, logger *slog.Logger) (types.Deliverer, error) {
	settings := cfg.Target.Settings

	switch cfg.Target.Type {
	case "facebook":
		return facebook.New(
			cfg.Target.Type,
			GetString(settings, "page_id", ""),
			GetString(settings, "access_token", ""),
			GetString(settings, "base_url", ""),
			logger,
		)

	case "telegram":
		return telegram.New(
			cfg.Target.Type,
			GetString(settings, "bot_token", ""),
			GetString(settings, "chat_id", ""),
			logger,
		)

	case "discord":
		return discord.New(
			cfg.Target.Type,
			GetString(settings, "bot_token", ""),
			GetString(settings, "channel_id", ""),
			logger,
		)

	case "bluesky":
		return bluesky.New(
			cfg.Target.Type,
			GetString(settings, "identifier", ""),
			GetString(settings, "password", ""),
			GetStringSlice(settings, "languages"),
			logger,
		)

	default:
		return nil, fmt.Errorf("unsupported target type: %s", cfg.Target.Type)
	}
}
