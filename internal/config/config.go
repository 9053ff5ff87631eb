package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Bot      BotConfig               `toml:"bot"`
	Ledger   LedgerConfig            `toml:"ledger"`
	Delivery DeliveryConfig          `toml:"delivery"`
	Sources  map[string]SourceConfig `toml:"sources"`
	Target   TargetConfig            `toml:"target"`
}

type BotConfig struct {
	Name     string `toml:"name"`
	Interval string `toml:"interval"`
	RunOnce  bool   `toml:"run_once"`
	DryRun   bool   `toml:"dry_run"`
	LogLevel string `toml:"log_level"`
}

type LedgerConfig struct {
	Backend    string `toml:"backend"`
	Path       string `toml:"path"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	MaxHistory int    `toml:"max_history"`
}

type DeliveryConfig struct {
	MaxPosts        int      `toml:"max_posts"`
	PostDelay       string   `toml:"post_delay"`
	MaxAttempts     int      `toml:"max_attempts"`
	InitialBackoff  string   `toml:"initial_backoff"`
	MaxBackoff      string   `toml:"max_backoff"`
	AttemptTimeout  string   `toml:"attempt_timeout"`
	ExcludeKeywords []string `toml:"exclude_keywords"`
	CaptionTemplate string   `toml:"caption_template"`
}

type SourceConfig struct {
	Type     string         `toml:"type"`
	Enabled  bool           `toml:"enabled"`
	Settings map[string]any `toml:"settings"`
}

type TargetConfig struct {
	Type     string         `toml:"type"`
	Settings map[string]any `toml:"settings"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func validateConfig(config *Config) error {
	if config.Bot.Name == "" {
		config.Bot.Name = "golazo"
	}

	if config.Bot.Interval == "" {
		config.Bot.Interval = "30m"
	}
	if _, err := time.ParseDuration(config.Bot.Interval); err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}

	for _, field := range []struct {
		name  string
		value *string
		def   string
	}{
		{"post_delay", &config.Delivery.PostDelay, "5s"},
		{"initial_backoff", &config.Delivery.InitialBackoff, "2s"},
		{"max_backoff", &config.Delivery.MaxBackoff, "60s"},
		{"attempt_timeout", &config.Delivery.AttemptTimeout, "90s"},
	} {
		if *field.value == "" {
			*field.value = field.def
		}
		if _, err := time.ParseDuration(*field.value); err != nil {
			return fmt.Errorf("invalid %s: %w", field.name, err)
		}
	}

	if config.Ledger.Backend == "" {
		config.Ledger.Backend = "json"
	}
	if config.Ledger.Backend == "redis" && config.Ledger.Addr == "" {
		return fmt.Errorf("ledger backend redis requires addr")
	}

	enabledSources := 0
	for _, src := range config.Sources {
		if src.Enabled {
			enabledSources++
		}
	}
	if enabledSources == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}

	if config.Target.Type == "" {
		return fmt.Errorf("target type is required")
	}

	return nil
}

// Duration returns an already-validated duration field. Call only on
// fields validateConfig has checked.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

func GetString(settings map[string]any, key string, defaultValue string) string {
	if val, ok := settings[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultValue
}

func GetInt(settings map[string]any, key string, defaultValue int) int {
	if val, ok := settings[key]; ok {
		if i, ok := val.(int64); ok {
			return int(i)
		}
		if i, ok := val.(int); ok {
			return i
		}
	}
	return defaultValue
}

func GetStringSlice(settings map[string]any, key string) []string {
	val, ok := settings[key]
	if !ok {
		return nil
	}
	raw, ok := val.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		if str, ok := entry.(string); ok {
			out = append(out, str)
		}
	}
	return out
}
