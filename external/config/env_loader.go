package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/genkaipoint/internal/config"
)

type envConfig struct {
	Env                    string `env:"ENV" envDefault:"production"`
	DatabaseURL            string `env:"DATABASE_URL"`
	MemoryStorePath        string `env:"MEMORY_STORE_PATH" envDefault:"genkai-point-sessions.json.zst"`
	DiscordToken           string `env:"DISCORD_TOKEN,required"`
	DiscordGuildID         string `env:"DISCORD_GUILD_ID,required"`
	DiscordNotifyChannelID string `env:"DISCORD_NOTIFY_CHANNEL_ID,required"`
	CommandPrefix          string `env:"COMMAND_PREFIX" envDefault:"g!point"`
	Timezone               string `env:"TIMEZONE" envDefault:"Asia/Tokyo"`
	ReconcileIntervalSec   int    `env:"RECONCILE_INTERVAL_SEC" envDefault:"30"`
	WelcomeBackCooldownSec int    `env:"WELCOME_BACK_COOLDOWN_SEC" envDefault:"10"`
	DefaultFormula         string `env:"DEFAULT_FORMULA" envDefault:"v1"`
	DisplayNameCacheTTLMin int    `env:"DISPLAY_NAME_CACHE_TTL_MIN" envDefault:"10"`
	MetricsAddr            string `env:"METRICS_ADDR"`
	SentryDSN              string `env:"SENTRY_DSN"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                    raw.Env,
		DatabaseURL:            raw.DatabaseURL,
		MemoryStorePath:        raw.MemoryStorePath,
		DiscordToken:           raw.DiscordToken,
		DiscordGuildID:         raw.DiscordGuildID,
		DiscordNotifyChannelID: raw.DiscordNotifyChannelID,
		CommandPrefix:          raw.CommandPrefix,
		Timezone:               raw.Timezone,
		ReconcileIntervalSec:   raw.ReconcileIntervalSec,
		WelcomeBackCooldownSec: raw.WelcomeBackCooldownSec,
		DefaultFormula:         raw.DefaultFormula,
		DisplayNameCacheTTLMin: raw.DisplayNameCacheTTLMin,
		MetricsAddr:            raw.MetricsAddr,
		SentryDSN:              raw.SentryDSN,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
