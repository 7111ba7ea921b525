package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env                    string
	DatabaseURL            string
	MemoryStorePath        string
	DiscordToken           string
	DiscordGuildID         string
	DiscordNotifyChannelID string
	CommandPrefix          string
	Timezone               string
	ReconcileIntervalSec   int
	WelcomeBackCooldownSec int
	DefaultFormula         string
	DisplayNameCacheTTLMin int
	MetricsAddr            string
	SentryDSN              string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.ReconcileIntervalSec <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL_SEC must be positive, got %d", c.ReconcileIntervalSec)
	}
	if c.WelcomeBackCooldownSec < 0 {
		return fmt.Errorf("WELCOME_BACK_COOLDOWN_SEC must not be negative, got %d", c.WelcomeBackCooldownSec)
	}
	if c.DisplayNameCacheTTLMin <= 0 {
		return fmt.Errorf("DISPLAY_NAME_CACHE_TTL_MIN must be positive, got %d", c.DisplayNameCacheTTLMin)
	}
	if c.DefaultFormula != "v1" && c.DefaultFormula != "v2" {
		return fmt.Errorf("DEFAULT_FORMULA must be v1 or v2, got %q", c.DefaultFormula)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "DISCORD_GUILD_ID", value: c.DiscordGuildID},
		{name: "DISCORD_NOTIFY_CHANNEL_ID", value: c.DiscordNotifyChannelID},
		{name: "COMMAND_PREFIX", value: c.CommandPrefix},
		{name: "TIMEZONE", value: c.Timezone},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// UsesDatabase reports whether sessions are persisted in Postgres rather than
// the in-memory store.
func (c *Config) UsesDatabase() bool {
	return c.DatabaseURL != ""
}

// Location returns the zone used for scoring and day bucketing. Validate must
// have succeeded first.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSec) * time.Second
}

func (c *Config) WelcomeBackCooldown() time.Duration {
	return time.Duration(c.WelcomeBackCooldownSec) * time.Second
}

func (c *Config) DisplayNameCacheTTL() time.Duration {
	return time.Duration(c.DisplayNameCacheTTLMin) * time.Minute
}
