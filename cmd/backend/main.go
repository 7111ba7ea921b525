package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	configloader "github.com/foxseedlab/genkaipoint/external/config"
	"github.com/foxseedlab/genkaipoint/external/discord"
	identityimpl "github.com/foxseedlab/genkaipoint/external/identity"
	metricsimpl "github.com/foxseedlab/genkaipoint/external/metrics"
	plotimpl "github.com/foxseedlab/genkaipoint/external/plot"
	repositoryimpl "github.com/foxseedlab/genkaipoint/external/repository"
	"github.com/foxseedlab/genkaipoint/internal/config"
	discordpkg "github.com/foxseedlab/genkaipoint/internal/discord"
	"github.com/foxseedlab/genkaipoint/internal/identity"
	"github.com/foxseedlab/genkaipoint/internal/reporting"
	"github.com/foxseedlab/genkaipoint/internal/repository"
	"github.com/foxseedlab/genkaipoint/internal/session"
	"github.com/samber/do/v2"
)

const discordConnectTimeout = 20 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "formula", cfg.DefaultFormula, "timezone", cfg.Timezone)

	flush, err := reporting.Init(cfg.SentryDSN, cfg.Env)
	if err != nil {
		slog.Error("error reporting init failed", "error", err)
		os.Exit(1)
	}
	defer flush()

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching discord bot")
	runBot(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	identityimpl.RegisterDI(injector)
	plotimpl.RegisterDI(injector)
	metricsimpl.RegisterDI(injector)
	session.RegisterDI(injector)

	return injector
}

func runBot(cfg *config.Config, injector do.Injector) {
	dc, err := do.Invoke[discordpkg.Client](injector)
	if err != nil {
		slog.Error("failed to resolve discord client", "error", err)
		os.Exit(1)
	}
	store, err := do.Invoke[repository.SessionStore](injector)
	if err != nil {
		slog.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	defer closeQuietly(store)
	bot, err := do.Invoke[*session.Bot](injector)
	if err != nil {
		slog.Error("failed to resolve bot", "error", err)
		os.Exit(1)
	}
	if directory, err := do.Invoke[identity.Directory](injector); err == nil {
		defer stopQuietly(directory)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsAddr != "" {
		recorder := do.MustInvoke[*metricsimpl.PrometheusRecorder](injector)
		go func() {
			if err := recorder.Serve(ctx, cfg.MetricsAddr); err != nil {
				slog.Error("metrics server stopped", "error", err, "addr", cfg.MetricsAddr)
			}
		}()
	}

	connectCtx, connectCancel := context.WithTimeout(ctx, discordConnectTimeout)
	defer connectCancel()

	slog.Info("startup: connecting to discord gateway")
	if err := dc.Connect(connectCtx); err != nil {
		slog.Error("discord connect failed", "error", err)
		os.Exit(1)
	}
	slog.Info("startup: discord connected")
	defer func() {
		if err := dc.Close(); err != nil {
			slog.Error("discord close failed", "error", err)
		}
	}()

	botUserID, err := dc.GetBotUserID()
	if err != nil {
		slog.Error("failed to resolve bot user id", "error", err)
		os.Exit(1)
	}
	// voice events missed before this point are picked up by the reconciler
	dc.RegisterVoiceStateUpdateHandler(bot.HandleVoiceStateUpdate)
	dc.RegisterMessageHandler(bot.HandleMessage)
	slog.Info("discord handlers registered", "guild_id", cfg.DiscordGuildID, "bot_user_id", botUserID, "prefix", cfg.CommandPrefix)

	go bot.RunReconciler(ctx)

	done := make(chan struct{})
	go func() {
		slog.Info("startup: entering discord run loop")
		if err := dc.Run(); err != nil {
			slog.Error("discord run failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case <-done:
	}
}

func closeQuietly(v any) {
	if c, ok := v.(interface{ Close() }); ok {
		c.Close()
	}
}

func stopQuietly(v any) {
	if s, ok := v.(interface{ Stop() }); ok {
		s.Stop()
	}
}
