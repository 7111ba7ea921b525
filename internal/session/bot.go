package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/foxseedlab/genkaipoint/internal/clock"
	"github.com/foxseedlab/genkaipoint/internal/config"
	"github.com/foxseedlab/genkaipoint/internal/discord"
	"github.com/foxseedlab/genkaipoint/internal/genkai"
	"github.com/foxseedlab/genkaipoint/internal/identity"
	"github.com/foxseedlab/genkaipoint/internal/metrics"
	"github.com/foxseedlab/genkaipoint/internal/plot"
	"github.com/foxseedlab/genkaipoint/internal/reporting"
	"github.com/foxseedlab/genkaipoint/internal/repository"
	"golang.org/x/time/rate"
)

const guildCachePollInterval = time.Second

// Bot connects Discord events to the session manager and answers chat
// commands.
type Bot struct {
	cfg       *config.Config
	discord   discord.Client
	manager   *Manager
	stats     *Stats
	directory identity.Directory
	renderer  plot.Renderer
	clock     clock.Clock
	metrics   metrics.Recorder
	location  *time.Location
	formula   genkai.Formula

	welcomeBack       *rate.Limiter
	reconcileInterval time.Duration
	guildPollInterval time.Duration
}

func NewBot(
	cfg *config.Config,
	dc discord.Client,
	manager *Manager,
	stats *Stats,
	directory identity.Directory,
	renderer plot.Renderer,
	clk clock.Clock,
	rec metrics.Recorder,
) (*Bot, error) {
	loc := cfg.Location()
	formula, err := genkai.FormulaByName(cfg.DefaultFormula, loc)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = metrics.Noop()
	}
	return &Bot{
		cfg:               cfg,
		discord:           dc,
		manager:           manager,
		stats:             stats,
		directory:         directory,
		renderer:          renderer,
		clock:             clk,
		metrics:           rec,
		location:          loc,
		formula:           formula,
		welcomeBack:       rate.NewLimiter(rate.Every(cfg.WelcomeBackCooldown()), 1),
		reconcileInterval: cfg.ReconcileInterval(),
		guildPollInterval: guildCachePollInterval,
	}, nil
}

func (b *Bot) HandleVoiceStateUpdate(event discord.VoiceStateEvent) {
	if event.GuildID != b.cfg.DiscordGuildID {
		slog.Debug("ignoring voice event for different guild", "event_guild_id", event.GuildID, "configured_guild_id", b.cfg.DiscordGuildID)
		return
	}
	ctx := context.Background()
	now := b.clock.Now()

	switch {
	case event.BeforeChannelID == "" && event.AfterChannelID != "":
		b.onJoin(ctx, event, now)
	case event.AfterChannelID == "":
		b.onLeave(ctx, event, now)
	default:
		slog.Debug("voice channel move ignored", "user_id", event.UserID, "from", event.BeforeChannelID, "to", event.AfterChannelID)
	}
}

func (b *Bot) onJoin(ctx context.Context, event discord.VoiceStateEvent, now time.Time) {
	result, err := b.manager.Join(ctx, event.UserID, now)
	if err != nil {
		reporting.Report(ctx, fmt.Errorf("join: %w", err), map[string]string{"op": "join", "user_id": event.UserID})
		return
	}
	slog.Info("voice join handled", "user_id", event.UserID, "channel_id", event.AfterChannelID, "result", result.String())

	if result != SessionResumed || event.UserIsBot {
		return
	}
	if !b.welcomeBack.AllowN(now, 1) {
		slog.Debug("welcome back notice throttled", "user_id", event.UserID)
		return
	}
	b.notify(welcomeBackMessage(event.UserID))
}

func (b *Bot) onLeave(ctx context.Context, event discord.VoiceStateEvent, now time.Time) {
	closed, err := b.manager.Leave(ctx, event.UserID, now)
	if err != nil {
		if errors.Is(err, repository.ErrNoOpenSession) {
			slog.Warn("leave without open session", "user_id", event.UserID, "channel_id", event.BeforeChannelID)
		}
		reporting.Report(ctx, fmt.Errorf("leave: %w", err), map[string]string{"op": "leave", "user_id": event.UserID})
		return
	}
	if event.UserIsBot {
		return
	}

	points := b.formula.Calc(closed, now)
	if points == 0 {
		return
	}
	total, err := b.stats.GetUserStat(ctx, event.UserID, b.formula)
	if err != nil || total == nil {
		slog.Error("failed to aggregate after leave", "user_id", event.UserID, "error", err)
		return
	}
	b.notify(formatLeaveSummary(event.UserID, *total, points, closed.Duration(now)))
}

func (b *Bot) notify(content string) {
	if err := b.discord.SendChannelMessage(b.cfg.DiscordNotifyChannelID, content); err != nil {
		slog.Error("failed to post notification", "channel_id", b.cfg.DiscordNotifyChannelID, "error", err)
	}
}

func (b *Bot) HandleMessage(event discord.MessageEvent) {
	if event.AuthorIsBot || event.GuildID != b.cfg.DiscordGuildID {
		return
	}
	args, ok := b.commandArgs(event.Content)
	if !ok {
		return
	}
	slog.Info("command received", "user_id", event.AuthorID, "channel_id", event.ChannelID, "args", args)

	usage := commandUsage(b.cfg.CommandPrefix)
	cmd, err := parseCommand(args, b.cfg.DefaultFormula)
	if errors.Is(err, errHelpRequested) {
		cmd, err = command{kind: commandHelp}, nil
	}
	if err != nil {
		b.reply(event.ChannelID, invalidCommandMessage(err, usage))
		return
	}

	started := time.Now()
	ctx := context.Background()
	if err := b.runCommand(ctx, event, cmd); err != nil {
		var invalid invalidArgumentError
		if errors.As(err, &invalid) {
			b.reply(event.ChannelID, invalidCommandMessage(invalid.err, usage))
		} else {
			reporting.Report(ctx, fmt.Errorf("command %s: %w", cmd.kind, err), map[string]string{"op": "command", "user_id": event.AuthorID})
			b.reply(event.ChannelID, messageCommandFailed)
		}
	}
	b.metrics.ObserveCommand(cmd.kind.String(), time.Since(started))
}

// commandArgs splits a message into words after the prefix. The prefix must
// be followed by whitespace or the end of the message.
func (b *Bot) commandArgs(content string) ([]string, bool) {
	content = strings.TrimSpace(content)
	rest, ok := strings.CutPrefix(content, b.cfg.CommandPrefix)
	if !ok {
		return nil, false
	}
	if r, _ := utf8.DecodeRuneInString(rest); rest != "" && !unicode.IsSpace(r) {
		return nil, false
	}
	return strings.Fields(rest), true
}

type invalidArgumentError struct {
	err error
}

func (e invalidArgumentError) Error() string { return e.err.Error() }

func (b *Bot) runCommand(ctx context.Context, event discord.MessageEvent, cmd command) error {
	if cmd.kind == commandHelp {
		return b.reply(event.ChannelID, commandUsage(b.cfg.CommandPrefix))
	}

	formula, err := genkai.FormulaByName(cmd.formula, b.location)
	if err != nil {
		return invalidArgumentError{err: err}
	}

	switch cmd.kind {
	case commandShow:
		userID := cmd.targetUserID
		if userID == "" {
			userID = event.AuthorID
		}
		return b.show(ctx, event.ChannelID, userID, formula)
	case commandRanking:
		return b.ranking(ctx, event.ChannelID, cmd, formula)
	case commandGraph:
		return b.graph(ctx, event.ChannelID, cmd.graphSize)
	default:
		return fmt.Errorf("unhandled command %s", cmd.kind)
	}
}

func (b *Bot) show(ctx context.Context, channelID, userID string, formula genkai.Formula) error {
	name, err := b.directory.DisplayName(ctx, userID)
	if err != nil {
		slog.Info("show: user lookup failed", "user_id", userID, "error", err)
		return b.reply(channelID, messageUserNotFound)
	}
	stat, err := b.stats.GetUserStat(ctx, userID, formula)
	if err != nil {
		return err
	}
	if stat == nil {
		return b.reply(channelID, statNotFoundMessage(name))
	}
	return b.reply(channelID, formatUserStat(name, formula.Name(), *stat))
}

func (b *Bot) ranking(ctx context.Context, channelID string, cmd command, formula genkai.Formula) error {
	ranked, err := b.stats.GetRanking(ctx, RankingQuery{
		Formula:           formula,
		SortKey:           cmd.sortKey,
		Direction:         cmd.direction,
		IncludeBots:       cmd.includeBots,
		InactiveThreshold: cmd.inactiveThreshold,
	})
	if err != nil {
		return err
	}
	entries := make([]rankedEntry, 0, len(ranked))
	for _, stat := range ranked {
		entries = append(entries, rankedEntry{stat: stat, name: b.stats.displayName(ctx, stat.UserID)})
	}
	return b.reply(channelID, formatRanking(cmd.sortKey, formula.Name(), entries))
}

func (b *Bot) graph(ctx context.Context, channelID string, n int) error {
	series, err := b.stats.GetPlotSeries(ctx, clampGraphSize(n))
	if err != nil {
		return err
	}
	if series == nil {
		return b.reply(channelID, messageNothingToPlot)
	}
	img, err := b.renderer.Render(series)
	if err != nil {
		return fmt.Errorf("render graph: %w", err)
	}
	return b.discord.SendChannelMessageWithFile(discord.FileMessage{
		ChannelID:   channelID,
		Filename:    img.Filename,
		ContentType: img.ContentType,
		FileBody:    img.Body,
	})
}

func (b *Bot) reply(channelID, content string) error {
	if err := b.discord.SendChannelMessage(channelID, content); err != nil {
		slog.Error("failed to reply", "channel_id", channelID, "error", err)
		return err
	}
	return nil
}

// RunReconciler waits for the guild to appear in the gateway cache, brings
// the store in line with the current voice states, and repeats that every
// reconcile interval until ctx is done.
func (b *Bot) RunReconciler(ctx context.Context) {
	poll := time.NewTicker(b.guildPollInterval)
	for {
		err := b.ReconcileOnce(ctx)
		if !errors.Is(err, discord.ErrGuildNotCached) {
			break
		}
		select {
		case <-ctx.Done():
			poll.Stop()
			return
		case <-poll.C:
		}
	}
	poll.Stop()
	slog.Info("startup reconciliation finished", "guild_id", b.cfg.DiscordGuildID)

	ticker := time.NewTicker(b.reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = b.ReconcileOnce(ctx)
		}
	}
}

func (b *Bot) ReconcileOnce(ctx context.Context) error {
	participants, err := b.discord.ListGuildVoiceParticipants(b.cfg.DiscordGuildID)
	if err != nil {
		if !errors.Is(err, discord.ErrGuildNotCached) {
			slog.Error("failed to list voice participants", "guild_id", b.cfg.DiscordGuildID, "error", err)
		}
		return err
	}
	present := make([]string, 0, len(participants))
	for _, p := range participants {
		present = append(present, p.UserID)
	}

	report, err := b.manager.Reconcile(ctx, present)
	if report.Changed() {
		slog.Info("reconciled voice sessions", "joined", report.Joined, "left", report.Left)
	}
	return err
}
