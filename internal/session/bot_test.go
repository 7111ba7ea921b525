package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/foxseedlab/genkaipoint/internal/clock"
	"github.com/foxseedlab/genkaipoint/internal/config"
	"github.com/foxseedlab/genkaipoint/internal/discord"
	"github.com/foxseedlab/genkaipoint/internal/genkai"
)

const (
	testGuildID  = "guild"
	testNotifyID = "notify"
	testChanID   = "commands"
)

type botFixture struct {
	bot      *Bot
	store    *fakeStore
	discord  *mockDiscordClient
	renderer *mockRenderer
	clock    *clock.FakeClock
	tokyo    *time.Location
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	cfg := &config.Config{
		Env:                    "development",
		DiscordToken:           "token",
		DiscordGuildID:         testGuildID,
		DiscordNotifyChannelID: testNotifyID,
		CommandPrefix:          "g!point",
		Timezone:               "Asia/Tokyo",
		ReconcileIntervalSec:   30,
		WelcomeBackCooldownSec: 10,
		DefaultFormula:         "v1",
		DisplayNameCacheTTLMin: 10,
	}
	tokyo := cfg.Location()
	store := newFakeStore()
	clk := clock.Fake(time.Date(2024, 1, 1, 0, 0, 0, 0, tokyo))
	dc := &mockDiscordClient{}
	directory := &mockDirectory{
		names: map[string]string{"1": "Alice", "2": "Bob", "9": "Robo"},
		bots:  map[string]bool{"9": true},
	}
	renderer := &mockRenderer{}

	bot, err := NewBot(cfg, dc, NewManager(store, clk, nil), NewStats(store, directory, clk, tokyo), directory, renderer, clk, nil)
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	return &botFixture{bot: bot, store: store, discord: dc, renderer: renderer, clock: clk, tokyo: tokyo}
}

func (f *botFixture) at(hour, minute int) {
	f.clock.Set(time.Date(2024, 1, 1, hour, minute, 0, 0, f.tokyo))
}

func (f *botFixture) join(userID string, isBot bool) {
	f.bot.HandleVoiceStateUpdate(discord.VoiceStateEvent{GuildID: testGuildID, UserID: userID, UserIsBot: isBot, AfterChannelID: "vc"})
}

func (f *botFixture) leave(userID string, isBot bool) {
	f.bot.HandleVoiceStateUpdate(discord.VoiceStateEvent{GuildID: testGuildID, UserID: userID, UserIsBot: isBot, BeforeChannelID: "vc"})
}

func (f *botFixture) command(content string) {
	f.bot.HandleMessage(discord.MessageEvent{GuildID: testGuildID, ChannelID: testChanID, MessageID: "m", AuthorID: "1", Content: content})
}

func (f *botFixture) lastMessage(t *testing.T) sentMessage {
	t.Helper()
	msgs := f.discord.messages()
	if len(msgs) == 0 {
		t.Fatal("expected a message to be sent")
	}
	return msgs[len(msgs)-1]
}

func TestHandleVoiceStateUpdate_IgnoresOtherGuild(t *testing.T) {
	f := newBotFixture(t)
	f.bot.HandleVoiceStateUpdate(discord.VoiceStateEvent{GuildID: "other", UserID: "1", AfterChannelID: "vc"})
	if got := f.store.count(); got != 0 {
		t.Fatalf("expected no sessions, got %d", got)
	}
}

func TestHandleVoiceStateUpdate_ChannelMoveKeepsSession(t *testing.T) {
	f := newBotFixture(t)
	f.join("1", false)
	f.bot.HandleVoiceStateUpdate(discord.VoiceStateEvent{GuildID: testGuildID, UserID: "1", BeforeChannelID: "vc", AfterChannelID: "vc2"})

	if open := f.store.openIDs(t); len(open) != 1 || open[0] != "1" {
		t.Fatalf("expected session to stay open, got %v", open)
	}
}

func TestHandleVoiceStateUpdate_LeaveSummary(t *testing.T) {
	f := newBotFixture(t)
	f.at(0, 0)
	f.join("1", false)
	f.at(2, 30)
	f.leave("1", false)

	msg := f.lastMessage(t)
	if msg.channelID != testNotifyID {
		t.Fatalf("expected notify channel, got %q", msg.channelID)
	}
	want := "<@!1>\n限界ポイント: 17pt (+17pt)\n総VC時間: 2.50h (+2.50h)"
	if msg.content != want {
		t.Fatalf("unexpected summary:\n%s\nwant:\n%s", msg.content, want)
	}
}

func TestHandleVoiceStateUpdate_NoSummaryWithoutPoints(t *testing.T) {
	f := newBotFixture(t)
	f.at(12, 0)
	f.join("1", false)
	f.at(13, 30)
	f.leave("1", false)

	if msgs := f.discord.messages(); len(msgs) != 0 {
		t.Fatalf("expected no messages for a daytime session, got %v", msgs)
	}
}

func TestHandleVoiceStateUpdate_BotsGetNoMessages(t *testing.T) {
	f := newBotFixture(t)
	f.at(0, 0)
	f.join("9", true)
	f.at(3, 0)
	f.leave("9", true)
	f.at(3, 1)
	f.join("9", true)

	if msgs := f.discord.messages(); len(msgs) != 0 {
		t.Fatalf("expected no messages for a bot, got %v", msgs)
	}
	if open := f.store.openIDs(t); len(open) != 1 || open[0] != "9" {
		t.Fatalf("expected bot sessions to be tracked, got %v", open)
	}
}

func TestHandleVoiceStateUpdate_LeaveWithoutSession(t *testing.T) {
	f := newBotFixture(t)
	f.leave("1", false)
	if msgs := f.discord.messages(); len(msgs) != 0 {
		t.Fatalf("expected no messages, got %v", msgs)
	}
}

func TestHandleVoiceStateUpdate_WelcomeBackIsThrottled(t *testing.T) {
	f := newBotFixture(t)
	f.at(12, 0)
	f.join("1", false)
	f.join("2", false)
	f.at(12, 1)
	f.leave("1", false)
	f.leave("2", false)

	f.at(12, 2)
	f.join("1", false)
	f.join("2", false)

	msgs := f.discord.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one welcome back message within the cooldown, got %v", msgs)
	}
	if msgs[0].content != welcomeBackMessage("1") {
		t.Fatalf("unexpected message: %q", msgs[0].content)
	}

	f.leave("2", false)
	f.clock.Advance(11 * time.Second)
	f.join("2", false)
	if got := f.lastMessage(t).content; got != welcomeBackMessage("2") {
		t.Fatalf("expected welcome back for 2 after cooldown, got %q", got)
	}
}

func TestHandleMessage_Show(t *testing.T) {
	f := newBotFixture(t)
	f.at(0, 0)
	f.join("1", false)
	f.at(2, 30)
	f.leave("1", false)

	f.command("g!point show")
	msg := f.lastMessage(t)
	if msg.channelID != testChanID {
		t.Fatalf("expected reply in command channel, got %q", msg.channelID)
	}
	stat := genkai.UserStat{UserID: "1", GenkaiPoint: 17, TotalVCDuration: 150 * time.Minute, Efficiency: 0.68}
	if want := formatUserStat("Alice", "v1", stat); msg.content != want {
		t.Fatalf("unexpected reply:\n%s\nwant:\n%s", msg.content, want)
	}
}

func TestHandleMessage_ShowMissingData(t *testing.T) {
	f := newBotFixture(t)

	f.command("g!point show <@!2>")
	if got := f.lastMessage(t).content; got != statNotFoundMessage("Bob") {
		t.Fatalf("unexpected reply: %q", got)
	}

	f.command("g!point show 404")
	if got := f.lastMessage(t).content; got != messageUserNotFound {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestHandleMessage_Ranking(t *testing.T) {
	f := newBotFixture(t)
	f.at(0, 0)
	f.join("1", false)
	f.join("2", false)
	f.join("9", true)
	f.at(1, 0)
	f.leave("2", false)
	f.at(3, 0)
	f.leave("1", false)
	f.leave("9", true)

	f.command("g!point ranking")
	lines := strings.Split(f.lastMessage(t).content, "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header plus two rows, got %q", lines)
	}
	if lines[1] != "sorted by point, using formula v1" {
		t.Fatalf("unexpected header: %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "#01") || !strings.HasSuffix(lines[2], "Alice") {
		t.Fatalf("expected Alice first, got %q", lines[2])
	}
	if !strings.HasSuffix(lines[3], "Bob") {
		t.Fatalf("expected Bob second, got %q", lines[3])
	}

	f.command("g!point ranking --include-bot --invert")
	lines = strings.Split(f.lastMessage(t).content, "\n")
	if len(lines) != 6 || !strings.HasSuffix(lines[2], "Bob") {
		t.Fatalf("expected bot included and Bob first when inverted, got %q", lines)
	}
}

func TestHandleMessage_Graph(t *testing.T) {
	f := newBotFixture(t)

	f.command("g!point graph")
	if got := f.lastMessage(t).content; got != messageNothingToPlot {
		t.Fatalf("unexpected reply: %q", got)
	}

	f.at(0, 0)
	f.join("1", false)
	f.at(3, 0)
	f.leave("1", false)
	f.clock.Set(time.Date(2024, 1, 3, 12, 0, 0, 0, f.tokyo))

	f.command("g!point graph 3")
	if len(f.discord.fileCalls) != 1 {
		t.Fatalf("expected one file upload, got %d", len(f.discord.fileCalls))
	}
	upload := f.discord.fileCalls[0]
	if upload.ChannelID != testChanID || upload.ContentType != "image/png" {
		t.Fatalf("unexpected upload: %+v", upload)
	}
	if len(f.renderer.rendered) != 1 || len(f.renderer.rendered[0]) != 1 || f.renderer.rendered[0][0].Name != "Alice" {
		t.Fatalf("unexpected rendered series: %+v", f.renderer.rendered)
	}
}

func TestHandleMessage_HelpAndErrors(t *testing.T) {
	f := newBotFixture(t)
	usage := commandUsage("g!point")

	f.command("g!point")
	if got := f.lastMessage(t).content; got != usage {
		t.Fatalf("expected usage, got %q", got)
	}

	f.command("g!point show --help")
	if got := f.lastMessage(t).content; got != usage {
		t.Fatalf("expected usage for --help, got %q", got)
	}

	f.command("g!point dance")
	if got := f.lastMessage(t).content; !strings.HasPrefix(got, messageInvalidCommand) {
		t.Fatalf("expected invalid command reply, got %q", got)
	}

	f.command("g!point show --formula v9")
	if got := f.lastMessage(t).content; !strings.HasPrefix(got, messageInvalidCommand) {
		t.Fatalf("expected invalid command reply for unknown formula, got %q", got)
	}
}

func TestHandleMessage_Ignored(t *testing.T) {
	f := newBotFixture(t)

	f.command("g!pointless")
	f.command("hello g!point")
	f.bot.HandleMessage(discord.MessageEvent{GuildID: testGuildID, ChannelID: testChanID, AuthorID: "9", AuthorIsBot: true, Content: "g!point"})
	f.bot.HandleMessage(discord.MessageEvent{GuildID: "other", ChannelID: testChanID, AuthorID: "1", Content: "g!point"})

	if msgs := f.discord.messages(); len(msgs) != 0 {
		t.Fatalf("expected no replies, got %v", msgs)
	}
}

func TestReconcileOnce(t *testing.T) {
	f := newBotFixture(t)
	f.join("2", false)
	f.discord.setParticipants([]discord.VoiceParticipant{{UserID: "1", ChannelID: "vc"}}, nil)

	if err := f.bot.ReconcileOnce(context.Background()); err != nil {
		t.Fatalf("ReconcileOnce: %v", err)
	}
	if open := f.store.openIDs(t); len(open) != 1 || open[0] != "1" {
		t.Fatalf("unexpected open users: %v", open)
	}
}

func TestRunReconciler_WaitsForGuildCache(t *testing.T) {
	f := newBotFixture(t)
	f.bot.guildPollInterval = 5 * time.Millisecond
	f.bot.reconcileInterval = 10 * time.Millisecond
	f.discord.setParticipants(nil, discord.ErrGuildNotCached)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.bot.RunReconciler(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if got := f.store.count(); got != 0 {
		t.Fatalf("expected no sessions before the guild is cached, got %d", got)
	}

	f.discord.setParticipants([]discord.VoiceParticipant{{UserID: "1", ChannelID: "vc"}}, nil)
	waitUntil(t, 2*time.Second, func() bool { return len(f.store.openIDs(t)) == 1 }, "startup reconciliation did not open a session")

	f.discord.setParticipants(nil, nil)
	waitUntil(t, 2*time.Second, func() bool { return len(f.store.openIDs(t)) == 0 }, "periodic reconciliation did not close the session")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunReconciler did not stop after cancel")
	}
}
