package discord

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/genkaipoint/internal/discord"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestSession(t *testing.T, rt roundTripFunc) *discordgo.Session {
	t.Helper()
	s, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if rt != nil {
		s.Client = &http.Client{Transport: rt}
	}
	return s
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func failOnREST(t *testing.T) roundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected REST call: %s %s", req.Method, req.URL.String())
		return nil, nil
	}
}

func TestListGuildVoiceParticipants_UsesStateCache(t *testing.T) {
	s := newTestSession(t, failOnREST(t))
	if err := s.State.GuildAdd(&discordgo.Guild{
		ID: "guild-1",
		VoiceStates: []*discordgo.VoiceState{
			{GuildID: "guild-1", ChannelID: "vc-1", UserID: "user-1", Member: &discordgo.Member{User: &discordgo.User{ID: "user-1"}}},
			{GuildID: "guild-1", ChannelID: "vc-2", UserID: "bot-1", Member: &discordgo.Member{User: &discordgo.User{ID: "bot-1", Bot: true}}},
			{GuildID: "guild-1", ChannelID: "", UserID: "user-2"},
		},
	}); err != nil {
		t.Fatalf("failed to add guild to state: %v", err)
	}

	c := &Client{session: s}
	participants, err := c.ListGuildVoiceParticipants("guild-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("expected 2 participants, got %+v", participants)
	}
	if participants[0].UserID != "user-1" || participants[0].IsBot {
		t.Fatalf("unexpected first participant: %+v", participants[0])
	}
	if participants[1].UserID != "bot-1" || !participants[1].IsBot || participants[1].ChannelID != "vc-2" {
		t.Fatalf("unexpected second participant: %+v", participants[1])
	}
}

func TestListGuildVoiceParticipants_BotFlagFromMemberCache(t *testing.T) {
	s := newTestSession(t, failOnREST(t))
	if err := s.State.GuildAdd(&discordgo.Guild{
		ID: "guild-1",
		Members: []*discordgo.Member{
			{GuildID: "guild-1", User: &discordgo.User{ID: "bot-2", Username: "music", Bot: true}},
		},
		VoiceStates: []*discordgo.VoiceState{
			{GuildID: "guild-1", ChannelID: "vc-1", UserID: "bot-2"},
		},
	}); err != nil {
		t.Fatalf("failed to add guild to state: %v", err)
	}

	c := &Client{session: s}
	participants, err := c.ListGuildVoiceParticipants("guild-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(participants) != 1 || !participants[0].IsBot {
		t.Fatalf("expected bot flag from member cache, got %+v", participants)
	}
}

func TestListGuildVoiceParticipants_GuildNotCached(t *testing.T) {
	s := newTestSession(t, failOnREST(t))
	c := &Client{session: s}

	if _, err := c.ListGuildVoiceParticipants("guild-1"); !errors.Is(err, discordpkg.ErrGuildNotCached) {
		t.Fatalf("expected ErrGuildNotCached, got %v", err)
	}
}

func TestResolveMember_PrefersNickFromState(t *testing.T) {
	s := newTestSession(t, failOnREST(t))
	if err := s.State.GuildAdd(&discordgo.Guild{
		ID: "guild-1",
		Members: []*discordgo.Member{
			{GuildID: "guild-1", Nick: "限界さん", User: &discordgo.User{ID: "user-1", Username: "genkai", GlobalName: "Genkai"}},
		},
	}); err != nil {
		t.Fatalf("failed to add guild to state: %v", err)
	}

	c := &Client{session: s}
	member, err := c.ResolveMember("guild-1", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if member.DisplayName != "限界さん" || member.IsBot {
		t.Fatalf("unexpected member: %+v", member)
	}
}

func TestResolveMember_FallsBackToUserAPI(t *testing.T) {
	s := newTestSession(t, func(req *http.Request) (*http.Response, error) {
		switch {
		case strings.HasSuffix(req.URL.Path, "/guilds/guild-1/members/user-1"):
			return jsonResponse(http.StatusNotFound, `{"message":"Unknown Member","code":10007}`), nil
		case strings.HasSuffix(req.URL.Path, "/users/user-1"):
			return jsonResponse(http.StatusOK, `{"id":"user-1","username":"genkai","global_name":"","bot":true}`), nil
		}
		t.Fatalf("unexpected request path: %s", req.URL.Path)
		return nil, nil
	})

	c := &Client{session: s}
	member, err := c.ResolveMember("guild-1", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if member.DisplayName != "genkai" || !member.IsBot {
		t.Fatalf("unexpected member: %+v", member)
	}
}

func TestResolveMember_NotFound(t *testing.T) {
	s := newTestSession(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, `{"message":"Unknown User","code":10013}`), nil
	})

	c := &Client{session: s}
	if _, err := c.ResolveMember("guild-1", "user-1"); !errors.Is(err, discordpkg.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}
}

func TestVoiceStateEvent(t *testing.T) {
	s := newTestSession(t, failOnREST(t))
	c := &Client{session: s}
	member := &discordgo.Member{User: &discordgo.User{ID: "user-1"}}

	join, ok := c.voiceStateEvent(&discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{GuildID: "guild-1", UserID: "user-1", ChannelID: "vc-1", Member: member},
	})
	if !ok || join.BeforeChannelID != "" || join.AfterChannelID != "vc-1" {
		t.Fatalf("unexpected join event: %+v ok=%v", join, ok)
	}

	leave, ok := c.voiceStateEvent(&discordgo.VoiceStateUpdate{
		VoiceState:   &discordgo.VoiceState{GuildID: "guild-1", UserID: "user-1", ChannelID: "", Member: member},
		BeforeUpdate: &discordgo.VoiceState{ChannelID: "vc-1"},
	})
	if !ok || leave.BeforeChannelID != "vc-1" || leave.AfterChannelID != "" {
		t.Fatalf("unexpected leave event: %+v ok=%v", leave, ok)
	}

	if _, ok := c.voiceStateEvent(&discordgo.VoiceStateUpdate{
		VoiceState:   &discordgo.VoiceState{GuildID: "guild-1", UserID: "user-1", ChannelID: "vc-1", SelfMute: true, Member: member},
		BeforeUpdate: &discordgo.VoiceState{ChannelID: "vc-1"},
	}); ok {
		t.Fatal("expected mute toggle to be ignored")
	}
}

func TestRunReturnsAfterClose(t *testing.T) {
	c := NewClient("token")
	done := make(chan struct{})
	go func() {
		_ = c.Run()
		close(done)
	}()
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	<-done
}
