package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/genkaipoint/internal/discord"
)

type Client struct {
	session   *discordgo.Session
	token     string
	botUserID string

	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(token string) *Client {
	return &Client{
		token: token,
		done:  make(chan struct{}),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	s, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return err
	}
	c.session = s
	s.Identify.Intents = discordgo.MakeIntent(
		discordgo.IntentsGuilds |
			discordgo.IntentsGuildVoiceStates |
			discordgo.IntentsGuildMessages |
			discordgo.IntentsMessageContent,
	)
	s.State.TrackVoice = true

	opened := make(chan error, 1)
	go func() { opened <- s.Open() }()
	select {
	case err := <-opened:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return fmt.Errorf("discord gateway open: %w", ctx.Err())
	}

	userID, err := c.GetBotUserID()
	if err != nil {
		return err
	}
	c.botUserID = userID
	return nil
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *Client) SendChannelMessage(channelID, content string) error {
	if c.session == nil {
		return fmt.Errorf("discord session is not initialized")
	}
	_, err := c.session.ChannelMessageSend(channelID, content)
	return err
}

func (c *Client) SendChannelMessageWithFile(msg discordpkg.FileMessage) error {
	if c.session == nil {
		return fmt.Errorf("discord session is not initialized")
	}
	contentType := msg.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := c.session.ChannelMessageSendComplex(msg.ChannelID, &discordgo.MessageSend{
		Content: msg.Content,
		Files: []*discordgo.File{
			{Name: msg.Filename, ContentType: contentType, Reader: bytes.NewReader(msg.FileBody)},
		},
	})
	return err
}

func (c *Client) RegisterVoiceStateUpdateHandler(handler func(discordpkg.VoiceStateEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		if event, ok := c.voiceStateEvent(vs); ok {
			handler(event)
		}
	})
}

func (c *Client) voiceStateEvent(vs *discordgo.VoiceStateUpdate) (discordpkg.VoiceStateEvent, bool) {
	if vs == nil || vs.VoiceState == nil {
		return discordpkg.VoiceStateEvent{}, false
	}
	beforeChannelID := ""
	if vs.BeforeUpdate != nil {
		beforeChannelID = vs.BeforeUpdate.ChannelID
	}
	afterChannelID := vs.ChannelID
	// mute, deafen and stream toggles
	if beforeChannelID == afterChannelID && beforeChannelID != "" {
		return discordpkg.VoiceStateEvent{}, false
	}
	if vs.GuildID == "" || vs.UserID == "" {
		return discordpkg.VoiceStateEvent{}, false
	}
	return discordpkg.VoiceStateEvent{
		GuildID:         vs.GuildID,
		UserID:          vs.UserID,
		UserIsBot:       c.resolveUserIsBot(vs.GuildID, vs.UserID, vs.VoiceState),
		BeforeChannelID: beforeChannelID,
		AfterChannelID:  afterChannelID,
	}, true
}

func (c *Client) RegisterMessageHandler(handler func(discordpkg.MessageEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, mc *discordgo.MessageCreate) {
		if mc == nil || mc.Message == nil || mc.Author == nil {
			return
		}
		handler(discordpkg.MessageEvent{
			GuildID:     mc.GuildID,
			ChannelID:   mc.ChannelID,
			MessageID:   mc.ID,
			AuthorID:    mc.Author.ID,
			AuthorIsBot: mc.Author.Bot,
			Content:     mc.Content,
		})
	})
}

func (c *Client) ListGuildVoiceParticipants(guildID string) ([]discordpkg.VoiceParticipant, error) {
	if c.session == nil || c.session.State == nil {
		return nil, discordpkg.ErrGuildNotCached
	}
	guild, err := c.session.State.Guild(guildID)
	if err != nil || guild == nil {
		return nil, discordpkg.ErrGuildNotCached
	}

	c.session.State.RLock()
	states := make([]*discordgo.VoiceState, len(guild.VoiceStates))
	copy(states, guild.VoiceStates)
	c.session.State.RUnlock()

	participants := make([]discordpkg.VoiceParticipant, 0, len(states))
	seen := make(map[string]struct{}, len(states))
	for _, state := range states {
		if state == nil || state.ChannelID == "" || state.UserID == "" {
			continue
		}
		if _, exists := seen[state.UserID]; exists {
			continue
		}
		seen[state.UserID] = struct{}{}
		participants = append(participants, discordpkg.VoiceParticipant{
			UserID:    state.UserID,
			ChannelID: state.ChannelID,
			IsBot:     c.resolveUserIsBot(guildID, state.UserID, state),
		})
	}
	return participants, nil
}

func (c *Client) ResolveMember(guildID, userID string) (discordpkg.Member, error) {
	if c.session == nil {
		return discordpkg.Member{}, fmt.Errorf("discord session is not initialized")
	}

	if member := c.resolveGuildMember(guildID, userID); member != nil && member.User != nil {
		displayName := member.Nick
		if displayName == "" {
			displayName = preferredDiscordName(member.User.GlobalName, member.User.Username, userID)
		}
		return discordpkg.Member{UserID: userID, DisplayName: displayName, IsBot: member.User.Bot}, nil
	}

	u, err := c.session.User(userID)
	if err != nil {
		if isRESTNotFound(err) {
			return discordpkg.Member{}, discordpkg.ErrMemberNotFound
		}
		return discordpkg.Member{}, err
	}
	if u == nil {
		return discordpkg.Member{}, discordpkg.ErrMemberNotFound
	}
	return discordpkg.Member{
		UserID:      userID,
		DisplayName: preferredDiscordName(u.GlobalName, u.Username, userID),
		IsBot:       u.Bot,
	}, nil
}

func isRESTNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Response == nil {
		return false
	}
	return restErr.Response.StatusCode == http.StatusNotFound
}

func (c *Client) GetBotUserID() (string, error) {
	if c.botUserID != "" {
		return c.botUserID, nil
	}
	if c.session == nil {
		return "", fmt.Errorf("discord session is not initialized")
	}
	if c.session.State != nil && c.session.State.User != nil && c.session.State.User.ID != "" {
		c.botUserID = c.session.State.User.ID
		return c.botUserID, nil
	}
	u, err := c.session.User("@me")
	if err != nil {
		return "", err
	}
	c.botUserID = u.ID
	return c.botUserID, nil
}

// resolveUserIsBot prefers the member embedded in the voice state and falls
// back to a member lookup. Unknown users count as human.
func (c *Client) resolveUserIsBot(guildID, userID string, state *discordgo.VoiceState) bool {
	if state != nil && state.Member != nil && state.Member.User != nil {
		return state.Member.User.Bot
	}
	if c.botUserID != "" && c.botUserID == userID {
		return true
	}
	member, err := c.ResolveMember(guildID, userID)
	if err != nil {
		slog.Debug("bot flag lookup failed; assuming human", "user_id", userID, "error", err)
		return false
	}
	return member.IsBot
}

func (c *Client) resolveGuildMember(guildID, userID string) *discordgo.Member {
	if c.session.State != nil {
		member, err := c.session.State.Member(guildID, userID)
		if err == nil && member != nil {
			return member
		}
	}
	member, err := c.session.GuildMember(guildID, userID)
	if err != nil {
		return nil
	}
	return member
}

func preferredDiscordName(globalName, username, fallback string) string {
	if globalName != "" {
		return globalName
	}
	if username != "" {
		return username
	}
	return fallback
}

// Run blocks until Close is called. Events are delivered by discordgo's own
// goroutines.
func (c *Client) Run() error {
	<-c.done
	return nil
}
