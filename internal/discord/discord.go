package discord

import (
	"context"
	"errors"
)

var (
	ErrGuildNotCached = errors.New("guild is not in the gateway cache yet")
	ErrMemberNotFound = errors.New("member not found")
)

type FileMessage struct {
	ChannelID   string
	Content     string
	Filename    string
	ContentType string
	FileBody    []byte
}

type VoiceStateEvent struct {
	GuildID         string
	UserID          string
	UserIsBot       bool
	BeforeChannelID string
	AfterChannelID  string
}

type MessageEvent struct {
	GuildID     string
	ChannelID   string
	MessageID   string
	AuthorID    string
	AuthorIsBot bool
	Content     string
}

type VoiceParticipant struct {
	UserID    string
	ChannelID string
	IsBot     bool
}

type Member struct {
	UserID      string
	DisplayName string
	IsBot       bool
}

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	SendChannelMessage(channelID, content string) error
	SendChannelMessageWithFile(msg FileMessage) error
	RegisterVoiceStateUpdateHandler(handler func(VoiceStateEvent))
	RegisterMessageHandler(handler func(MessageEvent))
	// ListGuildVoiceParticipants returns everyone currently connected to any
	// voice channel of the guild.
	ListGuildVoiceParticipants(guildID string) ([]VoiceParticipant, error)
	ResolveMember(guildID, userID string) (Member, error)
	GetBotUserID() (string, error)
	Run() error
}
