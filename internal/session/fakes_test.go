package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/genkaipoint/internal/discord"
	"github.com/foxseedlab/genkaipoint/internal/genkai"
	"github.com/foxseedlab/genkaipoint/internal/plot"
	"github.com/foxseedlab/genkaipoint/internal/repository"
)

type fakeStore struct {
	mu          sync.Mutex
	sessions    []genkai.Session
	nextID      int
	appendErrBy map[string]error
	listErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{appendErrBy: make(map[string]error)}
}

func (s *fakeStore) AppendSession(_ context.Context, input repository.AppendSessionInput) (*genkai.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendErrBy[input.UserID]; err != nil {
		return nil, err
	}
	for _, v := range s.sessions {
		if v.UserID == input.UserID && v.IsOpen() {
			return nil, repository.ErrOpenSessionExists
		}
	}
	s.nextID++
	created := genkai.Session{ID: fmt.Sprintf("session-%d", s.nextID), UserID: input.UserID, JoinedAt: input.JoinedAt}
	s.sessions = append(s.sessions, created)
	return &created, nil
}

func (s *fakeStore) CloseSession(_ context.Context, input repository.CloseSessionInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.sessions {
		if v.UserID == input.UserID && v.IsOpen() {
			left := input.LeftAt
			s.sessions[i].LeftAt = &left
			return nil
		}
	}
	return repository.ErrNoOpenSession
}

func (s *fakeStore) ReopenSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.sessions {
		if v.ID == sessionID && !v.IsOpen() {
			s.sessions[i].LeftAt = nil
			return nil
		}
	}
	return repository.ErrSessionNotFound
}

func (s *fakeStore) ListUserSessions(_ context.Context, userID string) ([]genkai.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var list []genkai.Session
	for _, v := range s.sessions {
		if v.UserID == userID {
			list = append(list, cloneSession(v))
		}
	}
	return list, nil
}

func (s *fakeStore) ListAllSessions(_ context.Context) ([]genkai.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	list := make([]genkai.Session, 0, len(s.sessions))
	for _, v := range s.sessions {
		list = append(list, cloneSession(v))
	}
	return list, nil
}

func (s *fakeStore) ListOpenUserIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, v := range s.sessions {
		if v.IsOpen() {
			ids = append(ids, v.UserID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *fakeStore) add(userID string, joined time.Time, left *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.sessions = append(s.sessions, genkai.Session{ID: fmt.Sprintf("session-%d", s.nextID), UserID: userID, JoinedAt: joined, LeftAt: left})
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *fakeStore) openIDs(t *testing.T) []string {
	t.Helper()
	ids, _ := s.ListOpenUserIDs(context.Background())
	return ids
}

func cloneSession(v genkai.Session) genkai.Session {
	if v.LeftAt != nil {
		left := *v.LeftAt
		v.LeftAt = &left
	}
	return v
}

type sentMessage struct {
	channelID string
	content   string
}

type mockDiscordClient struct {
	mu              sync.Mutex
	sendCalls       []sentMessage
	fileCalls       []discord.FileMessage
	participants    []discord.VoiceParticipant
	participantsErr error
}

func (m *mockDiscordClient) Connect(_ context.Context) error { return nil }
func (m *mockDiscordClient) Close() error                    { return nil }
func (m *mockDiscordClient) SendChannelMessage(channelID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls = append(m.sendCalls, sentMessage{channelID: channelID, content: content})
	return nil
}
func (m *mockDiscordClient) SendChannelMessageWithFile(msg discord.FileMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fileCalls = append(m.fileCalls, msg)
	return nil
}
func (m *mockDiscordClient) RegisterVoiceStateUpdateHandler(_ func(discord.VoiceStateEvent)) {}
func (m *mockDiscordClient) RegisterMessageHandler(_ func(discord.MessageEvent))             {}
func (m *mockDiscordClient) ListGuildVoiceParticipants(_ string) ([]discord.VoiceParticipant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.participantsErr != nil {
		return nil, m.participantsErr
	}
	return append([]discord.VoiceParticipant(nil), m.participants...), nil
}
func (m *mockDiscordClient) ResolveMember(_, userID string) (discord.Member, error) {
	return discord.Member{UserID: userID, DisplayName: userID}, nil
}
func (m *mockDiscordClient) GetBotUserID() (string, error) { return "bot-self", nil }
func (m *mockDiscordClient) Run() error                    { return nil }

func (m *mockDiscordClient) setParticipants(participants []discord.VoiceParticipant, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants = participants
	m.participantsErr = err
}

func (m *mockDiscordClient) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sendCalls...)
}

type mockDirectory struct {
	names map[string]string
	bots  map[string]bool
}

func (d *mockDirectory) DisplayName(_ context.Context, userID string) (string, error) {
	name, ok := d.names[userID]
	if !ok {
		return "", discord.ErrMemberNotFound
	}
	return name, nil
}

func (d *mockDirectory) IsAutomated(_ context.Context, userID string) (bool, error) {
	if _, ok := d.names[userID]; !ok {
		return false, discord.ErrMemberNotFound
	}
	return d.bots[userID], nil
}

type mockRenderer struct {
	rendered [][]genkai.Series
	err      error
}

func (r *mockRenderer) Render(series []genkai.Series) (plot.Image, error) {
	if r.err != nil {
		return plot.Image{}, r.err
	}
	r.rendered = append(r.rendered, series)
	return plot.Image{Filename: "graph.png", ContentType: "image/png", Body: []byte("png")}, nil
}

var errStoreDown = errors.New("store down")

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(message)
}
