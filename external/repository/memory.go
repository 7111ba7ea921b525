package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/foxseedlab/genkaipoint/internal/genkai"
	"github.com/foxseedlab/genkaipoint/internal/repository"
	"github.com/google/uuid"
)

// MemoryStore keeps sessions in process memory. With a snapshot attached,
// every mutation is written through to disk before the call returns.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions []genkai.Session
	snapshot *SnapshotFile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewPersistentMemoryStore loads the snapshot if it exists and keeps it
// updated afterwards.
func NewPersistentMemoryStore(snapshot *SnapshotFile) (*MemoryStore, error) {
	saved, err := snapshot.Load()
	if err != nil {
		return nil, err
	}
	s := &MemoryStore{snapshot: snapshot}
	for _, v := range saved {
		s.sessions = append(s.sessions, genkai.Session{
			ID:       v.ID,
			UserID:   v.UserID,
			JoinedAt: v.JoinedAt,
			LeftAt:   v.LeftAt,
		})
	}
	slog.Info("memory store restored", "sessions", len(s.sessions))
	return s, nil
}

func (s *MemoryStore) AppendSession(ctx context.Context, input repository.AppendSessionInput) (*genkai.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openIndex(input.UserID) >= 0 {
		return nil, repository.ErrOpenSessionExists
	}
	created := genkai.Session{
		ID:       uuid.NewString(),
		UserID:   input.UserID,
		JoinedAt: input.JoinedAt.UTC(),
	}
	s.sessions = append(s.sessions, created)
	if err := s.persistLocked(); err != nil {
		s.sessions = s.sessions[:len(s.sessions)-1]
		return nil, err
	}
	return &created, nil
}

func (s *MemoryStore) CloseSession(ctx context.Context, input repository.CloseSessionInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.openIndex(input.UserID)
	if i < 0 {
		return repository.ErrNoOpenSession
	}
	left := input.LeftAt.UTC()
	if left.Before(s.sessions[i].JoinedAt) {
		left = s.sessions[i].JoinedAt
	}
	s.sessions[i].LeftAt = &left
	if err := s.persistLocked(); err != nil {
		s.sessions[i].LeftAt = nil
		return err
	}
	return nil
}

func (s *MemoryStore) ReopenSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := -1
	for idx, v := range s.sessions {
		if v.ID == sessionID {
			i = idx
			break
		}
	}
	if i < 0 || s.sessions[i].IsOpen() {
		return repository.ErrSessionNotFound
	}
	if s.openIndex(s.sessions[i].UserID) >= 0 {
		return repository.ErrOpenSessionExists
	}
	prev := s.sessions[i].LeftAt
	s.sessions[i].LeftAt = nil
	if err := s.persistLocked(); err != nil {
		s.sessions[i].LeftAt = prev
		return err
	}
	return nil
}

func (s *MemoryStore) ListUserSessions(ctx context.Context, userID string) ([]genkai.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []genkai.Session
	for _, v := range s.sessions {
		if v.UserID == userID {
			list = append(list, copySession(v))
		}
	}
	sortByJoin(list)
	return list, nil
}

func (s *MemoryStore) ListAllSessions(ctx context.Context) ([]genkai.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]genkai.Session, 0, len(s.sessions))
	for _, v := range s.sessions {
		list = append(list, copySession(v))
	}
	sortByJoin(list)
	return list, nil
}

func (s *MemoryStore) ListOpenUserIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, v := range s.sessions {
		if v.IsOpen() {
			ids = append(ids, v.UserID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Close releases the snapshot codecs. Mutations are already on disk.
func (s *MemoryStore) Close() {
	if s.snapshot != nil {
		s.snapshot.Close()
	}
}

func (s *MemoryStore) openIndex(userID string) int {
	for i, v := range s.sessions {
		if v.UserID == userID && v.IsOpen() {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) persistLocked() error {
	if s.snapshot == nil {
		return nil
	}
	out := make([]snapshotSession, len(s.sessions))
	for i, v := range s.sessions {
		out[i] = snapshotSession{ID: v.ID, UserID: v.UserID, JoinedAt: v.JoinedAt, LeftAt: v.LeftAt}
	}
	if err := s.snapshot.Save(out); err != nil {
		return fmt.Errorf("persist memory store: %w", err)
	}
	return nil
}

func copySession(v genkai.Session) genkai.Session {
	if v.LeftAt != nil {
		left := *v.LeftAt
		v.LeftAt = &left
	}
	return v
}

func sortByJoin(list []genkai.Session) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].JoinedAt.Before(list[j].JoinedAt) })
}
