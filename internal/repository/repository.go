package repository

import (
	"context"
	"time"

	"github.com/foxseedlab/genkaipoint/internal/genkai"
)

type AppendSessionInput struct {
	UserID   string
	JoinedAt time.Time
}

type CloseSessionInput struct {
	UserID string
	LeftAt time.Time
}

// SessionStore persists voice sessions. Implementations must refuse to hold
// two open sessions for one user and report ErrOpenSessionExists instead.
type SessionStore interface {
	AppendSession(ctx context.Context, input AppendSessionInput) (*genkai.Session, error)
	// CloseSession sets LeftAt on the user's open session, or returns
	// ErrNoOpenSession.
	CloseSession(ctx context.Context, input CloseSessionInput) error
	// ReopenSession clears LeftAt of a closed session.
	ReopenSession(ctx context.Context, sessionID string) error
	ListUserSessions(ctx context.Context, userID string) ([]genkai.Session, error)
	ListAllSessions(ctx context.Context) ([]genkai.Session, error)
	ListOpenUserIDs(ctx context.Context) ([]string, error)
}
