package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/genkaipoint/internal/clock"
	"github.com/foxseedlab/genkaipoint/internal/genkai"
	"github.com/foxseedlab/genkaipoint/internal/metrics"
	"github.com/foxseedlab/genkaipoint/internal/reporting"
	"github.com/foxseedlab/genkaipoint/internal/repository"
)

// ResumeWindow is how long after leaving a rejoin continues the previous
// session instead of starting a new one.
const ResumeWindow = 5 * time.Minute

type JoinResult int

const (
	NewSessionCreated JoinResult = iota + 1
	UnclosedSessionExists
	SessionResumed
)

func (r JoinResult) String() string {
	switch r {
	case NewSessionCreated:
		return "new_session_created"
	case UnclosedSessionExists:
		return "unclosed_session_exists"
	case SessionResumed:
		return "session_resumed"
	default:
		return "unknown"
	}
}

type ReconcileReport struct {
	Joined []string
	Left   []string
}

func (r ReconcileReport) Changed() bool {
	return len(r.Joined) > 0 || len(r.Left) > 0
}

// Manager owns the open/close/resume decisions for sessions. Calls for the
// same user are serialized; different users proceed in parallel.
type Manager struct {
	store   repository.SessionStore
	clock   clock.Clock
	metrics metrics.Recorder
	locks   *keyedMutex
}

func NewManager(store repository.SessionStore, clk clock.Clock, rec metrics.Recorder) *Manager {
	if rec == nil {
		rec = metrics.Noop()
	}
	return &Manager{
		store:   store,
		clock:   clk,
		metrics: rec,
		locks:   newKeyedMutex(),
	}
}

func (m *Manager) Join(ctx context.Context, userID string, at time.Time) (JoinResult, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	result, err := m.join(ctx, userID, at)
	if err != nil {
		return 0, err
	}
	m.metrics.IncJoin(result.String())
	return result, nil
}

func (m *Manager) join(ctx context.Context, userID string, at time.Time) (JoinResult, error) {
	sessions, err := m.store.ListUserSessions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list sessions of %s: %w", userID, err)
	}
	if openSession(sessions) != nil {
		return UnclosedSessionExists, nil
	}

	if last := latestSession(sessions); last != nil && at.Sub(*last.LeftAt) < ResumeWindow {
		err := m.store.ReopenSession(ctx, last.ID)
		switch {
		case err == nil:
			slog.Info("session resumed", "user_id", userID, "session_id", last.ID, "away", at.Sub(*last.LeftAt).String())
			return SessionResumed, nil
		case errors.Is(err, repository.ErrOpenSessionExists):
			return UnclosedSessionExists, nil
		default:
			return 0, fmt.Errorf("reopen session %s: %w", last.ID, err)
		}
	}

	created, err := m.store.AppendSession(ctx, repository.AppendSessionInput{UserID: userID, JoinedAt: at})
	if err != nil {
		if errors.Is(err, repository.ErrOpenSessionExists) {
			return UnclosedSessionExists, nil
		}
		return 0, fmt.Errorf("append session for %s: %w", userID, err)
	}
	slog.Info("session created", "user_id", userID, "session_id", created.ID)
	return NewSessionCreated, nil
}

// Leave closes the user's open session and returns it. It returns
// repository.ErrNoOpenSession when there is nothing to close.
func (m *Manager) Leave(ctx context.Context, userID string, at time.Time) (genkai.Session, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	closed, err := m.leave(ctx, userID, at)
	if err != nil {
		if errors.Is(err, repository.ErrNoOpenSession) {
			m.metrics.IncInvariantViolation("leave")
		}
		return genkai.Session{}, err
	}
	m.metrics.IncLeave()
	return closed, nil
}

func (m *Manager) leave(ctx context.Context, userID string, at time.Time) (genkai.Session, error) {
	sessions, err := m.store.ListUserSessions(ctx, userID)
	if err != nil {
		return genkai.Session{}, fmt.Errorf("list sessions of %s: %w", userID, err)
	}
	open := openSession(sessions)
	if open == nil {
		return genkai.Session{}, repository.ErrNoOpenSession
	}
	if at.Before(open.JoinedAt) {
		at = open.JoinedAt
	}
	if err := m.store.CloseSession(ctx, repository.CloseSessionInput{UserID: userID, LeftAt: at}); err != nil {
		return genkai.Session{}, err
	}
	closed := *open
	closed.LeftAt = &at
	slog.Info("session closed", "user_id", userID, "session_id", closed.ID, "duration", closed.Duration(at).String())
	return closed, nil
}

// Reconcile makes the store agree with the given set of users present in
// voice: missing sessions are opened and stale ones closed at the current
// instant. Failures for one user are collected and do not stop the others.
func (m *Manager) Reconcile(ctx context.Context, present []string) (ReconcileReport, error) {
	now := m.clock.Now()
	var report ReconcileReport
	var errs []error

	presentSet := make(map[string]struct{}, len(present))
	for _, userID := range present {
		if _, dup := presentSet[userID]; dup {
			continue
		}
		presentSet[userID] = struct{}{}

		result, err := m.Join(ctx, userID, now)
		if err != nil {
			slog.Error("reconcile: join failed", "user_id", userID, "error", err)
			errs = append(errs, err)
			continue
		}
		if result == UnclosedSessionExists {
			continue
		}
		slog.Info("joined during downtime", "user_id", userID, "result", result.String())
		m.metrics.IncReconcileCorrection("join")
		report.Joined = append(report.Joined, userID)
	}

	openIDs, err := m.store.ListOpenUserIDs(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("list open sessions: %w", err))
		return report, errors.Join(errs...)
	}
	for _, userID := range openIDs {
		if _, ok := presentSet[userID]; ok {
			continue
		}
		if _, err := m.Leave(ctx, userID, now); err != nil {
			if errors.Is(err, repository.ErrNoOpenSession) {
				// closed by a concurrent leave event
				continue
			}
			slog.Error("reconcile: leave failed", "user_id", userID, "error", err)
			errs = append(errs, err)
			continue
		}
		slog.Info("left during downtime", "user_id", userID)
		m.metrics.IncReconcileCorrection("leave")
		report.Left = append(report.Left, userID)
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		reporting.Report(ctx, err, map[string]string{"op": "reconcile"})
		return report, err
	}
	return report, nil
}

func openSession(sessions []genkai.Session) *genkai.Session {
	for i := range sessions {
		if sessions[i].IsOpen() {
			return &sessions[i]
		}
	}
	return nil
}

// latestSession returns the most recently joined session, which must be
// closed when no open session exists.
func latestSession(sessions []genkai.Session) *genkai.Session {
	var latest *genkai.Session
	for i := range sessions {
		if sessions[i].LeftAt == nil {
			continue
		}
		if latest == nil || sessions[i].JoinedAt.After(latest.JoinedAt) {
			latest = &sessions[i]
		}
	}
	return latest
}
