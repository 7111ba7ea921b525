package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/genkaipoint/internal/clock"
	"github.com/foxseedlab/genkaipoint/internal/genkai"
	"github.com/foxseedlab/genkaipoint/internal/identity"
	"github.com/foxseedlab/genkaipoint/internal/reporting"
	"github.com/foxseedlab/genkaipoint/internal/repository"
)

const DefaultInactiveThreshold = 30 * 24 * time.Hour

type RankingQuery struct {
	Formula     genkai.Formula
	SortKey     genkai.SortKey
	Direction   genkai.Direction
	IncludeBots bool
	// InactiveThreshold of zero keeps inactive users.
	InactiveThreshold time.Duration
}

// Stats answers read-only questions about recorded sessions. It takes no
// locks; results reflect whatever the store returns at call time.
type Stats struct {
	store     repository.SessionStore
	directory identity.Directory
	clock     clock.Clock
	location  *time.Location
}

func NewStats(store repository.SessionStore, directory identity.Directory, clk clock.Clock, loc *time.Location) *Stats {
	return &Stats{store: store, directory: directory, clock: clk, location: loc}
}

// GetUserStat returns nil when the user has no sessions.
func (s *Stats) GetUserStat(ctx context.Context, userID string, f genkai.Formula) (*genkai.UserStat, error) {
	sessions, err := s.store.ListUserSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions of %s: %w", userID, err)
	}
	stat, err := genkai.Aggregate(sessions, f, s.clock.Now())
	if err != nil {
		reporting.Report(ctx, err, map[string]string{"op": "user_stat", "user_id": userID})
		return nil, err
	}
	return stat, nil
}

func (s *Stats) GetRanking(ctx context.Context, q RankingQuery) ([]genkai.UserStat, error) {
	sessions, err := s.store.ListAllSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	now := s.clock.Now()
	stats, err := genkai.AggregateByUser(sessions, q.Formula, now)
	if err != nil {
		reporting.Report(ctx, err, map[string]string{"op": "ranking"})
		return nil, err
	}

	filter := genkai.RankingFilter{InactiveThreshold: q.InactiveThreshold}
	if !q.IncludeBots {
		bots := s.automatedUsers(ctx, stats)
		filter.Exclude = func(userID string) bool {
			_, ok := bots[userID]
			return ok
		}
	}
	return genkai.Rank(stats, q.SortKey, q.Direction, filter, now), nil
}

// automatedUsers treats users whose account cannot be resolved as human so
// that a lookup outage does not empty the ranking.
func (s *Stats) automatedUsers(ctx context.Context, stats []genkai.UserStat) map[string]struct{} {
	bots := make(map[string]struct{})
	for _, stat := range stats {
		automated, err := s.directory.IsAutomated(ctx, stat.UserID)
		if err != nil {
			slog.Warn("bot flag lookup failed", "user_id", stat.UserID, "error", err)
			continue
		}
		if automated {
			bots[stat.UserID] = struct{}{}
		}
	}
	return bots
}

// GetPlotSeries returns nil when there is nothing to plot.
func (s *Stats) GetPlotSeries(ctx context.Context, topN int) ([]genkai.Series, error) {
	sessions, err := s.store.ListAllSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	progress := genkai.BuildProgress(sessions, s.location, s.clock.Now(), topN)
	if progress == nil {
		return nil, nil
	}

	series := make([]genkai.Series, 0, len(progress))
	for _, p := range progress {
		series = append(series, genkai.Series{
			UserID: p.UserID,
			Name:   s.displayName(ctx, p.UserID),
			Hours:  p.Hours(),
		})
	}
	return series, nil
}

func (s *Stats) displayName(ctx context.Context, userID string) string {
	name, err := s.directory.DisplayName(ctx, userID)
	if err != nil || name == "" {
		slog.Warn("display name lookup failed; using user id", "user_id", userID, "error", err)
		return userID
	}
	return name
}
