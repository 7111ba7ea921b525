package genkai

import (
	"errors"
	"sort"
	"time"
)

var ErrMixedUserSessions = errors.New("sessions belong to more than one user")

type UserStat struct {
	UserID          string
	GenkaiPoint     uint64
	TotalVCDuration time.Duration
	Efficiency      float64
	LastActivityAt  time.Time
}

// Aggregate folds one user's sessions into a UserStat. It returns nil for an
// empty slice.
func Aggregate(sessions []Session, f Formula, now time.Time) (*UserStat, error) {
	if len(sessions) == 0 {
		return nil, nil
	}

	stat := &UserStat{UserID: sessions[0].UserID}
	for i, s := range sessions {
		if s.UserID != stat.UserID {
			return nil, ErrMixedUserSessions
		}
		stat.GenkaiPoint += f.Calc(s, now)
		stat.TotalVCDuration += s.Duration(now)
		if end := s.End(now); i == 0 || end.After(stat.LastActivityAt) {
			stat.LastActivityAt = end
		}
	}
	stat.Efficiency = efficiency(stat.GenkaiPoint, stat.TotalVCDuration)
	return stat, nil
}

// efficiency is the share of the maximum hourly weight earned per hour spent.
func efficiency(points uint64, d time.Duration) float64 {
	hours := d.Hours()
	if hours <= 0 {
		return 0
	}
	return float64(points) / PointMax / hours
}

// AggregateByUser groups sessions by user and aggregates each group. The
// result is ordered by user ID.
func AggregateByUser(sessions []Session, f Formula, now time.Time) ([]UserStat, error) {
	groups := groupByUser(sessions)
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	stats := make([]UserStat, 0, len(ids))
	for _, id := range ids {
		stat, err := Aggregate(groups[id], f, now)
		if err != nil {
			return nil, err
		}
		stats = append(stats, *stat)
	}
	return stats, nil
}

func groupByUser(sessions []Session) map[string][]Session {
	groups := make(map[string][]Session)
	for _, s := range sessions {
		groups[s.UserID] = append(groups[s.UserID], s)
	}
	return groups
}
