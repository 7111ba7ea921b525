// Package genkai holds the scoring model for voice channel presence: sessions,
// the time-of-day weighted point formulas, per-user aggregation, rankings and
// the cumulative series used for growth charts. Everything here is pure; the
// caller supplies the current instant and the local time zone.
package genkai

import "time"

// Session is one contiguous stay of a user in the guild's voice channels.
// LeftAt is nil while the user is still present.
type Session struct {
	ID       string
	UserID   string
	JoinedAt time.Time
	LeftAt   *time.Time
}

func (s Session) IsOpen() bool {
	return s.LeftAt == nil
}

// End is LeftAt for closed sessions and now for open ones.
func (s Session) End(now time.Time) time.Time {
	if s.LeftAt != nil {
		return *s.LeftAt
	}
	return now
}

// Duration never goes negative, even when now precedes JoinedAt.
func (s Session) Duration(now time.Time) time.Duration {
	d := s.End(now).Sub(s.JoinedAt)
	if d < 0 {
		return 0
	}
	return d
}
