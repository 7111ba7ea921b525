package genkai

import (
	"sort"
	"time"
)

// DayRange is an inclusive span of local calendar days. Days are stored as
// midnight UTC so that day arithmetic is unaffected by zone offsets.
type DayRange struct {
	First time.Time
	Last  time.Time
}

func (r DayRange) Days() int {
	return daysBetween(r.First, r.Last) + 1
}

func (r DayRange) union(o DayRange) DayRange {
	out := r
	if o.First.Before(out.First) {
		out.First = o.First
	}
	if o.Last.After(out.Last) {
		out.Last = o.Last
	}
	return out
}

// UserProgress is the cumulative presence of one user at the end of each day
// of Range.
type UserProgress struct {
	UserID string
	Range  DayRange
	Daily  []time.Duration
}

func (p UserProgress) Total() time.Duration {
	if len(p.Daily) == 0 {
		return 0
	}
	return p.Daily[len(p.Daily)-1]
}

func (p UserProgress) Hours() []float64 {
	hours := make([]float64, len(p.Daily))
	for i, d := range p.Daily {
		hours[i] = d.Hours()
	}
	return hours
}

// Series is one labelled line of a growth chart.
type Series struct {
	UserID string
	Name   string
	Hours  []float64
}

// DailyProgress splits one user's sessions at local midnights and returns the
// running total at the end of every day between the first join and the last
// leave. Days without presence repeat the previous total.
func DailyProgress(sessions []Session, loc *time.Location, now time.Time) (UserProgress, bool) {
	if len(sessions) == 0 {
		return UserProgress{}, false
	}
	loc = locationOrUTC(loc)
	sorted := sortedByJoin(sessions)

	r := DayRange{First: dayOf(sorted[0].JoinedAt, loc)}
	r.Last = r.First
	for _, s := range sorted {
		if last := dayOf(s.End(now), loc); last.After(r.Last) {
			r.Last = last
		}
	}

	progress := make([]*time.Duration, r.Days())
	zero := time.Duration(0)
	progress[0] = &zero

	for _, s := range sorted {
		end := s.End(now)
		for cursor := s.JoinedAt; cursor.Before(end); {
			segmentEnd := nextMidnight(cursor, loc)
			if end.Before(segmentEnd) {
				segmentEnd = end
			}
			idx := daysBetween(r.First, dayOf(cursor, loc))
			if progress[idx] == nil {
				ForwardFill(progress, idx)
			}
			*progress[idx] += segmentEnd.Sub(cursor)
			cursor = segmentEnd
		}
	}
	ForwardFill(progress, len(progress)-1)

	daily := make([]time.Duration, len(progress))
	for i, d := range progress {
		daily[i] = *d
	}
	return UserProgress{UserID: sorted[0].UserID, Range: r, Daily: daily}, true
}

// AlignProgress stretches daily, which covers own, over global: days before
// own are zero and days after it repeat the final total.
func AlignProgress(daily []time.Duration, own, global DayRange) []time.Duration {
	aligned := make([]*time.Duration, global.Days())
	offset := daysBetween(global.First, own.First)
	for i := 0; i < offset && i < len(aligned); i++ {
		zero := time.Duration(0)
		aligned[i] = &zero
	}
	for i, d := range daily {
		if j := offset + i; j >= 0 && j < len(aligned) {
			v := d
			aligned[j] = &v
		}
	}
	ForwardFill(aligned, len(aligned)-1)

	out := make([]time.Duration, len(aligned))
	for i, d := range aligned {
		if d != nil {
			out[i] = *d
		}
	}
	return out
}

// BuildProgress returns the topN users by total presence with their progress
// aligned to a shared day range. It returns nil when there is nothing to plot.
func BuildProgress(sessions []Session, loc *time.Location, now time.Time, topN int) []UserProgress {
	if len(sessions) == 0 || topN <= 0 {
		return nil
	}

	var all []UserProgress
	for _, group := range groupByUser(sessions) {
		if p, ok := DailyProgress(group, loc, now); ok {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Total() != all[j].Total() {
			return all[i].Total() > all[j].Total()
		}
		return all[i].UserID < all[j].UserID
	})
	if len(all) > topN {
		all = all[:topN]
	}

	global := all[0].Range
	for _, p := range all[1:] {
		global = global.union(p.Range)
	}
	for i := range all {
		all[i].Daily = AlignProgress(all[i].Daily, all[i].Range, global)
		all[i].Range = global
	}
	return all
}

func sortedByJoin(sessions []Session) []Session {
	sorted := make([]Session, len(sessions))
	copy(sorted, sessions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].JoinedAt.Before(sorted[j].JoinedAt) })
	return sorted
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func nextMidnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}
