package genkai

import (
	"cmp"
	"errors"
	"fmt"
	"sort"
	"time"
)

const RankingLimit = 20

var ErrUnknownSortKey = errors.New("unknown ranking key")

type SortKey string

const (
	SortByPoint      SortKey = "point"
	SortByDuration   SortKey = "duration"
	SortByEfficiency SortKey = "efficiency"
)

func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case SortByPoint, SortByDuration, SortByEfficiency:
		return k, nil
	case "":
		return SortByPoint, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSortKey, s)
	}
}

type Direction int

const (
	Descending Direction = iota
	Ascending
)

type RankingFilter struct {
	// Exclude drops users for which it returns true. Nil keeps everyone.
	Exclude func(userID string) bool
	// InactiveThreshold drops users whose last activity is older than this.
	// Zero disables the check.
	InactiveThreshold time.Duration
}

// Rank filters stats, orders them by key and returns at most RankingLimit
// entries. Ties keep ascending user ID order.
func Rank(stats []UserStat, key SortKey, dir Direction, filter RankingFilter, now time.Time) []UserStat {
	ranked := make([]UserStat, 0, len(stats))
	for _, s := range stats {
		if filter.Exclude != nil && filter.Exclude(s.UserID) {
			continue
		}
		if filter.InactiveThreshold > 0 && now.Sub(s.LastActivityAt) > filter.InactiveThreshold {
			continue
		}
		ranked = append(ranked, s)
	}

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].UserID < ranked[j].UserID })
	sort.SliceStable(ranked, func(i, j int) bool {
		c := compareBy(key, ranked[i], ranked[j])
		if dir == Ascending {
			return c < 0
		}
		return c > 0
	})

	if len(ranked) > RankingLimit {
		ranked = ranked[:RankingLimit]
	}
	return ranked
}

func compareBy(key SortKey, a, b UserStat) int {
	switch key {
	case SortByDuration:
		return cmp.Compare(a.TotalVCDuration, b.TotalVCDuration)
	case SortByEfficiency:
		return cmp.Compare(a.Efficiency, b.Efficiency)
	default:
		return cmp.Compare(a.GenkaiPoint, b.GenkaiPoint)
	}
}
