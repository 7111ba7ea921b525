package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/genkaipoint/internal/genkai"
)

type rankedEntry struct {
	stat genkai.UserStat
	name string
}

func formatUserStat(name, formula string, stat genkai.UserStat) string {
	return fmt.Sprintf(messageUserStatFormat,
		name,
		formula,
		stat.GenkaiPoint,
		hours(stat.TotalVCDuration),
		stat.Efficiency*100,
	)
}

func formatRanking(key genkai.SortKey, formula string, entries []rankedEntry) string {
	lines := make([]string, 0, len(entries)+3)
	lines = append(lines, "```", fmt.Sprintf(messageRankingHeaderFormat, key, formula))
	for i, e := range entries {
		lines = append(lines, fmt.Sprintf(messageRankingRowFormat,
			i+1,
			e.stat.GenkaiPoint,
			hours(e.stat.TotalVCDuration),
			e.stat.Efficiency*100,
			e.name,
		))
	}
	lines = append(lines, "```")
	return strings.Join(lines, "\n")
}

// formatLeaveSummary reports the running totals after a session closes along
// with what the closed session added.
func formatLeaveSummary(userID string, total genkai.UserStat, sessionPoints uint64, sessionDuration time.Duration) string {
	return fmt.Sprintf(messageLeaveSummaryFormat,
		userID,
		total.GenkaiPoint,
		sessionPoints,
		hours(total.TotalVCDuration),
		hours(sessionDuration),
	)
}

// hours truncates to whole minutes before converting.
func hours(d time.Duration) float64 {
	return float64(d/time.Minute) / 60
}
