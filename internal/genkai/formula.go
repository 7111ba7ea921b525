package genkai

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	PointMax = 10
	PointMin = 0
)

var ErrUnknownFormula = errors.New("unknown formula")

var hourWeights = [24]uint64{
	7, 8, 9, 10, 9, 8, 7, 5, 3, 1,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	1, 3, 5,
}

// HourWeight returns the points awarded for reaching the given local hour.
func HourWeight(hour int) uint64 {
	return hourWeights[((hour%24)+24)%24]
}

type Formula interface {
	Name() string
	Calc(s Session, now time.Time) uint64
}

// HourlyFormula awards HourWeight(hour) at every whole hour elapsed since
// JoinedAt. The boundaries are relative to the join instant, not to o'clock
// marks, so a stay shorter than one hour earns nothing.
type HourlyFormula struct {
	Location *time.Location
}

func (HourlyFormula) Name() string { return "v1" }

func (f HourlyFormula) Calc(s Session, now time.Time) uint64 {
	loc := locationOrUTC(f.Location)
	end := s.End(now)

	var points uint64
	for b := s.JoinedAt.Add(time.Hour); !b.After(end); b = b.Add(time.Hour) {
		points += HourWeight(b.In(loc).Hour())
	}
	return points
}

// ProratedFormula integrates the weight over the session instead of sampling
// it. The interval (H:00, H+1:00] carries HourWeight(H+1), so sessions that
// start and end on whole local hours score exactly like HourlyFormula.
type ProratedFormula struct {
	Location *time.Location
}

func (ProratedFormula) Name() string { return "v2" }

func (f ProratedFormula) Calc(s Session, now time.Time) uint64 {
	loc := locationOrUTC(f.Location)
	end := s.End(now)

	var total float64
	cursor := s.JoinedAt
	for cursor.Before(end) {
		next := nextHourMark(cursor, loc)
		segmentEnd := next
		if end.Before(segmentEnd) {
			segmentEnd = end
		}
		total += float64(HourWeight(next.In(loc).Hour())) * segmentEnd.Sub(cursor).Hours()
		cursor = segmentEnd
	}
	return uint64(math.Round(total))
}

// nextHourMark returns the first local o'clock strictly after t.
func nextHourMark(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	floor := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
	return floor.Add(time.Hour)
}

// FormulaByName resolves the identifiers accepted by --formula.
func FormulaByName(name string, loc *time.Location) (Formula, error) {
	switch name {
	case "v1", "":
		return HourlyFormula{Location: loc}, nil
	case "v2":
		return ProratedFormula{Location: loc}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormula, name)
	}
}

func locationOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
