package spaced

import (
	"errors"
	"fmt"
	"math"

	"topicbot/internal/calendar"
)

// DefaultHorizonYears bounds a run: the last candidate date is start plus
// this many calendar years, inclusive.
const DefaultHorizonYears = 30

// ErrInvalidGrowth is returned for a growth factor below 1, NaN or infinite.
var ErrInvalidGrowth = errors.New("growth factor must be a finite number >= 1")

// ValidateGrowth checks a growth factor before any date is generated.
func ValidateGrowth(growth float64) error {
	if math.IsNaN(growth) || math.IsInf(growth, 0) || growth < 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidGrowth, growth)
	}
	return nil
}

// Offsets returns the day offsets from start for every date in the run,
// starting with 0. maxDays is the inclusive upper bound.
//
// The step taken after each date is floor(gap); gap starts at 1 and is
// multiplied by growth after every step, so the offsets strictly increase.
func Offsets(growth float64, maxDays int) ([]int, error) {
	if err := ValidateGrowth(growth); err != nil {
		return nil, err
	}
	if maxDays < 0 {
		return nil, nil
	}
	var out []int
	gap := 1.0
	for off := 0; off <= maxDays; {
		out = append(out, off)
		step := math.Floor(gap)
		// Past the horizon already; also keeps huge gaps from overflowing int.
		if step > float64(maxDays-off) {
			break
		}
		off += int(step)
		gap *= growth
	}
	return out, nil
}

// Plan returns the dates of a run from start to start+years (inclusive).
func Plan(start calendar.Date, growth float64, years int) ([]calendar.Date, error) {
	if years <= 0 {
		years = DefaultHorizonYears
	}
	horizon := start.AddYears(years)
	offs, err := Offsets(growth, start.DaysUntil(horizon))
	if err != nil {
		return nil, err
	}
	dates := make([]calendar.Date, len(offs))
	for i, off := range offs {
		dates[i] = start.AddDays(off)
	}
	return dates, nil
}
