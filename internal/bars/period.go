package bars

import (
	"fmt"
	"strconv"
	"strings"

	"ctacore/internal/types"
)

// Period is a parsed bar period. Exactly one of SecondWindow, Window and
// Days is meaningful depending on Interval:
//
//	"30s" -> {SecondWindow: 30, Interval: second}
//	"1m"  -> {Window: 1, Interval: minute}
//	"5m"  -> {Window: 5, Interval: minute}
//	"2h"  -> {Window: 120, Interval: minute}
//	"1d"  -> {Days: 1, Interval: daily}
//	"3d"  -> {Days: 3, Interval: daily}
type Period struct {
	SecondWindow int
	Window       int
	Days         int
	Interval     types.Interval
}

// ParsePeriod parses a period string of the form "<n><unit>" with unit
// one of s, m, h, d. Hours are folded into minute windows.
func ParsePeriod(text string) (Period, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if len(text) < 2 {
		return Period{}, fmt.Errorf("invalid period %q", text)
	}

	unit := text[len(text)-1]
	n, err := strconv.Atoi(text[:len(text)-1])
	if err != nil || n <= 0 {
		return Period{}, fmt.Errorf("invalid period %q", text)
	}

	switch unit {
	case 's':
		return Period{SecondWindow: n, Interval: types.IntervalSecond}, nil
	case 'm':
		return Period{Window: n, Interval: types.IntervalMinute}, nil
	case 'h':
		return Period{Window: n * 60, Interval: types.IntervalMinute}, nil
	case 'd':
		return Period{Days: n, Interval: types.IntervalDaily}, nil
	default:
		return Period{}, fmt.Errorf("invalid period unit in %q", text)
	}
}

// BarsToMinutes estimates how many minutes of history are needed to
// produce barCount finished bars, with an hour of slack for gaps.
func (p Period) BarsToMinutes(barCount int) int {
	switch {
	case p.SecondWindow > 0:
		return barCount*p.SecondWindow/60 + 60
	case p.Days > 0:
		return barCount * p.Days * 24 * 60
	case p.Window > 0:
		return barCount*p.Window + 60
	default:
		return barCount + 60
	}
}

func (p Period) String() string {
	switch {
	case p.SecondWindow > 0:
		return fmt.Sprintf("%ds", p.SecondWindow)
	case p.Days > 0:
		return fmt.Sprintf("%dd", p.Days)
	default:
		return fmt.Sprintf("%dm", p.Window)
	}
}
