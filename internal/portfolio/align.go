package portfolio

import (
	"sort"
	"time"

	"ctacore/internal/types"
)

// AlignBars merges per-symbol bar histories onto the union of their
// timestamps. Where a symbol has no bar at a timestamp, a zero-volume
// bar pinned at its previous close is synthesised, so every slice
// carries every symbol that has started trading. Bars must be oldest
// first.
func AlignBars(histories map[string][]*types.Bar) []map[string]*types.Bar {
	seen := make(map[time.Time]bool)
	var stamps []time.Time
	for _, h := range histories {
		for _, bar := range h {
			if !seen[bar.Datetime] {
				seen[bar.Datetime] = true
				stamps = append(stamps, bar.Datetime)
			}
		}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	index := make(map[string]map[time.Time]*types.Bar, len(histories))
	for vt, h := range histories {
		m := make(map[time.Time]*types.Bar, len(h))
		for _, bar := range h {
			m[bar.Datetime] = bar
		}
		index[vt] = m
	}

	lastClose := make(map[string]float64)
	out := make([]map[string]*types.Bar, 0, len(stamps))

	for _, ts := range stamps {
		slice := make(map[string]*types.Bar, len(histories))
		for vt := range histories {
			if bar, ok := index[vt][ts]; ok {
				slice[vt] = bar
				lastClose[vt] = bar.ClosePrice
				continue
			}
			// no bar before the symbol's first timestamp
			prev, ok := lastClose[vt]
			if !ok {
				continue
			}
			sym, exch, err := types.ExtractVtSymbol(vt)
			if err != nil {
				continue
			}
			slice[vt] = &types.Bar{
				Symbol:     sym,
				Exchange:   exch,
				Interval:   types.IntervalMinute,
				Datetime:   ts,
				OpenPrice:  prev,
				HighPrice:  prev,
				LowPrice:   prev,
				ClosePrice: prev,
			}
		}
		if len(slice) > 0 {
			out = append(out, slice)
		}
	}
	return out
}
