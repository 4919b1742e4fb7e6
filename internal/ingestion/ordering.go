package ingestion

import (
	"errors"
	"sort"
	"time"

	"orb-lab/internal/domain"
)

// ErrInvalidOrdering is returned when bars are not strictly ascending.
var ErrInvalidOrdering = errors.New("bars are not in deterministic order")

// SortBars orders bars by (instrument ASC, timestamp ASC). The sort is stable so
// repeated keys keep their source order.
func SortBars(bars []*domain.Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		return compareBars(bars[i], bars[j]) < 0
	})
}

// Dedupe drops all but the last bar of each repeated key and returns the dropped
// bars in source order. bars must be sorted.
func Dedupe(bars []*domain.Bar) ([]*domain.Bar, []*domain.Bar) {
	if len(bars) < 2 {
		return bars, nil
	}
	out := make([]*domain.Bar, 0, len(bars))
	var dropped []*domain.Bar
	for _, b := range bars {
		if n := len(out); n > 0 && compareBars(out[n-1], b) == 0 {
			dropped = append(dropped, out[n-1])
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out, dropped
}

// BarKey formats the (instrument, timestamp) key of a bar.
func BarKey(b *domain.Bar) string {
	return b.Instrument + "@" + time.UnixMilli(b.Timestamp).UTC().Format(time.RFC3339)
}

// ValidateBarOrdering checks that bars are strictly ascending.
// Returns ErrInvalidOrdering if not.
func ValidateBarOrdering(bars []*domain.Bar) error {
	for i := 1; i < len(bars); i++ {
		if compareBars(bars[i-1], bars[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// compareBars returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (instrument ASC, timestamp ASC)
func compareBars(a, b *domain.Bar) int {
	if a.Instrument != b.Instrument {
		if a.Instrument < b.Instrument {
			return -1
		}
		return 1
	}
	if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return -1
		}
		return 1
	}
	return 0
}
