// Package lookup provides ordered access to bar series.
// Every function expects bars sorted by timestamp ascending; CheckOrdered
// enforces that precondition at package boundaries.
package lookup

import (
	"fmt"
	"sort"

	"orb-lab/internal/domain"
)

// CheckOrdered verifies bars are strictly ascending by timestamp and belong to one instrument.
// A repeated timestamp is reported as an integrity violation (duplicate primary key).
func CheckOrdered(bars []*domain.Bar) error {
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1], bars[i]
		if cur.Instrument != prev.Instrument {
			return &domain.IntegrityViolation{
				Instrument: cur.Instrument,
				Field:      "instrument",
				Detail:     fmt.Sprintf("mixed instruments %s and %s in one series", prev.Instrument, cur.Instrument),
			}
		}
		if cur.Timestamp == prev.Timestamp {
			return &domain.IntegrityViolation{
				Instrument: cur.Instrument,
				Field:      "timestamp",
				Detail:     fmt.Sprintf("duplicate bar at %d", cur.Timestamp),
			}
		}
		if cur.Timestamp < prev.Timestamp {
			return &domain.IntegrityViolation{
				Instrument: cur.Instrument,
				Field:      "timestamp",
				Detail:     fmt.Sprintf("bars out of order: %d after %d", cur.Timestamp, prev.Timestamp),
			}
		}
	}
	return nil
}

// Between returns the sub-slice of bars with start <= timestamp < end.
// The result shares the backing array.
func Between(bars []*domain.Bar, start, end int64) []*domain.Bar {
	lo := sort.Search(len(bars), func(i int) bool { return bars[i].Timestamp >= start })
	hi := sort.Search(len(bars), func(i int) bool { return bars[i].Timestamp >= end })
	if lo >= hi {
		return nil
	}
	return bars[lo:hi]
}

// ClosedBy returns bars whose close is known at or before t (timestamp + interval <= t).
func ClosedBy(bars []*domain.Bar, t int64) []*domain.Bar {
	hi := sort.Search(len(bars), func(i int) bool { return bars[i].CloseTime() > t })
	return bars[:hi]
}

// LastClosedBy returns the latest bar closed at or before t, or nil.
func LastClosedBy(bars []*domain.Bar, t int64) *domain.Bar {
	closed := ClosedBy(bars, t)
	if len(closed) == 0 {
		return nil
	}
	return closed[len(closed)-1]
}
