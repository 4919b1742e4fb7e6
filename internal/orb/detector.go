// Package orb detects opening ranges and breakouts and simulates the resulting trades.
//
// All functions operate on bars sorted ascending by timestamp. A decision made at a
// bar only reads that bar and earlier ones: the range reads bars inside the window,
// the breakout reads bars from the window close up to the trigger bar, and levels
// derive from the range and the trigger close alone.
package orb

import (
	"fmt"
	"sort"

	"orb-lab/internal/domain"
	"orb-lab/internal/lookup"
)

// Window is an ORB window on a trading day in UTC milliseconds.
type Window struct {
	Instrument string
	Name       string
	Start      int64 // formation start, inclusive
	End        int64 // formation end, exclusive
	ScanEnd    int64 // breakout and resolution horizon, exclusive
}

// Validate checks window bounds.
func (w Window) Validate() error {
	if w.End <= w.Start {
		return fmt.Errorf("window %s: end %d must be after start %d", w.Name, w.End, w.Start)
	}
	if w.ScanEnd < w.End {
		return fmt.Errorf("window %s: scan end %d before window end %d", w.Name, w.ScanEnd, w.End)
	}
	return nil
}

// Breakout is the first close strictly outside the range.
type Breakout struct {
	Direction  domain.BreakDirection
	Bar        *domain.Bar // trigger bar
	EntryPrice float64     // trigger bar close
	EntryTime  int64       // trigger bar close time
}

// DetectRange computes the high/low of bars strictly inside [Start, End).
// Returns domain.ErrDataGap when the window holds no bars.
func DetectRange(bars []*domain.Bar, w Window) (domain.ORBRange, error) {
	inside := lookup.Between(bars, w.Start, w.End)
	if len(inside) == 0 {
		return domain.ORBRange{}, fmt.Errorf("window %s: %w", w.Name, domain.ErrDataGap)
	}

	rng := domain.ORBRange{High: inside[0].High, Low: inside[0].Low, BarCount: len(inside)}
	for _, b := range inside[1:] {
		if b.High > rng.High {
			rng.High = b.High
		}
		if b.Low < rng.Low {
			rng.Low = b.Low
		}
	}
	return rng, nil
}

// DetectBreakout scans bars in [End, ScanEnd) in order and returns the first bar whose
// close lies strictly outside [Low, High]. Returns nil when no bar breaks out.
func DetectBreakout(bars []*domain.Bar, w Window, rng domain.ORBRange) *Breakout {
	for _, b := range lookup.Between(bars, w.End, w.ScanEnd) {
		switch {
		case b.Close > rng.High:
			return &Breakout{Direction: domain.DirectionUp, Bar: b, EntryPrice: b.Close, EntryTime: b.CloseTime()}
		case b.Close < rng.Low:
			return &Breakout{Direction: domain.DirectionDown, Bar: b, EntryPrice: b.Close, EntryTime: b.CloseTime()}
		}
	}
	return nil
}

// LiveRange returns the range formed so far by bars inside the window that have
// closed at or before now. ok is false when no such bar exists.
func LiveRange(bars []*domain.Bar, w Window, now int64) (domain.ORBRange, bool) {
	closed := lookup.ClosedBy(bars, now)
	rng, err := DetectRange(closed, w)
	if err != nil {
		return domain.ORBRange{}, false
	}
	return rng, true
}

// SortBars orders bars by timestamp ascending in place.
func SortBars(bars []*domain.Bar) {
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp < bars[j].Timestamp
	})
}
