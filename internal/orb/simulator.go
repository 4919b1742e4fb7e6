package orb

import (
	"errors"
	"fmt"
	"math"

	"orb-lab/internal/domain"
	"orb-lab/internal/lookup"
)

// Params are the trade parameters applied to a breakout.
type Params struct {
	RiskReward float64
	StopMode   domain.StopMode
}

// Validate checks trade parameters.
func (p Params) Validate() error {
	if p.RiskReward <= 0 || math.IsNaN(p.RiskReward) || math.IsInf(p.RiskReward, 0) {
		return fmt.Errorf("risk reward must be positive, got %v", p.RiskReward)
	}
	if !p.StopMode.IsValid() {
		return fmt.Errorf("unknown stop mode %q", p.StopMode)
	}
	return nil
}

// Levels are the price levels of an opened trade.
type Levels struct {
	Entry  float64
	Stop   float64
	Target float64
	Risk   float64 // |entry - stop|
}

// ComputeLevels derives stop and target from the range, the direction and the entry.
//   - HALF: stop at the range midpoint; FULL: stop at the opposite edge
//   - target = entry + sign(direction) * RR * |entry - stop|
func ComputeLevels(rng domain.ORBRange, dir domain.BreakDirection, entry float64, p Params) Levels {
	var stop float64
	switch p.StopMode {
	case domain.StopModeHalf:
		stop = rng.Midpoint()
	default:
		if dir == domain.DirectionUp {
			stop = rng.Low
		} else {
			stop = rng.High
		}
	}

	risk := math.Abs(entry - stop)
	return Levels{
		Entry:  entry,
		Stop:   stop,
		Target: entry + dir.Sign()*p.RiskReward*risk,
		Risk:   risk,
	}
}

// Result is the full outcome of one ORB window.
type Result struct {
	Range   *domain.ORBRange // nil on data gap
	DataGap bool
	Trade   domain.GradedTrade
}

// Simulate runs range detection, breakout detection and trade resolution for one window.
// A window without bars yields a data-gap result with a NO_TRADE outcome. Unordered or
// duplicate bars, and an entry equal to a range edge, are integrity violations.
func Simulate(bars []*domain.Bar, w Window, p Params) (*Result, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := lookup.CheckOrdered(bars); err != nil {
		return nil, err
	}

	rng, err := DetectRange(bars, w)
	if errors.Is(err, domain.ErrDataGap) {
		return &Result{DataGap: true, Trade: domain.NoTrade(p.RiskReward, p.StopMode)}, nil
	}
	if err != nil {
		return nil, err
	}

	bo := DetectBreakout(bars, w, rng)
	if bo == nil {
		return &Result{Range: &rng, Trade: domain.NoTrade(p.RiskReward, p.StopMode)}, nil
	}

	if err := CheckEntry(w, rng, bo); err != nil {
		return nil, err
	}

	levels := ComputeLevels(rng, bo.Direction, bo.EntryPrice, p)
	trade := Resolve(bars, w, bo, levels, p)
	return &Result{Range: &rng, Trade: trade}, nil
}

// CheckEntry asserts that the entry lies strictly beyond the edge it broke.
// An entry equal to either edge means the scan read the wrong bar.
func CheckEntry(w Window, rng domain.ORBRange, bo *Breakout) error {
	violation := func(detail string) error {
		return &domain.IntegrityViolation{
			Instrument: w.Instrument,
			Window:     w.Name,
			Field:      "entry_price",
			Detail:     detail,
		}
	}

	if bo.EntryPrice == rng.High || bo.EntryPrice == rng.Low {
		return violation(fmt.Sprintf("entry %v equals range edge (high=%v low=%v)", bo.EntryPrice, rng.High, rng.Low))
	}
	switch bo.Direction {
	case domain.DirectionUp:
		if bo.EntryPrice <= rng.High {
			return violation(fmt.Sprintf("UP entry %v not above high %v", bo.EntryPrice, rng.High))
		}
	case domain.DirectionDown:
		if bo.EntryPrice >= rng.Low {
			return violation(fmt.Sprintf("DOWN entry %v not below low %v", bo.EntryPrice, rng.Low))
		}
	default:
		return violation(fmt.Sprintf("breakout without direction (%q)", bo.Direction))
	}
	if bo.Bar.Timestamp < w.End {
		return violation(fmt.Sprintf("trigger bar %d inside formation window ending %d", bo.Bar.Timestamp, w.End))
	}
	return nil
}

// Resolve walks bars after the trigger bar up to ScanEnd and grades the trade.
// A bar touching both stop and target resolves as LOSS.
func Resolve(bars []*domain.Bar, w Window, bo *Breakout, lv Levels, p Params) domain.GradedTrade {
	dir := bo.Direction
	entryTime := bo.EntryTime

	trade := domain.GradedTrade{
		Direction:   dir,
		RiskReward:  p.RiskReward,
		StopMode:    p.StopMode,
		EntryTime:   &entryTime,
		EntryPrice:  float64Ptr(lv.Entry),
		StopPrice:   float64Ptr(lv.Stop),
		TargetPrice: float64Ptr(lv.Target),
		Risk:        float64Ptr(lv.Risk),
	}

	var mae, mfe float64
	lastClose := lv.Entry
	lastTime := entryTime

	for _, b := range lookup.Between(bars, bo.Bar.Timestamp+1, w.ScanEnd) {
		var adverse, favorable float64
		var hitStop, hitTarget bool
		if dir == domain.DirectionUp {
			adverse = lv.Entry - b.Low
			favorable = b.High - lv.Entry
			hitStop = b.Low <= lv.Stop
			hitTarget = b.High >= lv.Target
		} else {
			adverse = b.High - lv.Entry
			favorable = lv.Entry - b.Low
			hitStop = b.High >= lv.Stop
			hitTarget = b.Low <= lv.Target
		}
		mae = math.Max(mae, adverse)
		mfe = math.Max(mfe, favorable)

		switch {
		case hitStop:
			// Includes the both-touched case: worst case is assumed.
			return finish(trade, domain.OutcomeLoss, -1, b.CloseTime(), lv.Stop, mae, mfe)
		case hitTarget:
			return finish(trade, domain.OutcomeWin, p.RiskReward, b.CloseTime(), lv.Target, mae, mfe)
		}

		lastClose = b.Close
		lastTime = b.CloseTime()
	}

	r := 0.0
	if lv.Risk > 0 {
		r = dir.Sign() * (lastClose - lv.Entry) / lv.Risk
	}
	return finish(trade, domain.OutcomeTimeExit, r, lastTime, lastClose, mae, mfe)
}

func finish(t domain.GradedTrade, outcome domain.Outcome, r float64, exitTime int64, exitPrice, mae, mfe float64) domain.GradedTrade {
	t.Outcome = outcome
	t.RMultiple = float64Ptr(r)
	t.ExitTime = &exitTime
	t.ExitPrice = float64Ptr(exitPrice)
	t.MAE = float64Ptr(mae)
	t.MFE = float64Ptr(mfe)
	return t
}

func float64Ptr(v float64) *float64 {
	return &v
}
