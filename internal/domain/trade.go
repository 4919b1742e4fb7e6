package domain

// BreakDirection is the side on which price closed outside an opening range.
type BreakDirection string

const (
	DirectionUp   BreakDirection = "UP"
	DirectionDown BreakDirection = "DOWN"
	DirectionNone BreakDirection = "NONE"
)

// Sign returns +1 for UP, -1 for DOWN and 0 for NONE.
func (d BreakDirection) Sign() float64 {
	switch d {
	case DirectionUp:
		return 1
	case DirectionDown:
		return -1
	default:
		return 0
	}
}

// IsValid checks if the direction is a known value.
func (d BreakDirection) IsValid() bool {
	return d == DirectionUp || d == DirectionDown || d == DirectionNone
}

// Outcome is the graded result of a simulated trade.
type Outcome string

const (
	OutcomeWin      Outcome = "WIN"
	OutcomeLoss     Outcome = "LOSS"
	OutcomeTimeExit Outcome = "TIME_EXIT"
	OutcomeNoTrade  Outcome = "NO_TRADE"
)

// StopMode selects where the protective stop sits relative to the range.
type StopMode string

const (
	StopModeHalf StopMode = "HALF" // range midpoint
	StopModeFull StopMode = "FULL" // opposite edge of the range
)

// IsValid checks if the stop mode is a known value.
func (m StopMode) IsValid() bool {
	return m == StopModeHalf || m == StopModeFull
}

// ORBRange is the high/low established inside an ORB window.
type ORBRange struct {
	High     float64
	Low      float64
	BarCount int // bars that formed the range
}

// Size returns high - low in price units.
func (r ORBRange) Size() float64 {
	return r.High - r.Low
}

// Midpoint returns the centre of the range.
func (r ORBRange) Midpoint() float64 {
	return (r.High + r.Low) / 2
}

// GradedTrade is the simulated outcome of one ORB on one trading day.
// A trade with Direction NONE always has Outcome NO_TRADE and a nil RMultiple.
type GradedTrade struct {
	Direction  BreakDirection
	RiskReward float64
	StopMode   StopMode

	EntryTime   *int64   // close time of the trigger bar (ms)
	EntryPrice  *float64 // first close strictly beyond the range
	StopPrice   *float64
	TargetPrice *float64
	Risk        *float64 // |entry - stop| in price units

	Outcome   Outcome
	RMultiple *float64 // nil for NO_TRADE
	ExitTime  *int64   // close time of the resolving bar (ms)
	ExitPrice *float64

	MAE *float64 // max adverse excursion, price units
	MFE *float64 // max favorable excursion, price units
}

// NoTrade returns a graded trade for a window that never broke out.
func NoTrade(rr float64, mode StopMode) GradedTrade {
	return GradedTrade{
		Direction:  DirectionNone,
		RiskReward: rr,
		StopMode:   mode,
		Outcome:    OutcomeNoTrade,
	}
}

// IsTrade reports whether a position was opened.
func (t *GradedTrade) IsTrade() bool {
	return t.Direction == DirectionUp || t.Direction == DirectionDown
}
