package domain

import "time"

// Tier is a coarse quality label used for priority ordering.
type Tier string

const (
	TierTop Tier = "TOP"
	TierMid Tier = "MID"
	TierLow Tier = "LOW"
)

// Rank orders tiers best-first. Unknown tiers sort last.
func (t Tier) Rank() int {
	switch t {
	case TierTop:
		return 0
	case TierMid:
		return 1
	case TierLow:
		return 2
	default:
		return 3
	}
}

// Condition type constants.
const (
	ConditionBreakDirection  = "break_direction"   // value: UP | DOWN
	ConditionMinORBSize      = "min_orb_size"      // value: points
	ConditionMaxRSI          = "max_rsi"           // value: 0..100
	ConditionMinRSI          = "min_rsi"           // value: 0..100
	ConditionMinSessionRange = "min_session_range" // value: SESSION:points
)

// Condition is an optional extra entry filter on a setup.
type Condition struct {
	Type  string
	Value string
}

// SetupParams are the tradable parameters shared by candidates, setups and config.
type SetupParams struct {
	ORBName    string
	RiskReward float64
	StopMode   StopMode
	SizeFilter *float64   // max ORB size as a fraction of ATR
	Condition  *Condition // optional
}

// ValidatedSetup is an approved production setup.
// Corresponds to validated_setups table in PostgreSQL. Rows are append-only;
// several rows may share (instrument, orb_name).
type ValidatedSetup struct {
	SetupID    string // deterministic hash of instrument + params
	Instrument string
	SetupParams

	Tier         Tier
	WinRate      float64 // historical, 0..1
	AvgR         float64 // historical expectancy in R
	AnnualTrades float64 // historical trades per year

	CandidateID int64     // edge candidate that produced this setup, 0 if seeded
	Sequence    int64     // insertion order within the table
	CreatedAt   time.Time // record creation time
}
