package domain

import "time"

// SessionStat holds the high/low of a named session on one trading day.
// High/Low are nil when no bars fell inside the session.
type SessionStat struct {
	Name string
	High *float64
	Low  *float64
}

// Range returns high - low, or nil when the session has no data.
func (s SessionStat) Range() *float64 {
	if s.High == nil || s.Low == nil {
		return nil
	}
	r := *s.High - *s.Low
	return &r
}

// ORBResult is the per-window portion of a FeatureRow.
type ORBResult struct {
	Name    string
	DataGap bool      // no bars inside the window
	Range   *ORBRange // nil on data gap
	RSI     *float64  // momentum at the window close, nil if insufficient history
	Trade   GradedTrade
}

// FeatureRow is the daily feature record for one instrument.
// Corresponds to daily_features / orb_outcomes tables in PostgreSQL.
type FeatureRow struct {
	TradingDay time.Time // civil date, midnight UTC
	Instrument string

	Sessions []SessionStat // fixed calendar order
	ORBs     []ORBResult   // fixed calendar order

	ATR      *float64 // average true range of prior trading days
	BarCount int      // bars inside the trading day
}

// ORB returns the result for a named window, or nil.
func (r *FeatureRow) ORB(name string) *ORBResult {
	for i := range r.ORBs {
		if r.ORBs[i].Name == name {
			return &r.ORBs[i]
		}
	}
	return nil
}

// Session returns the stat for a named session, or nil.
func (r *FeatureRow) Session(name string) *SessionStat {
	for i := range r.Sessions {
		if r.Sessions[i].Name == name {
			return &r.Sessions[i]
		}
	}
	return nil
}

// DayLayout is the canonical textual form of a trading day.
const DayLayout = "2006-01-02"

// Day builds a civil date at midnight UTC.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a civil date.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, s, time.UTC)
}
