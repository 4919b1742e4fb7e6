// Package verification rebuilds stored feature rows and reports field-level drift.
package verification

import (
	"fmt"
	"math"

	"orb-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and rebuilt values.
type FieldDivergence struct {
	Field    string      // dotted path, e.g. "orb[1000].trade.r_multiple"
	Expected interface{} // stored value
	Actual   interface{} // rebuilt value
}

func (d FieldDivergence) String() string {
	return fmt.Sprintf("%s: stored=%v rebuilt=%v", d.Field, show(d.Expected), show(d.Actual))
}

// RowResult is the verification result of one trading day.
type RowResult struct {
	TradingDay  string
	Match       bool
	Divergences []FieldDivergence
}

// Report contains results for a verified range.
type Report struct {
	Instrument    string
	TotalRows     int
	MatchedRows   int
	DivergentRows int
	Results       []RowResult
}

// OK reports whether every row matched.
func (r *Report) OK() bool {
	return r.DivergentRows == 0
}

type diff struct {
	out []FieldDivergence
}

func (d *diff) add(field string, stored, rebuilt interface{}) {
	d.out = append(d.out, FieldDivergence{Field: field, Expected: stored, Actual: rebuilt})
}

func (d *diff) str(field string, a, b string) {
	if a != b {
		d.add(field, a, b)
	}
}

func (d *diff) int(field string, a, b int) {
	if a != b {
		d.add(field, a, b)
	}
}

func (d *diff) float(field string, a, b float64) {
	if !floatEquals(a, b) {
		d.add(field, a, b)
	}
}

func (d *diff) floatPtr(field string, a, b *float64) {
	if !floatPtrEquals(a, b) {
		d.add(field, a, b)
	}
}

func (d *diff) intPtr(field string, a, b *int64) {
	switch {
	case a == nil && b == nil:
	case a == nil || b == nil || *a != *b:
		d.add(field, a, b)
	}
}

// CompareFeatureRows compares a stored row with a rebuilt one and returns divergences.
// Uses FloatTolerance for float64 comparisons.
func CompareFeatureRows(stored, rebuilt *domain.FeatureRow) []FieldDivergence {
	var d diff

	d.str("trading_day", stored.TradingDay.Format(domain.DayLayout), rebuilt.TradingDay.Format(domain.DayLayout))
	d.str("instrument", stored.Instrument, rebuilt.Instrument)
	d.int("bar_count", stored.BarCount, rebuilt.BarCount)
	d.floatPtr("atr", stored.ATR, rebuilt.ATR)

	d.int("sessions.count", len(stored.Sessions), len(rebuilt.Sessions))
	for i := range stored.Sessions {
		s := &stored.Sessions[i]
		p := fmt.Sprintf("session[%s]", s.Name)
		r := rebuilt.Session(s.Name)
		if r == nil {
			d.add(p, s.Name, "missing")
			continue
		}
		d.floatPtr(p+".high", s.High, r.High)
		d.floatPtr(p+".low", s.Low, r.Low)
	}

	d.int("orbs.count", len(stored.ORBs), len(rebuilt.ORBs))
	for i := 0; i < len(stored.ORBs) && i < len(rebuilt.ORBs); i++ {
		compareORB(&d, &stored.ORBs[i], &rebuilt.ORBs[i])
	}

	return d.out
}

func compareORB(d *diff, s, r *domain.ORBResult) {
	p := fmt.Sprintf("orb[%s]", s.Name)
	d.str(p+".name", s.Name, r.Name)
	if s.DataGap != r.DataGap {
		d.add(p+".data_gap", s.DataGap, r.DataGap)
	}

	switch {
	case s.Range == nil && r.Range == nil:
	case s.Range == nil || r.Range == nil:
		d.add(p+".range", s.Range, r.Range)
	default:
		d.float(p+".range.high", s.Range.High, r.Range.High)
		d.float(p+".range.low", s.Range.Low, r.Range.Low)
		d.int(p+".range.bar_count", s.Range.BarCount, r.Range.BarCount)
	}
	d.floatPtr(p+".rsi", s.RSI, r.RSI)

	st, rt := &s.Trade, &r.Trade
	tp := p + ".trade"
	d.str(tp+".direction", string(st.Direction), string(rt.Direction))
	d.float(tp+".rr", st.RiskReward, rt.RiskReward)
	d.str(tp+".stop_mode", string(st.StopMode), string(rt.StopMode))
	d.intPtr(tp+".entry_time", st.EntryTime, rt.EntryTime)
	d.floatPtr(tp+".entry_price", st.EntryPrice, rt.EntryPrice)
	d.floatPtr(tp+".stop_price", st.StopPrice, rt.StopPrice)
	d.floatPtr(tp+".target_price", st.TargetPrice, rt.TargetPrice)
	d.floatPtr(tp+".risk", st.Risk, rt.Risk)
	d.str(tp+".outcome", string(st.Outcome), string(rt.Outcome))
	d.floatPtr(tp+".r_multiple", st.RMultiple, rt.RMultiple)
	d.intPtr(tp+".exit_time", st.ExitTime, rt.ExitTime)
	d.floatPtr(tp+".exit_price", st.ExitPrice, rt.ExitPrice)
	d.floatPtr(tp+".mae", st.MAE, rt.MAE)
	d.floatPtr(tp+".mfe", st.MFE, rt.MFE)
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}

// floatPtrEquals compares two *float64 values within FloatTolerance.
// Returns true if both are nil, or both are non-nil and equal.
func floatPtrEquals(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return floatEquals(*a, *b)
}

func show(v interface{}) interface{} {
	switch x := v.(type) {
	case *float64:
		if x == nil {
			return "null"
		}
		return *x
	case *int64:
		if x == nil {
			return "null"
		}
		return *x
	case *domain.ORBRange:
		if x == nil {
			return "null"
		}
		return *x
	}
	return v
}
