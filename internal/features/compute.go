// Package features builds the daily Feature Table from minute bars.
//
// Every FeatureRow is a pure function of the bars in a fixed lookback before its
// trading day and the bars inside it, so rebuilding any sub-range reproduces the
// rows of a full build exactly.
package features

import (
	"time"

	"orb-lab/internal/domain"
	"orb-lab/internal/indicators"
	"orb-lab/internal/lookup"
	"orb-lab/internal/orb"
	"orb-lab/internal/session"
)

// rsiBucket is the resampling period for the momentum oscillator.
const rsiBucket = 5 * 60 * 1000

// Spec holds the parameters a FeatureRow depends on.
type Spec struct {
	Calendar    *session.Calendar
	Params      orb.Params
	ScanHorizon time.Duration // 0 scans to the trading-day end
	ATRPeriod   int
	RSIPeriod   int
}

// LookbackDays is the number of calendar days before a trading day read for ATR.
// It leaves room for weekends and holidays around ATRPeriod trading days.
func (s Spec) LookbackDays() int {
	return 2*s.ATRPeriod + 7
}

// LoadRange returns the UTC millisecond range of bars needed to compute [from, to].
func (s Spec) LoadRange(from, to time.Time) (int64, int64) {
	start, _ := s.Calendar.TradingDayBounds(from.AddDate(0, 0, -s.LookbackDays()))
	_, end := s.Calendar.TradingDayBounds(to)
	return start.UnixMilli(), end.UnixMilli()
}

// Compute derives one FeatureRow per trading day in [from, to]. bars must cover
// LoadRange(from, to) and be strictly ascending.
func Compute(s Spec, instrument string, bars []*domain.Bar, from, to time.Time) ([]*domain.FeatureRow, error) {
	if err := lookup.CheckOrdered(bars); err != nil {
		return nil, err
	}

	days := session.Days(from, to)
	daily := dailyBars(s, bars, from.AddDate(0, 0, -s.LookbackDays()), to)

	rows := make([]*domain.FeatureRow, 0, len(days))
	for _, d := range days {
		row, err := computeDay(s, instrument, bars, daily, d)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type dayAggregate struct {
	day time.Time
	bar indicators.DailyBar
}

// dailyBars aggregates every trading day that has bars.
func dailyBars(s Spec, bars []*domain.Bar, from, to time.Time) []dayAggregate {
	var out []dayAggregate
	for _, d := range session.Days(from, to) {
		start, end := s.Calendar.TradingDayBounds(d)
		if agg, ok := indicators.Aggregate(lookup.Between(bars, start.UnixMilli(), end.UnixMilli())); ok {
			out = append(out, dayAggregate{day: d, bar: agg})
		}
	}
	return out
}

// atrFor returns ATR over the trading days with bars inside the lookback before day.
func atrFor(s Spec, daily []dayAggregate, day time.Time) *float64 {
	first := day.AddDate(0, 0, -s.LookbackDays())
	var window []indicators.DailyBar
	for _, a := range daily {
		if !a.day.Before(first) && a.day.Before(day) {
			window = append(window, a.bar)
		}
	}
	return indicators.ATR(window, s.ATRPeriod)
}

func computeDay(s Spec, instrument string, bars []*domain.Bar, daily []dayAggregate, day time.Time) (*domain.FeatureRow, error) {
	dayStart, dayEnd := s.Calendar.TradingDayBounds(day)
	dayBars := lookup.Between(bars, dayStart.UnixMilli(), dayEnd.UnixMilli())

	row := &domain.FeatureRow{
		TradingDay: day,
		Instrument: instrument,
		Sessions:   SessionStats(s.Calendar, dayBars, day),
		ATR:        atrFor(s, daily, day),
		BarCount:   len(dayBars),
	}

	for _, w := range s.Calendar.ORBs() {
		win, err := s.Window(instrument, day, w.Name)
		if err != nil {
			return nil, err
		}

		res, err := orb.Simulate(dayBars, win, s.Params)
		if err != nil {
			return nil, err
		}

		row.ORBs = append(row.ORBs, domain.ORBResult{
			Name:    w.Name,
			DataGap: res.DataGap,
			Range:   res.Range,
			RSI:     MomentumAt(s, bars, day, win.End),
			Trade:   res.Trade,
		})
	}

	return row, nil
}

// Window materialises an ORB window with its scan horizon.
func (s Spec) Window(instrument string, day time.Time, name string) (orb.Window, error) {
	start, end, err := s.Calendar.WindowBounds(day, name)
	if err != nil {
		return orb.Window{}, err
	}
	_, dayEnd := s.Calendar.TradingDayBounds(day)
	return orb.Window{
		Instrument: instrument,
		Name:       name,
		Start:      start.UnixMilli(),
		End:        end.UnixMilli(),
		ScanEnd:    scanEnd(end, dayEnd, s.ScanHorizon),
	}, nil
}

// SessionStats returns the high/low of every calendar session on day.
// bars may extend beyond the day; only bars inside each session are read.
func SessionStats(cal *session.Calendar, bars []*domain.Bar, day time.Time) []domain.SessionStat {
	var out []domain.SessionStat
	for _, w := range cal.Sessions() {
		start, end, err := cal.WindowBounds(day, w.Name)
		if err != nil {
			continue
		}
		stat := domain.SessionStat{Name: w.Name}
		if agg, ok := indicators.Aggregate(lookup.Between(bars, start.UnixMilli(), end.UnixMilli())); ok {
			high, low := agg.High, agg.Low
			stat.High, stat.Low = &high, &low
		}
		out = append(out, stat)
	}
	return out
}

// MomentumAt is the RSI of 5-minute closes from the previous trading day's start
// up to bars closed at or before at.
func MomentumAt(s Spec, bars []*domain.Bar, day time.Time, at int64) *float64 {
	prevStart, _ := s.Calendar.TradingDayBounds(day.AddDate(0, 0, -1))
	history := lookup.Between(bars, prevStart.UnixMilli(), at)
	closes := indicators.Resample(lookup.ClosedBy(history, at), rsiBucket)
	return indicators.RSI(closes, s.RSIPeriod)
}

// ATRAt is the ATR known at the start of day. bars must cover LoadRange(day, day).
func ATRAt(s Spec, bars []*domain.Bar, day time.Time) *float64 {
	daily := dailyBars(s, bars, day.AddDate(0, 0, -s.LookbackDays()), day.AddDate(0, 0, -1))
	return atrFor(s, daily, day)
}

func scanEnd(windowEnd, dayEnd time.Time, horizon time.Duration) int64 {
	if horizon > 0 {
		if h := windowEnd.Add(horizon); h.Before(dayEnd) {
			return h.UnixMilli()
		}
	}
	return dayEnd.UnixMilli()
}
