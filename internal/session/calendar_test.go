package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb-lab/internal/domain"
)

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestTradingDayBounds(t *testing.T) {
	cal := Default(5)

	start, end := cal.TradingDayBounds(domain.Day(2026, 1, 9))

	// 09:00 at UTC+10 is 23:00 UTC on the previous civil date.
	assert.Equal(t, utc(2026, 1, 8, 23, 0), start)
	assert.Equal(t, utc(2026, 1, 9, 23, 0), end)
}

func TestWindowBounds(t *testing.T) {
	cal := Default(5)
	tradingDay := domain.Day(2026, 1, 9)

	tests := []struct {
		name      string
		window    string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"morning ORB", "0900", utc(2026, 1, 8, 23, 0), utc(2026, 1, 8, 23, 5)},
		{"evening ORB", "1800", utc(2026, 1, 9, 8, 0), utc(2026, 1, 9, 8, 5)},
		{"ORB before midnight", "2300", utc(2026, 1, 9, 13, 0), utc(2026, 1, 9, 13, 5)},
		{"ORB after local midnight", "0030", utc(2026, 1, 9, 14, 30), utc(2026, 1, 9, 14, 35)},
		{"session straddling midnight", "NY", utc(2026, 1, 9, 13, 0), utc(2026, 1, 9, 16, 0)},
		{"asia session", "ASIA", utc(2026, 1, 8, 23, 0), utc(2026, 1, 9, 7, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := cal.WindowBounds(tradingDay, tt.window)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestWindowBounds_AfterMidnightFollowsBeforeMidnight(t *testing.T) {
	cal := Default(5)
	tradingDay := domain.Day(2026, 1, 9)

	_, end2300, err := cal.WindowBounds(tradingDay, "2300")
	require.NoError(t, err)
	start0030, _, err := cal.WindowBounds(tradingDay, "0030")
	require.NoError(t, err)

	assert.True(t, start0030.After(end2300), "0030 must open after 2300 within the same trading day")
}

func TestWindowBounds_UnknownWindow(t *testing.T) {
	cal := Default(5)

	_, _, err := cal.WindowBounds(domain.Day(2026, 1, 9), "1234")
	assert.True(t, errors.Is(err, ErrUnknownWindow))
}

func TestTradingDayOf(t *testing.T) {
	cal := Default(5)

	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"exactly at day start", utc(2026, 1, 8, 23, 0), domain.Day(2026, 1, 9)},
		{"one minute before day start", utc(2026, 1, 8, 22, 59), domain.Day(2026, 1, 8)},
		{"after local midnight", utc(2026, 1, 9, 14, 30), domain.Day(2026, 1, 9)},
		{"early morning local", utc(2026, 1, 9, 22, 0), domain.Day(2026, 1, 9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.TradingDayOf(tt.at))
		})
	}
}

func windowNames(in []Instance) []string {
	var out []string
	for _, i := range in {
		out = append(out, i.Name)
	}
	return out
}

func TestEligibleWindows_OverlappingNightWindows(t *testing.T) {
	cal := Default(5)

	// 01:00 local on civil Jan 10, still trading day Jan 9.
	now := utc(2026, 1, 9, 15, 0)
	got := cal.EligibleWindows(now, 6*time.Hour)

	assert.Equal(t, []string{"2300", "0030"}, windowNames(got))
	for _, inst := range got {
		assert.Equal(t, domain.Day(2026, 1, 9), inst.TradingDay)
	}
}

func TestEligibleWindows_NotExactHourOnly(t *testing.T) {
	cal := Default(5)

	// 13:00 local: none of the morning windows starts at 13:00, all three are still watched.
	now := utc(2026, 1, 9, 3, 0)
	got := cal.EligibleWindows(now, 6*time.Hour)

	assert.Equal(t, []string{"0900", "1000", "1100"}, windowNames(got))
}

func TestEligibleWindows_PersistAcrossTradingDayBoundary(t *testing.T) {
	cal := Default(5)

	// 09:30 local on Jan 10: trading day Jan 10 has begun.
	now := utc(2026, 1, 9, 23, 30)

	short := cal.EligibleWindows(now, 6*time.Hour)
	assert.Equal(t, []string{"0900"}, windowNames(short))

	long := cal.EligibleWindows(now, 10*time.Hour)
	require.Len(t, long, 2)
	assert.Equal(t, "0030", long[0].Name)
	assert.Equal(t, domain.Day(2026, 1, 9), long[0].TradingDay)
	assert.Equal(t, "0900", long[1].Name)
	assert.Equal(t, domain.Day(2026, 1, 10), long[1].TradingDay)
}

func TestEligibleWindows_ExpiresAtEndOfWatch(t *testing.T) {
	cal := Default(5)
	inst, err := cal.Instance(domain.Day(2026, 1, 9), "1800", 2*time.Hour)
	require.NoError(t, err)

	assert.Contains(t, windowNames(cal.EligibleWindows(inst.Expires.Add(-time.Minute), 2*time.Hour)), "1800")
	assert.NotContains(t, windowNames(cal.EligibleWindows(inst.Expires, 2*time.Hour)), "1800")
}

func TestStartedWindows_KeepsExpiredInstances(t *testing.T) {
	cal := Default(5)

	// 13:00 local on Jan 9 with a 1h watch: the morning windows have all expired.
	now := utc(2026, 1, 9, 3, 0)
	assert.Empty(t, cal.EligibleWindows(now, time.Hour))

	started := cal.StartedWindows(now, time.Hour)
	require.Equal(t, []string{"0900", "1000", "1100"}, windowNames(started)[len(started)-3:])
	for _, inst := range started {
		assert.False(t, inst.Eligible(now), inst.Name)
		assert.False(t, now.Before(inst.Start), inst.Name)
	}
}

func TestInstance_Forming(t *testing.T) {
	cal := Default(5)
	inst, err := cal.Instance(domain.Day(2026, 1, 9), "0900", time.Hour)
	require.NoError(t, err)

	assert.False(t, inst.Forming(inst.Start.Add(-time.Second)))
	assert.True(t, inst.Forming(inst.Start))
	assert.True(t, inst.Forming(inst.End.Add(-time.Second)))
	assert.False(t, inst.Forming(inst.End))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{DayStart: 9 * time.Hour, Windows: []Window{
		{Name: "A", Kind: KindORB, Start: 8 * time.Hour, Duration: 2 * time.Hour},
	}})
	assert.Error(t, err, "window crossing the trading-day end must be rejected")

	_, err = New(Options{DayStart: 9 * time.Hour, Windows: []Window{
		{Name: "A", Kind: KindORB, Start: 9 * time.Hour, Duration: time.Minute},
		{Name: "A", Kind: KindORB, Start: 10 * time.Hour, Duration: time.Minute},
	}})
	assert.Error(t, err, "duplicate names must be rejected")

	_, err = New(Options{DayStart: 25 * time.Hour})
	assert.ErrorIs(t, err, ErrInvalidClock)
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock("00:30")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, d)

	d, err = ParseClock("23:00")
	require.NoError(t, err)
	assert.Equal(t, 23*time.Hour, d)

	_, err = ParseClock("24:61")
	assert.ErrorIs(t, err, ErrInvalidClock)
}

func TestDays(t *testing.T) {
	days := Days(domain.Day(2026, 1, 30), domain.Day(2026, 2, 2))
	require.Len(t, days, 4)
	assert.Equal(t, domain.Day(2026, 2, 1), days[2])
	assert.Empty(t, Days(domain.Day(2026, 2, 2), domain.Day(2026, 2, 1)))
}
