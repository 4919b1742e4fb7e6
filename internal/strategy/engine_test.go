package strategy

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb-lab/internal/domain"
	"orb-lab/internal/features"
	"orb-lab/internal/session"
	"orb-lab/internal/syncguard"
)

const inst = "MGC"

type setupDef struct {
	params domain.SetupParams
	tier   domain.Tier
	avgR   float64
}

func def(orbName string, rr float64, tier domain.Tier, avgR float64) setupDef {
	return setupDef{
		params: domain.SetupParams{ORBName: orbName, RiskReward: rr, StopMode: domain.StopModeFull},
		tier:   tier,
		avgR:   avgR,
	}
}

func verified(t *testing.T, defs ...setupDef) *syncguard.VerifiedSetups {
	t.Helper()
	declared := syncguard.Declared{inst: {}}
	var rows []*domain.ValidatedSetup
	for i, d := range defs {
		declared[inst][d.params.ORBName] = append(declared[inst][d.params.ORBName], d.params)
		rows = append(rows, &domain.ValidatedSetup{
			SetupID:      fmt.Sprintf("%02d%s", i, "abcdef0123456789"),
			Instrument:   inst,
			SetupParams:  d.params,
			Tier:         d.tier,
			WinRate:      0.55,
			AvgR:         d.avgR,
			AnnualTrades: 120,
			Sequence:     int64(i + 1),
		})
	}
	v, err := syncguard.Verify(declared, rows)
	require.NoError(t, err)
	return v
}

func engine(t *testing.T, watch time.Duration, cascades []Cascade, defs ...setupDef) *Engine {
	t.Helper()
	e, err := NewEngine(verified(t, defs...), Config{
		Spec: features.Spec{
			Calendar:  session.Default(5),
			ATRPeriod: 3,
			RSIPeriod: 14,
		},
		WatchPeriod: watch,
		Cascades:    cascades,
	})
	require.NoError(t, err)
	return e
}

func utc(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func bar(ts string, high, low, closePrice float64) *domain.Bar {
	return &domain.Bar{
		Instrument: inst,
		Timestamp:  utc(ts).UnixMilli(),
		Open:       closePrice,
		High:       high,
		Low:        low,
		Close:      closePrice,
		Volume:     1,
	}
}

// flat emits n one-minute bars closing at c with a +-0.5 spread.
func flat(from string, n int, c float64) []*domain.Bar {
	start := utc(from)
	out := make([]*domain.Bar, n)
	for i := range out {
		ts := start.Add(time.Duration(i) * time.Minute).Format("2006-01-02 15:04:05")
		out[i] = bar(ts, c+0.5, c-0.5, c)
	}
	return out
}

func concat(parts ...[]*domain.Bar) []*domain.Bar {
	var out []*domain.Bar
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// morning covers trading day 2026-01-08 from its open (23:00 UTC) through an
// UP break of the 1000 ORB (00:00 UTC) that reaches its 1R target.
func morning() []*domain.Bar {
	return concat(
		flat("2026-01-07 23:00:00", 66, 100), // through 00:05, range 100.5/99.5
		[]*domain.Bar{
			bar("2026-01-08 00:06:00", 101.1, 100.0, 101.0), // UP break, entry 101
			bar("2026-01-08 00:07:00", 101.5, 100.8, 101.2),
			bar("2026-01-08 00:08:00", 102.6, 101.0, 102.4), // target 102.5
			bar("2026-01-08 00:09:00", 102.5, 102.0, 102.2),
		},
	)
}

func evaluate(t *testing.T, e *Engine, now string, bars []*domain.Bar) *Report {
	t.Helper()
	rep, err := e.Evaluate(Snapshot{Now: utc(now), Bars: map[string][]*domain.Bar{inst: bars}})
	require.NoError(t, err)
	return rep
}

func only(t *testing.T, rep *Report) Evaluation {
	t.Helper()
	require.Len(t, rep.Evaluations, 1)
	return rep.Evaluations[0]
}

func TestEngine_Lifecycle(t *testing.T) {
	e := engine(t, 4*time.Hour, nil, def("1000", 1.0, domain.TierTop, 0.35))
	bars := morning()

	cases := []struct {
		now    string
		state  State
		action Action
	}{
		{"2026-01-08 00:02:30", StatePreparing, ActionNone},
		{"2026-01-08 00:06:30", StateReady, ActionWatch},
		{"2026-01-08 00:07:00", StateActive, ActionEnter},
		{"2026-01-08 00:08:00", StateActive, ActionManage},
		{"2026-01-08 00:09:00", StateExited, ActionExit},
		{"2026-01-08 00:10:00", StateExited, ActionNone},
		{"2026-01-08 05:00:00", StateInvalid, ActionNone},
	}
	for _, tc := range cases {
		t.Run(tc.now, func(t *testing.T) {
			ev := only(t, evaluate(t, e, tc.now, bars))
			assert.Equal(t, tc.state, ev.State)
			assert.Equal(t, tc.action, ev.Action)
			assert.NotEmpty(t, ev.NextInstruction)
			require.NotNil(t, ev.Justification)
			assert.Equal(t, 0.35, ev.Justification.AvgR)
		})
	}
}

func TestEngine_PreparingUsesClosedBarsOnly(t *testing.T) {
	e := engine(t, 4*time.Hour, nil, def("1000", 1.0, domain.TierTop, 0.35))
	ev := only(t, evaluate(t, e, "2026-01-08 00:02:30", morning()))

	require.NotNil(t, ev.Range)
	assert.Equal(t, 2, ev.Range.BarCount)
	assert.Contains(t, ev.NextInstruction, "00:05")
}

func TestEngine_IgnoresUnclosedBars(t *testing.T) {
	e := engine(t, 4*time.Hour, nil, def("1000", 1.0, domain.TierTop, 0.35))

	// The breakout bar opened at 00:06 but closes at 00:07.
	ev := only(t, evaluate(t, e, "2026-01-08 00:06:59", morning()))
	assert.Equal(t, StateReady, ev.State)
	assert.Nil(t, ev.Entry)
	assert.Equal(t, domain.DirectionNone, ev.Direction)
}

func TestEngine_EnterLevels(t *testing.T) {
	e := engine(t, 4*time.Hour, nil, def("1000", 1.0, domain.TierTop, 0.35))
	ev := only(t, evaluate(t, e, "2026-01-08 00:07:00", morning()))

	assert.Equal(t, domain.DirectionUp, ev.Direction)
	require.NotNil(t, ev.Entry)
	assert.Equal(t, 101.0, *ev.Entry)
	assert.Equal(t, 99.5, *ev.Stop)
	assert.InDelta(t, 102.5, *ev.Target, 1e-9)
	assert.Equal(t, domain.Day(2026, time.January, 8), ev.TradingDay)
	assert.Contains(t, ev.NextInstruction, "ENTER LONG")
}

func TestEngine_ExitReportsOutcome(t *testing.T) {
	e := engine(t, 4*time.Hour, nil, def("1000", 1.0, domain.TierTop, 0.35))
	ev := only(t, evaluate(t, e, "2026-01-08 00:09:00", morning()))

	assert.Equal(t, domain.OutcomeWin, ev.Outcome)
	require.NotNil(t, ev.RMultiple)
	assert.Equal(t, 1.0, *ev.RMultiple)
}

func TestEngine_InactiveWindow(t *testing.T) {
	e := engine(t, 4*time.Hour, nil, def("1000", 1.0, domain.TierTop, 0.35))
	ev := only(t, evaluate(t, e, "2026-01-08 05:00:00", morning()))

	assert.True(t, ev.TradingDay.IsZero())
	assert.Nil(t, evaluate(t, e, "2026-01-08 05:00:00", morning()).Selected)
}

func TestEngine_DataGapStandsDown(t *testing.T) {
	e := engine(t, 4*time.Hour, nil, def("1000", 1.0, domain.TierTop, 0.35))
	ev := only(t, evaluate(t, e, "2026-01-08 00:30:00", nil))

	assert.Equal(t, StateInvalid, ev.State)
	assert.Equal(t, ActionStandDown, ev.Action)
}

func TestEngine_FilterFailureStandsDown(t *testing.T) {
	d := def("1000", 1.0, domain.TierTop, 0.35)
	d.params.Condition = &domain.Condition{Type: domain.ConditionBreakDirection, Value: "DOWN"}
	e := engine(t, 4*time.Hour, nil, d)

	ready := only(t, evaluate(t, e, "2026-01-08 00:06:30", morning()))
	assert.Equal(t, StateReady, ready.State)
	require.Len(t, ready.Filters, 1)
	assert.True(t, ready.Filters[0].Pending)

	failed := only(t, evaluate(t, e, "2026-01-08 00:07:00", morning()))
	assert.Equal(t, StateInvalid, failed.State)
	assert.Equal(t, ActionStandDown, failed.Action)
	require.Len(t, failed.Filters, 1)
	assert.False(t, failed.Filters[0].Pass)
	assert.Contains(t, failed.NextInstruction, "STAND DOWN")
}

func TestEngine_SizeFilterWithoutATR(t *testing.T) {
	d := def("1000", 1.0, domain.TierTop, 0.35)
	f := 0.5
	d.params.SizeFilter = &f
	e := engine(t, 4*time.Hour, nil, d)

	ev := only(t, evaluate(t, e, "2026-01-08 00:06:30", morning()))
	assert.Equal(t, ActionStandDown, ev.Action)
	assert.Nil(t, ev.ATR)
}

func TestEngine_Priority(t *testing.T) {
	down := def("1000", 3.0, domain.TierTop, 0.50)
	down.params.Condition = &domain.Condition{Type: domain.ConditionBreakDirection, Value: "DOWN"}
	e := engine(t, 4*time.Hour, nil,
		def("1000", 2.0, domain.TierMid, 0.20),
		def("1000", 1.0, domain.TierTop, 0.35),
		down,
	)

	rep := evaluate(t, e, "2026-01-08 00:07:00", morning())
	require.Len(t, rep.Evaluations, 3)

	assert.Equal(t, 1.0, rep.Evaluations[0].Setup.RiskReward)
	assert.Equal(t, 2.0, rep.Evaluations[1].Setup.RiskReward)
	assert.Equal(t, ActionStandDown, rep.Evaluations[2].Action)
	for i, ev := range rep.Evaluations {
		assert.Equal(t, i+1, ev.Priority)
	}

	require.NotNil(t, rep.Selected)
	assert.Equal(t, rep.Evaluations[0].StrategyName, rep.Selected.StrategyName)
	assert.Len(t, rep.Actionable(), 2)
}

// night covers the 2300 (13:00 UTC) and 0030 (14:30 UTC) windows of trading day 2026-01-08.
func night() []*domain.Bar {
	return flat("2026-01-08 13:00:00", 100, 100)
}

func TestEngine_ConcurrentNightWindows(t *testing.T) {
	e := engine(t, 4*time.Hour, nil,
		def("2300", 1.0, domain.TierMid, 0.20),
		def("0030", 1.0, domain.TierTop, 0.40),
	)

	rep := evaluate(t, e, "2026-01-08 14:40:00", night())
	require.Len(t, rep.Evaluations, 2)
	for _, ev := range rep.Evaluations {
		assert.Equal(t, StateReady, ev.State, ev.ORB)
		assert.Equal(t, ActionWatch, ev.Action, ev.ORB)
		assert.Equal(t, domain.Day(2026, time.January, 8), ev.TradingDay)
	}
	assert.Equal(t, "0030", rep.Evaluations[0].ORB, "higher tier first")
	assert.Equal(t, "2300", rep.Evaluations[1].ORB)
	assert.Equal(t, []string{"2026-01-08 2300", "2026-01-08 0030"}, rep.Windows[len(rep.Windows)-2:])
}

func TestEngine_WindowPersistsAcrossTradingDayBoundary(t *testing.T) {
	e := engine(t, 12*time.Hour, nil, def("0030", 1.0, domain.TierTop, 0.40))

	// 23:30 UTC is 09:30 local on 2026-01-09, the next trading day.
	ev := only(t, evaluate(t, e, "2026-01-08 23:30:00", night()))
	assert.Equal(t, domain.Day(2026, time.January, 8), ev.TradingDay)
	assert.Equal(t, StateInvalid, ev.State)
	assert.Equal(t, ActionNone, ev.Action)
	assert.Contains(t, ev.Reasons[len(ev.Reasons)-1], "scan end")
}

// cascadeBars breaks the 2300 leader UP and then breaks the 0030 follower with followerClose.
func cascadeBars(followerClose float64) []*domain.Bar {
	leader := flat("2026-01-08 13:00:00", 10, 100) // range 100.5/99.5
	leader = append(leader, bar("2026-01-08 13:10:00", 101.2, 100.4, 101.0))
	follower := flat("2026-01-08 13:11:00", 84, 101) // through 14:34, range 101.5/100.5
	follower = append(follower, bar("2026-01-08 14:35:00", 102.0, 100.0, followerClose))
	return concat(leader, follower)
}

func TestEngine_CascadeAligned(t *testing.T) {
	c := Cascade{Name: "night", Leader: "2300", Follower: "0030"}
	e := engine(t, 4*time.Hour, []Cascade{c}, def("0030", 1.0, domain.TierMid, 0.20))

	rep := evaluate(t, e, "2026-01-08 14:36:00", cascadeBars(101.8))
	require.Len(t, rep.Evaluations, 2)

	first := rep.Evaluations[0]
	assert.Equal(t, KindCascade, first.Kind)
	assert.Equal(t, ActionEnter, first.Action)
	require.NotNil(t, first.Leader)
	assert.Equal(t, domain.DirectionUp, first.Leader.Direction)
	assert.Equal(t, "2300", first.Leader.ORB)

	assert.Equal(t, KindORB, rep.Evaluations[1].Kind)
	assert.Equal(t, ActionEnter, rep.Evaluations[1].Action)

	require.NotNil(t, rep.Selected)
	assert.Equal(t, KindCascade, rep.Selected.Kind)
}

func TestEngine_CascadeAgainstLeader(t *testing.T) {
	c := Cascade{Name: "night", Leader: "2300", Follower: "0030"}
	e := engine(t, 4*time.Hour, []Cascade{c}, def("0030", 1.0, domain.TierMid, 0.20))

	rep := evaluate(t, e, "2026-01-08 14:36:00", cascadeBars(100.2))
	require.Len(t, rep.Evaluations, 2)

	var cascade, single Evaluation
	for _, ev := range rep.Evaluations {
		if ev.Kind == KindCascade {
			cascade = ev
		} else {
			single = ev
		}
	}
	assert.Equal(t, ActionStandDown, cascade.Action)
	assert.Equal(t, ActionEnter, single.Action)
	assert.Equal(t, domain.DirectionDown, single.Direction)

	require.NotNil(t, rep.Selected)
	assert.Equal(t, KindORB, rep.Selected.Kind)
}

func TestEngine_CascadeWithoutLeaderBreak(t *testing.T) {
	c := Cascade{Name: "night", Leader: "2300", Follower: "0030"}
	e := engine(t, 4*time.Hour, []Cascade{c}, def("0030", 1.0, domain.TierMid, 0.20))

	rep := evaluate(t, e, "2026-01-08 14:40:00", night())
	for _, ev := range rep.Evaluations {
		if ev.Kind == KindCascade {
			assert.Equal(t, ActionStandDown, ev.Action)
			require.NotNil(t, ev.Leader)
			assert.Equal(t, domain.DirectionNone, ev.Leader.Direction)
		}
	}
}

func TestNewEngine_Errors(t *testing.T) {
	spec := features.Spec{Calendar: session.Default(5), ATRPeriod: 3, RSIPeriod: 14}
	v := verified(t, def("1000", 1.0, domain.TierTop, 0.35))

	_, err := NewEngine(nil, Config{Spec: spec, WatchPeriod: time.Hour})
	assert.ErrorIs(t, err, ErrUnverified)

	_, err = NewEngine(v, Config{Spec: spec})
	assert.Error(t, err)

	_, err = NewEngine(v, Config{Spec: spec, WatchPeriod: time.Hour,
		Cascades: []Cascade{{Name: "backwards", Leader: "0030", Follower: "2300"}}})
	assert.ErrorIs(t, err, ErrInvalidCascade)

	_, err = NewEngine(v, Config{Spec: spec, WatchPeriod: time.Hour,
		Cascades: []Cascade{{Name: "unknown", Leader: "0945", Follower: "1000"}}})
	assert.ErrorIs(t, err, ErrInvalidCascade)

	_, err = NewEngine(verified(t, def("0945", 1.0, domain.TierTop, 0.35)), Config{Spec: spec, WatchPeriod: time.Hour})
	assert.Error(t, err)
}

func TestEngine_RejectsUnorderedBars(t *testing.T) {
	e := engine(t, 4*time.Hour, nil, def("1000", 1.0, domain.TierTop, 0.35))
	bars := morning()
	bars[3], bars[4] = bars[4], bars[3]

	_, err := e.Evaluate(Snapshot{Now: utc("2026-01-08 00:07:00"), Bars: map[string][]*domain.Bar{inst: bars}})
	require.Error(t, err)
	var iv *domain.IntegrityViolation
	assert.True(t, errors.As(err, &iv) || errors.Is(err, domain.ErrIntegrity))
}

// overnight breaks the 0900 ORB (23:00-23:05 UTC) upward at 23:10 and then drifts
// sideways through 05:20 without touching stop 99.5 or target 103.5.
func overnight() []*domain.Bar {
	return concat(
		flat("2026-01-07 23:00:00", 10, 100),
		[]*domain.Bar{bar("2026-01-07 23:10:00", 101.6, 101.0, 101.5)},
		flat("2026-01-07 23:11:00", 370, 101),
	)
}

func TestEngine_OpenTradeOutlivesWatchPeriod(t *testing.T) {
	e, err := NewEngine(verified(t, def("0900", 1.0, domain.TierTop, 0.3)), Config{
		Spec: features.Spec{
			Calendar:    session.Default(5),
			ATRPeriod:   3,
			RSIPeriod:   14,
			ScanHorizon: 6 * time.Hour,
		},
		WatchPeriod: 4 * time.Hour,
	})
	require.NoError(t, err)
	bars := overnight()

	cases := []struct {
		now    string
		state  State
		action Action
	}{
		{"2026-01-08 03:04:00", StateActive, ActionManage},
		{"2026-01-08 03:06:00", StateActive, ActionManage}, // watch ended 03:05
		{"2026-01-08 05:04:00", StateActive, ActionManage},
		{"2026-01-08 05:05:00", StateExited, ActionExit}, // scan end
		{"2026-01-08 05:06:00", StateInvalid, ActionNone},
	}
	for _, tc := range cases {
		t.Run(tc.now, func(t *testing.T) {
			ev := only(t, evaluate(t, e, tc.now, bars))
			assert.Equal(t, tc.state, ev.State)
			assert.Equal(t, tc.action, ev.Action)
		})
	}

	held := evaluate(t, e, "2026-01-08 03:06:00", bars)
	assert.NotContains(t, held.Windows, "2026-01-08 0900", "watch period over")

	ev := only(t, evaluate(t, e, "2026-01-08 05:05:00", bars))
	assert.Equal(t, domain.OutcomeTimeExit, ev.Outcome)
	require.NotNil(t, ev.RMultiple)
	assert.InDelta(t, -0.25, *ev.RMultiple, 1e-9)
	assert.Contains(t, ev.NextInstruction, "EXIT LONG")
}

func TestEngine_OpenTradeHeldUntilDayEnd(t *testing.T) {
	e := engine(t, 4*time.Hour, nil, def("0900", 1.0, domain.TierTop, 0.3))

	ev := only(t, evaluate(t, e, "2026-01-08 05:00:00", overnight()))
	assert.Equal(t, StateActive, ev.State)
	assert.Equal(t, ActionManage, ev.Action)
	assert.Contains(t, ev.Reasons[len(ev.Reasons)-1], "watch period ended")
}
