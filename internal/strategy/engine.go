package strategy

import (
	"errors"
	"fmt"
	"time"

	"orb-lab/internal/domain"
	"orb-lab/internal/features"
	"orb-lab/internal/filter"
	"orb-lab/internal/lookup"
	"orb-lab/internal/orb"
	"orb-lab/internal/session"
	"orb-lab/internal/syncguard"
)

// Engine errors.
var (
	ErrUnverified     = errors.New("engine requires verified setups")
	ErrInvalidCascade = errors.New("invalid cascade")
)

// Config parametrises an Engine.
type Config struct {
	Spec        features.Spec // calendar, scan horizon and indicator periods
	WatchPeriod time.Duration // how long after formation a window stays eligible
	Cascades    []Cascade
}

// Engine evaluates every verified setup on demand.
type Engine struct {
	setups   *syncguard.VerifiedSetups
	spec     features.Spec
	watch    time.Duration
	cascades []Cascade
}

// NewEngine builds an engine over setups that passed the sync guard.
func NewEngine(verified *syncguard.VerifiedSetups, cfg Config) (*Engine, error) {
	if verified == nil {
		return nil, ErrUnverified
	}
	cal := cfg.Spec.Calendar
	if cal == nil {
		return nil, errors.New("engine requires a calendar")
	}
	if cfg.WatchPeriod <= 0 {
		return nil, fmt.Errorf("watch period must be positive, got %s", cfg.WatchPeriod)
	}

	for _, inst := range verified.Instruments() {
		for _, name := range verified.Windows(inst) {
			if w, ok := cal.Window(name); !ok || w.Kind != session.KindORB {
				return nil, fmt.Errorf("setup window %s/%s is not a calendar ORB", inst, name)
			}
		}
	}

	ref := domain.Day(2000, 1, 3)
	for _, c := range cfg.Cascades {
		ls, le, err := cal.WindowBounds(ref, c.Leader)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrInvalidCascade, c.Name, err)
		}
		fs, _, err := cal.WindowBounds(ref, c.Follower)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrInvalidCascade, c.Name, err)
		}
		if !ls.Before(fs) || le.After(fs) {
			return nil, fmt.Errorf("%w %s: leader %s must close before follower %s opens", ErrInvalidCascade, c.Name, c.Leader, c.Follower)
		}
	}

	return &Engine{
		setups:   verified,
		spec:     cfg.Spec,
		watch:    cfg.WatchPeriod,
		cascades: append([]Cascade(nil), cfg.Cascades...),
	}, nil
}

// view is the closed-bar history of one instrument at the evaluation instant.
type view struct {
	instrument string
	bars       []*domain.Bar
	atr        map[time.Time]*float64
}

// Evaluate reports on every setup. Only bars closed at or before s.Now are read.
// Returns an error only for integrity violations in the input.
func (e *Engine) Evaluate(s Snapshot) (*Report, error) {
	now := s.Now.UTC()
	started := e.spec.Calendar.StartedWindows(now, e.watch)

	var evals []Evaluation
	for _, inst := range e.setups.Instruments() {
		if err := lookup.CheckOrdered(s.Bars[inst]); err != nil {
			return nil, fmt.Errorf("bars for %s: %w", inst, err)
		}
		v := &view{
			instrument: inst,
			bars:       lookup.ClosedBy(s.Bars[inst], now.UnixMilli()),
			atr:        make(map[time.Time]*float64),
		}

		for _, name := range e.setups.Windows(inst) {
			for _, setup := range e.setups.Slot(inst, name) {
				out, err := e.evaluateORB(v, setup, instancesOf(started, name), now)
				if err != nil {
					return nil, err
				}
				evals = append(evals, out...)
			}
		}

		for _, c := range e.cascades {
			for _, setup := range e.setups.Slot(inst, c.Follower) {
				out, err := e.evaluateCascade(v, c, setup, instancesOf(started, c.Follower), now)
				if err != nil {
					return nil, err
				}
				evals = append(evals, out...)
			}
		}
	}

	for i := range evals {
		finalize(&evals[i])
	}
	rank(evals)

	rep := &Report{Now: now, Evaluations: evals}
	for _, inst := range e.spec.Calendar.EligibleWindows(now, e.watch) {
		rep.Windows = append(rep.Windows, inst.TradingDay.Format(domain.DayLayout)+" "+inst.Name)
	}
	for i := range rep.Evaluations {
		if rep.Evaluations[i].Action.Actionable() {
			rep.Selected = &rep.Evaluations[i]
			break
		}
	}
	return rep, nil
}

func (e *Engine) evaluateORB(v *view, setup domain.ValidatedSetup, instances []session.Instance, now time.Time) ([]Evaluation, error) {
	base := newEvaluation(KindORB, v.instrument, setup.ORBName, setupName(v.instrument, setup.ORBName+" ORB", setup), setup)

	var out []Evaluation
	for _, inst := range instances {
		ev, keep, err := e.evaluateInstance(v, setup, inst, now, base)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, ev)
		}
	}
	if len(out) == 0 {
		return []Evaluation{inactive(base, now)}, nil
	}
	return out, nil
}

func (e *Engine) evaluateCascade(v *view, c Cascade, setup domain.ValidatedSetup, followers []session.Instance, now time.Time) ([]Evaluation, error) {
	base := newEvaluation(KindCascade, v.instrument, c.Follower, setupName(v.instrument, c.Name+" CASCADE "+c.Leader+">"+c.Follower, setup), setup)

	var out []Evaluation
	for _, fi := range followers {
		eligible := fi.Eligible(now)
		ev := base
		ev.TradingDay = fi.TradingDay

		lw, err := e.spec.Window(v.instrument, fi.TradingDay, c.Leader)
		if err != nil {
			return nil, err
		}
		if start := fi.Start.UnixMilli(); lw.ScanEnd > start {
			lw.ScanEnd = start
		}

		lr, err := orb.DetectRange(v.bars, lw)
		if err != nil {
			if eligible {
				out = append(out, standDown(ev, fmt.Sprintf("leader %s has no bars", c.Leader)))
			}
			continue
		}
		lbo := orb.DetectBreakout(v.bars, lw, lr)
		ev.Leader = &Leader{ORB: c.Leader, Range: &lr, Direction: domain.DirectionNone}
		if lbo == nil {
			if eligible {
				out = append(out, standDown(ev, fmt.Sprintf("leader %s did not break out before %s opened", c.Leader, c.Follower)))
			}
			continue
		}
		ev.Leader.Direction = lbo.Direction

		ev, keep, err := e.evaluateInstance(v, setup, fi, now, ev)
		if err != nil {
			return nil, err
		}
		if !keep {
			continue
		}

		switch {
		case ev.Direction == domain.DirectionUp || ev.Direction == domain.DirectionDown:
			if ev.Direction != lbo.Direction {
				ev = standDown(ev, fmt.Sprintf("follower broke %s against leader %s", ev.Direction, lbo.Direction))
			} else {
				ev.Reasons = append(ev.Reasons, fmt.Sprintf("aligned with leader %s break", lbo.Direction))
			}
		case ev.State == StateReady:
			ev.Reasons = append(ev.Reasons, fmt.Sprintf("leader %s broke %s: only a %s break qualifies", c.Leader, lbo.Direction, lbo.Direction))
			ev.NextInstruction = watchInstruction(ev.Range, lbo.Direction, ev.NextInstruction)
		}
		out = append(out, ev)
	}
	if len(out) == 0 {
		return []Evaluation{inactive(base, now)}, nil
	}
	return out, nil
}

// evaluateInstance runs the state machine for one setup on one window instance.
// An instance past its watch period is held only while a trade entered before
// expiry is still open, or its exit is on the last closed bar; keep is false otherwise.
func (e *Engine) evaluateInstance(v *view, setup domain.ValidatedSetup, inst session.Instance, now time.Time, ev Evaluation) (Evaluation, bool, error) {
	ev.TradingDay = inst.TradingDay
	nowMs := now.UnixMilli()
	params := orb.Params{RiskReward: setup.RiskReward, StopMode: setup.StopMode}
	held := !inst.Eligible(now)

	w, err := e.spec.Window(v.instrument, inst.TradingDay, inst.Name)
	if err != nil {
		return ev, false, err
	}

	if inst.Forming(now) {
		ev.State, ev.Action = StatePreparing, ActionNone
		if rng, ok := orb.LiveRange(v.bars, w, nowMs); ok {
			ev.Range = &rng
			ev.Reasons = append(ev.Reasons, fmt.Sprintf("range forming: high %.2f low %.2f from %d bars", rng.High, rng.Low, rng.BarCount))
		} else {
			ev.Reasons = append(ev.Reasons, "range forming: no closed bars yet")
		}
		ev.NextInstruction = "WAIT: range completes at " + clock(inst.End)
		return ev, !held, nil
	}

	rng, err := orb.DetectRange(v.bars, w)
	if err != nil {
		return standDown(ev, fmt.Sprintf("no bars inside window %s", inst.Name)), !held, nil
	}
	ev.Range = &rng
	ev.ATR = v.atrAt(e.spec, inst.TradingDay)
	ev.RSI = features.MomentumAt(e.spec, v.bars, inst.TradingDay, w.End)

	bo := orb.DetectBreakout(v.bars, w, rng)
	if held && (bo == nil || bo.EntryTime > inst.Expires.UnixMilli()) {
		return ev, false, nil
	}
	in := filter.Input{
		Now:       now,
		Range:     &rng,
		Direction: domain.DirectionNone,
		ATR:       ev.ATR,
		RSI:       ev.RSI,
		Sessions:  e.sessionValues(v, inst.TradingDay),
	}
	if bo != nil {
		in.Direction = bo.Direction
	}
	ev.Filters = filter.Evaluate(setup.SetupParams, in)
	if f, failed := filter.FirstFailure(ev.Filters); failed {
		return standDown(ev, fmt.Sprintf("%s failed: %s", f.Name, f.Detail)), !held, nil
	}

	if bo == nil {
		if nowMs >= w.ScanEnd {
			ev.State, ev.Action = StateInvalid, ActionNone
			ev.Reasons = append(ev.Reasons, "no breakout before scan end")
			ev.NextInstruction = "NONE: window finished without a trade"
			return ev, true, nil
		}
		ev.State, ev.Action = StateReady, ActionWatch
		ev.Reasons = append(ev.Reasons, fmt.Sprintf("range complete: high %.2f low %.2f size %.2f", rng.High, rng.Low, rng.Size()))
		until := time.UnixMilli(w.ScanEnd).UTC()
		if inst.Expires.Before(until) {
			until = inst.Expires
		}
		ev.NextInstruction = fmt.Sprintf("WATCH for a close above %.2f or below %.2f until %s", rng.High, rng.Low, clock(until))
		return ev, true, nil
	}

	if err := orb.CheckEntry(w, rng, bo); err != nil {
		return ev, false, err
	}

	lv := orb.ComputeLevels(rng, bo.Direction, bo.EntryPrice, params)
	ev.Direction = bo.Direction
	ev.Entry, ev.Stop, ev.Target = ptr(lv.Entry), ptr(lv.Stop), ptr(lv.Target)

	last := lookup.LastClosedBy(v.bars, nowMs)
	ev.LastClose = ptr(last.Close)

	trade := orb.Resolve(v.bars, w, bo, lv, params)
	closed := trade.Outcome == domain.OutcomeWin || trade.Outcome == domain.OutcomeLoss || nowMs >= w.ScanEnd
	if closed {
		ev.State = StateExited
		ev.Outcome = trade.Outcome
		ev.RMultiple = trade.RMultiple
		ev.Reasons = append(ev.Reasons, fmt.Sprintf("%s at %.2f (%+.2fR)", trade.Outcome, *trade.ExitPrice, *trade.RMultiple))
		if *trade.ExitTime == last.CloseTime() {
			ev.Action = ActionExit
			ev.NextInstruction = fmt.Sprintf("EXIT %s: %s at %.2f", side(bo.Direction), trade.Outcome, *trade.ExitPrice)
		} else {
			ev.Action = ActionNone
			ev.NextInstruction = "NONE: trade already closed"
		}
		return ev, !held || ev.Action == ActionExit, nil
	}

	ev.State = StateActive
	ev.Reasons = append(ev.Reasons, fmt.Sprintf("breakout %s: close %.2f beyond range", bo.Direction, bo.EntryPrice))
	if held {
		ev.Reasons = append(ev.Reasons, fmt.Sprintf("watch period ended %s, managing open trade until %s", clock(inst.Expires), clock(time.UnixMilli(w.ScanEnd))))
	}
	if bo.Bar.Timestamp == last.Timestamp {
		ev.Action = ActionEnter
		ev.NextInstruction = fmt.Sprintf("ENTER %s at %.2f, stop %.2f, target %.2f", side(bo.Direction), lv.Entry, lv.Stop, lv.Target)
	} else {
		ev.Action = ActionManage
		ev.NextInstruction = fmt.Sprintf("MANAGE %s from %.2f: stop %.2f, target %.2f, last %.2f", side(bo.Direction), lv.Entry, lv.Stop, lv.Target, last.Close)
	}
	return ev, true, nil
}

func (e *Engine) sessionValues(v *view, day time.Time) []filter.SessionValue {
	row := &domain.FeatureRow{TradingDay: day, Sessions: features.SessionStats(e.spec.Calendar, v.bars, day)}
	return filter.SessionValues(e.spec.Calendar, row)
}

func (v *view) atrAt(spec features.Spec, day time.Time) *float64 {
	if a, ok := v.atr[day]; ok {
		return a
	}
	a := features.ATRAt(spec, v.bars, day)
	v.atr[day] = a
	return a
}

func newEvaluation(kind Kind, instrument, orbName, name string, setup domain.ValidatedSetup) Evaluation {
	return Evaluation{
		StrategyName: name,
		Kind:         kind,
		Instrument:   instrument,
		ORB:          orbName,
		Direction:    domain.DirectionNone,
		Setup:        setup,
		Justification: &Justification{
			SetupID:      setup.SetupID,
			Tier:         setup.Tier,
			WinRate:      setup.WinRate,
			AvgR:         setup.AvgR,
			AnnualTrades: setup.AnnualTrades,
		},
	}
}

func inactive(ev Evaluation, now time.Time) Evaluation {
	ev.State, ev.Action = StateInvalid, ActionNone
	ev.Reasons = append(ev.Reasons, fmt.Sprintf("window %s not eligible at %s", ev.ORB, clock(now)))
	ev.NextInstruction = "NONE: window not active"
	return ev
}

func standDown(ev Evaluation, reason string) Evaluation {
	ev.State, ev.Action = StateInvalid, ActionStandDown
	ev.Reasons = append(ev.Reasons, reason)
	ev.NextInstruction = "STAND DOWN: " + reason
	return ev
}

// finalize withholds any actionable signal that lacks its numeric justification.
func finalize(ev *Evaluation) {
	if ev.Action.Actionable() && ev.Justification == nil {
		ev.Action = ActionNone
		ev.Reasons = append(ev.Reasons, "no historical justification")
		ev.NextInstruction = "NONE: no historical justification"
	}
}

func watchInstruction(rng *domain.ORBRange, dir domain.BreakDirection, fallback string) string {
	if rng == nil {
		return fallback
	}
	if dir == domain.DirectionUp {
		return fmt.Sprintf("WATCH for a close above %.2f", rng.High)
	}
	return fmt.Sprintf("WATCH for a close below %.2f", rng.Low)
}

func instancesOf(all []session.Instance, name string) []session.Instance {
	var out []session.Instance
	for _, i := range all {
		if i.Name == name {
			out = append(out, i)
		}
	}
	return out
}

func setupName(instrument, label string, s domain.ValidatedSetup) string {
	id := s.SetupID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s %s rr=%g %s #%s", instrument, label, s.RiskReward, s.StopMode, id)
}

func side(d domain.BreakDirection) string {
	if d == domain.DirectionUp {
		return "LONG"
	}
	return "SHORT"
}

func clock(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func ptr(v float64) *float64 {
	return &v
}
