// Package strategy evaluates verified setups against live bars and decides what,
// if anything, each setup implies right now.
//
// Evaluation is a pure function of a Snapshot: bars that have not closed by
// Snapshot.Now are ignored, and nothing is persisted.
package strategy

import (
	"time"

	"orb-lab/internal/domain"
	"orb-lab/internal/filter"
)

// State is the lifecycle state of one setup at the evaluation instant.
type State string

const (
	StateInvalid   State = "INVALID"   // window not active, data missing or a filter failed
	StatePreparing State = "PREPARING" // range still forming
	StateReady     State = "READY"     // range complete, watching for a breakout
	StateActive    State = "ACTIVE"    // breakout taken, position conceptually open
	StateExited    State = "EXITED"    // target, stop or time exit reached
)

// Action is the concrete instruction attached to an evaluation.
type Action string

const (
	ActionEnter     Action = "ENTER"
	ActionManage    Action = "MANAGE"
	ActionExit      Action = "EXIT"
	ActionWatch     Action = "WATCH"
	ActionStandDown Action = "STAND_DOWN"
	ActionNone      Action = "NONE"
)

// Actionable reports whether the action asks the caller to do something.
func (a Action) Actionable() bool {
	switch a {
	case ActionEnter, ActionManage, ActionExit, ActionWatch:
		return true
	}
	return false
}

func (a Action) rank() int {
	switch a {
	case ActionExit:
		return 0
	case ActionEnter:
		return 1
	case ActionManage:
		return 2
	case ActionWatch:
		return 3
	case ActionStandDown:
		return 4
	default:
		return 5
	}
}

// Kind is the closed set of strategy kinds.
type Kind string

const (
	KindCascade Kind = "CASCADE" // follower ORB aligned with a leader ORB's break
	KindORB     Kind = "ORB"     // single window
)

func (k Kind) rank() int {
	if k == KindCascade {
		return 0
	}
	return 1
}

// Cascade pairs a leader window with a follower window on the same trading day.
type Cascade struct {
	Name     string
	Leader   string
	Follower string
}

// Justification is the historical evidence behind a setup.
type Justification struct {
	SetupID      string
	Tier         domain.Tier
	WinRate      float64
	AvgR         float64
	AnnualTrades float64
}

// Leader describes the leader window of a cascade evaluation.
type Leader struct {
	ORB       string
	Range     *domain.ORBRange
	Direction domain.BreakDirection
}

// Evaluation is the structured result for one strategy at one instant.
type Evaluation struct {
	StrategyName string
	Kind         Kind
	Instrument   string
	ORB          string
	TradingDay   time.Time // zero when the window is not eligible
	Priority     int       // 1-based position in the sorted report

	State   State
	Action  Action
	Reasons []string

	Direction domain.BreakDirection
	Entry     *float64
	Stop      *float64
	Target    *float64
	LastClose *float64

	Range   *domain.ORBRange
	ATR     *float64
	RSI     *float64
	Filters []filter.Result
	Leader  *Leader // cascades only

	Setup           domain.ValidatedSetup
	Justification   *Justification
	Outcome         domain.Outcome // set once EXITED
	RMultiple       *float64
	NextInstruction string
}

// Snapshot is the data visible at Now, keyed by instrument. Bars must be ascending
// and should cover the ATR lookback plus the previous and current trading days.
type Snapshot struct {
	Now  time.Time
	Bars map[string][]*domain.Bar
}

// Report is one evaluation cycle.
type Report struct {
	Now         time.Time
	Evaluations []Evaluation // priority order
	Selected    *Evaluation  // highest-priority actionable evaluation, nil if none
	Windows     []string     // windows inside their watch period, "YYYY-MM-DD HHMM" by start
}

// Actionable returns the actionable evaluations in priority order.
func (r *Report) Actionable() []Evaluation {
	var out []Evaluation
	for _, e := range r.Evaluations {
		if e.Action.Actionable() {
			out = append(out, e)
		}
	}
	return out
}
