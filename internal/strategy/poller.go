package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"orb-lab/internal/domain"
	"orb-lab/internal/observability"
	"orb-lab/internal/storage"
)

// Poller loads recent bars from the bar store and evaluates the engine on a schedule.
type Poller struct {
	engine *Engine
	bars   storage.BarStore
	log    zerolog.Logger
	now    func() time.Time
}

// NewPoller creates a Poller. A nil now uses the wall clock.
func NewPoller(engine *Engine, bars storage.BarStore, log zerolog.Logger, now func() time.Time) *Poller {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Poller{engine: engine, bars: bars, log: log, now: now}
}

// Snapshot loads the bars every setup instrument needs at now: the ATR lookback
// plus the previous and current trading days.
func (p *Poller) Snapshot(ctx context.Context, now time.Time) (Snapshot, error) {
	spec := p.engine.spec
	today := spec.Calendar.TradingDayOf(now)
	start, end := spec.LoadRange(today.AddDate(0, 0, -1), today)

	snap := Snapshot{Now: now, Bars: make(map[string][]*domain.Bar)}
	for _, inst := range p.engine.setups.Instruments() {
		bars, err := p.bars.GetRange(ctx, inst, start, end)
		if err != nil {
			return Snapshot{}, fmt.Errorf("load bars %s: %w", inst, err)
		}
		snap.Bars[inst] = bars
	}
	return snap, nil
}

// Cycle evaluates once at the current time and records metrics.
func (p *Poller) Cycle(ctx context.Context) (*Report, error) {
	started := time.Now()
	snap, err := p.Snapshot(ctx, p.now())
	if err != nil {
		return nil, err
	}
	rep, err := p.engine.Evaluate(snap)
	if err != nil {
		return nil, err
	}

	for _, ev := range rep.Evaluations {
		observability.RecordEvaluation(string(ev.State))
	}
	actionable := rep.Actionable()
	finished := time.Now()
	observability.RecordEvaluationCycle(finished.Sub(started).Seconds(), len(actionable), finished.Unix())

	ev := p.log.Info().
		Time("at", rep.Now).
		Int("evaluations", len(rep.Evaluations)).
		Int("actionable", len(actionable))
	if rep.Selected != nil {
		ev = ev.Str("selected", rep.Selected.StrategyName).
			Str("state", string(rep.Selected.State)).
			Str("action", string(rep.Selected.Action)).
			Str("next", rep.Selected.NextInstruction)
	}
	ev.Msg("evaluation cycle")

	return rep, nil
}

// Run evaluates every interval until ctx is cancelled. A failed cycle is logged
// and retried on the next tick unless it is an integrity violation; onReport receives every successful report.
func (p *Poller) Run(ctx context.Context, interval time.Duration, onReport func(*Report)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		rep, err := p.Cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, domain.ErrIntegrity) {
				return err
			}
			p.log.Error().Err(err).Msg("evaluation cycle failed")
		} else if onReport != nil {
			onReport(rep)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
