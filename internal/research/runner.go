// Package research executes edge candidates against history and records results.
package research

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"orb-lab/internal/domain"
	"orb-lab/internal/features"
	"orb-lab/internal/filter"
	"orb-lab/internal/idhash"
	"orb-lab/internal/metrics"
	"orb-lab/internal/observability"
	"orb-lab/internal/orb"
	"orb-lab/internal/storage"
)

// ErrNotDraft is returned when a candidate has already been tested.
var ErrNotDraft = errors.New("candidate is not DRAFT")

// Options for creating a Runner.
type Options struct {
	Bars       storage.BarStore
	Candidates storage.CandidateStore
	Spec       features.Spec // calendar, horizon and indicator periods; params come from the candidate
	Partitions int
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Runner moves candidates from DRAFT to TESTED.
type Runner struct {
	bars       storage.BarStore
	candidates storage.CandidateStore
	spec       features.Spec
	partitions int
	log        zerolog.Logger
	now        func() time.Time
}

// Report is the outcome of one research run.
type Report struct {
	CandidateID int64
	Metrics     domain.CandidateMetrics
	Robustness  domain.RobustnessMetrics
	Breakouts   int    // breakouts seen before filters
	Filtered    int    // breakouts rejected by the size filter or condition
	InputDigest string // SHA256 of the bars the candidate was tested on
}

// NewRunner creates a research runner.
func NewRunner(opts Options) *Runner {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	partitions := opts.Partitions
	if partitions <= 0 {
		partitions = 3
	}
	return &Runner{
		bars:       opts.Bars,
		candidates: opts.Candidates,
		spec:       opts.Spec,
		partitions: partitions,
		log:        opts.Logger,
		now:        now,
	}
}

// Run backtests candidate id over its test window and marks it TESTED.
func (r *Runner) Run(ctx context.Context, id int64) (*Report, error) {
	c, err := r.candidates.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load candidate %d: %w", id, err)
	}
	if c.Status != domain.CandidateDraft {
		return nil, fmt.Errorf("candidate %d is %s: %w", id, c.Status, ErrNotDraft)
	}

	log := r.log.With().Int64("candidate_id", id).Str("instrument", c.Instrument).Str("orb", c.Feature.ORBName).Logger()
	log.Info().Str("hypothesis", c.Hypothesis).Msg("running candidate")

	rep, err := r.Backtest(ctx, c)
	if err != nil {
		return nil, err
	}

	if err := r.candidates.MarkTested(ctx, id, rep.Metrics, rep.Robustness, r.now().UTC()); err != nil {
		return nil, fmt.Errorf("mark candidate %d tested: %w", id, err)
	}
	observability.RecordCandidateTested()

	log.Info().
		Int("trades", rep.Metrics.TradeCount).
		Float64("avg_r", rep.Metrics.AvgR).
		Float64("win_rate", rep.Metrics.WinRate).
		Int("positive_partitions", rep.Robustness.PositivePartitions).
		Int("filtered", rep.Filtered).
		Str("input_digest", rep.InputDigest).
		Msg("candidate tested")

	return rep, nil
}

// Backtest computes metrics for a candidate without changing its status.
func (r *Runner) Backtest(ctx context.Context, c *domain.EdgeCandidate) (*Report, error) {
	if _, ok := r.spec.Calendar.Window(c.Feature.ORBName); !ok {
		return nil, fmt.Errorf("%w: unknown orb %q", storage.ErrInvalidInput, c.Feature.ORBName)
	}
	from, to := c.TestWindow.From, c.TestWindow.To
	if to.Before(from) {
		return nil, fmt.Errorf("%w: test window %s..%s", storage.ErrInvalidInput,
			from.Format(domain.DayLayout), to.Format(domain.DayLayout))
	}

	spec := r.spec
	spec.Params = orb.Params{RiskReward: c.Feature.RiskReward, StopMode: c.Feature.StopMode}

	start, end := spec.LoadRange(from, to)
	bars, err := r.bars.GetRange(ctx, c.Instrument, start, end)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}

	rows, err := features.Compute(spec, c.Instrument, bars, from, to)
	if err != nil {
		return nil, fmt.Errorf("compute candidate %d: %w", c.ID, err)
	}

	rep := &Report{CandidateID: c.ID, InputDigest: barsDigest(bars)}
	trades := Select(spec, rows, c.Feature, rep)
	rep.Metrics = metrics.Compute(trades, from, to)
	rep.Robustness = metrics.Partition(trades, from, to, r.partitions)
	return rep, nil
}

// Select returns the trades of p's window that pass p's filters at entry.
// rep, when non-nil, receives breakout and filter counts.
func Select(spec features.Spec, rows []*domain.FeatureRow, p domain.SetupParams, rep *Report) []metrics.Trade {
	var trades []metrics.Trade
	for _, row := range rows {
		o := row.ORB(p.ORBName)
		if o == nil || !o.Trade.IsTrade() {
			continue
		}
		if rep != nil {
			rep.Breakouts++
		}
		if !filter.Passed(filter.Evaluate(p, filter.RowInput(spec.Calendar, row, o))) {
			if rep != nil {
				rep.Filtered++
			}
			continue
		}
		if t, ok := metrics.FromGraded(row.TradingDay, o.Trade); ok {
			trades = append(trades, t)
		}
	}
	return trades
}

// barsDigest fingerprints bars by key and OHLCV, so two runs over identical input
// report the same digest.
func barsDigest(bars []*domain.Bar) string {
	buf := make([]byte, 0, len(bars)*64)
	for _, b := range bars {
		buf = append(buf, b.Instrument...)
		buf = append(buf, ',')
		buf = strconv.AppendInt(buf, b.Timestamp, 10)
		for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
			buf = append(buf, ',')
			buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
		}
		buf = append(buf, '\n')
	}
	return idhash.ComputeDigest(buf)
}
