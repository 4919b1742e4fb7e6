package features

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

// Options for creating a Builder.
type Options struct {
	Bars     storage.BarStore
	Features storage.FeatureStore
	Lock     storage.WriterLock
	Spec     Spec
	Logger   zerolog.Logger
}

// Builder writes FeatureRows for a date range. One builder run holds the writer
// lock of its instrument for the whole batch.
type Builder struct {
	bars     storage.BarStore
	features storage.FeatureStore
	lock     storage.WriterLock
	spec     Spec
	log      zerolog.Logger
}

// Result summarises a build.
type Result struct {
	Instrument string
	Rows       int
	Trades     int
	DataGaps   int
}

// New creates a Builder.
func New(opts Options) *Builder {
	return &Builder{
		bars:     opts.Bars,
		features: opts.Features,
		lock:     opts.Lock,
		spec:     opts.Spec,
		log:      opts.Logger,
	}
}

// LockName is the writer-lock name for an instrument's feature rows.
func LockName(instrument string) string {
	return "features:" + instrument
}

// Rows computes FeatureRows for [from, to] without writing them.
func (b *Builder) Rows(ctx context.Context, instrument string, from, to time.Time) ([]*domain.FeatureRow, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range %s..%s", storage.ErrInvalidInput,
			from.Format(domain.DayLayout), to.Format(domain.DayLayout))
	}

	start, end := b.spec.LoadRange(from, to)
	bars, err := b.bars.GetRange(ctx, instrument, start, end)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}

	rows, err := Compute(b.spec, instrument, bars, from, to)
	if err != nil {
		return nil, fmt.Errorf("compute %s: %w", instrument, err)
	}
	return rows, nil
}

// Build computes and upserts FeatureRows for [from, to]. Rows outside the range are
// left untouched. Returns storage.ErrStoreBusy when another writer holds the lock.
func (b *Builder) Build(ctx context.Context, instrument string, from, to time.Time) (*Result, error) {
	started := time.Now()
	log := b.log.With().
		Str("instrument", instrument).
		Str("from", from.Format(domain.DayLayout)).
		Str("to", to.Format(domain.DayLayout)).
		Logger()

	release, err := b.lock.TryLock(ctx, LockName(instrument))
	if err != nil {
		if errors.Is(err, storage.ErrStoreBusy) {
			observability.RecordStoreBusy()
		}
		return nil, fmt.Errorf("lock %s: %w", LockName(instrument), err)
	}
	defer release()

	log.Info().Msg("building features")

	rows, err := b.Rows(ctx, instrument, from, to)
	if err != nil {
		return nil, err
	}

	if err := b.features.Upsert(ctx, rows); err != nil {
		return nil, fmt.Errorf("upsert features: %w", err)
	}

	res := &Result{Instrument: instrument, Rows: len(rows)}
	for _, row := range rows {
		for _, o := range row.ORBs {
			observability.RecordORBOutcome(o.Name, string(o.Trade.Outcome), o.DataGap)
			if o.DataGap {
				res.DataGaps++
				log.Debug().Str("day", row.TradingDay.Format(domain.DayLayout)).Str("orb", o.Name).Msg("data gap")
			}
			if o.Trade.IsTrade() {
				res.Trades++
			}
		}
	}

	finished := time.Now()
	observability.RecordBuild(instrument, res.Rows, finished.Sub(started).Seconds(), finished.Unix())
	log.Info().
		Int("rows", res.Rows).
		Int("trades", res.Trades).
		Int("data_gaps", res.DataGaps).
		Dur("elapsed", finished.Sub(started)).
		Msg("features built")

	return res, nil
}
