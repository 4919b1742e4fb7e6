package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// Rebuilder recomputes feature rows without persisting them.
type Rebuilder interface {
	Rows(ctx context.Context, instrument string, from, to time.Time) ([]*domain.FeatureRow, error)
}

// Verifier compares the stored feature table with a fresh in-memory rebuild.
type Verifier struct {
	rebuild  Rebuilder
	features storage.FeatureStore
	log      zerolog.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(rebuild Rebuilder, features storage.FeatureStore, log zerolog.Logger) *Verifier {
	return &Verifier{rebuild: rebuild, features: features, log: log}
}

// VerifyRange rebuilds [from, to] and diffs every trading day against storage.
// Days present on only one side are reported as divergent.
func (v *Verifier) VerifyRange(ctx context.Context, instrument string, from, to time.Time) (*Report, error) {
	rebuilt, err := v.rebuild.Rows(ctx, instrument, from, to)
	if err != nil {
		return nil, fmt.Errorf("rebuild %s: %w", instrument, err)
	}
	stored, err := v.features.GetRange(ctx, instrument, from, to)
	if err != nil {
		return nil, fmt.Errorf("load stored %s: %w", instrument, err)
	}

	byDay := make(map[string]*domain.FeatureRow, len(stored))
	for _, r := range stored {
		byDay[r.TradingDay.Format(domain.DayLayout)] = r
	}

	report := &Report{Instrument: instrument}
	seen := make(map[string]bool, len(rebuilt))
	for _, r := range rebuilt {
		day := r.TradingDay.Format(domain.DayLayout)
		seen[day] = true

		res := RowResult{TradingDay: day}
		if s, ok := byDay[day]; ok {
			res.Divergences = CompareFeatureRows(s, r)
		} else {
			res.Divergences = []FieldDivergence{{Field: "row", Expected: "missing", Actual: "present"}}
		}
		report.add(res)
	}

	for _, s := range stored {
		day := s.TradingDay.Format(domain.DayLayout)
		if !seen[day] {
			report.add(RowResult{
				TradingDay:  day,
				Divergences: []FieldDivergence{{Field: "row", Expected: "present", Actual: "missing"}},
			})
		}
	}

	for _, res := range report.Results {
		for _, d := range res.Divergences {
			v.log.Warn().
				Str("instrument", instrument).
				Str("trading_day", res.TradingDay).
				Str("field", d.Field).
				Msg(d.String())
		}
	}
	v.log.Info().
		Str("instrument", instrument).
		Int("rows", report.TotalRows).
		Int("matched", report.MatchedRows).
		Int("divergent", report.DivergentRows).
		Msg("verification complete")

	return report, nil
}

// VerifyDay verifies a single trading day. Returns storage.ErrNotFound when the
// day was never built.
func (v *Verifier) VerifyDay(ctx context.Context, instrument string, day time.Time) (*RowResult, error) {
	stored, err := v.features.Get(ctx, instrument, day)
	if err != nil {
		return nil, err
	}
	rebuilt, err := v.rebuild.Rows(ctx, instrument, day, day)
	if err != nil {
		return nil, err
	}
	if len(rebuilt) != 1 {
		return nil, errors.New("rebuild returned no row")
	}
	res := RowResult{TradingDay: day.Format(domain.DayLayout), Divergences: CompareFeatureRows(stored, rebuilt[0])}
	res.Match = len(res.Divergences) == 0
	return &res, nil
}

func (r *Report) add(res RowResult) {
	res.Match = len(res.Divergences) == 0
	r.TotalRows++
	if res.Match {
		r.MatchedRows++
	} else {
		r.DivergentRows++
	}
	r.Results = append(r.Results, res)
}
