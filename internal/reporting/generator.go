// Package reporting exports the feature table and renders candidate audits.
package reporting

import (
	"context"
	"fmt"
	"time"

	"orb-lab/internal/domain"
	"orb-lab/internal/metrics"
	"orb-lab/internal/promotion"
	"orb-lab/internal/storage"
)

// Generator produces reports from stored data.
type Generator struct {
	features   storage.FeatureStore
	candidates storage.CandidateStore
	gate       *promotion.Gate
	now        func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(features storage.FeatureStore, candidates storage.CandidateStore, gate *promotion.Gate) *Generator {
	return &Generator{
		features:   features,
		candidates: candidates,
		gate:       gate,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Rows loads the stored feature rows for [from, to].
func (g *Generator) Rows(ctx context.Context, instrument string, from, to time.Time) ([]*domain.FeatureRow, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range %s..%s", storage.ErrInvalidInput,
			from.Format(domain.DayLayout), to.Format(domain.DayLayout))
	}
	return g.features.GetRange(ctx, instrument, from, to)
}

// Generate produces a feature summary for [from, to].
func (g *Generator) Generate(ctx context.Context, instrument string, from, to time.Time) (*FeatureReport, error) {
	_, r, err := g.load(ctx, instrument, from, to)
	return r, err
}

func (g *Generator) load(ctx context.Context, instrument string, from, to time.Time) ([]*domain.FeatureRow, *FeatureReport, error) {
	rows, err := g.Rows(ctx, instrument, from, to)
	if err != nil {
		return nil, nil, err
	}
	r := Summarise(rows, from, to)
	r.GeneratedAt = g.now()
	r.Instrument = instrument
	return rows, r, nil
}

// Summarise aggregates rows per window. Windows keep the order of the first row.
func Summarise(rows []*domain.FeatureRow, from, to time.Time) *FeatureReport {
	r := &FeatureReport{From: from, To: to, Days: len(rows)}

	type acc struct {
		row       ORBSummaryRow
		trades    []metrics.Trade
		rangeSum  float64
		rangeDays int
	}
	var order []string
	byORB := make(map[string]*acc)

	for _, row := range rows {
		r.BarCount += row.BarCount
		for i := range row.ORBs {
			o := &row.ORBs[i]
			a, ok := byORB[o.Name]
			if !ok {
				a = &acc{row: ORBSummaryRow{ORB: o.Name}}
				byORB[o.Name] = a
				order = append(order, o.Name)
			}
			a.row.Days++
			switch {
			case o.DataGap:
				a.row.DataGaps++
			case !o.Trade.IsTrade():
				a.row.NoTrades++
			}
			if o.Range != nil {
				a.rangeSum += o.Range.Size()
				a.rangeDays++
			}
			if t, ok := metrics.FromGraded(row.TradingDay, o.Trade); ok {
				a.trades = append(a.trades, t)
			}
		}
	}

	for _, name := range order {
		a := byORB[name]
		m := metrics.Compute(a.trades, from, to)
		a.row.Trades = m.TradeCount
		a.row.Wins = m.Wins
		a.row.Losses = m.Losses
		a.row.TimeExits = m.TimeExits
		a.row.WinRate = m.WinRate
		a.row.AvgR = m.AvgR
		a.row.TotalR = m.TotalR
		a.row.MedianR = m.MedianR
		a.row.MaxDrawdownR = m.MaxDrawdownR
		a.row.MaxConsecutiveLosses = m.MaxConsecutiveLosses
		if a.rangeDays > 0 {
			a.row.AvgRangeSize = a.rangeSum / float64(a.rangeDays)
		}
		r.ORBSummary = append(r.ORBSummary, a.row)
	}
	return r
}

// CandidateAudit renders the audit record of a candidate. Decided candidates keep
// their stored status and reason; undecided ones show the gate evaluation as it
// would stand now.
func (g *Generator) CandidateAudit(ctx context.Context, id int64) (string, error) {
	c, err := g.candidates.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	result := g.gate.Evaluate(c)
	result.Status = c.Status
	if c.Status == domain.CandidateApproved || c.Status == domain.CandidateRejected {
		result.Reason = c.RejectionReason
	}
	return promotion.RenderMarkdown(c, result), nil
}
