package promotion

import (
	"fmt"
	"strings"

	"orb-lab/internal/domain"
)

// Gate evaluates promotion criteria. Evaluate is a pure function of the
// candidate's recorded metrics and the thresholds.
type Gate struct {
	t Thresholds
}

// NewGate creates a gate with fixed thresholds.
func NewGate(t Thresholds) *Gate {
	return &Gate{t: t}
}

// Thresholds returns the gate's thresholds.
func (g *Gate) Thresholds() Thresholds {
	return g.t
}

// Evaluate produces the decision for a tested candidate.
// APPROVED only if ALL criteria pass; the reason lists every failing gate.
func (g *Gate) Evaluate(c *domain.EdgeCandidate) *Result {
	criteria := g.evaluateCriteria(c)

	res := &Result{Status: domain.CandidateApproved, Criteria: criteria}
	var failed []string
	for _, cr := range criteria {
		if !cr.Pass {
			failed = append(failed, fmt.Sprintf("%s: %s (required %s)", cr.Name, cr.Actual, cr.Threshold))
		}
	}
	if len(failed) > 0 {
		res.Status = domain.CandidateRejected
		res.Reason = strings.Join(failed, "; ")
		return res
	}

	res.Tier = g.TierFor(c.Metrics.AvgR)
	return res
}

// TierFor assigns a tier from historical expectancy.
func (g *Gate) TierFor(avgR float64) domain.Tier {
	switch {
	case avgR >= g.t.TopTierAvgR:
		return domain.TierTop
	case avgR >= g.t.MidTierAvgR:
		return domain.TierMid
	default:
		return domain.TierLow
	}
}

func (g *Gate) evaluateCriteria(c *domain.EdgeCandidate) []CriterionResult {
	criteria := make([]CriterionResult, 3)

	m := c.Metrics
	if m == nil {
		m = &domain.CandidateMetrics{}
	}
	r := c.Robustness
	if r == nil {
		r = &domain.RobustnessMetrics{}
	}

	// 1. Average R-multiple
	criteria[0] = CriterionResult{
		Name:      "min_avg_r",
		Threshold: fmt.Sprintf(">= %.4f", g.t.MinAvgR),
		Actual:    fmt.Sprintf("%.4f", m.AvgR),
		Pass:      c.Metrics != nil && m.AvgR >= g.t.MinAvgR,
	}

	// 2. Sample size
	criteria[1] = CriterionResult{
		Name:      "min_trades",
		Threshold: fmt.Sprintf(">= %d", g.t.MinTrades),
		Actual:    fmt.Sprintf("%d", m.TradeCount),
		Pass:      c.Metrics != nil && m.TradeCount >= g.t.MinTrades,
	}

	// 3. Time-split stability
	criteria[2] = CriterionResult{
		Name:      "time_split_stability",
		Threshold: fmt.Sprintf(">= %d of %d partitions with avg R > 0", g.t.MinPositivePartitions, g.t.Partitions),
		Actual:    fmt.Sprintf("%d of %d", r.PositivePartitions, len(r.Partitions)),
		Pass: c.Robustness != nil &&
			len(r.Partitions) == g.t.Partitions &&
			r.PositivePartitions >= g.t.MinPositivePartitions,
	}

	return criteria
}
