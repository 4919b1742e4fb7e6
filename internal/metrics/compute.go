// Package metrics computes trade statistics and time-split robustness for research.
package metrics

import (
	"math"
	"sort"
	"time"

	"orb-lab/internal/domain"
)

// Trade is one graded trade reduced to what statistics need.
type Trade struct {
	Day     time.Time
	Outcome domain.Outcome
	R       float64
}

// FromGraded converts a graded trade. ok is false for NO_TRADE.
func FromGraded(day time.Time, t domain.GradedTrade) (Trade, bool) {
	if !t.IsTrade() || t.RMultiple == nil {
		return Trade{}, false
	}
	return Trade{Day: day, Outcome: t.Outcome, R: *t.RMultiple}, true
}

// Compute calculates all metrics from trades taken within [from, to].
// Trades are sorted by day before computing order-dependent metrics
// (MaxDrawdownR, MaxConsecutiveLosses).
func Compute(trades []Trade, from, to time.Time) domain.CandidateMetrics {
	n := len(trades)
	if n == 0 {
		return domain.CandidateMetrics{}
	}

	sorted := sortByDay(trades)

	var m domain.CandidateMetrics
	m.TradeCount = n
	outcomes := make([]float64, n)
	for i, t := range sorted {
		outcomes[i] = t.R
		switch t.Outcome {
		case domain.OutcomeWin:
			m.Wins++
		case domain.OutcomeLoss:
			m.Losses++
		case domain.OutcomeTimeExit:
			m.TimeExits++
		}
	}

	ordered := make([]float64, n)
	copy(ordered, outcomes)
	sort.Float64s(ordered)

	mean := computeMean(outcomes)
	m.WinRate = float64(m.Wins) / float64(n)
	m.AvgR = mean
	m.TotalR = mean * float64(n)
	m.AnnualTrades = annualise(n, from, to)
	m.MedianR = computePercentile(ordered, 0.50)
	m.StddevR = computeStddev(outcomes, mean)
	m.MaxDrawdownR = computeMaxDrawdown(outcomes)
	m.MaxConsecutiveLosses = computeMaxConsecutiveLosses(outcomes)
	return m
}

// Partition splits [from, to] into k equal runs of calendar days and reports the
// average R of each. A partition without trades is not positive.
func Partition(trades []Trade, from, to time.Time, k int) domain.RobustnessMetrics {
	days := spanDays(from, to)
	if k <= 0 || days <= 0 {
		return domain.RobustnessMetrics{}
	}

	var out domain.RobustnessMetrics
	for i := 0; i < k; i++ {
		first := from.AddDate(0, 0, i*days/k)
		last := from.AddDate(0, 0, (i+1)*days/k-1)

		p := domain.PartitionMetrics{From: first, To: last}
		var sum float64
		for _, t := range trades {
			if !t.Day.Before(first) && !t.Day.After(last) {
				p.TradeCount++
				sum += t.R
			}
		}
		if p.TradeCount > 0 {
			p.AvgR = sum / float64(p.TradeCount)
			if p.AvgR > 0 {
				out.PositivePartitions++
			}
		}
		out.Partitions = append(out.Partitions, p)
	}
	return out
}

func sortByDay(trades []Trade) []Trade {
	sorted := make([]Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Day.Before(sorted[j].Day)
	})
	return sorted
}

// spanDays counts calendar days in [from, to].
func spanDays(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours()/24) + 1
}

func annualise(n int, from, to time.Time) float64 {
	days := spanDays(from, to)
	if days == 0 {
		return 0
	}
	return float64(n) * 365.25 / float64(days)
}

// computeMean calculates arithmetic mean of outcomes.
func computeMean(outcomes []float64) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	sum := 0.0
	for _, o := range outcomes {
		sum += o
	}
	return sum / float64(len(outcomes))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(outcomes []float64, mean float64) float64 {
	n := len(outcomes)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, o := range outcomes {
		diff := o - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown calculates worst peak-to-trough on cumulative R.
// Outcomes must be in chronological order.
func computeMaxDrawdown(outcomes []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, o := range outcomes {
		cumulative += o
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses finds longest streak of R <= 0.
func computeMaxConsecutiveLosses(outcomes []float64) int {
	maxStreak := 0
	currentStreak := 0

	for _, o := range outcomes {
		if o <= 0 {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}
