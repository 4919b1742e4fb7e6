package metrics

import (
	"math"
	"testing"
	"time"

	"orb-lab/internal/domain"
)

func day(d int) time.Time {
	return domain.Day(2025, 1, 1).AddDate(0, 0, d)
}

func TestCompute_Empty(t *testing.T) {
	m := Compute(nil, day(0), day(9))
	if m.TradeCount != 0 || m.AvgR != 0 {
		t.Errorf("expected zero metrics, got %+v", m)
	}
}

func TestCompute_Basic(t *testing.T) {
	trades := []Trade{
		{Day: day(2), Outcome: domain.OutcomeLoss, R: -1},
		{Day: day(0), Outcome: domain.OutcomeWin, R: 2},
		{Day: day(1), Outcome: domain.OutcomeWin, R: 2},
		{Day: day(3), Outcome: domain.OutcomeTimeExit, R: 0.5},
		{Day: day(4), Outcome: domain.OutcomeLoss, R: -1},
	}

	m := Compute(trades, day(0), day(364))

	if m.TradeCount != 5 || m.Wins != 2 || m.Losses != 2 || m.TimeExits != 1 {
		t.Fatalf("unexpected counts: %+v", m)
	}
	if math.Abs(m.WinRate-0.4) > 1e-9 {
		t.Errorf("expected win rate 0.4, got %f", m.WinRate)
	}
	// (2 + 2 - 1 + 0.5 - 1) / 5 = 0.5
	if math.Abs(m.AvgR-0.5) > 1e-9 {
		t.Errorf("expected avg R 0.5, got %f", m.AvgR)
	}
	if math.Abs(m.TotalR-2.5) > 1e-9 {
		t.Errorf("expected total R 2.5, got %f", m.TotalR)
	}
	if m.MedianR != 0.5 {
		t.Errorf("expected median 0.5, got %f", m.MedianR)
	}
	// Chronological: +2 +2 -1 +0.5 -1 → peak 4, trough 3 then 3.5, 2.5 → drawdown 1.5
	if math.Abs(m.MaxDrawdownR-1.5) > 1e-9 {
		t.Errorf("expected drawdown 1.5, got %f", m.MaxDrawdownR)
	}
	if m.MaxConsecutiveLosses != 1 {
		t.Errorf("expected 1 consecutive loss, got %d", m.MaxConsecutiveLosses)
	}
	// 5 trades over 365 days
	if math.Abs(m.AnnualTrades-5*365.25/365) > 1e-9 {
		t.Errorf("unexpected annual trades %f", m.AnnualTrades)
	}
}

func TestCompute_OrderIndependent(t *testing.T) {
	a := []Trade{
		{Day: day(0), Outcome: domain.OutcomeLoss, R: -1},
		{Day: day(1), Outcome: domain.OutcomeLoss, R: -1},
		{Day: day(2), Outcome: domain.OutcomeWin, R: 1},
	}
	b := []Trade{a[2], a[0], a[1]}

	ma, mb := Compute(a, day(0), day(2)), Compute(b, day(0), day(2))
	if ma != mb {
		t.Errorf("metrics depend on input order: %+v vs %+v", ma, mb)
	}
	if ma.MaxConsecutiveLosses != 2 {
		t.Errorf("expected 2 consecutive losses, got %d", ma.MaxConsecutiveLosses)
	}
}

func TestPartition(t *testing.T) {
	// 9 days → partitions [0..2], [3..5], [6..8]
	trades := []Trade{
		{Day: day(0), R: 1},
		{Day: day(2), R: -0.5},
		{Day: day(4), R: -1},
		{Day: day(6), R: 2},
		{Day: day(8), R: -1},
	}

	r := Partition(trades, day(0), day(8), 3)

	if len(r.Partitions) != 3 {
		t.Fatalf("expected 3 partitions, got %d", len(r.Partitions))
	}
	wantFrom := []time.Time{day(0), day(3), day(6)}
	wantTo := []time.Time{day(2), day(5), day(8)}
	wantCount := []int{2, 1, 2}
	wantAvg := []float64{0.25, -1, 0.5}
	for i, p := range r.Partitions {
		if !p.From.Equal(wantFrom[i]) || !p.To.Equal(wantTo[i]) {
			t.Errorf("partition %d: bounds %v..%v", i, p.From, p.To)
		}
		if p.TradeCount != wantCount[i] {
			t.Errorf("partition %d: expected %d trades, got %d", i, wantCount[i], p.TradeCount)
		}
		if math.Abs(p.AvgR-wantAvg[i]) > 1e-9 {
			t.Errorf("partition %d: expected avg %f, got %f", i, wantAvg[i], p.AvgR)
		}
	}
	if r.PositivePartitions != 2 {
		t.Errorf("expected 2 positive partitions, got %d", r.PositivePartitions)
	}
}

func TestPartition_EmptySliceNotPositive(t *testing.T) {
	trades := []Trade{{Day: day(0), R: 1}}
	r := Partition(trades, day(0), day(5), 3)
	if r.PositivePartitions != 1 {
		t.Errorf("expected 1 positive partition, got %d", r.PositivePartitions)
	}
	if r.Partitions[2].TradeCount != 0 || r.Partitions[2].AvgR != 0 {
		t.Errorf("expected empty last partition, got %+v", r.Partitions[2])
	}
}

func TestFromGraded(t *testing.T) {
	if _, ok := FromGraded(day(0), domain.NoTrade(1, domain.StopModeFull)); ok {
		t.Error("NO_TRADE must not convert")
	}

	r := -1.0
	tr, ok := FromGraded(day(1), domain.GradedTrade{Direction: domain.DirectionUp, Outcome: domain.OutcomeLoss, RMultiple: &r})
	if !ok || tr.R != -1 || tr.Outcome != domain.OutcomeLoss || !tr.Day.Equal(day(1)) {
		t.Errorf("unexpected conversion %+v ok=%v", tr, ok)
	}
}

func TestComputePercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	if got := computePercentile(sorted, 0.5); got != 2.5 {
		t.Errorf("expected 2.5, got %f", got)
	}
	if got := computePercentile([]float64{7}, 0.9); got != 7 {
		t.Errorf("expected 7, got %f", got)
	}
}

func TestComputeStddev(t *testing.T) {
	// mean 2, squares 1+0+1 → sqrt(2/2) = 1
	if got := computeStddev([]float64{1, 2, 3}, 2); math.Abs(got-1) > 1e-9 {
		t.Errorf("expected 1, got %f", got)
	}
	if got := computeStddev([]float64{5}, 5); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
}
