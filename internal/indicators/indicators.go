// Package indicators computes the volatility and momentum values stored on a FeatureRow.
// Every function reads only the bars it is given; callers slice history to the decision instant.
package indicators

import (
	"math"

	"orb-lab/internal/domain"
)

// DailyBar is one trading day aggregated from minute bars.
type DailyBar struct {
	High  float64
	Low   float64
	Close float64
}

// Aggregate folds minute bars into a DailyBar. ok is false for an empty slice.
func Aggregate(bars []*domain.Bar) (DailyBar, bool) {
	if len(bars) == 0 {
		return DailyBar{}, false
	}
	d := DailyBar{High: bars[0].High, Low: bars[0].Low, Close: bars[len(bars)-1].Close}
	for _, b := range bars[1:] {
		d.High = math.Max(d.High, b.High)
		d.Low = math.Min(d.Low, b.Low)
	}
	return d, true
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(d DailyBar, prevClose float64) float64 {
	return math.Max(d.High-d.Low, math.Max(math.Abs(d.High-prevClose), math.Abs(d.Low-prevClose)))
}

// ATR returns the mean true range of the last n days, or nil when fewer than n days
// are available. days must be ascending and must end before the day being described.
// The oldest day in the lookback uses its own high-low when no earlier close exists.
func ATR(days []DailyBar, n int) *float64 {
	if n <= 0 || len(days) < n {
		return nil
	}
	start := len(days) - n
	var sum float64
	for i := start; i < len(days); i++ {
		if i == 0 {
			sum += days[i].High - days[i].Low
			continue
		}
		sum += TrueRange(days[i], days[i-1].Close)
	}
	v := sum / float64(n)
	return &v
}

// Resample returns the close of each period-aligned bucket, in time order.
func Resample(bars []*domain.Bar, periodMs int64) []float64 {
	var closes []float64
	bucket := int64(math.MinInt64)
	for _, b := range bars {
		k := b.Timestamp - mod(b.Timestamp, periodMs)
		if k != bucket {
			closes = append(closes, b.Close)
			bucket = k
			continue
		}
		closes[len(closes)-1] = b.Close
	}
	return closes
}

// RSI is Wilder's relative strength index over closes. Returns nil when fewer than
// n+1 closes are available.
func RSI(closes []float64, n int) *float64 {
	if n <= 0 || len(closes) < n+1 {
		return nil
	}

	var gain, loss float64
	for i := 1; i <= n; i++ {
		g, l := change(closes[i] - closes[i-1])
		gain += g
		loss += l
	}
	avgGain := gain / float64(n)
	avgLoss := loss / float64(n)

	for i := n + 1; i < len(closes); i++ {
		g, l := change(closes[i] - closes[i-1])
		avgGain = (avgGain*float64(n-1) + g) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + l) / float64(n)
	}

	var v float64
	switch {
	case avgGain == 0 && avgLoss == 0:
		v = 50
	case avgLoss == 0:
		v = 100
	default:
		v = 100 - 100/(1+avgGain/avgLoss)
	}
	return &v
}

func change(d float64) (gain, loss float64) {
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
