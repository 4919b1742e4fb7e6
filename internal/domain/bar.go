package domain

// BarInterval is the width of a stored bar in milliseconds.
const BarInterval int64 = 60_000

// Bar represents a one-minute OHLCV bar.
// Corresponds to bars_1m table in ClickHouse.
type Bar struct {
	Instrument string  // e.g. "MGC"
	Timestamp  int64   // bar open time, Unix milliseconds UTC
	Open       float64 // first trade price
	High       float64 // highest trade price
	Low        float64 // lowest trade price
	Close      float64 // last trade price
	Volume     float64 // contracts traded
}

// CloseTime returns the instant at which the bar's close becomes known.
func (b *Bar) CloseTime() int64 {
	return b.Timestamp + BarInterval
}
