package reporting

import "time"

// FeatureReport summarises the feature table of one instrument over a date range.
type FeatureReport struct {
	GeneratedAt time.Time
	Instrument  string
	From        time.Time
	To          time.Time

	Days     int // stored trading days
	BarCount int // bars across those days

	// ORBSummary holds one row per window in calendar order.
	ORBSummary []ORBSummaryRow
}

// ORBSummaryRow aggregates the graded trades of one window.
type ORBSummaryRow struct {
	ORB                  string
	Days                 int
	DataGaps             int
	NoTrades             int
	Trades               int
	Wins                 int
	Losses               int
	TimeExits            int
	WinRate              float64
	AvgR                 float64
	TotalR               float64
	MedianR              float64
	MaxDrawdownR         float64
	MaxConsecutiveLosses int
	AvgRangeSize         float64 // mean high-low over days with a range
}
