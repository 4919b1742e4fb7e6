package domain

import "time"

// CandidateStatus is the lifecycle state of an edge candidate.
type CandidateStatus string

const (
	CandidateDraft    CandidateStatus = "DRAFT"
	CandidateTested   CandidateStatus = "TESTED"
	CandidateApproved CandidateStatus = "APPROVED"
	CandidateRejected CandidateStatus = "REJECTED"
)

// IsValid checks if the status is a known value.
func (s CandidateStatus) IsValid() bool {
	switch s {
	case CandidateDraft, CandidateTested, CandidateApproved, CandidateRejected:
		return true
	}
	return false
}

// TestWindow is the inclusive range of trading days a candidate is tested on.
type TestWindow struct {
	From time.Time
	To   time.Time
}

// CandidateMetrics are the backtest results written by the research runner.
type CandidateMetrics struct {
	TradeCount   int
	Wins         int
	Losses       int
	TimeExits    int
	WinRate      float64
	AvgR         float64
	TotalR       float64
	AnnualTrades float64

	MedianR              float64
	StddevR              float64 // sample standard deviation
	MaxDrawdownR         float64 // worst peak-to-trough of cumulative R
	MaxConsecutiveLosses int
}

// PartitionMetrics summarises one equal time slice of the test window.
type PartitionMetrics struct {
	From       time.Time
	To         time.Time
	TradeCount int
	AvgR       float64
}

// RobustnessMetrics holds time-split stability evidence.
type RobustnessMetrics struct {
	Partitions         []PartitionMetrics
	PositivePartitions int
}

// EdgeCandidate is a hypothesised setup moving through research.
// Corresponds to edge_candidates table in PostgreSQL. Candidates are never deleted.
type EdgeCandidate struct {
	ID         int64 // BIGSERIAL primary key
	Instrument string
	Hypothesis string
	Feature    SetupParams // ORB window, RR and stop mode under test
	TestWindow TestWindow

	Metrics    *CandidateMetrics  // nil until TESTED
	Robustness *RobustnessMetrics // nil until TESTED

	Status          CandidateStatus
	RejectionReason string
	CodeVersion     string
	DataVersion     string

	CreatedAt time.Time
	TestedAt  *time.Time
	DecidedAt *time.Time
}
