// Package promotion decides whether tested edge candidates become production setups.
package promotion

import "orb-lab/internal/domain"

// Thresholds are the hard promotion gates and tier cut-offs.
type Thresholds struct {
	MinAvgR               float64
	MinTrades             int
	Partitions            int
	MinPositivePartitions int
	TopTierAvgR           float64
	MidTierAvgR           float64
}

// DefaultThresholds returns the standard gates.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinAvgR:               0.10,
		MinTrades:             50,
		Partitions:            3,
		MinPositivePartitions: 2,
		TopTierAvgR:           0.30,
		MidTierAvgR:           0.15,
	}
}

// CriterionResult represents pass/fail for one gate.
type CriterionResult struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// Result is the gate decision for one candidate.
type Result struct {
	Status   domain.CandidateStatus // APPROVED or REJECTED
	Criteria []CriterionResult
	Reason   string // failing gates, empty on approval
	Tier     domain.Tier
}

// Approved reports whether every gate passed.
func (r *Result) Approved() bool {
	return r.Status == domain.CandidateApproved
}
