package promotion

import (
	"fmt"
	"strings"

	"orb-lab/internal/domain"
)

// RenderMarkdown renders a candidate's audit record and gate checklist.
func RenderMarkdown(c *domain.EdgeCandidate, result *Result) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Candidate %d: %s %s\n\n", c.ID, c.Instrument, c.Feature.ORBName))
	sb.WriteString(fmt.Sprintf("## Decision: %s\n\n", result.Status))

	sb.WriteString("## Hypothesis\n\n")
	sb.WriteString(c.Hypothesis + "\n\n")

	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| RR | %g |\n", c.Feature.RiskReward))
	sb.WriteString(fmt.Sprintf("| Stop mode | %s |\n", c.Feature.StopMode))
	if c.Feature.SizeFilter != nil {
		sb.WriteString(fmt.Sprintf("| Size filter | %g x ATR |\n", *c.Feature.SizeFilter))
	}
	if c.Feature.Condition != nil {
		sb.WriteString(fmt.Sprintf("| Condition | %s = %s |\n", c.Feature.Condition.Type, c.Feature.Condition.Value))
	}
	sb.WriteString(fmt.Sprintf("| Test window | %s .. %s |\n",
		c.TestWindow.From.Format(domain.DayLayout), c.TestWindow.To.Format(domain.DayLayout)))
	sb.WriteString(fmt.Sprintf("| Code version | %s |\n", c.CodeVersion))
	sb.WriteString(fmt.Sprintf("| Data version | %s |\n", c.DataVersion))
	sb.WriteString("\n")

	if m := c.Metrics; m != nil {
		sb.WriteString("## Metrics\n\n")
		sb.WriteString("| Trades | Win rate | Avg R | Total R | Median R | Max DD (R) | Annual trades |\n")
		sb.WriteString("|--------|----------|-------|---------|----------|------------|---------------|\n")
		sb.WriteString(fmt.Sprintf("| %d | %.2f%% | %.4f | %.2f | %.4f | %.2f | %.1f |\n\n",
			m.TradeCount, m.WinRate*100, m.AvgR, m.TotalR, m.MedianR, m.MaxDrawdownR, m.AnnualTrades))
	}

	if r := c.Robustness; r != nil && len(r.Partitions) > 0 {
		sb.WriteString("## Partitions\n\n")
		sb.WriteString("| # | From | To | Trades | Avg R |\n")
		sb.WriteString("|---|------|----|--------|-------|\n")
		for i, p := range r.Partitions {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %d | %.4f |\n",
				i+1, p.From.Format(domain.DayLayout), p.To.Format(domain.DayLayout), p.TradeCount, p.AvgR))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Gates\n\n")
	sb.WriteString("| # | Gate | Threshold | Actual | Pass |\n")
	sb.WriteString("|---|------|-----------|--------|------|\n")
	for i, cr := range result.Criteria {
		passStr := "PASS"
		if !cr.Pass {
			passStr = "FAIL"
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n", i+1, cr.Name, cr.Threshold, cr.Actual, passStr))
	}
	sb.WriteString("\n")

	switch {
	case result.Approved():
		sb.WriteString(fmt.Sprintf("All gates passed. Tier: %s\n", result.Tier))
	case result.Status == domain.CandidateRejected:
		sb.WriteString("Rejected: " + result.Reason + "\n")
	case result.Reason != "":
		sb.WriteString("Pending decision. Failing gates: " + result.Reason + "\n")
	default:
		sb.WriteString(fmt.Sprintf("Pending decision. Gates would pass at tier %s\n", result.Tier))
	}

	return sb.String()
}
