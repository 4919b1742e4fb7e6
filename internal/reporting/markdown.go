package reporting

import (
	"fmt"
	"strings"
	"time"

	"orb-lab/internal/domain"
)

// RenderMarkdown renders a feature report as Markdown string.
func RenderMarkdown(r *FeatureReport) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Feature Report: %s\n\n", r.Instrument))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Range: %s .. %s | Trading days: %d | Bars: %d\n\n",
		r.From.Format(domain.DayLayout), r.To.Format(domain.DayLayout), r.Days, r.BarCount))

	sb.WriteString("## Windows\n\n")
	if len(r.ORBSummary) == 0 {
		sb.WriteString("No feature rows available.\n\n")
		return sb.String()
	}

	sb.WriteString("| ORB | Days | Gaps | Trades | Wins | Losses | Time exits | WinRate | Avg R | Total R | Median R | MaxDD | MaxLoss | Avg range |\n")
	sb.WriteString("|-----|------|------|--------|------|--------|------------|---------|-------|---------|----------|-------|---------|-----------|\n")
	for _, s := range r.ORBSummary {
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d | %d | %d | %.4f | %.4f | %.2f | %.4f | %.2f | %d | %.2f |\n",
			s.ORB, s.Days, s.DataGaps, s.Trades, s.Wins, s.Losses, s.TimeExits,
			s.WinRate, s.AvgR, s.TotalR, s.MedianR, s.MaxDrawdownR, s.MaxConsecutiveLosses, s.AvgRangeSize))
	}
	sb.WriteString("\n")

	var gaps []string
	for _, s := range r.ORBSummary {
		if s.DataGaps > 0 {
			gaps = append(gaps, fmt.Sprintf("- %s: %d of %d days without bars", s.ORB, s.DataGaps, s.Days))
		}
	}
	if len(gaps) > 0 {
		sb.WriteString("## Data Gaps\n\n")
		sb.WriteString(strings.Join(gaps, "\n"))
		sb.WriteString("\n")
	}

	return sb.String()
}
