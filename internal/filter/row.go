package filter

import (
	"time"

	"orb-lab/internal/domain"
	"orb-lab/internal/session"
)

// SessionValues attaches calendar end times to the session stats of a row.
func SessionValues(cal *session.Calendar, row *domain.FeatureRow) []SessionValue {
	out := make([]SessionValue, 0, len(row.Sessions))
	for _, s := range row.Sessions {
		_, end, err := cal.WindowBounds(row.TradingDay, s.Name)
		if err != nil {
			continue
		}
		out = append(out, SessionValue{Name: s.Name, Range: s.Range(), End: end})
	}
	return out
}

// RowInput builds the filter input for a graded ORB on a stored row as seen at
// the trade's entry. The decision instant is the trigger bar close, or the window
// end when no breakout happened.
func RowInput(cal *session.Calendar, row *domain.FeatureRow, o *domain.ORBResult) Input {
	in := Input{
		Range:     o.Range,
		Direction: o.Trade.Direction,
		ATR:       row.ATR,
		RSI:       o.RSI,
		Sessions:  SessionValues(cal, row),
	}
	if o.Trade.EntryTime != nil {
		in.Now = time.UnixMilli(*o.Trade.EntryTime).UTC()
	} else if _, end, err := cal.WindowBounds(row.TradingDay, o.Name); err == nil {
		in.Now = end
	}
	return in
}
