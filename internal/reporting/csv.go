package reporting

import (
	"encoding/csv"
	"io"
	"strconv"

	"orb-lab/internal/domain"
)

var featureHeader = []string{
	"trading_day", "instrument", "orb", "data_gap",
	"orb_high", "orb_low", "orb_size", "rsi", "atr",
	"direction", "rr", "stop_mode",
	"entry_time", "entry_price", "stop_price", "target_price",
	"outcome", "r_multiple", "exit_time", "exit_price", "mae", "mfe",
}

// WriteFeatureCSV writes one line per (trading day, window). Missing values are empty.
func WriteFeatureCSV(w io.Writer, rows []*domain.FeatureRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(featureHeader); err != nil {
		return err
	}

	for _, row := range rows {
		for i := range row.ORBs {
			o := &row.ORBs[i]
			var high, low, size string
			if o.Range != nil {
				high, low, size = num(o.Range.High), num(o.Range.Low), num(o.Range.Size())
			}
			t := &o.Trade
			rec := []string{
				row.TradingDay.Format(domain.DayLayout),
				row.Instrument,
				o.Name,
				strconv.FormatBool(o.DataGap),
				high, low, size,
				opt(o.RSI),
				opt(row.ATR),
				string(t.Direction),
				num(t.RiskReward),
				string(t.StopMode),
				optInt(t.EntryTime),
				opt(t.EntryPrice),
				opt(t.StopPrice),
				opt(t.TargetPrice),
				string(t.Outcome),
				opt(t.RMultiple),
				optInt(t.ExitTime),
				opt(t.ExitPrice),
				opt(t.MAE),
				opt(t.MFE),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSummaryCSV writes the per-window summary of a report.
func WriteSummaryCSV(w io.Writer, r *FeatureReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"orb", "days", "data_gaps", "no_trades", "trades", "wins", "losses", "time_exits",
		"win_rate", "avg_r", "total_r", "median_r", "max_drawdown_r", "max_consecutive_losses", "avg_range",
	}); err != nil {
		return err
	}
	for _, s := range r.ORBSummary {
		if err := cw.Write([]string{
			s.ORB,
			strconv.Itoa(s.Days),
			strconv.Itoa(s.DataGaps),
			strconv.Itoa(s.NoTrades),
			strconv.Itoa(s.Trades),
			strconv.Itoa(s.Wins),
			strconv.Itoa(s.Losses),
			strconv.Itoa(s.TimeExits),
			strconv.FormatFloat(s.WinRate, 'f', 6, 64),
			strconv.FormatFloat(s.AvgR, 'f', 6, 64),
			strconv.FormatFloat(s.TotalR, 'f', 6, 64),
			strconv.FormatFloat(s.MedianR, 'f', 6, 64),
			strconv.FormatFloat(s.MaxDrawdownR, 'f', 6, 64),
			strconv.Itoa(s.MaxConsecutiveLosses),
			strconv.FormatFloat(s.AvgRangeSize, 'f', 6, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func opt(v *float64) string {
	if v == nil {
		return ""
	}
	return num(*v)
}

func optInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
