package session

import (
	"time"

	"orb-lab/internal/domain"
)

// Instance is a window materialised on a specific trading day.
type Instance struct {
	Window
	TradingDay time.Time
	Start      time.Time // UTC
	End        time.Time // UTC, formation complete
	Expires    time.Time // UTC, End + watch period
}

// Forming reports whether now is inside the formation period.
func (i Instance) Forming(now time.Time) bool {
	return !now.Before(i.Start) && now.Before(i.End)
}

// Instance materialises a named window on a trading day.
func (c *Calendar) Instance(tradingDay time.Time, name string, watch time.Duration) (Instance, error) {
	start, end, err := c.WindowBounds(tradingDay, name)
	if err != nil {
		return Instance{}, err
	}
	w, _ := c.Window(name)
	y, m, d := tradingDay.Date()
	return Instance{
		Window:     w,
		TradingDay: domain.Day(y, m, d),
		Start:      start,
		End:        end,
		Expires:    end.Add(watch),
	}, nil
}

// Eligible reports whether now is inside [Start, Expires).
func (i Instance) Eligible(now time.Time) bool {
	return !now.Before(i.Start) && now.Before(i.Expires)
}

// StartedWindows returns every ORB window instance of the previous and current
// trading days whose formation has begun at now, whether or not its watch period
// has expired.
func (c *Calendar) StartedWindows(now time.Time, watch time.Duration) []Instance {
	current := c.TradingDayOf(now)
	days := []time.Time{current.AddDate(0, 0, -1), current}

	var out []Instance
	for _, d := range days {
		for _, w := range c.ORBs() {
			inst, err := c.Instance(d, w.Name, watch)
			if err != nil {
				continue
			}
			if !now.Before(inst.Start) {
				out = append(out, inst)
			}
		}
	}
	sortInstances(out)
	return out
}

// EligibleWindows returns every ORB window instance whose formation has begun and
// whose watch period has not expired at now. Windows from the previous trading day
// are included, so a window persists across a trading-day boundary until expiry.
// Several instances may be eligible at once.
func (c *Calendar) EligibleWindows(now time.Time, watch time.Duration) []Instance {
	var out []Instance
	for _, inst := range c.StartedWindows(now, watch) {
		if inst.Eligible(now) {
			out = append(out, inst)
		}
	}
	return out
}
