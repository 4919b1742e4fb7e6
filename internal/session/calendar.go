// Package session maps a fixed-offset local trading calendar onto UTC ranges.
//
// A trading day starts at a fixed local clock time (09:00 by default) and lasts
// 24 hours. Named windows are defined by a local clock start and a duration.
// Window clock times earlier than the trading-day start fall on the next civil
// date inside the same trading day, so a 00:30 window on trading day D opens at
// D+1 00:30 local.
package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"orb-lab/internal/domain"
)

const day = 24 * time.Hour

// Calendar errors.
var (
	ErrUnknownWindow = errors.New("unknown window")
	ErrInvalidClock  = errors.New("invalid clock time")
)

// Kind distinguishes ORB windows from broader sessions.
type Kind string

const (
	KindORB     Kind = "ORB"
	KindSession Kind = "SESSION"
)

// Window is a named local-time window.
type Window struct {
	Name     string
	Kind     Kind
	Start    time.Duration // local clock offset from midnight
	Duration time.Duration
}

// Options configures a Calendar.
type Options struct {
	UTCOffset time.Duration // constant offset, no daylight saving
	DayStart  time.Duration // local clock time the trading day begins
	Windows   []Window
}

// Calendar is an immutable trading calendar.
type Calendar struct {
	loc      *time.Location
	dayStart time.Duration
	windows  []Window
	byName   map[string]int
}

// New validates options and builds a Calendar.
func New(opts Options) (*Calendar, error) {
	if opts.DayStart < 0 || opts.DayStart >= day {
		return nil, fmt.Errorf("%w: day start %s", ErrInvalidClock, opts.DayStart)
	}
	if opts.UTCOffset <= -day || opts.UTCOffset >= day {
		return nil, fmt.Errorf("utc offset out of range: %s", opts.UTCOffset)
	}

	c := &Calendar{
		loc:      time.FixedZone(zoneName(opts.UTCOffset), int(opts.UTCOffset/time.Second)),
		dayStart: opts.DayStart,
		byName:   make(map[string]int, len(opts.Windows)),
	}

	for _, w := range opts.Windows {
		if w.Name == "" {
			return nil, errors.New("window name is required")
		}
		if _, dup := c.byName[w.Name]; dup {
			return nil, fmt.Errorf("duplicate window %q", w.Name)
		}
		if w.Kind != KindORB && w.Kind != KindSession {
			return nil, fmt.Errorf("window %q: unknown kind %q", w.Name, w.Kind)
		}
		if w.Start < 0 || w.Start >= day {
			return nil, fmt.Errorf("%w: window %q start %s", ErrInvalidClock, w.Name, w.Start)
		}
		if w.Duration <= 0 {
			return nil, fmt.Errorf("window %q: duration must be positive", w.Name)
		}
		if c.offset(w)+w.Duration > day {
			return nil, fmt.Errorf("window %q extends past the trading-day end", w.Name)
		}
		c.byName[w.Name] = len(c.windows)
		c.windows = append(c.windows, w)
	}

	return c, nil
}

// Default returns the fixed UTC+10 calendar with six ORB windows and three sessions.
func Default(orbMinutes int) *Calendar {
	orb := time.Duration(orbMinutes) * time.Minute
	c, err := New(Options{
		UTCOffset: 10 * time.Hour,
		DayStart:  9 * time.Hour,
		Windows: []Window{
			{Name: "0900", Kind: KindORB, Start: 9 * time.Hour, Duration: orb},
			{Name: "1000", Kind: KindORB, Start: 10 * time.Hour, Duration: orb},
			{Name: "1100", Kind: KindORB, Start: 11 * time.Hour, Duration: orb},
			{Name: "1800", Kind: KindORB, Start: 18 * time.Hour, Duration: orb},
			{Name: "2300", Kind: KindORB, Start: 23 * time.Hour, Duration: orb},
			{Name: "0030", Kind: KindORB, Start: 30 * time.Minute, Duration: orb},
			{Name: "ASIA", Kind: KindSession, Start: 9 * time.Hour, Duration: 8 * time.Hour},
			{Name: "LONDON", Kind: KindSession, Start: 18 * time.Hour, Duration: 5 * time.Hour},
			{Name: "NY", Kind: KindSession, Start: 23 * time.Hour, Duration: 3 * time.Hour},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("default calendar: %v", err))
	}
	return c
}

// Location returns the calendar's fixed zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Window looks up a window by name.
func (c *Calendar) Window(name string) (Window, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Window{}, false
	}
	return c.windows[i], true
}

// ORBs returns ORB windows in configuration order.
func (c *Calendar) ORBs() []Window {
	return c.ofKind(KindORB)
}

// Sessions returns session windows in configuration order.
func (c *Calendar) Sessions() []Window {
	return c.ofKind(KindSession)
}

func (c *Calendar) ofKind(k Kind) []Window {
	var out []Window
	for _, w := range c.windows {
		if w.Kind == k {
			out = append(out, w)
		}
	}
	return out
}

// TradingDayBounds returns the UTC [start, end) of the trading day labelled by the civil date.
func (c *Calendar) TradingDayBounds(tradingDay time.Time) (time.Time, time.Time) {
	y, m, d := tradingDay.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, c.loc).Add(c.dayStart)
	return start.UTC(), start.Add(day).UTC()
}

// WindowBounds returns the UTC [start, end) of a named window on a trading day.
func (c *Calendar) WindowBounds(tradingDay time.Time, name string) (time.Time, time.Time, error) {
	w, ok := c.Window(name)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrUnknownWindow, name)
	}
	dayStart, _ := c.TradingDayBounds(tradingDay)
	start := dayStart.Add(c.offset(w))
	return start, start.Add(w.Duration), nil
}

// TradingDayOf returns the trading day containing instant t.
func (c *Calendar) TradingDayOf(t time.Time) time.Time {
	local := t.In(c.loc)
	y, m, d := local.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, c.loc)
	if local.Sub(midnight) < c.dayStart {
		midnight = midnight.AddDate(0, 0, -1)
	}
	y, m, d = midnight.Date()
	return domain.Day(y, m, d)
}

// offset is the window start measured from the trading-day start.
func (c *Calendar) offset(w Window) time.Duration {
	off := w.Start - c.dayStart
	if off < 0 {
		off += day
	}
	return off
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Days returns every civil date in [from, to] inclusive.
func Days(from, to time.Time) []time.Time {
	var out []time.Time
	y, m, d := from.Date()
	cur := domain.Day(y, m, d)
	y, m, d = to.Date()
	last := domain.Day(y, m, d)
	for !cur.After(last) {
		out = append(out, cur)
		cur = cur.AddDate(0, 0, 1)
	}
	return out
}

func zoneName(offset time.Duration) string {
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, int(offset.Hours()), int(offset.Minutes())%60)
}

// sortInstances orders instances by start time, then name.
func sortInstances(in []Instance) {
	sort.Slice(in, func(i, j int) bool {
		if !in[i].Start.Equal(in[j].Start) {
			return in[i].Start.Before(in[j].Start)
		}
		return in[i].Name < in[j].Name
	})
}
