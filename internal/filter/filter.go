// Package filter evaluates setup size filters and entry conditions.
//
// Filters are pure functions of values already known at the decision instant.
// Session values are only readable once the session has ended at or before Now.
package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"orb-lab/internal/domain"
)

// ErrInvalidCondition is returned for malformed condition specs.
var ErrInvalidCondition = errors.New("invalid condition")

// SessionValue is a session range with the instant it became final.
type SessionValue struct {
	Name  string
	Range *float64
	End   time.Time
}

// Input carries the values a filter may read.
type Input struct {
	Now       time.Time
	Range     *domain.ORBRange      // completed opening range
	Direction domain.BreakDirection // NONE until a breakout is known
	ATR       *float64
	RSI       *float64
	Sessions  []SessionValue
}

// Result is the outcome of a single filter.
// Pending means the filter cannot be decided yet (for example before a breakout).
type Result struct {
	Name    string
	Pass    bool
	Pending bool
	Detail  string
}

// Evaluate runs the size filter and condition of a setup.
// Setups without filters return an empty slice.
func Evaluate(p domain.SetupParams, in Input) []Result {
	var out []Result
	if p.SizeFilter != nil {
		out = append(out, sizeFilter(*p.SizeFilter, in))
	}
	if p.Condition != nil {
		out = append(out, condition(*p.Condition, in))
	}
	return out
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

// FirstFailure returns the first decided failure, if any.
func FirstFailure(results []Result) (Result, bool) {
	for _, r := range results {
		if !r.Pass && !r.Pending {
			return r, true
		}
	}
	return Result{}, false
}

func sizeFilter(f float64, in Input) Result {
	r := Result{Name: "size_filter"}
	switch {
	case in.Range == nil:
		r.Pending = true
		r.Detail = "range not formed"
	case in.ATR == nil:
		r.Detail = "ATR unavailable"
	default:
		limit := f * *in.ATR
		size := in.Range.Size()
		r.Pass = size <= limit
		r.Detail = fmt.Sprintf("size %.4f vs max %.4f (%.3f x ATR %.4f)", size, limit, f, *in.ATR)
	}
	return r
}

func condition(c domain.Condition, in Input) Result {
	r := Result{Name: c.Type}

	switch c.Type {
	case domain.ConditionBreakDirection:
		want := domain.BreakDirection(strings.ToUpper(c.Value))
		if in.Direction == domain.DirectionNone || in.Direction == "" {
			r.Pending = true
			r.Detail = fmt.Sprintf("awaiting breakout, requires %s", want)
			return r
		}
		r.Pass = in.Direction == want
		r.Detail = fmt.Sprintf("break %s, requires %s", in.Direction, want)

	case domain.ConditionMinORBSize:
		minSize, _ := strconv.ParseFloat(c.Value, 64)
		if in.Range == nil {
			r.Pending = true
			r.Detail = "range not formed"
			return r
		}
		r.Pass = in.Range.Size() >= minSize
		r.Detail = fmt.Sprintf("size %.4f vs min %.4f", in.Range.Size(), minSize)

	case domain.ConditionMaxRSI, domain.ConditionMinRSI:
		bound, _ := strconv.ParseFloat(c.Value, 64)
		if in.RSI == nil {
			r.Detail = "RSI unavailable"
			return r
		}
		if c.Type == domain.ConditionMaxRSI {
			r.Pass = *in.RSI <= bound
			r.Detail = fmt.Sprintf("RSI %.2f vs max %.2f", *in.RSI, bound)
		} else {
			r.Pass = *in.RSI >= bound
			r.Detail = fmt.Sprintf("RSI %.2f vs min %.2f", *in.RSI, bound)
		}

	case domain.ConditionMinSessionRange:
		name, minRange, _ := ParseSessionValue(c.Value)
		s, ok := findSession(in.Sessions, name)
		switch {
		case !ok:
			r.Detail = fmt.Sprintf("session %s unknown", name)
		case s.End.After(in.Now):
			r.Detail = fmt.Sprintf("session %s not yet available (ends %s)", name, s.End.UTC().Format(time.RFC3339))
		case s.Range == nil:
			r.Detail = fmt.Sprintf("session %s has no data", name)
		default:
			r.Pass = *s.Range >= minRange
			r.Detail = fmt.Sprintf("session %s range %.4f vs min %.4f", name, *s.Range, minRange)
		}

	default:
		r.Detail = fmt.Sprintf("unknown condition type %q", c.Type)
	}
	return r
}

func findSession(in []SessionValue, name string) (SessionValue, bool) {
	for _, s := range in {
		if s.Name == name {
			return s, true
		}
	}
	return SessionValue{}, false
}

// ParseSessionValue splits a "SESSION:points" condition value.
func ParseSessionValue(v string) (string, float64, error) {
	name, pts, ok := strings.Cut(v, ":")
	if !ok || name == "" {
		return "", 0, fmt.Errorf("%w: %q is not SESSION:points", ErrInvalidCondition, v)
	}
	f, err := strconv.ParseFloat(pts, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q: %v", ErrInvalidCondition, v, err)
	}
	return strings.ToUpper(name), f, nil
}

// ValidateCondition checks a condition spec. sessions lists the known session names.
func ValidateCondition(c domain.Condition, sessions []string) error {
	switch c.Type {
	case domain.ConditionBreakDirection:
		d := domain.BreakDirection(strings.ToUpper(c.Value))
		if d != domain.DirectionUp && d != domain.DirectionDown {
			return fmt.Errorf("%w: break_direction must be UP or DOWN, got %q", ErrInvalidCondition, c.Value)
		}
	case domain.ConditionMinORBSize:
		if v, err := strconv.ParseFloat(c.Value, 64); err != nil || v < 0 {
			return fmt.Errorf("%w: min_orb_size must be a non-negative number, got %q", ErrInvalidCondition, c.Value)
		}
	case domain.ConditionMaxRSI, domain.ConditionMinRSI:
		if v, err := strconv.ParseFloat(c.Value, 64); err != nil || v < 0 || v > 100 {
			return fmt.Errorf("%w: %s must be within 0..100, got %q", ErrInvalidCondition, c.Type, c.Value)
		}
	case domain.ConditionMinSessionRange:
		name, _, err := ParseSessionValue(c.Value)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			if s == name {
				return nil
			}
		}
		return fmt.Errorf("%w: unknown session %q", ErrInvalidCondition, name)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCondition, c.Type)
	}
	return nil
}
