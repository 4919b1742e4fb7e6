// Package syncguard verifies that declared setups match the validated_setups table.
//
// Verify is a pure function over the declared configuration and the stored rows.
// Its only success value, VerifiedSetups, is what the strategy engine loads from,
// so the engine cannot start on configuration that failed verification.
package syncguard

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"orb-lab/internal/domain"
)

// Tolerance is the allowed absolute difference for numeric setup fields.
const Tolerance = 1e-6

// ErrSyncMismatch is wrapped by every MismatchError.
var ErrSyncMismatch = errors.New("sync mismatch")

// Declared is the configured setups keyed by instrument then ORB name.
type Declared map[string]map[string][]domain.SetupParams

// Mismatch is one field-level difference between config and store.
type Mismatch struct {
	Instrument string
	ORB        string // empty for instrument-level mismatches
	Index      int    // entry index within the slot, -1 for slot-level mismatches
	Field      string
	Config     string
	Store      string
}

func (m Mismatch) location() string {
	loc := m.Instrument
	if m.ORB != "" {
		loc += "/" + m.ORB
	}
	if m.Index >= 0 {
		loc += "[" + strconv.Itoa(m.Index) + "]"
	}
	return loc
}

// String renders the mismatch on one line.
func (m Mismatch) String() string {
	return fmt.Sprintf("%s %s: config=%s store=%s", m.location(), m.Field, m.Config, m.Store)
}

// MismatchError carries every difference found.
type MismatchError struct {
	Mismatches []Mismatch
}

func (e *MismatchError) Error() string {
	if len(e.Mismatches) == 1 {
		return fmt.Sprintf("sync mismatch: %s", e.Mismatches[0])
	}
	return fmt.Sprintf("sync mismatch: %d differences, first: %s", len(e.Mismatches), e.Mismatches[0])
}

// Unwrap allows errors.Is(err, ErrSyncMismatch).
func (e *MismatchError) Unwrap() error {
	return ErrSyncMismatch
}

// Diff renders the mismatches in a diff-like listing.
func (e *MismatchError) Diff() string {
	var sb strings.Builder
	sb.WriteString("--- config\n+++ validated_setups\n")
	for _, m := range e.Mismatches {
		sb.WriteString(fmt.Sprintf("@@ %s %s\n", m.location(), m.Field))
		sb.WriteString("- " + m.Config + "\n")
		sb.WriteString("+ " + m.Store + "\n")
	}
	return sb.String()
}

// Verify compares declared setups against stored rows. Rows must be in insertion
// order; within a window, config entry i must match the i-th stored row.
func Verify(declared Declared, rows []*domain.ValidatedSetup) (*VerifiedSetups, error) {
	stored := group(rows)

	var ms []Mismatch
	for _, inst := range union(keys(declared), keys(stored)) {
		cfgSlots, inCfg := declared[inst]
		dbSlots, inDB := stored[inst]
		switch {
		case !inCfg:
			ms = append(ms, Mismatch{Instrument: inst, Index: -1, Field: "instrument", Config: "absent", Store: describeSlots(dbSlots)})
			continue
		case !inDB:
			ms = append(ms, Mismatch{Instrument: inst, Index: -1, Field: "instrument", Config: describeSlots(cfgSlots), Store: "absent"})
			continue
		}

		for _, orbName := range union(keys(cfgSlots), keys(dbSlots)) {
			cfg, inCfg := cfgSlots[orbName]
			db, inDB := dbSlots[orbName]
			switch {
			case !inCfg:
				ms = append(ms, Mismatch{Instrument: inst, ORB: orbName, Index: -1, Field: "window", Config: "absent", Store: plural(len(db))})
			case !inDB:
				ms = append(ms, Mismatch{Instrument: inst, ORB: orbName, Index: -1, Field: "window", Config: plural(len(cfg)), Store: "absent"})
			default:
				ms = append(ms, compareSlot(inst, orbName, cfg, db)...)
			}
		}
	}

	if len(ms) > 0 {
		return nil, &MismatchError{Mismatches: ms}
	}
	return newVerified(stored), nil
}

func compareSlot(inst, orbName string, cfg []domain.SetupParams, db []*domain.ValidatedSetup) []Mismatch {
	var ms []Mismatch
	if len(cfg) != len(db) {
		ms = append(ms, Mismatch{
			Instrument: inst, ORB: orbName, Index: -1, Field: "count",
			Config: strconv.Itoa(len(cfg)), Store: strconv.Itoa(len(db)),
		})
	}

	var fields []Mismatch
	for i := 0; i < len(cfg) && i < len(db); i++ {
		for _, d := range compareParams(cfg[i], db[i].SetupParams) {
			d.Instrument, d.ORB, d.Index = inst, orbName, i
			fields = append(fields, d)
		}
	}

	if len(ms) == 0 && len(fields) > 0 && sameMultiset(cfg, db) {
		return []Mismatch{{
			Instrument: inst, ORB: orbName, Index: -1, Field: "order",
			Config: describeList(cfg), Store: describeRows(db),
		}}
	}
	return append(ms, fields...)
}

// compareParams returns field differences between a declared and a stored setup.
func compareParams(cfg, db domain.SetupParams) []Mismatch {
	var ms []Mismatch
	if !floatEquals(cfg.RiskReward, db.RiskReward) {
		ms = append(ms, Mismatch{Field: "rr", Config: formatFloat(cfg.RiskReward), Store: formatFloat(db.RiskReward)})
	}
	if cfg.StopMode != db.StopMode {
		ms = append(ms, Mismatch{Field: "stop_mode", Config: string(cfg.StopMode), Store: string(db.StopMode)})
	}
	if !optFloatEquals(cfg.SizeFilter, db.SizeFilter) {
		ms = append(ms, Mismatch{Field: "size_filter", Config: formatOpt(cfg.SizeFilter), Store: formatOpt(db.SizeFilter)})
	}

	ct, cv := condition(cfg.Condition)
	dt, dv := condition(db.Condition)
	if ct != dt {
		ms = append(ms, Mismatch{Field: "condition.type", Config: orNone(ct), Store: orNone(dt)})
	}
	if !conditionValueEquals(cv, dv) {
		ms = append(ms, Mismatch{Field: "condition.value", Config: orNone(cv), Store: orNone(dv)})
	}
	return ms
}

func paramsEqual(a, b domain.SetupParams) bool {
	return len(compareParams(a, b)) == 0
}

// sameMultiset reports whether both slots hold the same setups in some order.
func sameMultiset(cfg []domain.SetupParams, db []*domain.ValidatedSetup) bool {
	used := make([]bool, len(db))
	for _, c := range cfg {
		found := false
		for j, d := range db {
			if !used[j] && paramsEqual(c, d.SetupParams) {
				used[j], found = true, true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func group(rows []*domain.ValidatedSetup) map[string]map[string][]*domain.ValidatedSetup {
	out := make(map[string]map[string][]*domain.ValidatedSetup)
	for _, r := range rows {
		if out[r.Instrument] == nil {
			out[r.Instrument] = make(map[string][]*domain.ValidatedSetup)
		}
		out[r.Instrument][r.ORBName] = append(out[r.Instrument][r.ORBName], r)
	}
	for _, slots := range out {
		for _, list := range slots {
			sort.SliceStable(list, func(i, j int) bool { return list[i].Sequence < list[j].Sequence })
		}
	}
	return out
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, k := range append(a, b...) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= Tolerance
}

func optFloatEquals(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return floatEquals(*a, *b)
}

// conditionValueEquals compares numerically where both sides parse, including the
// points part of SESSION:points values.
func conditionValueEquals(a, b string) bool {
	if strings.EqualFold(a, b) {
		return true
	}
	an, ap, aok := splitValue(a)
	bn, bp, bok := splitValue(b)
	return aok && bok && strings.EqualFold(an, bn) && floatEquals(ap, bp)
}

func splitValue(v string) (string, float64, bool) {
	prefix, num := "", v
	if i := strings.LastIndexByte(v, ':'); i >= 0 {
		prefix, num = v[:i], v[i+1:]
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	return prefix, f, err == nil
}

func condition(c *domain.Condition) (string, string) {
	if c == nil {
		return "", ""
	}
	return c.Type, c.Value
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatOpt(v *float64) string {
	if v == nil {
		return "none"
	}
	return formatFloat(*v)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func plural(n int) string {
	if n == 1 {
		return "1 setup"
	}
	return strconv.Itoa(n) + " setups"
}

func describe(p domain.SetupParams) string {
	s := fmt.Sprintf("rr=%s %s", formatFloat(p.RiskReward), p.StopMode)
	if p.SizeFilter != nil {
		s += " size<=" + formatFloat(*p.SizeFilter)
	}
	if p.Condition != nil {
		s += " " + p.Condition.Type + "=" + p.Condition.Value
	}
	return s
}

func describeList(list []domain.SetupParams) string {
	parts := make([]string, len(list))
	for i, p := range list {
		parts[i] = describe(p)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func describeRows(rows []*domain.ValidatedSetup) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = describe(r.SetupParams)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func describeSlots[V any](slots map[string][]V) string {
	names := keys(slots)
	sort.Strings(names)
	return "windows " + strings.Join(names, ",")
}
