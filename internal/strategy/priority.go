package strategy

import "sort"

// sortKey is the total order used to rank evaluations. Every component is a
// plain int, float64 or string so comparison never mixes types.
type sortKey struct {
	kind   int
	action int
	tier   int
	avgR   float64 // negated so higher expectancy sorts first
	name   string
}

func keyOf(e *Evaluation) sortKey {
	k := sortKey{
		kind:   e.Kind.rank(),
		action: e.Action.rank(),
		tier:   e.Setup.Tier.Rank(),
		name:   e.StrategyName,
	}
	if e.Justification != nil {
		k.avgR = -e.Justification.AvgR
	}
	return k
}

func (a sortKey) less(b sortKey) bool {
	switch {
	case a.kind != b.kind:
		return a.kind < b.kind
	case a.action != b.action:
		return a.action < b.action
	case a.tier != b.tier:
		return a.tier < b.tier
	case a.avgR != b.avgR:
		return a.avgR < b.avgR
	default:
		return a.name < b.name
	}
}

// rank sorts evaluations by priority and numbers them from 1.
func rank(evals []Evaluation) {
	sort.SliceStable(evals, func(i, j int) bool {
		return keyOf(&evals[i]).less(keyOf(&evals[j]))
	})
	for i := range evals {
		evals[i].Priority = i + 1
	}
}
