package postgres

import "orb-lab/internal/domain"

// paramColumns flattens optional setup fields into nullable columns.
func paramColumns(p domain.SetupParams) (sizeFilter *float64, condType, condValue *string) {
	sizeFilter = p.SizeFilter
	if p.Condition != nil {
		t, v := p.Condition.Type, p.Condition.Value
		condType, condValue = &t, &v
	}
	return sizeFilter, condType, condValue
}

// condition rebuilds an optional condition from nullable columns.
func condition(condType, condValue *string) *domain.Condition {
	if condType == nil {
		return nil
	}
	c := &domain.Condition{Type: *condType}
	if condValue != nil {
		c.Value = *condValue
	}
	return c
}
