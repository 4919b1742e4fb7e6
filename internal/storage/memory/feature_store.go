package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

type featureKey struct {
	day        string
	instrument string
}

// FeatureStore is an in-memory implementation of storage.FeatureStore.
type FeatureStore struct {
	mu   sync.RWMutex
	data map[featureKey]*domain.FeatureRow
}

// NewFeatureStore creates a new in-memory feature store.
func NewFeatureStore() *FeatureStore {
	return &FeatureStore{
		data: make(map[featureKey]*domain.FeatureRow),
	}
}

// Compile-time interface check.
var _ storage.FeatureStore = (*FeatureStore)(nil)

// Upsert replaces rows keyed by (trading_day, instrument).
func (s *FeatureStore) Upsert(_ context.Context, rows []*domain.FeatureRow) error {
	for _, r := range rows {
		if r == nil || r.Instrument == "" || r.TradingDay.IsZero() {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		s.data[keyOf(r.Instrument, r.TradingDay)] = cloneRow(r)
	}
	return nil
}

// Get retrieves one row. Returns ErrNotFound if not exists.
func (s *FeatureStore) Get(_ context.Context, instrument string, tradingDay time.Time) (*domain.FeatureRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[keyOf(instrument, tradingDay)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneRow(r), nil
}

// GetRange retrieves rows for trading days within [from, to], ordered ASC.
func (s *FeatureStore) GetRange(_ context.Context, instrument string, from, to time.Time) ([]*domain.FeatureRow, error) {
	lo, hi := from.Format(domain.DayLayout), to.Format(domain.DayLayout)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FeatureRow
	for k, r := range s.data {
		if k.instrument == instrument && k.day >= lo && k.day <= hi {
			result = append(result, cloneRow(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TradingDay.Before(result[j].TradingDay)
	})
	return result, nil
}

func keyOf(instrument string, day time.Time) featureKey {
	return featureKey{day: day.Format(domain.DayLayout), instrument: instrument}
}

// cloneRow copies the row and its slices so callers cannot mutate stored state.
func cloneRow(r *domain.FeatureRow) *domain.FeatureRow {
	c := *r
	c.Sessions = append([]domain.SessionStat(nil), r.Sessions...)
	c.ORBs = append([]domain.ORBResult(nil), r.ORBs...)
	return &c
}
