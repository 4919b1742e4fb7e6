package memory

import (
	"context"
	"sort"
	"sync"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	data map[string]map[int64]domain.Bar // instrument -> timestamp -> bar
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		data: make(map[string]map[int64]domain.Bar),
	}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// Upsert writes bars; a later write for an existing key overwrites it.
func (s *BarStore) Upsert(_ context.Context, bars []*domain.Bar) error {
	type key struct {
		instrument string
		ts         int64
	}
	seen := make(map[key]struct{}, len(bars))
	for _, b := range bars {
		if b == nil || b.Instrument == "" {
			return storage.ErrInvalidInput
		}
		k := key{b.Instrument, b.Timestamp}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range bars {
		series, ok := s.data[b.Instrument]
		if !ok {
			series = make(map[int64]domain.Bar)
			s.data[b.Instrument] = series
		}
		series[b.Timestamp] = *b
	}
	return nil
}

// GetRange retrieves bars with start <= timestamp < end, ordered by timestamp ASC.
func (s *BarStore) GetRange(_ context.Context, instrument string, start, end int64) ([]*domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Bar
	for ts, b := range s.data[instrument] {
		if ts >= start && ts < end {
			barCopy := b
			result = append(result, &barCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})
	return result, nil
}
