package memory

import (
	"context"
	"sync"
	"time"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// SetupStore is an in-memory implementation of storage.SetupStore.
type SetupStore struct {
	mu   sync.RWMutex
	rows []domain.ValidatedSetup // insertion order
	ids  map[string]struct{}
	now  func() time.Time
}

// NewSetupStore creates a new in-memory setup store.
func NewSetupStore() *SetupStore {
	return &SetupStore{
		ids: make(map[string]struct{}),
		now: time.Now,
	}
}

// Compile-time interface check.
var _ storage.SetupStore = (*SetupStore)(nil)

// Append adds a setup. Returns ErrDuplicateKey if setup_id exists.
func (s *SetupStore) Append(_ context.Context, v *domain.ValidatedSetup) error {
	if v == nil || v.SetupID == "" || v.Instrument == "" || v.ORBName == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[v.SetupID]; exists {
		return storage.ErrDuplicateKey
	}

	v.Sequence = int64(len(s.rows) + 1)
	v.CreatedAt = s.now().UTC()
	s.rows = append(s.rows, *v)
	s.ids[v.SetupID] = struct{}{}
	return nil
}

// List retrieves all setups in insertion order.
func (s *SetupStore) List(_ context.Context) ([]*domain.ValidatedSetup, error) {
	return s.filter(func(*domain.ValidatedSetup) bool { return true }), nil
}

// ListByInstrument retrieves setups for one instrument in insertion order.
func (s *SetupStore) ListByInstrument(_ context.Context, instrument string) ([]*domain.ValidatedSetup, error) {
	return s.filter(func(v *domain.ValidatedSetup) bool { return v.Instrument == instrument }), nil
}

func (s *SetupStore) filter(keep func(*domain.ValidatedSetup) bool) []*domain.ValidatedSetup {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ValidatedSetup
	for i := range s.rows {
		if keep(&s.rows[i]) {
			setupCopy := s.rows[i]
			result = append(result, &setupCopy)
		}
	}
	return result
}
