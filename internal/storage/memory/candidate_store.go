package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// CandidateStore is an in-memory implementation of storage.CandidateStore.
type CandidateStore struct {
	mu     sync.RWMutex
	data   map[int64]*domain.EdgeCandidate // keyed by id
	nextID int64
	now    func() time.Time
}

// NewCandidateStore creates a new in-memory candidate store.
func NewCandidateStore() *CandidateStore {
	return &CandidateStore{
		data:   make(map[int64]*domain.EdgeCandidate),
		nextID: 1,
		now:    time.Now,
	}
}

// Compile-time interface check.
var _ storage.CandidateStore = (*CandidateStore)(nil)

// Insert adds a DRAFT candidate and assigns its ID.
func (s *CandidateStore) Insert(_ context.Context, c *domain.EdgeCandidate) error {
	if c == nil || c.Instrument == "" || c.Feature.ORBName == "" {
		return storage.ErrInvalidInput
	}
	if c.Status != domain.CandidateDraft {
		return storage.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = s.nextID
	c.CreatedAt = s.now().UTC()
	s.nextID++

	candidateCopy := *c
	s.data[c.ID] = &candidateCopy
	return nil
}

// GetByID retrieves a candidate. Returns ErrNotFound if not exists.
func (s *CandidateStore) GetByID(_ context.Context, id int64) (*domain.EdgeCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	candidateCopy := *c
	return &candidateCopy, nil
}

// List retrieves candidates ordered by ID. An empty status lists all.
func (s *CandidateStore) List(_ context.Context, status domain.CandidateStatus) ([]*domain.EdgeCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EdgeCandidate
	for _, c := range s.data {
		if status == "" || c.Status == status {
			candidateCopy := *c
			result = append(result, &candidateCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// MarkTested records research results and moves DRAFT -> TESTED.
func (s *CandidateStore) MarkTested(_ context.Context, id int64, m domain.CandidateMetrics, r domain.RobustnessMetrics, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	if c.Status != domain.CandidateDraft {
		return storage.ErrInvalidTransition
	}

	r.Partitions = append([]domain.PartitionMetrics(nil), r.Partitions...)
	testedAt := at.UTC()
	c.Metrics = &m
	c.Robustness = &r
	c.Status = domain.CandidateTested
	c.TestedAt = &testedAt
	return nil
}

// Decide moves TESTED -> APPROVED or REJECTED.
func (s *CandidateStore) Decide(_ context.Context, id int64, status domain.CandidateStatus, reason string, at time.Time) error {
	if status != domain.CandidateApproved && status != domain.CandidateRejected {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	if c.Status != domain.CandidateTested {
		return storage.ErrInvalidTransition
	}

	decidedAt := at.UTC()
	c.Status = status
	c.RejectionReason = reason
	c.DecidedAt = &decidedAt
	return nil
}
