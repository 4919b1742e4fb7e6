package storage

import (
	"context"
	"time"

	"orb-lab/internal/domain"
)

// BarStore provides access to bars_1m storage.
type BarStore interface {
	// Upsert writes bars keyed by (instrument, timestamp). A later write for an existing
	// key overwrites it. Returns ErrDuplicateKey if the batch itself repeats a key.
	Upsert(ctx context.Context, bars []*domain.Bar) error

	// GetRange retrieves bars for an instrument with start <= timestamp < end, ordered ASC.
	GetRange(ctx context.Context, instrument string, start, end int64) ([]*domain.Bar, error)
}

// FeatureStore provides access to daily_features / orb_outcomes storage.
type FeatureStore interface {
	// Upsert writes rows keyed by (trading_day, instrument), replacing any existing row
	// and all of its ORB results.
	Upsert(ctx context.Context, rows []*domain.FeatureRow) error

	// Get retrieves one row. Returns ErrNotFound if not exists.
	Get(ctx context.Context, instrument string, tradingDay time.Time) (*domain.FeatureRow, error)

	// GetRange retrieves rows for trading days within [from, to] (inclusive), ordered ASC.
	GetRange(ctx context.Context, instrument string, from, to time.Time) ([]*domain.FeatureRow, error)
}

// SetupStore provides access to validated_setups storage. Append-only.
type SetupStore interface {
	// Append adds a setup and assigns Sequence and CreatedAt.
	// Returns ErrDuplicateKey if setup_id exists.
	Append(ctx context.Context, s *domain.ValidatedSetup) error

	// List retrieves all setups in insertion order.
	List(ctx context.Context) ([]*domain.ValidatedSetup, error)

	// ListByInstrument retrieves setups for one instrument in insertion order.
	ListByInstrument(ctx context.Context, instrument string) ([]*domain.ValidatedSetup, error)
}

// CandidateStore provides access to edge_candidates storage.
// Candidates are never deleted; status moves DRAFT -> TESTED -> APPROVED | REJECTED.
type CandidateStore interface {
	// Insert adds a DRAFT candidate and assigns its ID and CreatedAt.
	Insert(ctx context.Context, c *domain.EdgeCandidate) error

	// GetByID retrieves a candidate. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.EdgeCandidate, error)

	// List retrieves candidates ordered by ID. An empty status lists all.
	List(ctx context.Context, status domain.CandidateStatus) ([]*domain.EdgeCandidate, error)

	// MarkTested records research results and moves DRAFT -> TESTED.
	// Returns ErrInvalidTransition if the candidate is not DRAFT.
	MarkTested(ctx context.Context, id int64, m domain.CandidateMetrics, r domain.RobustnessMetrics, at time.Time) error

	// Decide moves TESTED -> APPROVED or REJECTED with a reason.
	// Returns ErrInvalidTransition if the candidate is not TESTED.
	Decide(ctx context.Context, id int64, status domain.CandidateStatus, reason string, at time.Time) error
}

// WriterLock serialises writers of a named resource across processes.
type WriterLock interface {
	// TryLock acquires the lock without waiting. Returns ErrStoreBusy if held elsewhere.
	// The returned release function must be called exactly once.
	TryLock(ctx context.Context, name string) (release func(), err error)
}
