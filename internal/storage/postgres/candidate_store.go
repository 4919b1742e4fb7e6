package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"orb-lab/internal/domain"
	"orb-lab/internal/observability"
	"orb-lab/internal/storage"
)

// CandidateStore implements storage.CandidateStore using PostgreSQL.
type CandidateStore struct {
	pool *Pool
}

// NewCandidateStore creates a new CandidateStore.
func NewCandidateStore(pool *Pool) *CandidateStore {
	return &CandidateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CandidateStore = (*CandidateStore)(nil)

const candidateColumns = `
	id, instrument, hypothesis,
	orb_name, risk_reward, stop_mode, size_filter, condition_type, condition_value,
	test_from, test_to, metrics, robustness,
	status, rejection_reason, code_version, data_version,
	created_at, tested_at, decided_at
`

// Insert adds a DRAFT candidate and assigns its ID and CreatedAt.
func (s *CandidateStore) Insert(ctx context.Context, c *domain.EdgeCandidate) (err error) {
	defer observability.ObserveDBQuery("postgres", "candidate_insert", time.Now(), &err)
	if c == nil || c.Instrument == "" || c.Feature.ORBName == "" {
		return storage.ErrInvalidInput
	}
	if c.Status != domain.CandidateDraft {
		return storage.ErrInvalidTransition
	}

	query := `
		INSERT INTO edge_candidates (
			instrument, hypothesis,
			orb_name, risk_reward, stop_mode, size_filter, condition_type, condition_value,
			test_from, test_to, status, code_version, data_version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at
	`

	sizeFilter, condType, condValue := paramColumns(c.Feature)
	err = s.pool.QueryRow(ctx, query,
		c.Instrument,
		c.Hypothesis,
		c.Feature.ORBName,
		c.Feature.RiskReward,
		string(c.Feature.StopMode),
		sizeFilter,
		condType,
		condValue,
		c.TestWindow.From,
		c.TestWindow.To,
		string(c.Status),
		c.CodeVersion,
		c.DataVersion,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert candidate: %w", err)
	}
	return nil
}

// GetByID retrieves a candidate. Returns ErrNotFound if not exists.
func (s *CandidateStore) GetByID(ctx context.Context, id int64) (_ *domain.EdgeCandidate, err error) {
	defer observability.ObserveDBQuery("postgres", "candidate_get", time.Now(), &err)
	query := `SELECT ` + candidateColumns + ` FROM edge_candidates WHERE id = $1`

	c, err := scanCandidate(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get candidate by id: %w", err)
	}
	return c, nil
}

// List retrieves candidates ordered by ID. An empty status lists all.
func (s *CandidateStore) List(ctx context.Context, status domain.CandidateStatus) (_ []*domain.EdgeCandidate, err error) {
	defer observability.ObserveDBQuery("postgres", "candidate_list", time.Now(), &err)
	query := `
		SELECT ` + candidateColumns + `
		FROM edge_candidates
		WHERE $1 = '' OR status = $1
		ORDER BY id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var result []*domain.EdgeCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return result, nil
}

// MarkTested records research results and moves DRAFT -> TESTED.
func (s *CandidateStore) MarkTested(ctx context.Context, id int64, m domain.CandidateMetrics, r domain.RobustnessMetrics, at time.Time) (err error) {
	defer observability.ObserveDBQuery("postgres", "candidate_mark_tested", time.Now(), &err)
	metrics, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	robustness, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode robustness: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE edge_candidates
		SET metrics = $2, robustness = $3, status = 'TESTED', tested_at = $4
		WHERE id = $1 AND status = 'DRAFT'
	`, id, metrics, robustness, at)
	if err != nil {
		return fmt.Errorf("mark candidate tested: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

// Decide moves TESTED -> APPROVED or REJECTED.
func (s *CandidateStore) Decide(ctx context.Context, id int64, status domain.CandidateStatus, reason string, at time.Time) (err error) {
	defer observability.ObserveDBQuery("postgres", "candidate_decide", time.Now(), &err)
	if status != domain.CandidateApproved && status != domain.CandidateRejected {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE edge_candidates
		SET status = $2, rejection_reason = $3, decided_at = $4
		WHERE id = $1 AND status = 'TESTED'
	`, id, string(status), reason, at)
	if err != nil {
		return fmt.Errorf("decide candidate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

// transitionError distinguishes a missing candidate from one in the wrong status.
func (s *CandidateStore) transitionError(ctx context.Context, id int64) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM edge_candidates WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check candidate: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrInvalidTransition
}

// scanCandidate scans a single row into EdgeCandidate.
func scanCandidate(row pgx.Row) (*domain.EdgeCandidate, error) {
	var c domain.EdgeCandidate
	var stopMode, status string
	var condType, condValue *string
	var metrics, robustness []byte

	err := row.Scan(
		&c.ID, &c.Instrument, &c.Hypothesis,
		&c.Feature.ORBName, &c.Feature.RiskReward, &stopMode, &c.Feature.SizeFilter, &condType, &condValue,
		&c.TestWindow.From, &c.TestWindow.To, &metrics, &robustness,
		&status, &c.RejectionReason, &c.CodeVersion, &c.DataVersion,
		&c.CreatedAt, &c.TestedAt, &c.DecidedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Feature.StopMode = domain.StopMode(stopMode)
	c.Feature.Condition = condition(condType, condValue)
	c.Status = domain.CandidateStatus(status)

	if metrics != nil {
		c.Metrics = &domain.CandidateMetrics{}
		if err := json.Unmarshal(metrics, c.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
	}
	if robustness != nil {
		c.Robustness = &domain.RobustnessMetrics{}
		if err := json.Unmarshal(robustness, c.Robustness); err != nil {
			return nil, fmt.Errorf("decode robustness: %w", err)
		}
	}
	return &c, nil
}
