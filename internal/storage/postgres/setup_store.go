package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"orb-lab/internal/domain"
	"orb-lab/internal/observability"
	"orb-lab/internal/storage"
)

// SetupStore implements storage.SetupStore using PostgreSQL.
type SetupStore struct {
	pool *Pool
}

// NewSetupStore creates a new SetupStore.
func NewSetupStore(pool *Pool) *SetupStore {
	return &SetupStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SetupStore = (*SetupStore)(nil)

const setupColumns = `
	seq, setup_id, instrument, orb_name, risk_reward, stop_mode,
	size_filter, condition_type, condition_value,
	tier, win_rate, avg_r, annual_trades, candidate_id, created_at
`

// Append adds a setup. Returns ErrDuplicateKey if setup_id exists.
func (s *SetupStore) Append(ctx context.Context, v *domain.ValidatedSetup) (err error) {
	defer observability.ObserveDBQuery("postgres", "setup_append", time.Now(), &err)
	if v == nil || v.SetupID == "" || v.Instrument == "" || v.ORBName == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO validated_setups (
			setup_id, instrument, orb_name, risk_reward, stop_mode,
			size_filter, condition_type, condition_value,
			tier, win_rate, avg_r, annual_trades, candidate_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING seq, created_at
	`

	var candidateID *int64
	if v.CandidateID != 0 {
		candidateID = &v.CandidateID
	}
	sizeFilter, condType, condValue := paramColumns(v.SetupParams)

	err = s.pool.QueryRow(ctx, query,
		v.SetupID,
		v.Instrument,
		v.ORBName,
		v.RiskReward,
		string(v.StopMode),
		sizeFilter,
		condType,
		condValue,
		string(v.Tier),
		v.WinRate,
		v.AvgR,
		v.AnnualTrades,
		candidateID,
	).Scan(&v.Sequence, &v.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("append setup: %w", err)
	}
	return nil
}

// List retrieves all setups in insertion order.
func (s *SetupStore) List(ctx context.Context) (_ []*domain.ValidatedSetup, err error) {
	defer observability.ObserveDBQuery("postgres", "setup_list", time.Now(), &err)
	rows, err := s.pool.Query(ctx, `SELECT `+setupColumns+` FROM validated_setups ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list setups: %w", err)
	}
	defer rows.Close()

	return scanSetups(rows)
}

// ListByInstrument retrieves setups for one instrument in insertion order.
func (s *SetupStore) ListByInstrument(ctx context.Context, instrument string) (_ []*domain.ValidatedSetup, err error) {
	defer observability.ObserveDBQuery("postgres", "setup_list", time.Now(), &err)
	rows, err := s.pool.Query(ctx,
		`SELECT `+setupColumns+` FROM validated_setups WHERE instrument = $1 ORDER BY seq ASC`, instrument)
	if err != nil {
		return nil, fmt.Errorf("list setups by instrument: %w", err)
	}
	defer rows.Close()

	return scanSetups(rows)
}

func scanSetups(rows pgx.Rows) ([]*domain.ValidatedSetup, error) {
	var result []*domain.ValidatedSetup

	for rows.Next() {
		var v domain.ValidatedSetup
		var stopMode, tier string
		var condType, condValue *string
		var candidateID *int64

		err := rows.Scan(
			&v.Sequence, &v.SetupID, &v.Instrument, &v.ORBName, &v.RiskReward, &stopMode,
			&v.SizeFilter, &condType, &condValue,
			&tier, &v.WinRate, &v.AvgR, &v.AnnualTrades, &candidateID, &v.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan setup: %w", err)
		}

		v.StopMode = domain.StopMode(stopMode)
		v.Condition = condition(condType, condValue)
		v.Tier = domain.Tier(tier)
		if candidateID != nil {
			v.CandidateID = *candidateID
		}
		result = append(result, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate setups: %w", err)
	}
	return result, nil
}
