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

// FeatureStore implements storage.FeatureStore using PostgreSQL.
// A FeatureRow spans daily_features (one row) and orb_outcomes (one row per window).
type FeatureStore struct {
	pool *Pool
}

// NewFeatureStore creates a new FeatureStore.
func NewFeatureStore(pool *Pool) *FeatureStore {
	return &FeatureStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeatureStore = (*FeatureStore)(nil)

// Upsert replaces rows keyed by (trading_day, instrument) in one transaction.
// Existing ORB outcomes of a replaced row are removed first, so a row never mixes
// results from two builds.
func (s *FeatureStore) Upsert(ctx context.Context, rows []*domain.FeatureRow) (err error) {
	defer observability.ObserveDBQuery("postgres", "feature_upsert", time.Now(), &err)
	for _, r := range rows {
		if r == nil || r.Instrument == "" || r.TradingDay.IsZero() {
			return storage.ErrInvalidInput
		}
	}
	if len(rows) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, r := range rows {
			if err := upsertRow(ctx, tx, r); err != nil {
				return fmt.Errorf("upsert feature row %s %s: %w",
					r.Instrument, r.TradingDay.Format(domain.DayLayout), err)
			}
		}
		return nil
	})
}

func upsertRow(ctx context.Context, tx pgx.Tx, r *domain.FeatureRow) error {
	sessions, err := json.Marshal(r.Sessions)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO daily_features (trading_day, instrument, atr, bar_count, sessions)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (trading_day, instrument) DO UPDATE SET
			atr = EXCLUDED.atr,
			bar_count = EXCLUDED.bar_count,
			sessions = EXCLUDED.sessions
	`, r.TradingDay, r.Instrument, r.ATR, r.BarCount, sessions)
	if err != nil {
		return fmt.Errorf("upsert daily_features: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM orb_outcomes WHERE trading_day = $1 AND instrument = $2`,
		r.TradingDay, r.Instrument,
	); err != nil {
		return fmt.Errorf("clear orb_outcomes: %w", err)
	}

	batch := &pgx.Batch{}
	for i, o := range r.ORBs {
		var high, low *float64
		barCount := 0
		if o.Range != nil {
			high, low, barCount = &o.Range.High, &o.Range.Low, o.Range.BarCount
		}
		t := o.Trade
		batch.Queue(`
			INSERT INTO orb_outcomes (
				trading_day, instrument, orb_name, ordinal, data_gap,
				orb_high, orb_low, orb_bar_count, rsi,
				break_direction, risk_reward, stop_mode,
				entry_time, entry_price, stop_price, target_price, risk,
				outcome, r_multiple, exit_time, exit_price, mae, mfe
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		`,
			r.TradingDay, r.Instrument, o.Name, i, o.DataGap,
			high, low, barCount, o.RSI,
			string(t.Direction), t.RiskReward, string(t.StopMode),
			t.EntryTime, t.EntryPrice, t.StopPrice, t.TargetPrice, t.Risk,
			string(t.Outcome), t.RMultiple, t.ExitTime, t.ExitPrice, t.MAE, t.MFE,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert orb_outcomes: %w", err)
	}
	return nil
}

// Get retrieves one row. Returns ErrNotFound if not exists.
func (s *FeatureStore) Get(ctx context.Context, instrument string, tradingDay time.Time) (*domain.FeatureRow, error) {
	rows, err := s.GetRange(ctx, instrument, tradingDay, tradingDay)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, storage.ErrNotFound
	}
	return rows[0], nil
}

// GetRange retrieves rows for trading days within [from, to], ordered ASC.
func (s *FeatureStore) GetRange(ctx context.Context, instrument string, from, to time.Time) (_ []*domain.FeatureRow, err error) {
	defer observability.ObserveDBQuery("postgres", "feature_get_range", time.Now(), &err)
	dailyRows, err := s.pool.Query(ctx, `
		SELECT trading_day, instrument, atr, bar_count, sessions
		FROM daily_features
		WHERE instrument = $1 AND trading_day >= $2 AND trading_day <= $3
		ORDER BY trading_day ASC
	`, instrument, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily_features: %w", err)
	}

	var result []*domain.FeatureRow
	byDay := make(map[string]*domain.FeatureRow)
	for dailyRows.Next() {
		var r domain.FeatureRow
		var sessions []byte
		if err := dailyRows.Scan(&r.TradingDay, &r.Instrument, &r.ATR, &r.BarCount, &sessions); err != nil {
			dailyRows.Close()
			return nil, fmt.Errorf("scan daily_features: %w", err)
		}
		if err := json.Unmarshal(sessions, &r.Sessions); err != nil {
			dailyRows.Close()
			return nil, fmt.Errorf("decode sessions: %w", err)
		}
		r.ORBs = []domain.ORBResult{}
		result = append(result, &r)
		byDay[r.TradingDay.Format(domain.DayLayout)] = &r
	}
	dailyRows.Close()
	if err := dailyRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily_features: %w", err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	orbRows, err := s.pool.Query(ctx, `
		SELECT trading_day, orb_name, data_gap,
			orb_high, orb_low, orb_bar_count, rsi,
			break_direction, risk_reward, stop_mode,
			entry_time, entry_price, stop_price, target_price, risk,
			outcome, r_multiple, exit_time, exit_price, mae, mfe
		FROM orb_outcomes
		WHERE instrument = $1 AND trading_day >= $2 AND trading_day <= $3
		ORDER BY trading_day ASC, ordinal ASC
	`, instrument, from, to)
	if err != nil {
		return nil, fmt.Errorf("query orb_outcomes: %w", err)
	}
	defer orbRows.Close()

	for orbRows.Next() {
		var day time.Time
		var o domain.ORBResult
		var high, low *float64
		var barCount int
		var dir, stopMode, outcome string
		t := &o.Trade

		err := orbRows.Scan(
			&day, &o.Name, &o.DataGap,
			&high, &low, &barCount, &o.RSI,
			&dir, &t.RiskReward, &stopMode,
			&t.EntryTime, &t.EntryPrice, &t.StopPrice, &t.TargetPrice, &t.Risk,
			&outcome, &t.RMultiple, &t.ExitTime, &t.ExitPrice, &t.MAE, &t.MFE,
		)
		if err != nil {
			return nil, fmt.Errorf("scan orb_outcomes: %w", err)
		}
		if high != nil && low != nil {
			o.Range = &domain.ORBRange{High: *high, Low: *low, BarCount: barCount}
		}
		t.Direction = domain.BreakDirection(dir)
		t.StopMode = domain.StopMode(stopMode)
		t.Outcome = domain.Outcome(outcome)

		if r, ok := byDay[day.Format(domain.DayLayout)]; ok {
			r.ORBs = append(r.ORBs, o)
		}
	}
	if err := orbRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orb_outcomes: %w", err)
	}

	return result, nil
}
