package clickhouse

import (
	"context"
	"fmt"
	"time"

	"orb-lab/internal/domain"
	"orb-lab/internal/observability"
	"orb-lab/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse.
type BarStore struct {
	conn *Conn
	now  func() time.Time
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn, now: time.Now}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// Upsert writes bars. The write time becomes the ReplacingMergeTree version, so the
// latest write for a key wins once read with FINAL.
func (s *BarStore) Upsert(ctx context.Context, bars []*domain.Bar) (err error) {
	defer observability.ObserveDBQuery("clickhouse", "bar_upsert", time.Now(), &err)
	if len(bars) == 0 {
		return nil
	}

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

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bars_1m (
			instrument, timestamp_ms, open, high, low, close, volume, version
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	version := uint64(s.now().UnixNano())
	for _, b := range bars {
		err = batch.Append(
			b.Instrument, b.Timestamp,
			b.Open, b.High, b.Low, b.Close, b.Volume,
			version,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetRange retrieves bars with start <= timestamp < end, ordered by timestamp ASC.
func (s *BarStore) GetRange(ctx context.Context, instrument string, start, end int64) (_ []*domain.Bar, err error) {
	defer observability.ObserveDBQuery("clickhouse", "bar_get_range", time.Now(), &err)
	query := `
		SELECT instrument, timestamp_ms, open, high, low, close, volume
		FROM bars_1m FINAL
		WHERE instrument = ? AND timestamp_ms >= ? AND timestamp_ms < ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, instrument, start, end)
	if err != nil {
		return nil, fmt.Errorf("query bars by range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

func scanBars(rows chRows) ([]*domain.Bar, error) {
	var bars []*domain.Bar

	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Instrument, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}
		bars = append(bars, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}

	return bars, nil
}
