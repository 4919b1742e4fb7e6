package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

func sampleRow(day int, withTrade bool) *domain.FeatureRow {
	row := &domain.FeatureRow{
		TradingDay: domain.Day(2026, 1, day),
		Instrument: "MGC",
		ATR:        ptr(28.4),
		BarCount:   1380,
		Sessions: []domain.SessionStat{
			{Name: "ASIA", High: ptr(4501.2), Low: ptr(4480.1)},
			{Name: "LONDON"},
		},
		ORBs: []domain.ORBResult{
			{Name: "0900", DataGap: true, Trade: domain.NoTrade(1, domain.StopModeFull)},
		},
	}
	if withTrade {
		row.ORBs = append(row.ORBs, domain.ORBResult{
			Name:  "1000",
			Range: &domain.ORBRange{High: 4493.7, Low: 4486.3, BarCount: 5},
			RSI:   ptr(41.2),
			Trade: domain.GradedTrade{
				Direction: domain.DirectionDown, RiskReward: 1, StopMode: domain.StopModeFull,
				EntryTime: ptr(int64(1767916860000)), EntryPrice: ptr(4486.0), StopPrice: ptr(4493.7),
				TargetPrice: ptr(4478.3), Risk: ptr(7.7), Outcome: domain.OutcomeWin, RMultiple: ptr(1.0),
				ExitTime: ptr(int64(1767918000000)), ExitPrice: ptr(4478.3), MAE: ptr(1.2), MFE: ptr(7.7),
			},
		})
	}
	return row
}

func TestFeatureStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewFeatureStore(pool)
	ctx := context.Background()

	want := sampleRow(9, true)
	require.NoError(t, store.Upsert(ctx, []*domain.FeatureRow{want}))

	got, err := store.Get(ctx, "MGC", domain.Day(2026, 1, 9))
	require.NoError(t, err)

	assert.True(t, want.TradingDay.Equal(got.TradingDay))
	assert.Equal(t, want.ATR, got.ATR)
	assert.Equal(t, want.BarCount, got.BarCount)
	assert.Equal(t, want.Sessions, got.Sessions)
	require.Len(t, got.ORBs, 2)
	assert.Equal(t, want.ORBs[0], got.ORBs[0])
	assert.Equal(t, want.ORBs[1], got.ORBs[1])
}

func TestFeatureStore_UpsertIsIdempotentAndReplaces(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewFeatureStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []*domain.FeatureRow{sampleRow(9, true)}))
	require.NoError(t, store.Upsert(ctx, []*domain.FeatureRow{sampleRow(9, true)}))

	got, err := store.Get(ctx, "MGC", domain.Day(2026, 1, 9))
	require.NoError(t, err)
	require.Len(t, got.ORBs, 2, "re-run must not duplicate outcomes")

	require.NoError(t, store.Upsert(ctx, []*domain.FeatureRow{sampleRow(9, false)}))
	got, err = store.Get(ctx, "MGC", domain.Day(2026, 1, 9))
	require.NoError(t, err)
	assert.Len(t, got.ORBs, 1, "replaced row drops stale outcomes")

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM daily_features`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestFeatureStore_GetRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewFeatureStore(pool)
	ctx := context.Background()

	var rows []*domain.FeatureRow
	for d := 5; d <= 9; d++ {
		rows = append(rows, sampleRow(d, d%2 == 1))
	}
	require.NoError(t, store.Upsert(ctx, rows))

	got, err := store.GetRange(ctx, "MGC", domain.Day(2026, 1, 6), domain.Day(2026, 1, 8))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 6, got[0].TradingDay.Day())
	assert.Len(t, got[0].ORBs, 1)
	assert.Len(t, got[1].ORBs, 2)

	_, err = store.Get(ctx, "MGC", domain.Day(2026, 2, 1))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFeatureStore_RejectsEntryAtEdge(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	row := sampleRow(9, true)
	row.ORBs[1].Trade.EntryPrice = ptr(row.ORBs[1].Range.Low)

	err := NewFeatureStore(pool).Upsert(context.Background(), []*domain.FeatureRow{row})
	assert.Error(t, err, "schema check rejects entry equal to an edge")
}
