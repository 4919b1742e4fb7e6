package postgres

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb-lab/internal/domain"
	"orb-lab/internal/observability"
	"orb-lab/internal/storage"
)

func TestSetupStore_AppendKeepsBothSetupsForWindow(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSetupStore(pool)
	ctx := context.Background()

	a := &domain.ValidatedSetup{
		SetupID: "setup-a", Instrument: "MGC",
		SetupParams: domain.SetupParams{ORBName: "1000", RiskReward: 1.0, StopMode: domain.StopModeFull},
		Tier:        domain.TierMid, WinRate: 0.55, AvgR: 0.16, AnnualTrades: 120,
	}
	b := &domain.ValidatedSetup{
		SetupID: "setup-b", Instrument: "MGC",
		SetupParams: domain.SetupParams{
			ORBName: "1000", RiskReward: 2.0, StopMode: domain.StopModeHalf,
			SizeFilter: ptr(0.2),
			Condition:  &domain.Condition{Type: domain.ConditionBreakDirection, Value: "UP"},
		},
		Tier: domain.TierTop, WinRate: 0.41, AvgR: 0.33, AnnualTrades: 60,
	}

	require.NoError(t, store.Append(ctx, a))
	require.NoError(t, store.Append(ctx, b))
	assert.Less(t, a.Sequence, b.Sequence)
	assert.NotZero(t, b.CreatedAt)

	got, err := store.ListByInstrument(ctx, "MGC")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "setup-a", got[0].SetupID)
	assert.Nil(t, got[0].SizeFilter)
	assert.Nil(t, got[0].Condition)
	assert.Equal(t, b.SetupParams, got[1].SetupParams)
	assert.Equal(t, domain.TierTop, got[1].Tier)
	assert.Equal(t, int64(0), got[1].CandidateID)
}

func TestSetupStore_DuplicateSetupID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSetupStore(pool)
	ctx := context.Background()

	s := &domain.ValidatedSetup{
		SetupID: "dup", Instrument: "MGC",
		SetupParams: domain.SetupParams{ORBName: "0900", RiskReward: 1, StopMode: domain.StopModeFull},
		Tier:        domain.TierLow,
	}
	require.NoError(t, store.Append(ctx, s))

	errs := observability.DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", "setup_append")
	before := testutil.ToFloat64(errs)

	again := *s
	assert.ErrorIs(t, store.Append(ctx, &again), storage.ErrDuplicateKey)
	assert.Equal(t, before+1, testutil.ToFloat64(errs))
}

func TestSetupStore_RejectsUpdate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSetupStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, &domain.ValidatedSetup{
		SetupID: "x", Instrument: "MGC",
		SetupParams: domain.SetupParams{ORBName: "0900", RiskReward: 1, StopMode: domain.StopModeFull},
		Tier:        domain.TierLow,
	}))

	_, err := pool.Exec(ctx, `UPDATE validated_setups SET risk_reward = 3 WHERE setup_id = 'x'`)
	assert.Error(t, err)
}
