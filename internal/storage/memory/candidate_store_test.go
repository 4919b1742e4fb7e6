package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

func draft(instrument, orb string) *domain.EdgeCandidate {
	return &domain.EdgeCandidate{
		Instrument: instrument,
		Hypothesis: "0900 breakouts follow through on small ranges",
		Feature:    domain.SetupParams{ORBName: orb, RiskReward: 1.5, StopMode: domain.StopModeFull},
		TestWindow: domain.TestWindow{From: domain.Day(2024, 1, 1), To: domain.Day(2025, 12, 31)},
		Status:     domain.CandidateDraft,
	}
}

func TestCandidateStore_InsertAssignsSequentialIDs(t *testing.T) {
	store := NewCandidateStore()
	ctx := context.Background()

	a, b := draft("MGC", "0900"), draft("MGC", "1000")
	if err := store.Insert(ctx, a); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, b); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if a.ID != 1 || b.ID != 2 {
		t.Errorf("ids: got %d, %d, want 1, 2", a.ID, b.ID)
	}
	if a.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	got, err := store.GetByID(ctx, 2)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Feature.ORBName != "1000" {
		t.Errorf("ORBName mismatch: got %s, want 1000", got.Feature.ORBName)
	}
}

func TestCandidateStore_InsertRequiresDraft(t *testing.T) {
	store := NewCandidateStore()

	c := draft("MGC", "0900")
	c.Status = domain.CandidateApproved

	err := store.Insert(context.Background(), c)
	if !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCandidateStore_NotFound(t *testing.T) {
	store := NewCandidateStore()

	_, err := store.GetByID(context.Background(), 42)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCandidateStore_Lifecycle(t *testing.T) {
	store := NewCandidateStore()
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	c := draft("MGC", "0900")
	if err := store.Insert(ctx, c); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Cannot decide a DRAFT.
	if err := store.Decide(ctx, c.ID, domain.CandidateApproved, "", at); !errors.Is(err, storage.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	m := domain.CandidateMetrics{TradeCount: 120, AvgR: 0.21}
	r := domain.RobustnessMetrics{PositivePartitions: 3}
	if err := store.MarkTested(ctx, c.ID, m, r, at); err != nil {
		t.Fatalf("MarkTested failed: %v", err)
	}

	// Cannot re-test.
	if err := store.MarkTested(ctx, c.ID, m, r, at); !errors.Is(err, storage.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if err := store.Decide(ctx, c.ID, domain.CandidateRejected, "min_trades: 120 < 150", at); err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	got, _ := store.GetByID(ctx, c.ID)
	if got.Status != domain.CandidateRejected {
		t.Errorf("status: got %s, want REJECTED", got.Status)
	}
	if got.RejectionReason != "min_trades: 120 < 150" {
		t.Errorf("reason: got %q", got.RejectionReason)
	}
	if got.Metrics == nil || got.Metrics.TradeCount != 120 {
		t.Error("metrics not retained")
	}

	// Terminal states are final and the record stays listed.
	if err := store.Decide(ctx, c.ID, domain.CandidateApproved, "", at); !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	all, _ := store.List(ctx, "")
	if len(all) != 1 {
		t.Errorf("expected rejected candidate retained, got %d", len(all))
	}
}

func TestCandidateStore_ListByStatus(t *testing.T) {
	store := NewCandidateStore()
	ctx := context.Background()

	for _, orb := range []string{"0900", "1000", "1100"} {
		if err := store.Insert(ctx, draft("MGC", orb)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := store.MarkTested(ctx, 2, domain.CandidateMetrics{}, domain.RobustnessMetrics{}, time.Now()); err != nil {
		t.Fatalf("MarkTested failed: %v", err)
	}

	drafts, _ := store.List(ctx, domain.CandidateDraft)
	if len(drafts) != 2 || drafts[0].ID != 1 || drafts[1].ID != 3 {
		t.Errorf("unexpected drafts: %+v", drafts)
	}
	tested, _ := store.List(ctx, domain.CandidateTested)
	if len(tested) != 1 || tested[0].ID != 2 {
		t.Errorf("unexpected tested: %+v", tested)
	}
}

func TestCandidateStore_ConcurrentInsert(t *testing.T) {
	store := NewCandidateStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Insert(ctx, draft("MGC", "0900"))
		}()
	}
	wg.Wait()

	all, _ := store.List(ctx, "")
	if len(all) != 50 {
		t.Fatalf("expected 50 candidates, got %d", len(all))
	}
	for i, c := range all {
		if c.ID != int64(i+1) {
			t.Errorf("ids not dense: position %d has id %d", i, c.ID)
		}
	}
}
