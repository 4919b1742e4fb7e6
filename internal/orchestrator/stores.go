package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"orb-lab/internal/storage"
	chstore "orb-lab/internal/storage/clickhouse"
	"orb-lab/internal/storage/memory"
	pgstore "orb-lab/internal/storage/postgres"
)

// Stores holds every storage implementation the tools need.
type Stores struct {
	Bars       storage.BarStore
	Features   storage.FeatureStore
	Setups     storage.SetupStore
	Candidates storage.CandidateStore
	Lock       storage.WriterLock
}

// MemoryStores returns process-local stores.
func MemoryStores() *Stores {
	return &Stores{
		Bars:       memory.NewBarStore(),
		Features:   memory.NewFeatureStore(),
		Setups:     memory.NewSetupStore(),
		Candidates: memory.NewCandidateStore(),
		Lock:       memory.NewWriterLock(),
	}
}

// OpenStores connects to PostgreSQL and ClickHouse and applies migrations, or
// returns memory stores when useMemory is set. The cleanup function closes connections.
func OpenStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*Stores, func(), error) {
	if useMemory {
		return MemoryStores(), func() {}, nil
	}
	if postgresDSN == "" || clickhouseDSN == "" {
		return nil, nil, errors.New("postgres and clickhouse DSNs are required (use --use-memory for in-memory storage)")
	}

	// PostgreSQL
	pool, err := pgstore.Open(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// ClickHouse
	chConn, err := chstore.Open(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	stores := &Stores{
		// PostgreSQL stores (research records and the feature table)
		Features:   pgstore.NewFeatureStore(pool),
		Setups:     pgstore.NewSetupStore(pool),
		Candidates: pgstore.NewCandidateStore(pool),
		Lock:       pgstore.NewWriterLock(pool),

		// ClickHouse stores (raw bars)
		Bars: chstore.NewBarStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}
