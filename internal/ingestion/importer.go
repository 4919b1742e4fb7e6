package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage"
)

// DefaultBatchSize is the number of bars written per Upsert call.
const DefaultBatchSize = 5000

// maxLoggedDuplicates caps the duplicate keys attached to the warning.
const maxLoggedDuplicates = 20

// Importer writes bars from a source into the bar store.
type Importer struct {
	bars      storage.BarStore
	batchSize int
	log       zerolog.Logger
}

// ImporterOptions contains configuration for creating an Importer.
type ImporterOptions struct {
	Bars      storage.BarStore
	BatchSize int
	Logger    zerolog.Logger
}

// NewImporter creates a new Importer.
func NewImporter(opts ImporterOptions) *Importer {
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Importer{bars: opts.Bars, batchSize: size, log: opts.Logger}
}

// ImportResult summarises an import.
type ImportResult struct {
	Instrument string
	Read       int
	Written    int
	Duplicates    int      // repeated timestamps collapsed to the last occurrence
	DuplicateKeys []string // distinct repeated keys, ascending
	First      time.Time
	Last       time.Time
}

// Import fetches bars for instrument, sorts them, collapses repeated timestamps and
// upserts them. Existing bars with the same key are overwritten.
func (im *Importer) Import(ctx context.Context, src BarSource, instrument string) (*ImportResult, error) {
	bars, err := src.Fetch(ctx, instrument)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}

	res := &ImportResult{Instrument: instrument, Read: len(bars)}
	SortBars(bars)
	bars, dropped := Dedupe(bars)
	res.Duplicates = len(dropped)
	for _, b := range dropped {
		k := BarKey(b)
		if n := len(res.DuplicateKeys); n == 0 || res.DuplicateKeys[n-1] != k {
			res.DuplicateKeys = append(res.DuplicateKeys, k)
		}
	}
	if res.Duplicates > 0 {
		keys := res.DuplicateKeys
		if len(keys) > maxLoggedDuplicates {
			keys = keys[:maxLoggedDuplicates]
		}
		im.log.Warn().
			Str("instrument", instrument).
			Int("duplicates", res.Duplicates).
			Strs("keys", keys).
			Msg("repeated bars collapsed to the last occurrence")
	}
	if err := ValidateBarOrdering(bars); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return res, nil
	}

	for start := 0; start < len(bars); start += im.batchSize {
		end := start + im.batchSize
		if end > len(bars) {
			end = len(bars)
		}
		if err := im.bars.Upsert(ctx, bars[start:end]); err != nil {
			return nil, fmt.Errorf("upsert bars %d..%d: %w", start, end, err)
		}
		res.Written += end - start
	}

	res.First = time.UnixMilli(bars[0].Timestamp).UTC()
	res.Last = time.UnixMilli(bars[len(bars)-1].Timestamp).UTC()

	im.log.Info().
		Str("instrument", instrument).
		Int("read", res.Read).
		Int("written", res.Written).
		Int("duplicates", res.Duplicates).
		Str("first", res.First.Format(time.RFC3339)).
		Str("last", res.Last.Format(time.RFC3339)).
		Msg("bars imported")

	return res, nil
}

// Range reports the UTC span covered by bars of a sorted slice.
func Range(bars []*domain.Bar) (time.Time, time.Time, bool) {
	if len(bars) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return time.UnixMilli(bars[0].Timestamp).UTC(), time.UnixMilli(bars[len(bars)-1].Timestamp).UTC(), true
}
