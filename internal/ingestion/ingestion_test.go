package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb-lab/internal/domain"
	"orb-lab/internal/storage/memory"
)

const base int64 = 1_767_826_800_000 // 2026-01-07T23:00:00Z

func TestCSVBarSource_Fetch(t *testing.T) {
	data := "\uFEFFtimestamp,open,high,low,close,volume\n" +
		"1767826800000,100,101,99,100.5,12\n" +
		"2026-01-07T23:01:00Z,100.5,102,100,101,8\n" +
		"1767826920000,101,101.5,100.5,101.2\n"

	bars, err := NewCSVBarSource(strings.NewReader(data)).Fetch(context.Background(), "MGC")
	require.NoError(t, err)
	require.Len(t, bars, 3)

	assert.Equal(t, "MGC", bars[0].Instrument)
	assert.Equal(t, base, bars[0].Timestamp)
	assert.Equal(t, 12.0, bars[0].Volume)
	assert.Equal(t, base+domain.BarInterval, bars[1].Timestamp)
	assert.Equal(t, 102.0, bars[1].High)
	assert.Equal(t, 0.0, bars[2].Volume)
}

func TestCSVBarSource_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
		line string
	}{
		{"bad price", "1767826800000,100,abc,99,100\n", "line 1"},
		{"short row", "ts,open,high,low,close\n1767826800000,100,101\n", "line 2"},
		{"misaligned", "1767826800500,100,101,99,100\n", "not aligned"},
		{"high below low", "1767826800000,100,99,101,100\n", "below low"},
		{"close outside", "1767826800000,100,101,99,105\n", "outside"},
		{"bad timestamp", "yesterday,100,101,99,100\n", "neither"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCSVBarSource(strings.NewReader(tt.data)).Fetch(context.Background(), "MGC")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedBar))
			assert.Contains(t, err.Error(), tt.line)
		})
	}
}

func TestSortAndDedupe(t *testing.T) {
	bars := []*domain.Bar{
		{Instrument: "MGC", Timestamp: base + 60_000, Close: 1},
		{Instrument: "MES", Timestamp: base, Close: 2},
		{Instrument: "MGC", Timestamp: base, Close: 3},
		{Instrument: "MGC", Timestamp: base + 60_000, Close: 4},
	}
	SortBars(bars)
	require.Error(t, ValidateBarOrdering(bars))

	out, dropped := Dedupe(bars)
	require.Len(t, dropped, 1)
	assert.Equal(t, 1.0, dropped[0].Close)
	assert.Equal(t, "MGC@2026-01-07T23:01:00Z", BarKey(dropped[0]))
	require.Len(t, out, 3)
	assert.Equal(t, "MES", out[0].Instrument)
	assert.Equal(t, 3.0, out[1].Close)
	assert.Equal(t, 4.0, out[2].Close, "last occurrence wins")
	assert.NoError(t, ValidateBarOrdering(out))
}

func TestValidateBarOrdering_Empty(t *testing.T) {
	assert.NoError(t, ValidateBarOrdering(nil))
	out, dropped := Dedupe(nil)
	assert.Empty(t, out)
	assert.Empty(t, dropped)
}

func TestImporter_Import(t *testing.T) {
	store := memory.NewBarStore()
	im := NewImporter(ImporterOptions{Bars: store, BatchSize: 2, Logger: zerolog.Nop()})

	data := "timestamp,open,high,low,close,volume\n" +
		"1767826920000,101,101.5,100.5,101.2,1\n" +
		"1767826800000,100,101,99,100.5,1\n" +
		"1767826860000,100.5,102,100,101,1\n" +
		"1767826800000,100,101,99,100.8,1\n"

	res, err := im.Import(context.Background(), NewCSVBarSource(strings.NewReader(data)), "MGC")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Read)
	assert.Equal(t, 3, res.Written)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, base, res.First.UnixMilli())
	assert.Equal(t, base+2*domain.BarInterval, res.Last.UnixMilli())

	stored, err := store.GetRange(context.Background(), "MGC", base, base+10*domain.BarInterval)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, 100.8, stored[0].Close)
}

func TestImporter_EmptySource(t *testing.T) {
	im := NewImporter(ImporterOptions{Bars: memory.NewBarStore(), Logger: zerolog.Nop()})
	res, err := im.Import(context.Background(), NewCSVBarSource(strings.NewReader("")), "MGC")
	require.NoError(t, err)
	assert.Zero(t, res.Written)
	assert.True(t, res.First.IsZero())
}

func TestImporter_FetchError(t *testing.T) {
	im := NewImporter(ImporterOptions{Bars: memory.NewBarStore(), Logger: zerolog.Nop()})
	_, err := im.Import(context.Background(), NewCSVBarSource(strings.NewReader("x,1,2,3\n")), "MGC")
	assert.ErrorIs(t, err, ErrMalformedBar)
}

func TestImporter_WarnsOnDuplicates(t *testing.T) {
	var buf bytes.Buffer
	im := NewImporter(ImporterOptions{Bars: memory.NewBarStore(), Logger: zerolog.New(&buf)})

	data := "timestamp,open,high,low,close,volume\n" +
		"1767826800000,100,101,99,100.5,1\n" +
		"1767826860000,100.5,102,100,101,1\n" +
		"1767826800000,100,101,99,100.8,1\n" +
		"1767826800000,100,101,99,100.9,1\n"

	res, err := im.Import(context.Background(), NewCSVBarSource(strings.NewReader(data)), "MGC")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Duplicates)
	assert.Equal(t, []string{"MGC@2026-01-07T23:00:00Z"}, res.DuplicateKeys)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var warn map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &warn))
	assert.Equal(t, "warn", warn["level"])
	assert.Equal(t, float64(2), warn["duplicates"])
	assert.Equal(t, []any{"MGC@2026-01-07T23:00:00Z"}, warn["keys"])
}
