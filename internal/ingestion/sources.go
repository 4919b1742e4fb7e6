// Package ingestion loads raw one-minute bars from external sources into the bar store.
package ingestion

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"orb-lab/internal/domain"
)

// ErrMalformedBar is returned for rows that cannot be parsed into a valid bar.
var ErrMalformedBar = errors.New("malformed bar")

// BarSource provides raw bars from external sources.
type BarSource interface {
	// Fetch returns bars for an instrument. Bars may be unordered or repeat a
	// timestamp; the Importer enforces ordering.
	Fetch(ctx context.Context, instrument string) ([]*domain.Bar, error)
}

// CSVBarSource reads bars from CSV with columns
// timestamp,open,high,low,close[,volume]. The timestamp is the bar open as Unix
// milliseconds or RFC 3339. A header row is skipped.
type CSVBarSource struct {
	r io.Reader
}

// NewCSVBarSource creates a source over r.
func NewCSVBarSource(r io.Reader) *CSVBarSource {
	return &CSVBarSource{r: r}
}

// Fetch parses every row. Unlike a lenient loader it fails on the first bad row,
// naming its line.
func (s *CSVBarSource) Fetch(ctx context.Context, instrument string) ([]*domain.Bar, error) {
	r := csv.NewReader(bufio.NewReader(s.r))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var bars []*domain.Bar
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedBar, line, err)
		}
		if line == 1 && isHeader(rec) {
			continue
		}

		b, err := parseBar(instrument, rec)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedBar, line, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(rec[0]), "\uFEFF"))
	return f == "timestamp" || f == "timestamp_ms" || f == "ts" || f == "ts_utc" || f == "time"
}

func parseBar(instrument string, rec []string) (*domain.Bar, error) {
	if len(rec) < 5 {
		return nil, fmt.Errorf("want at least 5 fields, got %d", len(rec))
	}

	ts, err := parseTimestamp(rec[0])
	if err != nil {
		return nil, err
	}

	var vals [5]float64
	n := len(rec)
	if n > 6 {
		n = 6
	}
	for i := 1; i < n; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %v", i+1, err)
		}
		vals[i-1] = v
	}

	b := &domain.Bar{
		Instrument: instrument,
		Timestamp:  ts,
		Open:       vals[0],
		High:       vals[1],
		Low:        vals[2],
		Close:      vals[3],
		Volume:     vals[4],
	}
	if err := ValidateBar(b); err != nil {
		return nil, err
	}
	return b, nil
}

func parseTimestamp(s string) (int64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "\uFEFF")
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q is neither Unix ms nor RFC 3339", s)
	}
	return t.UnixMilli(), nil
}

// ValidateBar checks minute alignment and OHLC consistency.
func ValidateBar(b *domain.Bar) error {
	if b.Timestamp%domain.BarInterval != 0 {
		return fmt.Errorf("timestamp %d is not aligned to a minute", b.Timestamp)
	}
	if b.High < b.Low {
		return fmt.Errorf("high %v below low %v", b.High, b.Low)
	}
	if b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
		return fmt.Errorf("open %v / close %v outside [%v, %v]", b.Open, b.Close, b.Low, b.High)
	}
	if b.Volume < 0 {
		return fmt.Errorf("negative volume %v", b.Volume)
	}
	return nil
}
