package domain

import (
	"errors"
	"fmt"
)

// ErrDataGap marks a window with no bars. It is recovered locally by
// recording a null range and a NO_TRADE outcome.
var ErrDataGap = errors.New("data gap: no bars inside window")

// ErrIntegrity is the sentinel wrapped by every IntegrityViolation.
var ErrIntegrity = errors.New("integrity violation")

// IntegrityViolation is a fatal logic or data error that aborts the current unit of work.
type IntegrityViolation struct {
	Instrument string
	Window     string
	Field      string
	Detail     string
}

func (e *IntegrityViolation) Error() string {
	return fmt.Sprintf("integrity violation: instrument=%s window=%s field=%s: %s",
		e.Instrument, e.Window, e.Field, e.Detail)
}

// Unwrap allows errors.Is(err, ErrIntegrity).
func (e *IntegrityViolation) Unwrap() error {
	return ErrIntegrity
}
