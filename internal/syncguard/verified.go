package syncguard

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"orb-lab/internal/domain"
	"orb-lab/internal/observability"
	"orb-lab/internal/storage"
)

// VerifiedSetups is the set of production setups that passed verification.
// It can only be obtained from Verify or Run.
type VerifiedSetups struct {
	slots map[string]map[string][]domain.ValidatedSetup
}

func newVerified(stored map[string]map[string][]*domain.ValidatedSetup) *VerifiedSetups {
	v := &VerifiedSetups{slots: make(map[string]map[string][]domain.ValidatedSetup, len(stored))}
	for inst, slots := range stored {
		m := make(map[string][]domain.ValidatedSetup, len(slots))
		for orbName, rows := range slots {
			list := make([]domain.ValidatedSetup, len(rows))
			for i, r := range rows {
				list[i] = *r
			}
			m[orbName] = list
		}
		v.slots[inst] = m
	}
	return v
}

// Instruments returns verified instruments in lexical order.
func (v *VerifiedSetups) Instruments() []string {
	out := keys(v.slots)
	sort.Strings(out)
	return out
}

// Windows returns the ORB names with setups for an instrument, in lexical order.
func (v *VerifiedSetups) Windows(instrument string) []string {
	out := keys(v.slots[instrument])
	sort.Strings(out)
	return out
}

// Slot returns the setups of one window in insertion order.
func (v *VerifiedSetups) Slot(instrument, orbName string) []domain.ValidatedSetup {
	rows := v.slots[instrument][orbName]
	out := make([]domain.ValidatedSetup, len(rows))
	copy(out, rows)
	return out
}

// Len returns the total number of setups.
func (v *VerifiedSetups) Len() int {
	n := 0
	for _, slots := range v.slots {
		for _, rows := range slots {
			n += len(rows)
		}
	}
	return n
}

// Run loads every stored setup and verifies it against declared.
// Mismatches are logged field by field and returned as *MismatchError.
func Run(ctx context.Context, store storage.SetupStore, declared Declared, log zerolog.Logger) (*VerifiedSetups, error) {
	rows, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load validated setups: %w", err)
	}

	verified, err := Verify(declared, rows)
	var mismatch *MismatchError
	switch {
	case errors.As(err, &mismatch):
		observability.RecordSyncGuard(false, len(mismatch.Mismatches))
		for _, m := range mismatch.Mismatches {
			log.Error().
				Str("instrument", m.Instrument).
				Str("orb", m.ORB).
				Int("index", m.Index).
				Str("field", m.Field).
				Str("config", m.Config).
				Str("store", m.Store).
				Msg("setup mismatch")
		}
		return nil, err
	case err != nil:
		return nil, err
	}

	observability.RecordSyncGuard(true, 0)
	log.Info().Int("setups", verified.Len()).Int("instruments", len(verified.slots)).Msg("sync guard passed")
	return verified, nil
}
