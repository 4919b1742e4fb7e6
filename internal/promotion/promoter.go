package promotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"orb-lab/internal/domain"
	"orb-lab/internal/idhash"
	"orb-lab/internal/observability"
	"orb-lab/internal/storage"
)

// ErrNotTested is returned when promoting a candidate that is not TESTED.
var ErrNotTested = errors.New("candidate is not TESTED")

// Promoter applies the gate and writes its decision.
type Promoter struct {
	candidates storage.CandidateStore
	setups     storage.SetupStore
	gate       *Gate
	log        zerolog.Logger
	now        func() time.Time
}

// NewPromoter creates a promoter. A nil now uses time.Now.
func NewPromoter(candidates storage.CandidateStore, setups storage.SetupStore, gate *Gate, log zerolog.Logger, now func() time.Time) *Promoter {
	if now == nil {
		now = time.Now
	}
	return &Promoter{candidates: candidates, setups: setups, gate: gate, log: log, now: now}
}

// Outcome is the recorded promotion decision.
type Outcome struct {
	Candidate *domain.EdgeCandidate
	Result    *Result
	Setup     *domain.ValidatedSetup // appended setup, nil when rejected
}

// Promote decides candidate id. On approval exactly one ValidatedSetup is appended
// before the status changes. A setup identical to an existing one from another
// candidate rejects the candidate rather than replacing the row.
func (p *Promoter) Promote(ctx context.Context, id int64) (*Outcome, error) {
	c, err := p.candidates.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load candidate %d: %w", id, err)
	}
	if c.Status != domain.CandidateTested {
		return nil, fmt.Errorf("candidate %d is %s: %w", id, c.Status, ErrNotTested)
	}

	log := p.log.With().Int64("candidate_id", id).Str("instrument", c.Instrument).Str("orb", c.Feature.ORBName).Logger()

	res := p.gate.Evaluate(c)
	out := &Outcome{Candidate: c, Result: res}

	if res.Approved() {
		setup, err := p.appendSetup(ctx, c, res)
		switch {
		case errors.Is(err, storage.ErrDuplicateKey):
			res.Status = domain.CandidateRejected
			res.Reason = fmt.Sprintf("duplicate setup %s", idhash.ComputeSetupID(c.Instrument, c.Feature))
			res.Tier = ""
		case err != nil:
			return nil, err
		default:
			out.Setup = setup
		}
	}

	at := p.now().UTC()
	if err := p.candidates.Decide(ctx, id, res.Status, res.Reason, at); err != nil {
		return nil, fmt.Errorf("record decision for candidate %d: %w", id, err)
	}
	c.Status = res.Status
	c.RejectionReason = res.Reason
	c.DecidedAt = &at
	observability.RecordPromotion(string(res.Status))

	ev := log.Info().Str("status", string(res.Status))
	if out.Setup != nil {
		ev = ev.Str("setup_id", out.Setup.SetupID).Str("tier", string(out.Setup.Tier))
	} else {
		ev = ev.Str("reason", res.Reason)
	}
	ev.Msg("candidate decided")

	return out, nil
}

// appendSetup writes the production row for an approved candidate. A row already
// written for this candidate by an interrupted earlier run is reused.
func (p *Promoter) appendSetup(ctx context.Context, c *domain.EdgeCandidate, res *Result) (*domain.ValidatedSetup, error) {
	setup := &domain.ValidatedSetup{
		SetupID:      idhash.ComputeSetupID(c.Instrument, c.Feature),
		Instrument:   c.Instrument,
		SetupParams:  c.Feature,
		Tier:         res.Tier,
		WinRate:      c.Metrics.WinRate,
		AvgR:         c.Metrics.AvgR,
		AnnualTrades: c.Metrics.AnnualTrades,
		CandidateID:  c.ID,
	}

	err := p.setups.Append(ctx, setup)
	if err == nil {
		return setup, nil
	}
	if !errors.Is(err, storage.ErrDuplicateKey) {
		return nil, fmt.Errorf("append setup: %w", err)
	}

	existing, lerr := p.setups.ListByInstrument(ctx, c.Instrument)
	if lerr != nil {
		return nil, fmt.Errorf("list setups: %w", lerr)
	}
	for _, s := range existing {
		if s.SetupID == setup.SetupID && s.CandidateID == c.ID {
			return s, nil
		}
	}
	return nil, err
}
