// Package orchestrator wires the research pipeline end to end.
// It coordinates: feature build -> candidate research -> promotion -> sync guard.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"orb-lab/internal/domain"
	"orb-lab/internal/features"
	"orb-lab/internal/promotion"
	"orb-lab/internal/research"
	"orb-lab/internal/syncguard"
)

// Orchestrator coordinates the pipeline execution.
type Orchestrator struct {
	stores   *Stores
	builder  *features.Builder
	runner   *research.Runner
	promoter *promotion.Promoter
	declared syncguard.Declared
	log      zerolog.Logger
}

// Options for creating Orchestrator.
type Options struct {
	Stores     *Stores
	Spec       features.Spec
	Partitions int
	Gate       *promotion.Gate

	// Declared enables the final sync guard phase when non-nil.
	Declared syncguard.Declared

	Logger zerolog.Logger
	Now    func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	s := opts.Stores
	return &Orchestrator{
		stores: s,
		builder: features.New(features.Options{
			Bars:     s.Bars,
			Features: s.Features,
			Lock:     s.Lock,
			Spec:     opts.Spec,
			Logger:   opts.Logger.With().Str("component", "features").Logger(),
		}),
		runner: research.NewRunner(research.Options{
			Bars:       s.Bars,
			Candidates: s.Candidates,
			Spec:       opts.Spec,
			Partitions: opts.Partitions,
			Logger:     opts.Logger.With().Str("component", "research").Logger(),
			Now:        now,
		}),
		promoter: promotion.NewPromoter(s.Candidates, s.Setups, opts.Gate,
			opts.Logger.With().Str("component", "promotion").Logger(), now),
		declared: opts.Declared,
		log:      opts.Logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Builder returns the feature builder.
func (o *Orchestrator) Builder() *features.Builder { return o.builder }

// Runner returns the research runner.
func (o *Orchestrator) Runner() *research.Runner { return o.runner }

// Promoter returns the promoter.
func (o *Orchestrator) Promoter() *promotion.Promoter { return o.promoter }

// RunResult contains results from orchestrator execution.
type RunResult struct {
	RowsBuilt        int
	Trades           int
	DataGaps         int
	CandidatesTested int
	Approved         int
	Rejected         int
	VerifiedSetups   int
	Errors           []string
}

// Run executes the full pipeline.
// Phases:
//  1. Build feature rows for each instrument over [from, to]
//  2. Research every DRAFT candidate
//  3. Promote or reject every TESTED candidate
//  4. Verify declared setups against the store (when configured)
//
// A busy writer lock, an integrity violation or a sync mismatch aborts the run.
// Per-candidate failures are collected in Errors.
func (o *Orchestrator) Run(ctx context.Context, instruments []string, from, to time.Time) (*RunResult, error) {
	result := &RunResult{}

	o.log.Info().Msg("phase 1: building features")
	for _, inst := range instruments {
		res, err := o.builder.Build(ctx, inst, from, to)
		if err != nil {
			return nil, fmt.Errorf("phase 1 (features %s) failed: %w", inst, err)
		}
		result.RowsBuilt += res.Rows
		result.Trades += res.Trades
		result.DataGaps += res.DataGaps
	}

	o.log.Info().Msg("phase 2: researching candidates")
	drafts, err := o.stores.Candidates.List(ctx, domain.CandidateDraft)
	if err != nil {
		return nil, fmt.Errorf("phase 2 (list drafts) failed: %w", err)
	}
	for _, c := range drafts {
		if _, err := o.runner.Run(ctx, c.ID); err != nil {
			if errors.Is(err, domain.ErrIntegrity) {
				return nil, fmt.Errorf("phase 2 (candidate %d) failed: %w", c.ID, err)
			}
			result.Errors = append(result.Errors, fmt.Sprintf("research candidate %d: %v", c.ID, err))
			continue
		}
		result.CandidatesTested++
	}

	o.log.Info().Msg("phase 3: promotion")
	tested, err := o.stores.Candidates.List(ctx, domain.CandidateTested)
	if err != nil {
		return nil, fmt.Errorf("phase 3 (list tested) failed: %w", err)
	}
	for _, c := range tested {
		out, err := o.promoter.Promote(ctx, c.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("promote candidate %d: %v", c.ID, err))
			continue
		}
		if out.Candidate.Status == domain.CandidateApproved {
			result.Approved++
		} else {
			result.Rejected++
		}
	}

	if o.declared != nil {
		o.log.Info().Msg("phase 4: sync guard")
		v, err := syncguard.Run(ctx, o.stores.Setups, o.declared, o.log)
		if err != nil {
			return result, fmt.Errorf("phase 4 (sync guard) failed: %w", err)
		}
		result.VerifiedSetups = v.Len()
	}

	o.log.Info().
		Int("rows", result.RowsBuilt).
		Int("tested", result.CandidatesTested).
		Int("approved", result.Approved).
		Int("rejected", result.Rejected).
		Int("errors", len(result.Errors)).
		Msg("pipeline completed")

	return result, nil
}
