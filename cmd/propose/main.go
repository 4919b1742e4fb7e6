// Package main records a DRAFT edge candidate.
package main

import (
	"flag"
	"fmt"
	"strings"

	"orb-lab/internal/cli"
	"orb-lab/internal/domain"
	"orb-lab/internal/filter"
	"orb-lab/internal/session"
)

func main() {
	var common cli.Flags
	common.Register(flag.CommandLine)
	instrument := flag.String("instrument", "MGC", "Instrument")
	orbName := flag.String("orb", "", "ORB window name, e.g. 1000 (required)")
	rr := flag.Float64("rr", 1.0, "Risk/reward multiple")
	stopMode := flag.String("stop-mode", "FULL", "Stop mode: HALF or FULL")
	sizeFilter := flag.Float64("size-filter", 0, "Maximum range/ATR ratio (0 disables)")
	condType := flag.String("condition-type", "", "Entry condition type (optional)")
	condValue := flag.String("condition-value", "", "Entry condition value")
	hypothesis := flag.String("hypothesis", "", "Hypothesis being tested (required)")
	from := flag.String("from", "", "Test window start, YYYY-MM-DD (required)")
	to := flag.String("to", "", "Test window end, YYYY-MM-DD (required)")
	codeVersion := flag.String("code-version", "", "Code version recorded on the candidate")
	dataVersion := flag.String("data-version", "", "Data version recorded on the candidate")
	flag.Parse()

	env, err := cli.Setup("propose", common)
	if err != nil {
		cli.SetupFailed("propose", err)
	}
	defer env.Close()
	log := env.Log

	start, end, err := cli.ParseRange(*from, *to)
	if err != nil {
		cli.Fatal(log, err, "invalid test window")
	}
	if *hypothesis == "" {
		cli.Fatal(log, fmt.Errorf("--hypothesis is required"), "invalid candidate")
	}
	cal, err := env.Config.BuildCalendar()
	if err != nil {
		cli.Fatal(log, err, "invalid config")
	}
	if w, ok := cal.Window(*orbName); !ok || w.Kind != session.KindORB {
		cli.Fatal(log, fmt.Errorf("unknown orb %q", *orbName), "invalid candidate")
	}

	params := domain.SetupParams{
		ORBName:    *orbName,
		RiskReward: *rr,
		StopMode:   domain.StopMode(strings.ToUpper(*stopMode)),
	}
	if !params.StopMode.IsValid() || params.RiskReward <= 0 {
		cli.Fatal(log, fmt.Errorf("rr=%v stop_mode=%s", *rr, *stopMode), "invalid candidate")
	}
	if *sizeFilter > 0 {
		params.SizeFilter = sizeFilter
	}
	if *condType != "" {
		c := domain.Condition{Type: *condType, Value: *condValue}
		if err := filter.ValidateCondition(c, env.Config.SessionNames()); err != nil {
			cli.Fatal(log, err, "invalid condition")
		}
		params.Condition = &c
	}

	ctx, cancel := cli.SignalContext()
	defer cancel()

	stores, cleanup, err := env.Stores(ctx)
	if err != nil {
		cli.Fatal(log, err, "failed to open stores")
	}
	defer cleanup()

	c := &domain.EdgeCandidate{
		Instrument:  *instrument,
		Hypothesis:  *hypothesis,
		Feature:     params,
		TestWindow:  domain.TestWindow{From: start, To: end},
		Status:      domain.CandidateDraft,
		CodeVersion: *codeVersion,
		DataVersion: *dataVersion,
	}
	if err := stores.Candidates.Insert(ctx, c); err != nil {
		cleanup()
		cli.Fatal(log, err, "failed to insert candidate")
	}

	log.Info().Int64("candidate_id", c.ID).Str("instrument", c.Instrument).Str("orb", params.ORBName).Msg("candidate recorded")
	fmt.Println(c.ID)
}
