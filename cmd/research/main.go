// Package main runs research on edge candidates and marks them TESTED.
package main

import (
	"flag"
	"fmt"

	"orb-lab/internal/cli"
	"orb-lab/internal/domain"
	"orb-lab/internal/research"
)

func main() {
	var common cli.Flags
	common.Register(flag.CommandLine)
	id := flag.Int64("id", 0, "Candidate ID to research")
	all := flag.Bool("all", false, "Research every DRAFT candidate")
	flag.Parse()

	env, err := cli.Setup("research", common)
	if err != nil {
		cli.SetupFailed("research", err)
	}
	defer env.Close()
	log := env.Log

	if (*id == 0) == !*all {
		cli.Fatal(log, fmt.Errorf("exactly one of --id or --all is required"), "invalid flags")
	}
	spec, err := env.Config.FeatureSpec()
	if err != nil {
		cli.Fatal(log, err, "invalid config")
	}

	ctx, cancel := cli.SignalContext()
	defer cancel()

	stores, cleanup, err := env.Stores(ctx)
	if err != nil {
		cli.Fatal(log, err, "failed to open stores")
	}
	defer cleanup()

	runner := research.NewRunner(research.Options{
		Bars:       stores.Bars,
		Candidates: stores.Candidates,
		Spec:       spec,
		Partitions: env.Config.Promotion.Partitions,
		Logger:     log,
	})

	ids := []int64{*id}
	if *all {
		drafts, err := stores.Candidates.List(ctx, domain.CandidateDraft)
		if err != nil {
			cleanup()
			cli.Fatal(log, err, "failed to list drafts")
		}
		ids = ids[:0]
		for _, c := range drafts {
			ids = append(ids, c.ID)
		}
	}

	failed := 0
	for _, cid := range ids {
		rep, err := runner.Run(ctx, cid)
		if err != nil {
			log.Error().Err(err).Int64("candidate_id", cid).Msg("research failed")
			failed++
			continue
		}
		m := rep.Metrics
		fmt.Printf("candidate %d: trades=%d win_rate=%.3f avg_r=%.3f positive_partitions=%d/%d\n",
			cid, m.TradeCount, m.WinRate, m.AvgR, rep.Robustness.PositivePartitions, len(rep.Robustness.Partitions))
	}
	if failed > 0 {
		cleanup()
		cli.Fatal(log, fmt.Errorf("%d of %d candidates failed", failed, len(ids)), "research incomplete")
	}
}
