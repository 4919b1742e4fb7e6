// Package main applies the promotion gate to TESTED candidates.
package main

import (
	"flag"
	"fmt"

	"orb-lab/internal/cli"
	"orb-lab/internal/domain"
	"orb-lab/internal/promotion"
)

func main() {
	var common cli.Flags
	common.Register(flag.CommandLine)
	id := flag.Int64("id", 0, "Candidate ID to promote")
	all := flag.Bool("all", false, "Decide every TESTED candidate")
	quiet := flag.Bool("quiet", false, "Do not print the audit")
	flag.Parse()

	env, err := cli.Setup("promote", common)
	if err != nil {
		cli.SetupFailed("promote", err)
	}
	defer env.Close()
	log := env.Log

	if (*id == 0) == !*all {
		cli.Fatal(log, fmt.Errorf("exactly one of --id or --all is required"), "invalid flags")
	}

	ctx, cancel := cli.SignalContext()
	defer cancel()

	stores, cleanup, err := env.Stores(ctx)
	if err != nil {
		cli.Fatal(log, err, "failed to open stores")
	}
	defer cleanup()

	gate := promotion.NewGate(env.Config.Thresholds())
	promoter := promotion.NewPromoter(stores.Candidates, stores.Setups, gate, log, nil)

	ids := []int64{*id}
	if *all {
		tested, err := stores.Candidates.List(ctx, domain.CandidateTested)
		if err != nil {
			cleanup()
			cli.Fatal(log, err, "failed to list tested candidates")
		}
		ids = ids[:0]
		for _, c := range tested {
			ids = append(ids, c.ID)
		}
	}

	failed := 0
	for _, cid := range ids {
		out, err := promoter.Promote(ctx, cid)
		if err != nil {
			log.Error().Err(err).Int64("candidate_id", cid).Msg("promotion failed")
			failed++
			continue
		}
		if *quiet {
			fmt.Printf("candidate %d: %s\n", cid, out.Candidate.Status)
			continue
		}
		fmt.Println(promotion.RenderMarkdown(out.Candidate, out.Result))
		if out.Setup != nil {
			fmt.Printf("appended setup %s\n", out.Setup.SetupID)
		}
	}
	if failed > 0 {
		cleanup()
		cli.Fatal(log, fmt.Errorf("%d of %d candidates failed", failed, len(ids)), "promotion incomplete")
	}
}
