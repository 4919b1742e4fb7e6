// Package main rebuilds a date range in memory and diffs it against the stored feature table.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"orb-lab/internal/cli"
	"orb-lab/internal/features"
	"orb-lab/internal/storage"
	"orb-lab/internal/verification"
)

func main() {
	var common cli.Flags
	common.Register(flag.CommandLine)
	instruments := flag.String("instruments", "MGC", "Comma-separated instruments")
	from := flag.String("from", "", "First trading day, YYYY-MM-DD")
	to := flag.String("to", "", "Last trading day, YYYY-MM-DD")
	day := flag.String("day", "", "Verify one trading day, YYYY-MM-DD (instead of --from/--to)")
	maxLines := flag.Int("max-divergences", 20, "Divergent fields printed per day")
	flag.Parse()

	env, err := cli.Setup("verify", common)
	if err != nil {
		cli.SetupFailed("verify", err)
	}
	defer env.Close()
	log := env.Log

	var single time.Time
	var start, end time.Time
	if *day != "" {
		single, err = cli.ParseDay(*day)
	} else {
		start, end, err = cli.ParseRange(*from, *to)
	}
	if err != nil {
		cli.Fatal(log, err, "invalid range")
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

	builder := features.New(features.Options{Bars: stores.Bars, Spec: spec, Logger: log})
	verifier := verification.NewVerifier(builder, stores.Features, log)

	clean := true
	for _, inst := range cli.SplitList(*instruments) {
		if !single.IsZero() {
			res, err := verifier.VerifyDay(ctx, inst, single)
			if errors.Is(err, storage.ErrNotFound) {
				fmt.Printf("%s %s: no stored row\n", inst, *day)
				clean = false
				continue
			}
			if err != nil {
				cleanup()
				cli.Fatal(log, err, "verification failed")
			}
			fmt.Printf("%s %s: match=%t\n", inst, res.TradingDay, res.Match)
			printDivergences(*res, *maxLines)
			clean = clean && res.Match
			continue
		}

		rep, err := verifier.VerifyRange(ctx, inst, start, end)
		if err != nil {
			cleanup()
			cli.Fatal(log, err, "verification failed")
		}
		fmt.Printf("%s: %d rows, %d matched, %d divergent\n", inst, rep.TotalRows, rep.MatchedRows, rep.DivergentRows)
		for _, r := range rep.Results {
			printDivergences(r, *maxLines)
		}
		clean = clean && rep.OK()
	}
	if !clean {
		cleanup()
		os.Exit(1)
	}
}

func printDivergences(r verification.RowResult, limit int) {
	for i, d := range r.Divergences {
		if i == limit {
			fmt.Printf("  %s: ... %d more\n", r.TradingDay, len(r.Divergences)-i)
			return
		}
		fmt.Printf("  %s: %s\n", r.TradingDay, d)
	}
}
