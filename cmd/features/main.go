// Package main builds feature rows for a date range and writes them to the feature store.
package main

import (
	"flag"
	"fmt"

	"orb-lab/internal/cli"
	"orb-lab/internal/features"
)

func main() {
	var common cli.Flags
	common.Register(flag.CommandLine)
	instruments := flag.String("instruments", "MGC", "Comma-separated instruments")
	from := flag.String("from", "", "First trading day, YYYY-MM-DD (required)")
	to := flag.String("to", "", "Last trading day, YYYY-MM-DD (required)")
	flag.Parse()

	env, err := cli.Setup("features", common)
	if err != nil {
		cli.SetupFailed("features", err)
	}
	defer env.Close()
	log := env.Log

	start, end, err := cli.ParseRange(*from, *to)
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

	builder := features.New(features.Options{
		Bars:     stores.Bars,
		Features: stores.Features,
		Lock:     stores.Lock,
		Spec:     spec,
		Logger:   log,
	})

	for _, inst := range cli.SplitList(*instruments) {
		res, err := builder.Build(ctx, inst, start, end)
		if err != nil {
			cleanup()
			cli.Fatal(log, err, "feature build failed")
		}
		fmt.Printf("%s: %d rows, %d trades, %d data gaps\n", res.Instrument, res.Rows, res.Trades, res.DataGaps)
	}
}
