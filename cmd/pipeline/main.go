// Package main provides the end-to-end research pipeline entry point.
// Executes: bar import (optional) -> features -> research -> promotion -> sync guard
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"orb-lab/internal/cli"
	"orb-lab/internal/config"
	"orb-lab/internal/ingestion"
	"orb-lab/internal/orchestrator"
	"orb-lab/internal/promotion"
	"orb-lab/internal/syncguard"
)

func main() {
	var common cli.Flags
	common.Register(flag.CommandLine)
	instruments := flag.String("instruments", "MGC", "Comma-separated instruments")
	from := flag.String("from", "", "First trading day, YYYY-MM-DD (required)")
	to := flag.String("to", "", "Last trading day, YYYY-MM-DD (required)")
	barsCSV := flag.String("bars-csv", "", "Import this CSV for the first instrument before running")
	setupsPath := flag.String("setups", "", "Declared setups YAML; enables the sync guard phase")
	flag.Parse()

	env, err := cli.Setup("pipeline", common)
	if err != nil {
		cli.SetupFailed("pipeline", err)
	}
	defer env.Close()
	log := env.Log

	start, end, err := cli.ParseRange(*from, *to)
	if err != nil {
		cli.Fatal(log, err, "invalid range")
	}
	insts := cli.SplitList(*instruments)
	if len(insts) == 0 {
		cli.Fatal(log, fmt.Errorf("--instruments is empty"), "invalid flags")
	}
	spec, err := env.Config.FeatureSpec()
	if err != nil {
		cli.Fatal(log, err, "invalid config")
	}
	var declared syncguard.Declared
	if *setupsPath != "" {
		setups, err := config.LoadSetups(*setupsPath, env.Config)
		if err != nil {
			cli.Fatal(log, err, "failed to load setups")
		}
		declared = setups.Declared()
	}

	ctx, cancel := cli.SignalContext()
	defer cancel()

	stores, cleanup, err := env.Stores(ctx)
	if err != nil {
		cli.Fatal(log, err, "failed to open stores")
	}
	defer cleanup()

	if *barsCSV != "" {
		f, err := os.Open(*barsCSV)
		if err != nil {
			cleanup()
			cli.Fatal(log, err, "failed to open bar file")
		}
		im := ingestion.NewImporter(ingestion.ImporterOptions{Bars: stores.Bars, Logger: log})
		_, err = im.Import(ctx, ingestion.NewCSVBarSource(f), insts[0])
		f.Close()
		if err != nil {
			cleanup()
			cli.Fatal(log, err, "bar import failed")
		}
	}

	orch := orchestrator.New(orchestrator.Options{
		Stores:     stores,
		Spec:       spec,
		Partitions: env.Config.Promotion.Partitions,
		Gate:       promotion.NewGate(env.Config.Thresholds()),
		Declared:   declared,
		Logger:     log,
	})

	result, err := orch.Run(ctx, insts, start, end)
	if err != nil {
		var mismatch *syncguard.MismatchError
		if errors.As(err, &mismatch) {
			fmt.Fprintln(os.Stderr, mismatch.Diff())
		}
		cleanup()
		cli.Fatal(log, err, "pipeline failed")
	}

	fmt.Printf("Pipeline completed:\n")
	fmt.Printf("  Rows: %d (trades %d, data gaps %d)\n", result.RowsBuilt, result.Trades, result.DataGaps)
	fmt.Printf("  Candidates tested: %d\n", result.CandidatesTested)
	fmt.Printf("  Approved: %d, rejected: %d\n", result.Approved, result.Rejected)
	if declared != nil {
		fmt.Printf("  Verified setups: %d\n", result.VerifiedSetups)
	}
	if len(result.Errors) > 0 {
		fmt.Printf("  Errors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
		cleanup()
		os.Exit(1)
	}
}
