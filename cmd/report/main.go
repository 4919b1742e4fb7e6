// Package main exports feature rows to CSV and renders summaries and candidate audits to Markdown.
package main

import (
	"flag"
	"fmt"

	"orb-lab/internal/cli"
	"orb-lab/internal/promotion"
	"orb-lab/internal/reporting"
)

func main() {
	var common cli.Flags
	common.Register(flag.CommandLine)
	instrument := flag.String("instrument", "MGC", "Instrument")
	from := flag.String("from", "", "First trading day, YYYY-MM-DD")
	to := flag.String("to", "", "Last trading day, YYYY-MM-DD")
	candidateID := flag.Int64("candidate", 0, "Render the audit of this candidate")
	outputDir := flag.String("output-dir", "reports", "Output directory")
	flag.Parse()

	env, err := cli.Setup("report", common)
	if err != nil {
		cli.SetupFailed("report", err)
	}
	defer env.Close()
	log := env.Log

	if *candidateID == 0 && (*from == "" || *to == "") {
		cli.Fatal(log, fmt.Errorf("--from/--to or --candidate is required"), "invalid flags")
	}

	ctx, cancel := cli.SignalContext()
	defer cancel()

	stores, cleanup, err := env.Stores(ctx)
	if err != nil {
		cli.Fatal(log, err, "failed to open stores")
	}
	defer cleanup()

	gen := reporting.NewGenerator(stores.Features, stores.Candidates, promotion.NewGate(env.Config.Thresholds()))

	if *from != "" || *to != "" {
		start, end, err := cli.ParseRange(*from, *to)
		if err != nil {
			cleanup()
			cli.Fatal(log, err, "invalid range")
		}
		paths, err := gen.Export(ctx, *instrument, start, end, *outputDir)
		if err != nil {
			cleanup()
			cli.Fatal(log, err, "failed to write report")
		}
		for _, path := range paths {
			fmt.Println(path)
		}
	}

	if *candidateID != 0 {
		path, err := gen.ExportCandidateAudit(ctx, *candidateID, *outputDir)
		if err != nil {
			cleanup()
			cli.Fatal(log, err, "failed to write candidate audit")
		}
		fmt.Println(path)
	}
}
