// Package main loads a CSV of one-minute bars into the bar store.
package main

import (
	"flag"
	"fmt"
	"os"

	"orb-lab/internal/cli"
	"orb-lab/internal/ingestion"
)

func main() {
	var common cli.Flags
	common.Register(flag.CommandLine)
	instrument := flag.String("instrument", "MGC", "Instrument the file belongs to")
	path := flag.String("file", "", "CSV file: timestamp,open,high,low,close[,volume] (required)")
	batch := flag.Int("batch-size", ingestion.DefaultBatchSize, "Bars per write")
	flag.Parse()

	env, err := cli.Setup("importbars", common)
	if err != nil {
		cli.SetupFailed("importbars", err)
	}
	defer env.Close()
	log := env.Log

	if *path == "" {
		cli.Fatal(log, fmt.Errorf("--file is required"), "invalid flags")
	}
	f, err := os.Open(*path)
	if err != nil {
		cli.Fatal(log, err, "failed to open bar file")
	}
	defer f.Close()

	ctx, cancel := cli.SignalContext()
	defer cancel()

	stores, cleanup, err := env.Stores(ctx)
	if err != nil {
		cli.Fatal(log, err, "failed to open stores")
	}
	defer cleanup()

	im := ingestion.NewImporter(ingestion.ImporterOptions{Bars: stores.Bars, BatchSize: *batch, Logger: log})
	res, err := im.Import(ctx, ingestion.NewCSVBarSource(f), *instrument)
	if err != nil {
		cleanup()
		cli.Fatal(log, err, "import failed")
	}
	fmt.Printf("%s: %d read, %d written, %d duplicates\n", res.Instrument, res.Read, res.Written, res.Duplicates)
}
