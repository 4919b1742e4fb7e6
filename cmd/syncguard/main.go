// Package main verifies that declared setups match the validated setups in the database.
// It exits non-zero and prints a diff on any mismatch.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"orb-lab/internal/cli"
	"orb-lab/internal/config"
	"orb-lab/internal/syncguard"
)

func main() {
	var common cli.Flags
	common.Register(flag.CommandLine)
	setupsPath := flag.String("setups", "configs/setups.yaml", "Path to declared setups YAML")
	flag.Parse()

	env, err := cli.Setup("syncguard", common)
	if err != nil {
		cli.SetupFailed("syncguard", err)
	}
	defer env.Close()
	log := env.Log

	setups, err := config.LoadSetups(*setupsPath, env.Config)
	if err != nil {
		cli.Fatal(log, err, "failed to load setups")
	}

	ctx, cancel := cli.SignalContext()
	defer cancel()

	stores, cleanup, err := env.Stores(ctx)
	if err != nil {
		cli.Fatal(log, err, "failed to open stores")
	}
	defer cleanup()

	verified, err := syncguard.Run(ctx, stores.Setups, setups.Declared(), log)
	var mismatch *syncguard.MismatchError
	if errors.As(err, &mismatch) {
		fmt.Fprintln(os.Stderr, "config and database disagree:")
		fmt.Fprintln(os.Stderr, mismatch.Diff())
		cleanup()
		os.Exit(1)
	}
	if err != nil {
		cleanup()
		cli.Fatal(log, err, "sync guard failed")
	}

	fmt.Printf("OK: %d setups across %d instruments match\n", verified.Len(), len(verified.Instruments()))
}
