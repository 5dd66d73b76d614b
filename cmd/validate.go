package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/spatialbench/internal/config"
	"github.com/signalnine/spatialbench/internal/dataset"
	"github.com/signalnine/spatialbench/internal/engine"
)

var (
	validateDataDir string
	validateConnect bool
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check config and dataset without running queries",
		RunE:  runValidate,
	}
	cmd.Flags().StringVar(&validateDataDir, "data-dir", "", "directory holding the benchmark tables")
	cmd.Flags().BoolVar(&validateConnect, "connect", false, "also connect to every engine")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	secrets, err := config.LoadSecrets(cfg.Secrets.EnvFile)
	if err != nil {
		return err
	}
	cfg.ApplySecrets(secrets)
	fmt.Fprintf(out, "config %s: %d engines, %d queries\n", cfgFile, len(cfg.Engines), len(cfg.Queries))

	var problems []error
	for _, q := range cfg.Queries {
		for _, e := range cfg.Engines {
			if q.TextFor(e.Name) == "" {
				problems = append(problems, fmt.Errorf("query %s has no text for engine %s", q.ID, e.Name))
			}
		}
	}

	dataDir := validateDataDir
	if dataDir == "" {
		dataDir = cfg.Benchmark.DataDir
	}
	var tables map[string]string
	if dataDir == "" {
		fmt.Fprintln(out, "data dir: not set")
	} else {
		tables, err = dataset.Discover(dataDir)
		if err != nil {
			problems = append(problems, err)
		} else {
			fmt.Fprintf(out, "data dir %s: %d tables\n", dataDir, len(tables))
			for _, name := range dataset.Missing(tables) {
				fmt.Fprintf(out, "  missing table: %s\n", name)
			}
		}
	}

	registry := engine.DefaultRegistry()
	opts := engine.Options{DataDir: dataDir, Tables: tables, ScaleFactor: cfg.Benchmark.ScaleFactor, Logger: logger}
	for _, e := range cfg.Engines {
		a, err := registry.New(e, opts)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		if !validateConnect {
			continue
		}
		if err := checkConnect(cmd.Context(), a); err != nil {
			problems = append(problems, err)
			continue
		}
		fmt.Fprintf(out, "engine %s: ok\n", e.Name)
	}

	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(out, "  ✗ %v\n", p)
		}
		return fmt.Errorf("validation failed with %d problem(s): %w", len(problems), errors.Join(problems...))
	}
	fmt.Fprintln(out, "ok")
	return nil
}

func checkConnect(ctx context.Context, a engine.Adapter) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := a.Connect(ctx); err != nil {
		return err
	}
	return a.Disconnect()
}
