package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/spatialbench/internal/config"
	"github.com/signalnine/spatialbench/internal/dataset"
	"github.com/signalnine/spatialbench/internal/report"
	"github.com/signalnine/spatialbench/internal/result"
	"github.com/signalnine/spatialbench/internal/runner"
)

var (
	flagEngines     []string
	flagQueries     []string
	flagDataDir     string
	flagOutput      string
	flagTimeout     int
	flagRuns        int
	flagScaleFactor float64
	flagWarmup      int
	flagParallel    int
	flagTimestamped bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a benchmark session",
		Long: "Run every selected query on every selected engine, writing one " +
			"<engine>_results.jsonl file per engine to the output directory. " +
			"Failed or timed-out queries do not fail the command.",
		RunE: runBenchmark,
	}
	cmd.Flags().StringSliceVar(&flagEngines, "engines", nil, "engines to run, in order (default: all configured)")
	cmd.Flags().StringSliceVar(&flagQueries, "queries", nil, "queries to run (default: all configured)")
	cmd.Flags().StringVar(&flagDataDir, "data-dir", "", "directory holding the benchmark tables")
	cmd.Flags().StringVar(&flagOutput, "output", "", "results directory (default: results.dir from config)")
	cmd.Flags().IntVar(&flagTimeout, "timeout", 0, "per-query timeout in seconds")
	cmd.Flags().IntVar(&flagRuns, "runs", 0, "runs per query")
	cmd.Flags().Float64Var(&flagScaleFactor, "scale-factor", 0, "dataset scale factor")
	cmd.Flags().IntVar(&flagWarmup, "warmup", -1, "unrecorded warmup runs before each query")
	cmd.Flags().IntVar(&flagParallel, "parallel", 1, "engines benchmarked concurrently")
	cmd.Flags().BoolVar(&flagTimestamped, "timestamped", false, "write into <output>/runs/<timestamp> and link <output>/latest")
	_ = v.BindPFlag("data-dir", cmd.Flags().Lookup("data-dir"))
	return cmd
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	secrets, err := config.LoadSecrets(cfg.Secrets.EnvFile)
	if err != nil {
		return err
	}
	cfg.ApplySecrets(secrets)
	applyRunOverrides(cfg)

	queries, err := selectQueries(cfg.Queries, flagQueries)
	if err != nil {
		return err
	}
	engines := selectEngines(cfg, flagEngines)

	dataDir := cfg.Benchmark.DataDir
	if dataDir == "" {
		return fmt.Errorf("no data dir: set benchmark.data_dir or pass --data-dir")
	}
	tables, err := dataset.Discover(dataDir)
	if err != nil {
		return err
	}
	if missing := dataset.Missing(tables); len(missing) > 0 {
		logger.Warnw("tables not found in data dir", "dir", dataDir, "missing", missing)
	}

	outputDir := cfg.Results.Dir
	if flagTimestamped {
		outputDir, err = result.CreateRunDir(outputDir, time.Now())
		if err != nil {
			return err
		}
	}
	if err := ensureWritable(outputDir); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Results directory: %s\n", outputDir)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := runner.NewSession(cfg.Engines, logger)
	session.Progress = out
	plan := runner.Plan{
		Engines:     engines,
		Queries:     queries,
		ScaleFactor: cfg.Benchmark.ScaleFactor,
		Timeout:     time.Duration(cfg.Benchmark.TimeoutSeconds) * time.Second,
		Runs:        cfg.Benchmark.Runs,
		Warmup:      cfg.Benchmark.Warmup,
		OutputDir:   outputDir,
		DataDir:     dataDir,
		Tables:      tables,
		Parallel:    flagParallel,
	}
	summary, runErr := session.Run(ctx, plan)
	if summary == nil {
		return runErr
	}

	fmt.Fprintln(out, "\n--- Engines ---")
	for _, e := range summary.Engines {
		state := ""
		switch {
		case e.SetupFailed:
			state = " (setup failed)"
		case e.Aborted:
			state = " (interrupted)"
		}
		fmt.Fprintf(out, "  %s %s: %d ok, %d timeout, %d error%s\n",
			e.Engine, e.Version, e.Counts.Success, e.Counts.Timeout, e.Counts.Error, state)
	}

	if errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("benchmark interrupted; partial results are in %s", outputDir)
	}
	if runErr != nil {
		return runErr
	}

	results, err := result.LoadDir(outputDir, logger)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\n--- Results ---")
	return report.Generate(results, report.Options{
		TimeoutSeconds: float64(cfg.Benchmark.TimeoutSeconds),
		Runs:           cfg.Benchmark.Runs,
		Engines:        engines,
	}, "table", out)
}

func applyRunOverrides(cfg *config.Config) {
	if d := v.GetString("data-dir"); d != "" {
		cfg.Benchmark.DataDir = d
	}
	if flagOutput != "" {
		cfg.Results.Dir = flagOutput
	}
	if flagTimeout > 0 {
		cfg.Benchmark.TimeoutSeconds = flagTimeout
	}
	if flagRuns > 0 {
		cfg.Benchmark.Runs = flagRuns
	}
	if flagScaleFactor > 0 {
		cfg.Benchmark.ScaleFactor = flagScaleFactor
	}
	if flagWarmup >= 0 {
		cfg.Benchmark.Warmup = flagWarmup
	}
}

// selectEngines returns the requested engine names in the order given,
// or every configured engine. Unknown names are passed through so the
// session can reject them.
func selectEngines(cfg *config.Config, names []string) []string {
	if len(names) == 0 {
		return cfg.EngineNames()
	}
	return selectEngineNames(names)
}

func selectEngineNames(names []string) []string {
	var out []string
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// selectQueries filters the suite to ids, keeping suite order.
func selectQueries(queries []config.Query, ids []string) ([]config.Query, error) {
	if len(ids) == 0 {
		return queries, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[strings.ToLower(strings.TrimSpace(id))] = true
	}
	var filtered []config.Query
	for _, q := range queries {
		if want[q.ID] {
			filtered = append(filtered, q)
			delete(want, q.ID)
		}
	}
	if len(want) > 0 {
		var unknown []string
		for id := range want {
			unknown = append(unknown, id)
		}
		result.SortQueryIDs(unknown)
		return nil, fmt.Errorf("unknown queries: %s", strings.Join(unknown, ", "))
	}
	return filtered, nil
}

func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	f, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return fmt.Errorf("output dir %s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
