package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalnine/spatialbench/internal/report"
	"github.com/signalnine/spatialbench/internal/result"
)

const defaultSummaryFile = "benchmark_summary.md"

var (
	sumResultsDir string
	sumOutput     string
	sumTimeout    int
	sumRuns       int
	sumEngines    []string
	sumFormat     string
)

func newSummarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "summarize",
		Aliases: []string{"report"},
		Short:   "Merge per-engine results into a comparison report",
		RunE:    runSummarize,
	}
	cmd.Flags().StringVar(&sumResultsDir, "results-dir", "results", "directory containing *_results.jsonl files")
	cmd.Flags().StringVar(&sumOutput, "output", defaultSummaryFile, "output file, or - for stdout")
	cmd.Flags().IntVar(&sumTimeout, "timeout", 60, "query timeout in seconds (for reporting)")
	cmd.Flags().IntVar(&sumRuns, "runs", 3, "runs per query (for reporting)")
	cmd.Flags().StringSliceVar(&sumEngines, "engines", nil, "engines to include even without results")
	cmd.Flags().StringVar(&sumFormat, "format", "markdown", "output format: markdown, table, json")
	_ = v.BindPFlag("results-dir", cmd.Flags().Lookup("results-dir"))
	return cmd
}

func runSummarize(cmd *cobra.Command, args []string) error {
	dir := v.GetString("results-dir")
	results, err := result.LoadDir(dir, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", dir, err)
	}

	opts := report.Options{
		TimeoutSeconds: float64(sumTimeout),
		Runs:           sumRuns,
		Engines:        selectEngineNames(sumEngines),
	}
	var buf bytes.Buffer
	if err := report.Generate(results, opts, sumFormat, &buf); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if sumOutput == "-" {
		_, err := out.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(sumOutput, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	logger.Infow("summary written", "path", sumOutput, "engines", len(results))
	fmt.Fprintf(out, "Summary written to %s\n", sumOutput)
	return nil
}
