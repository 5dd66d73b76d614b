package cmd

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/signalnine/spatialbench/internal/result"
)

var (
	exportResultsDir string
	exportDB         string
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy result files into a SQLite database",
		RunE:  runExport,
	}
	cmd.Flags().StringVar(&exportResultsDir, "results-dir", "results", "directory containing *_results.jsonl files")
	cmd.Flags().StringVar(&exportDB, "db", "results.db", "SQLite database path")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	results, err := result.LoadDir(exportResultsDir, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", exportResultsDir, err)
	}
	db, err := sql.Open("sqlite", exportDB)
	if err != nil {
		return fmt.Errorf("opening %s: %w", exportDB, err)
	}
	defer db.Close()

	if err := result.ExportSQLite(cmd.Context(), db, results); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d engines to %s\n", len(results), exportDB)
	return nil
}
