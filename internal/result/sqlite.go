package result

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

var exportSchema = []string{
	`CREATE TABLE IF NOT EXISTS engines (
		engine TEXT PRIMARY KEY,
		version TEXT,
		adapter TEXT,
		session_id TEXT,
		scale_factor REAL,
		timeout_seconds REAL,
		runs INTEGER,
		started_at TEXT,
		finished_at TEXT,
		aborted BOOL,
		complete BOOL
	)`,
	`CREATE TABLE IF NOT EXISTS parameters (
		engine TEXT,
		name TEXT,
		value TEXT,
		PRIMARY KEY (engine, name)
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		engine TEXT,
		query TEXT,
		run_index INTEGER,
		status TEXT,
		elapsed_seconds REAL,
		row_count INTEGER,
		error_message TEXT,
		PRIMARY KEY (engine, query, run_index)
	)`,
}

// ExportSQLite writes results into db, replacing rows of the same engines.
func ExportSQLite(ctx context.Context, db *sql.DB, results map[string]*EngineResults) error {
	for _, stmt := range exportSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating export schema: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting export: %w", err)
	}
	defer tx.Rollback()

	engines := make([]string, 0, len(results))
	for name := range results {
		engines = append(engines, name)
	}
	sort.Strings(engines)

	for _, name := range engines {
		if err := exportEngine(ctx, tx, results[name]); err != nil {
			return fmt.Errorf("exporting %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing export: %w", err)
	}
	return nil
}

func exportEngine(ctx context.Context, tx *sql.Tx, res *EngineResults) error {
	h := res.Header
	for _, table := range []string{"engines", "parameters", "runs"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE engine = ?", h.Engine); err != nil {
			return err
		}
	}

	var finished any
	aborted := false
	if res.Footer != nil {
		finished = res.Footer.FinishedAt.UTC().Format(time.RFC3339Nano)
		aborted = res.Footer.Aborted
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO engines VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		h.Engine, h.Version, h.Adapter, h.SessionID, h.ScaleFactor, h.TimeoutSeconds, h.Runs,
		h.StartedAt.UTC().Format(time.RFC3339Nano), finished, aborted, res.Complete(),
	)
	if err != nil {
		return err
	}

	params := map[string]any{
		"arch":      h.Host.Arch,
		"os":        h.Host.OS,
		"hostname":  h.Host.Hostname,
		"platform":  h.Host.Platform,
		"kernel":    h.Host.Kernel,
		"cpu_model": h.Host.CPUModel,
		"cpu_count": h.Host.CPUCount,
		"memory_gb": h.Host.MemoryGB,
	}
	for name, value := range params {
		if _, err := tx.ExecContext(ctx, "INSERT INTO parameters VALUES (?, ?, ?)", h.Engine, name, fmt.Sprint(value)); err != nil {
			return err
		}
	}

	for _, r := range res.Runs {
		var elapsed, rows, msg any
		if r.ElapsedSeconds != nil {
			elapsed = *r.ElapsedSeconds
		}
		if r.RowCount != nil {
			rows = *r.RowCount
		}
		if r.ErrorMessage != nil {
			msg = *r.ErrorMessage
		}
		_, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO runs VALUES (?, ?, ?, ?, ?, ?, ?)",
			r.Engine, r.Query, r.RunIndex, string(r.Status), elapsed, rows, msg,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
