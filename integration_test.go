//go:build integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/spatialbench/internal/config"
	"github.com/signalnine/spatialbench/internal/dataset"
	"github.com/signalnine/spatialbench/internal/report"
	"github.com/signalnine/spatialbench/internal/result"
	"github.com/signalnine/spatialbench/internal/runner"
)

// createFixtureData writes an empty-but-present table layout.
func createFixtureData(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "building"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"building/part-0.parquet", "trip.parquet", "zone.parquet"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("PAR1"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestDockerSessionIntegration(t *testing.T) {
	if os.Getenv("SPATIALBENCH_DOCKER_TESTS") == "" {
		t.Skip("set SPATIALBENCH_DOCKER_TESTS=1 to run integration tests")
	}

	dataDir := createFixtureData(t)
	tables, err := dataset.Discover(dataDir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	resultsDir := t.TempDir()
	runDir, err := result.CreateRunDir(resultsDir, time.Now())
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}

	catalog := []config.Engine{
		{
			Name:        "alpine",
			Kind:        config.KindDocker,
			Image:       "alpine:latest",
			Command:     []string{"sh", "-c", `case {{.QueryID}} in q2) sleep 30;; esac; ls {{parquet "building"}} {{table "trip"}}`},
			MemoryLimit: 64 * 1024 * 1024,
		},
		{
			Name:    "local",
			Kind:    config.KindCommand,
			Version: "0.0.1",
			Command: []string{"sh", "-c", "cat >/dev/null; echo one"},
		},
	}
	queries := []config.Query{
		{ID: "q1", SQL: "SELECT * FROM building"},
		{ID: "q2", SQL: "SELECT * FROM trip"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	session := runner.NewSession(catalog, nil)
	session.Progress = os.Stdout
	summary, err := session.Run(ctx, runner.Plan{
		Engines:     []string{"alpine", "local"},
		Queries:     queries,
		ScaleFactor: 1,
		Timeout:     10 * time.Second,
		Runs:        1,
		OutputDir:   runDir,
		DataDir:     dataDir,
		Tables:      tables,
		Parallel:    2,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Engines) != 2 {
		t.Fatalf("engines: got %d, want 2", len(summary.Engines))
	}

	results, err := result.LoadDir(runDir, nil)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	alpine := results["alpine"]
	if alpine == nil || !alpine.Complete() {
		t.Fatal("alpine results missing or incomplete")
	}
	if r, _ := alpine.Lookup("q1", 1); r.Status != result.StatusSuccess || r.Rows() != 2 {
		t.Errorf("q1: got %s with %d rows, want success with 2", r.Status, r.Rows())
	}
	if r, _ := alpine.Lookup("q2", 1); r.Status != result.StatusTimeout {
		t.Errorf("q2: got %s, want timeout", r.Status)
	}

	rep := report.Summarize(results, report.Options{TimeoutSeconds: 10, Runs: 1})
	if len(rep.Rows) != 2 {
		t.Errorf("report rows: got %d, want 2", len(rep.Rows))
	}
	if _, err := os.Stat(filepath.Join(resultsDir, "latest")); err != nil {
		t.Errorf("latest link: %v", err)
	}
}
