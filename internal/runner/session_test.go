package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/spatialbench/internal/config"
	"github.com/signalnine/spatialbench/internal/engine"
	"github.com/signalnine/spatialbench/internal/result"
	"github.com/signalnine/spatialbench/internal/sysinfo"
)

func queries(ids ...string) []config.Query {
	out := make([]config.Query, len(ids))
	for i, id := range ids {
		out[i] = config.Query{ID: id, SQL: "SELECT " + id}
	}
	return out
}

func newTestSession(stubs ...*stubAdapter) *Session {
	reg, catalog := stubRegistry(stubs...)
	s := NewSession(catalog, nil)
	s.Registry = reg
	s.Runner.ReapGrace = 100 * time.Millisecond
	s.Host = &sysinfo.Info{Arch: "amd64", CPUCount: 4}
	return s
}

func basePlan(dir string, engines ...string) Plan {
	return Plan{
		Engines:     engines,
		Queries:     queries("q1", "q2"),
		ScaleFactor: 1,
		Timeout:     time.Second,
		Runs:        2,
		OutputDir:   dir,
	}
}

func TestSessionRunsEverything(t *testing.T) {
	dir := t.TempDir()
	duck := newStub("duckdb", map[string]execFunc{"q2": raise("not supported")})
	sedona := newStub("sedonadb", nil)
	s := newTestSession(duck, sedona)
	var progress bytes.Buffer
	s.Progress = &progress

	summary, err := s.Run(context.Background(), basePlan(dir, "sedonadb", "duckdb"))
	require.NoError(t, err)
	require.Len(t, summary.Engines, 2)
	assert.Equal(t, "sedonadb", summary.Engines[0].Engine)
	assert.Equal(t, result.Counts{Success: 2, Error: 2}, summary.Engines[1].Counts)
	assert.Contains(t, progress.String(), "Running duckdb × q2 (run 2/2)...")

	_, _, executed := duck.calls()
	assert.Equal(t, []string{"q1", "q1", "q2", "q2"}, executed)

	res, err := result.ReadFile(filepath.Join(dir, "duckdb_results.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, summary.SessionID, res.Header.SessionID)
	assert.Equal(t, "1.0", res.Header.Version)
	assert.Equal(t, []string{"q1", "q2"}, res.Header.Queries)
	assert.True(t, res.Complete())
	require.Len(t, res.Runs, 4)
	for i, want := range []struct {
		query string
		run   int
	}{{"q1", 1}, {"q1", 2}, {"q2", 1}, {"q2", 2}} {
		assert.Equal(t, want.query, res.Runs[i].Query)
		assert.Equal(t, want.run, res.Runs[i].RunIndex)
	}
	r, ok := res.Lookup("q2", 2)
	require.True(t, ok)
	assert.Equal(t, "not supported", r.Message())
}

func TestSessionSetupFailure(t *testing.T) {
	dir := t.TempDir()
	broken := newStub("postgis", nil)
	broken.connectErr = func(int) error { return errors.New("connection refused") }
	broken.version = ""
	ok := newStub("duckdb", nil)
	s := newTestSession(broken, ok)

	summary, err := s.Run(context.Background(), basePlan(dir, "postgis", "duckdb"))
	require.NoError(t, err)
	assert.True(t, summary.Engines[0].SetupFailed)
	assert.Equal(t, "unknown", summary.Engines[0].Version)
	assert.Equal(t, result.Counts{Success: 4}, summary.Engines[1].Counts)

	res, err := result.ReadFile(filepath.Join(dir, "postgis_results.jsonl"))
	require.NoError(t, err)
	require.Len(t, res.Runs, 2)
	for _, r := range res.Runs {
		assert.Equal(t, result.StatusError, r.Status)
		assert.Equal(t, 1, r.RunIndex)
		assert.Equal(t, "setup failed: connection refused", r.Message())
		assert.Nil(t, r.ElapsedSeconds)
	}
	_, _, executed := broken.calls()
	assert.Empty(t, executed)
}

func TestSessionTimeoutResetsAdapter(t *testing.T) {
	dir := t.TempDir()
	duck := newStub("duckdb", map[string]execFunc{"q1": hang})
	s := newTestSession(duck)
	plan := basePlan(dir, "duckdb")
	plan.Timeout = 50 * time.Millisecond
	plan.Runs = 1

	summary, err := s.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, result.Counts{Success: 1, Timeout: 1}, summary.Engines[0].Counts)

	connects, disconnects, _ := duck.calls()
	assert.Equal(t, 2, connects)
	assert.Equal(t, 2, disconnects)
}

func TestSessionReconnectFailure(t *testing.T) {
	dir := t.TempDir()
	duck := newStub("duckdb", map[string]execFunc{"q1": hang})
	duck.connectErr = func(attempt int) error {
		if attempt > 1 {
			return errors.New("server gone")
		}
		return nil
	}
	s := newTestSession(duck)
	plan := basePlan(dir, "duckdb")
	plan.Queries = queries("q1", "q2", "q3")
	plan.Timeout = 50 * time.Millisecond

	summary, err := s.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, summary.Engines[0].SetupFailed)

	res, err := result.ReadFile(filepath.Join(dir, "duckdb_results.jsonl"))
	require.NoError(t, err)
	require.Len(t, res.Runs, 3)
	assert.Equal(t, result.StatusTimeout, res.Runs[0].Status)
	assert.Equal(t, "q2", res.Runs[1].Query)
	assert.Equal(t, "setup failed: server gone", res.Runs[1].Message())
	assert.Equal(t, "q3", res.Runs[2].Query)
}

func TestSessionWarmupNotRecorded(t *testing.T) {
	dir := t.TempDir()
	duck := newStub("duckdb", nil)
	s := newTestSession(duck)
	plan := basePlan(dir, "duckdb")
	plan.Warmup = 1

	_, err := s.Run(context.Background(), plan)
	require.NoError(t, err)
	_, _, executed := duck.calls()
	assert.Len(t, executed, 6)

	res, err := result.ReadFile(filepath.Join(dir, "duckdb_results.jsonl"))
	require.NoError(t, err)
	assert.Len(t, res.Runs, 4)
}

func TestSessionUnknownEngine(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s := newTestSession(newStub("duckdb", nil))

	_, err := s.Run(context.Background(), basePlan(dir, "duckdb", "oracle"))
	assert.ErrorIs(t, err, ErrUnknownEngine)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "nothing may be written before validation passes")
}

func TestSessionInvalidPlan(t *testing.T) {
	s := newTestSession(newStub("duckdb", nil))
	dir := t.TempDir()

	tests := []struct {
		name   string
		mutate func(p *Plan)
	}{
		{"zero runs", func(p *Plan) { p.Runs = 0 }},
		{"zero timeout", func(p *Plan) { p.Timeout = 0 }},
		{"no queries", func(p *Plan) { p.Queries = nil }},
		{"no engines", func(p *Plan) { p.Engines = nil }},
		{"duplicate query", func(p *Plan) { p.Queries = queries("q1", "q1") }},
		{"negative warmup", func(p *Plan) { p.Warmup = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := basePlan(dir, "duckdb")
			tt.mutate(&plan)
			_, err := s.Run(context.Background(), plan)
			assert.ErrorIs(t, err, ErrInvalidPlan)
		})
	}
}

func TestSessionInterrupted(t *testing.T) {
	dir := t.TempDir()
	duck := newStub("duckdb", map[string]execFunc{"q2": hang})
	sedona := newStub("sedonadb", nil)
	s := newTestSession(duck, sedona)
	plan := basePlan(dir, "duckdb", "sedonadb")
	plan.Timeout = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	summary, err := s.Run(ctx, plan)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, summary.Engines[0].Aborted)

	res, err := result.ReadFile(filepath.Join(dir, "duckdb_results.jsonl"))
	require.NoError(t, err)
	require.NotNil(t, res.Footer)
	assert.True(t, res.Footer.Aborted)
	require.Len(t, res.Runs, 3)
	assert.Contains(t, res.Runs[2].Message(), "interrupted")

	_, err = os.Stat(filepath.Join(dir, "sedonadb_results.jsonl"))
	assert.True(t, os.IsNotExist(err), "engines after the interrupt must not start")
}

func TestSessionParallel(t *testing.T) {
	dir := t.TempDir()
	a := newStub("a", map[string]execFunc{"q1": succeedIn(10*time.Millisecond, 1)})
	b := newStub("b", map[string]execFunc{"q1": succeedIn(10*time.Millisecond, 2)})
	c := newStub("c", nil)
	s := newTestSession(a, b, c)
	plan := basePlan(dir, "a", "b", "c")
	plan.Parallel = 2

	summary, err := s.Run(context.Background(), plan)
	require.NoError(t, err)
	for i, name := range []string{"a", "b", "c"} {
		assert.Equal(t, name, summary.Engines[i].Engine)
		assert.Equal(t, 4, summary.Engines[i].Counts.Success)
	}
	loaded, err := result.LoadDir(dir, nil)
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
}

func TestSessionDialects(t *testing.T) {
	dir := t.TempDir()
	var seen []string
	duck := newStub("duckdb", map[string]execFunc{"q1": func(_ context.Context, req engine.Request) (int64, error) {
		seen = append(seen, req.Text)
		return 1, nil
	}})
	s := newTestSession(duck)
	plan := basePlan(dir, "duckdb")
	plan.Queries = []config.Query{{ID: "q1", SQL: "generic", Dialects: map[string]string{"duckdb": "duck flavoured"}}}
	plan.Runs = 1

	_, err := s.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"duck flavoured"}, seen)
}
