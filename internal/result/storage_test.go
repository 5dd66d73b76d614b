package result_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/spatialbench/internal/result"
)

func testHeader(engine string) result.Header {
	return result.Header{
		SessionID:      "session-1",
		Engine:         engine,
		Version:        "1.0",
		Adapter:        "command",
		ScaleFactor:    1,
		TimeoutSeconds: 10,
		Runs:           2,
		Queries:        []string{"q1", "q2"},
		StartedAt:      time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func writeFile(t *testing.T, dir, engine string, runs []result.RunResult, footer *result.Footer) string {
	t.Helper()
	w, err := result.NewWriter(dir, testHeader(engine))
	require.NoError(t, err)
	for _, r := range runs {
		require.NoError(t, w.Append(r))
	}
	if footer != nil {
		require.NoError(t, w.Close(*footer))
	}
	return w.Path()
}

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	elapsed := 0.5
	runs := []result.RunResult{
		result.Success("duckdb", "q1", 1, 1.25, 42),
		result.Success("duckdb", "q1", 2, 1.5, 42),
		result.Timeout("duckdb", "q2", 1, "query q2 timed out after 10s (execution killed)"),
		result.Failure("duckdb", "q2", 2, "boom", &elapsed),
	}
	path := writeFile(t, dir, "duckdb", runs, &result.Footer{ElapsedSeconds: 12})
	assert.Equal(t, filepath.Join(dir, "duckdb_results.jsonl"), path)

	got, err := result.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "duckdb", got.Engine())
	assert.Equal(t, []string{"q1", "q2"}, got.Header.Queries)
	assert.Equal(t, runs, got.Runs)
	require.NotNil(t, got.Footer)
	assert.True(t, got.Complete())
	assert.False(t, got.Truncated)

	r, ok := got.Lookup("q2", 2)
	require.True(t, ok)
	assert.Equal(t, "boom", r.Message())
	_, ok = got.Lookup("q3", 1)
	assert.False(t, ok)

	byQuery := got.ByQuery()
	assert.Len(t, byQuery["q1"], 2)
	assert.Equal(t, result.Counts{Success: 2, Timeout: 1, Error: 1}, got.Counts())
}

func TestWriterRejectsInvalidRun(t *testing.T) {
	w, err := result.NewWriter(t.TempDir(), testHeader("x"))
	require.NoError(t, err)
	defer w.Close(result.Footer{})

	bad := result.Success("x", "q1", 1, 1, 1)
	bad.Status = result.StatusTimeout
	assert.Error(t, w.Append(bad))
}

func TestWriterCloseTwice(t *testing.T) {
	w, err := result.NewWriter(t.TempDir(), testHeader("x"))
	require.NoError(t, err)
	require.NoError(t, w.Close(result.Footer{}))
	assert.NoError(t, w.Close(result.Footer{}))
	assert.Error(t, w.Append(result.Success("x", "q1", 1, 1, 1)))
}

func TestReadFileTruncatedAndNoFooter(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sedona", []result.RunResult{
		result.Success("sedona", "q1", 1, 2, 7),
	}, nil)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"kind":"run","engine":"sedona","query":"q1","run_ind`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := result.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, got.Truncated)
	assert.Nil(t, got.Footer)
	assert.False(t, got.Complete())
	assert.Len(t, got.Runs, 1)
}

func TestReadFileCorruptMiddle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x_results.jsonl")
	data := `{"kind":"header","engine":"x"}
not json
{"kind":"footer","aborted":false}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	_, err := result.ReadFile(path)
	assert.Error(t, err)
}

func TestReadFileMissingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x_results.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"kind":"footer"}`+"\n"), 0o644))
	_, err := result.ReadFile(path)
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "duckdb", []result.RunResult{result.Success("duckdb", "q1", 1, 1, 1)}, &result.Footer{})
	writeFile(t, dir, "postgis", nil, &result.Footer{Aborted: true})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken_results.jsonl"), []byte("garbage\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))

	got, err := result.LoadDir(dir, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "duckdb")
	assert.Contains(t, got, "postgis")
	assert.False(t, got["postgis"].Complete())
}

func TestLoadDirErrors(t *testing.T) {
	_, err := result.LoadDir(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)

	_, err = result.LoadDir(t.TempDir(), nil)
	assert.ErrorIs(t, err, result.ErrNoResults)
}

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := result.CreateRunDir(base, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01T12-00-00", filepath.Base(runDir))

	resolved, err := filepath.EvalSymlinks(filepath.Join(base, "latest"))
	require.NoError(t, err)
	expected, err := filepath.EvalSymlinks(runDir)
	require.NoError(t, err)
	assert.Equal(t, expected, resolved)
}
