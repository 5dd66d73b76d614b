package result

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileSuffix names per-engine result files: <engine>_results.jsonl.
const FileSuffix = "_results.jsonl"

const (
	kindHeader = "header"
	kindRun    = "run"
	kindFooter = "footer"
)

var ErrNoResults = errors.New("no readable result files")

func FileName(engine string) string {
	return engine + FileSuffix
}

// CreateRunDir makes a timestamped directory under baseDir/runs and points
// baseDir/latest at it.
func CreateRunDir(baseDir string, now time.Time) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := now.UTC().Format("2006-01-02T15-04-05")
	runDir, err := filepath.Abs(filepath.Join(runsDir, stamp))
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// Writer appends records to one engine result file. Every record is
// synced to disk before Append returns.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	closed bool
}

// NewWriter creates (or truncates) the result file for h.Engine in dir and
// writes the header.
func NewWriter(dir string, h Header) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating results dir: %w", err)
	}
	path := filepath.Join(dir, FileName(h.Engine))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating result file: %w", err)
	}
	w := &Writer{f: f, path: path}
	if err := w.write(struct {
		Kind string `json:"kind"`
		Header
	}{kindHeader, h}); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) Path() string { return w.path }

func (w *Writer) Append(r RunResult) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return w.write(struct {
		Kind string `json:"kind"`
		RunResult
	}{kindRun, r})
}

// Close writes the footer and closes the file. Closing twice is a no-op.
func (w *Writer) Close(f Footer) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	werr := w.write(struct {
		Kind string `json:"kind"`
		Footer
	}{kindFooter, f})

	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if err := w.f.Close(); err != nil && werr == nil {
		werr = fmt.Errorf("closing result file: %w", err)
	}
	return werr
}

func (w *Writer) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("result file %s already closed", w.path)
	}
	if _, err := w.f.Write(data); err != nil {
		return fmt.Errorf("writing result file: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("syncing result file: %w", err)
	}
	return nil
}

// EngineResults is the parsed content of one engine result file.
type EngineResults struct {
	Path   string
	Header Header
	Runs   []RunResult
	Footer *Footer
	// Truncated is set when the final line could not be parsed.
	Truncated bool
}

func (e *EngineResults) Engine() string { return e.Header.Engine }

// Complete reports whether the session finished without being aborted.
func (e *EngineResults) Complete() bool {
	return e.Footer != nil && !e.Footer.Aborted
}

func (e *EngineResults) Lookup(query string, run int) (RunResult, bool) {
	for _, r := range e.Runs {
		if r.Query == query && r.RunIndex == run {
			return r, true
		}
	}
	return RunResult{}, false
}

// ByQuery groups runs by query, each group ordered by run index.
func (e *EngineResults) ByQuery() map[string][]RunResult {
	out := make(map[string][]RunResult)
	for _, r := range e.Runs {
		out[r.Query] = append(out[r.Query], r)
	}
	for _, runs := range out {
		sort.SliceStable(runs, func(i, j int) bool { return runs[i].RunIndex < runs[j].RunIndex })
	}
	return out
}

func (e *EngineResults) Counts() Counts {
	var c Counts
	for _, r := range e.Runs {
		c.Add(r)
	}
	return c
}

// ReadFile parses an engine result file. A final line that fails to parse
// is treated as an interrupted write and dropped.
func ReadFile(path string) (*EngineResults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result file: %w", err)
	}

	var lines [][]byte
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}

	res := &EngineResults{Path: path}
	sawHeader := false
	for i, line := range lines {
		last := i == len(lines)-1
		if err := res.decode(line, &sawHeader); err != nil {
			if last && sawHeader {
				res.Truncated = true
				break
			}
			return nil, fmt.Errorf("%s line %d: %w", path, i+1, err)
		}
	}
	if !sawHeader {
		return nil, fmt.Errorf("%s: missing header", path)
	}
	if res.Header.Engine == "" {
		res.Header.Engine = strings.TrimSuffix(filepath.Base(path), FileSuffix)
	}
	return res, nil
}

func (e *EngineResults) decode(line []byte, sawHeader *bool) error {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return fmt.Errorf("parsing record: %w", err)
	}
	switch probe.Kind {
	case kindHeader:
		if *sawHeader {
			return fmt.Errorf("duplicate header")
		}
		if err := json.Unmarshal(line, &e.Header); err != nil {
			return fmt.Errorf("parsing header: %w", err)
		}
		*sawHeader = true
	case kindRun:
		if !*sawHeader {
			return fmt.Errorf("run record before header")
		}
		var r RunResult
		if err := json.Unmarshal(line, &r); err != nil {
			return fmt.Errorf("parsing run: %w", err)
		}
		if err := r.Validate(); err != nil {
			return err
		}
		e.Runs = append(e.Runs, r)
	case kindFooter:
		var f Footer
		if err := json.Unmarshal(line, &f); err != nil {
			return fmt.Errorf("parsing footer: %w", err)
		}
		e.Footer = &f
	default:
		return fmt.Errorf("unknown record kind %q", probe.Kind)
	}
	return nil
}

// LoadDir reads every result file in dir, keyed by engine. Files that
// cannot be read are skipped with a warning.
func LoadDir(dir string, logger *zap.SugaredLogger) (map[string]*EngineResults, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("reading results dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("results dir %s is not a directory", dir)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*"+FileSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	out := make(map[string]*EngineResults, len(paths))
	for _, p := range paths {
		res, err := ReadFile(p)
		if err != nil {
			if logger != nil {
				logger.Warnw("skipping unreadable result file", "path", p, "error", err)
			}
			continue
		}
		if res.Truncated && logger != nil {
			logger.Warnw("result file ends with a partial record", "path", p)
		}
		if prev, dup := out[res.Engine()]; dup && logger != nil {
			logger.Warnw("duplicate engine in results dir", "engine", res.Engine(), "kept", p, "ignored", prev.Path)
		}
		out[res.Engine()] = res
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoResults, dir)
	}
	return out, nil
}
