package result

import (
	"fmt"
	"time"

	"github.com/signalnine/spatialbench/internal/sysinfo"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// RunResult is the outcome of one execution of one query on one engine.
type RunResult struct {
	Engine         string   `json:"engine"`
	Query          string   `json:"query"`
	RunIndex       int      `json:"run_index"`
	Status         Status   `json:"status"`
	ElapsedSeconds *float64 `json:"elapsed_seconds"`
	RowCount       *int64   `json:"row_count"`
	ErrorMessage   *string  `json:"error_message"`
}

func Success(engine, query string, run int, elapsed float64, rows int64) RunResult {
	return RunResult{
		Engine:         engine,
		Query:          query,
		RunIndex:       run,
		Status:         StatusSuccess,
		ElapsedSeconds: &elapsed,
		RowCount:       &rows,
	}
}

func Timeout(engine, query string, run int, msg string) RunResult {
	return RunResult{
		Engine:       engine,
		Query:        query,
		RunIndex:     run,
		Status:       StatusTimeout,
		ErrorMessage: &msg,
	}
}

// Failure records an error. elapsed is nil when the failure happened
// before execution started.
func Failure(engine, query string, run int, msg string, elapsed *float64) RunResult {
	return RunResult{
		Engine:         engine,
		Query:          query,
		RunIndex:       run,
		Status:         StatusError,
		ElapsedSeconds: elapsed,
		ErrorMessage:   &msg,
	}
}

// Validate checks that the populated fields agree with Status.
func (r RunResult) Validate() error {
	if r.Engine == "" || r.Query == "" {
		return fmt.Errorf("run result missing engine or query")
	}
	if r.RunIndex < 1 {
		return fmt.Errorf("run result %s/%s: run_index %d < 1", r.Engine, r.Query, r.RunIndex)
	}
	switch r.Status {
	case StatusSuccess:
		if r.ElapsedSeconds == nil || r.RowCount == nil {
			return fmt.Errorf("run result %s/%s: success needs elapsed and row count", r.Engine, r.Query)
		}
		if r.ErrorMessage != nil {
			return fmt.Errorf("run result %s/%s: success must not carry an error", r.Engine, r.Query)
		}
	case StatusTimeout:
		if r.ElapsedSeconds != nil || r.RowCount != nil {
			return fmt.Errorf("run result %s/%s: timeout must not carry elapsed or rows", r.Engine, r.Query)
		}
		if r.ErrorMessage == nil {
			return fmt.Errorf("run result %s/%s: timeout needs a message", r.Engine, r.Query)
		}
	case StatusError:
		if r.RowCount != nil {
			return fmt.Errorf("run result %s/%s: error must not carry rows", r.Engine, r.Query)
		}
		if r.ErrorMessage == nil {
			return fmt.Errorf("run result %s/%s: error needs a message", r.Engine, r.Query)
		}
	default:
		return fmt.Errorf("run result %s/%s: unknown status %q", r.Engine, r.Query, r.Status)
	}
	return nil
}

func (r RunResult) Elapsed() float64 {
	if r.ElapsedSeconds == nil {
		return 0
	}
	return *r.ElapsedSeconds
}

func (r RunResult) Rows() int64 {
	if r.RowCount == nil {
		return 0
	}
	return *r.RowCount
}

func (r RunResult) Message() string {
	if r.ErrorMessage == nil {
		return ""
	}
	return *r.ErrorMessage
}

// Header opens an engine result file.
type Header struct {
	SessionID      string       `json:"session_id"`
	Engine         string       `json:"engine"`
	Version        string       `json:"version"`
	Adapter        string       `json:"adapter"`
	ScaleFactor    float64      `json:"scale_factor"`
	TimeoutSeconds float64      `json:"timeout_seconds"`
	Runs           int          `json:"runs"`
	Queries        []string     `json:"queries"`
	StartedAt      time.Time    `json:"started_at"`
	Host           sysinfo.Info `json:"host"`
}

// Footer closes an engine result file. A file without one belongs to a
// session that crashed.
type Footer struct {
	FinishedAt     time.Time `json:"finished_at"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Aborted        bool      `json:"aborted"`
}

// Counts tallies outcomes by status.
type Counts struct {
	Success int `json:"success"`
	Timeout int `json:"timeout"`
	Error   int `json:"error"`
}

func (c *Counts) Add(r RunResult) {
	switch r.Status {
	case StatusSuccess:
		c.Success++
	case StatusTimeout:
		c.Timeout++
	case StatusError:
		c.Error++
	}
}

func (c Counts) Total() int { return c.Success + c.Timeout + c.Error }
