// Package engine connects the benchmark to the systems under test.
//
// An Adapter hides how an engine is reached: a subprocess per query, a
// container per query, or a database/sql connection. The benchmark core
// only sees the Adapter contract.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/signalnine/spatialbench/internal/config"
)

// UnknownVersion is reported when an engine's version cannot be discovered.
const UnknownVersion = "unknown"

type Adapter interface {
	Name() string
	Kind() string
	// Version reports the engine version. Callers fall back to
	// UnknownVersion on error.
	Version(ctx context.Context) (string, error)
	// Connect prepares the engine for execution. Calling it on a connected
	// adapter is a no-op.
	Connect(ctx context.Context) error
	// Execute runs one query to completion, materializing every result
	// row, and returns the row count. It must stop promptly and release
	// engine resources when ctx is cancelled.
	Execute(ctx context.Context, req Request) (int64, error)
	// Disconnect releases the engine. Calling it twice is a no-op.
	Disconnect() error
}

// Request is one query execution.
type Request struct {
	QueryID     string
	Text        string
	ScaleFactor float64
	DataDir     string
	// Tables maps table names to the paths engines read them from.
	Tables map[string]string
}

// Options carries the session-wide context adapters are built with.
type Options struct {
	DataDir     string
	Tables      map[string]string
	ScaleFactor float64
	Logger      *zap.SugaredLogger
}

// SetupError reports that an engine could not be made ready to run
// queries.
type SetupError struct {
	Engine string
	Err    error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setting up %s: %v", e.Engine, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

func setupErr(engine string, err error) error {
	return &SetupError{Engine: engine, Err: err}
}

func staticVersion(cfg config.Engine) (string, bool) {
	if cfg.Version != "" {
		return cfg.Version, true
	}
	return "", false
}

// baseRequest is the request used for templating outside of a query, such
// as setup statements and version probes.
func (o Options) baseRequest() Request {
	return Request{
		ScaleFactor: o.ScaleFactor,
		DataDir:     o.DataDir,
		Tables:      o.Tables,
	}
}
