package runner

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/signalnine/spatialbench/internal/engine"
	"github.com/signalnine/spatialbench/internal/logging"
	"github.com/signalnine/spatialbench/internal/result"
)

// DefaultReapGrace is how long a timed-out execution is given to unwind
// after it has been cancelled.
const DefaultReapGrace = 5 * time.Second

// minElapsed keeps successful timings strictly positive on coarse clocks.
const minElapsed = 1e-9

// QueryRunner executes single query runs under a hard timeout.
type QueryRunner struct {
	ReapGrace time.Duration
	Logger    *zap.SugaredLogger
}

func NewQueryRunner(logger *zap.SugaredLogger) *QueryRunner {
	return &QueryRunner{ReapGrace: DefaultReapGrace, Logger: logging.OrNop(logger)}
}

type outcome struct {
	rows    int64
	err     error
	elapsed float64
}

// Run executes req once on adapter and classifies the outcome. It never
// returns an error: failures are carried by the RunResult. Run returns
// within timeout plus the reap grace even if the adapter ignores
// cancellation.
func (q *QueryRunner) Run(ctx context.Context, adapter engine.Adapter, req engine.Request, run int, timeout time.Duration) result.RunResult {
	name := adapter.Name()
	if err := ctx.Err(); err != nil {
		return result.Failure(name, req.QueryID, run, "interrupted: "+err.Error(), nil)
	}

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		var o outcome
		defer func() {
			if p := recover(); p != nil {
				o.err = fmt.Errorf("panic: %v", p)
			}
			done <- o
		}()
		start := time.Now()
		defer func() { o.elapsed = time.Since(start).Seconds() }()
		o.rows, o.err = adapter.Execute(execCtx, req)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		if ctx.Err() != nil {
			return result.Failure(name, req.QueryID, run, "interrupted: "+ctx.Err().Error(), nil)
		}
		if o.err != nil {
			elapsed := o.elapsed
			return result.Failure(name, req.QueryID, run, o.err.Error(), &elapsed)
		}
		return result.Success(name, req.QueryID, run, max(o.elapsed, minElapsed), o.rows)
	case <-timer.C:
		cancel()
		q.reap(done, name, req.QueryID)
		msg := fmt.Sprintf("query %s timed out after %ss (execution killed)", req.QueryID, formatSeconds(timeout))
		return result.Timeout(name, req.QueryID, run, msg)
	case <-ctx.Done():
		cancel()
		q.reap(done, name, req.QueryID)
		return result.Failure(name, req.QueryID, run, "interrupted: "+ctx.Err().Error(), nil)
	}
}

func (q *QueryRunner) reap(done <-chan outcome, engineName, queryID string) {
	grace := q.ReapGrace
	if grace <= 0 {
		grace = DefaultReapGrace
	}
	select {
	case <-done:
	case <-time.After(grace):
		logging.OrNop(q.Logger).Warnw("execution still running after cancellation, abandoning it",
			"engine", engineName, "query", queryID, "grace", grace)
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
