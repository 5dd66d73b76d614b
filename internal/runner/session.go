package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signalnine/spatialbench/internal/config"
	"github.com/signalnine/spatialbench/internal/engine"
	"github.com/signalnine/spatialbench/internal/logging"
	"github.com/signalnine/spatialbench/internal/result"
	"github.com/signalnine/spatialbench/internal/sysinfo"
)

var (
	ErrUnknownEngine = errors.New("unknown engine")
	ErrInvalidPlan   = errors.New("invalid plan")
)

// Plan is one benchmark session: every engine runs every query Runs times.
type Plan struct {
	Engines     []string
	Queries     []config.Query
	ScaleFactor float64
	Timeout     time.Duration
	Runs        int
	Warmup      int
	OutputDir   string
	DataDir     string
	Tables      map[string]string
	// Parallel is the number of engines benchmarked at once.
	Parallel int
}

// EngineSummary is the console-level outcome for one engine.
type EngineSummary struct {
	Engine      string
	Version     string
	Path        string
	Counts      result.Counts
	SetupFailed bool
	Aborted     bool
	Elapsed     time.Duration
}

type Summary struct {
	SessionID string
	Engines   []EngineSummary
}

// Session drives QueryRunner over a plan and persists one result file per
// engine.
type Session struct {
	Catalog  []config.Engine
	Registry *engine.Registry
	Runner   *QueryRunner
	Logger   *zap.SugaredLogger
	// Progress receives one human-readable line per run. Nil discards.
	Progress io.Writer
	Now      func() time.Time
	Host     *sysinfo.Info
}

func NewSession(catalog []config.Engine, logger *zap.SugaredLogger) *Session {
	logger = logging.OrNop(logger)
	return &Session{
		Catalog:  catalog,
		Registry: engine.DefaultRegistry(),
		Runner:   NewQueryRunner(logger),
		Logger:   logger,
		Now:      time.Now,
	}
}

// Validate checks the plan and resolves its engines against the catalog.
func (s *Session) Validate(plan Plan) ([]config.Engine, error) {
	if len(plan.Engines) == 0 {
		return nil, fmt.Errorf("%w: no engines selected", ErrInvalidPlan)
	}
	if len(plan.Queries) == 0 {
		return nil, fmt.Errorf("%w: no queries selected", ErrInvalidPlan)
	}
	if plan.Runs < 1 {
		return nil, fmt.Errorf("%w: runs must be at least 1, got %d", ErrInvalidPlan, plan.Runs)
	}
	if plan.Timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidPlan, plan.Timeout)
	}
	if plan.Warmup < 0 {
		return nil, fmt.Errorf("%w: warmup must not be negative", ErrInvalidPlan)
	}
	if plan.OutputDir == "" {
		return nil, fmt.Errorf("%w: output dir is required", ErrInvalidPlan)
	}

	byName := make(map[string]config.Engine, len(s.Catalog))
	for _, e := range s.Catalog {
		byName[e.Name] = e
	}
	kinds := make(map[string]bool)
	for _, k := range s.Registry.Kinds() {
		kinds[k] = true
	}

	seen := make(map[string]bool, len(plan.Engines))
	engines := make([]config.Engine, 0, len(plan.Engines))
	for _, name := range plan.Engines {
		e, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
		}
		if !kinds[e.Kind] {
			return nil, fmt.Errorf("%w: %q has unsupported kind %q", ErrUnknownEngine, name, e.Kind)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: engine %q selected twice", ErrInvalidPlan, name)
		}
		seen[name] = true
		engines = append(engines, e)
	}

	ids := make(map[string]bool, len(plan.Queries))
	for _, q := range plan.Queries {
		if q.ID == "" {
			return nil, fmt.Errorf("%w: query without id", ErrInvalidPlan)
		}
		if ids[q.ID] {
			return nil, fmt.Errorf("%w: query %q selected twice", ErrInvalidPlan, q.ID)
		}
		ids[q.ID] = true
	}
	return engines, nil
}

// Run executes the plan. It returns ctx.Err() when the session was
// interrupted; every result file is finalized either way.
func (s *Session) Run(ctx context.Context, plan Plan) (*Summary, error) {
	engines, err := s.Validate(plan)
	if err != nil {
		return nil, err
	}

	opts := engine.Options{
		DataDir:     plan.DataDir,
		Tables:      plan.Tables,
		ScaleFactor: plan.ScaleFactor,
		Logger:      s.logger(),
	}
	adapters := make([]engine.Adapter, len(engines))
	for i, e := range engines {
		a, err := s.Registry.New(e, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
		}
		adapters[i] = a
	}

	if s.Host == nil {
		host := sysinfo.Collect(ctx)
		s.Host = &host
	}
	sessionID := uuid.NewString()
	s.logger().Infow("starting session", "session", sessionID, "engines", plan.Engines,
		"queries", len(plan.Queries), "runs", plan.Runs, "timeout", plan.Timeout)

	summary := &Summary{SessionID: sessionID, Engines: make([]EngineSummary, len(adapters))}
	progress := &syncWriter{w: s.Progress}

	runOne := func(i int) error {
		es, err := s.runEngine(ctx, sessionID, plan, adapters[i], progress)
		summary.Engines[i] = es
		return err
	}

	var errs []error
	if plan.Parallel > 1 {
		jobs := make([]Job, len(adapters))
		for i := range adapters {
			jobs[i] = func() error { return runOne(i) }
		}
		errs = RunPool(ctx, plan.Parallel, jobs)
	} else {
		for i := range adapters {
			if err := runOne(i); err != nil {
				errs = append(errs, err)
				if ctx.Err() != nil {
					break
				}
			}
		}
	}

	if ctx.Err() != nil {
		for i := range summary.Engines {
			if summary.Engines[i].Engine == "" {
				summary.Engines[i] = EngineSummary{Engine: adapters[i].Name(), Aborted: true}
			}
		}
		return summary, ctx.Err()
	}
	if len(errs) > 0 {
		return summary, errors.Join(errs...)
	}
	return summary, nil
}

func (s *Session) runEngine(ctx context.Context, sessionID string, plan Plan, adapter engine.Adapter, progress io.Writer) (EngineSummary, error) {
	name := adapter.Name()
	logger := s.logger().With("engine", name)
	start := s.now()
	es := EngineSummary{Engine: name}

	if ctx.Err() != nil {
		es.Aborted = true
		return es, ctx.Err()
	}

	connectErr := adapter.Connect(ctx)
	defer adapter.Disconnect()

	version, err := adapter.Version(ctx)
	if err != nil || version == "" {
		logger.Debugw("version discovery failed", "error", err)
		version = engine.UnknownVersion
	}
	es.Version = version

	queryIDs := make([]string, len(plan.Queries))
	for i, q := range plan.Queries {
		queryIDs[i] = q.ID
	}
	w, err := result.NewWriter(plan.OutputDir, result.Header{
		SessionID:      sessionID,
		Engine:         name,
		Version:        version,
		Adapter:        adapter.Kind(),
		ScaleFactor:    plan.ScaleFactor,
		TimeoutSeconds: plan.Timeout.Seconds(),
		Runs:           plan.Runs,
		Queries:        queryIDs,
		StartedAt:      start.UTC(),
		Host:           *s.Host,
	})
	if err != nil {
		return es, fmt.Errorf("engine %s: %w", name, err)
	}
	es.Path = w.Path()

	record := func(r result.RunResult) error {
		es.Counts.Add(r)
		if err := w.Append(r); err != nil {
			return fmt.Errorf("engine %s: %w", name, err)
		}
		return nil
	}
	finish := func(runErr error) (EngineSummary, error) {
		es.Aborted = ctx.Err() != nil
		es.Elapsed = s.now().Sub(start)
		err := w.Close(result.Footer{
			FinishedAt:     s.now().UTC(),
			ElapsedSeconds: es.Elapsed.Seconds(),
			Aborted:        es.Aborted,
		})
		if runErr == nil && ctx.Err() != nil {
			runErr = ctx.Err()
		}
		return es, errors.Join(runErr, err)
	}

	setupFailed := func(from int, cause error) error {
		es.SetupFailed = true
		msg := "setup failed: " + setupCause(cause).Error()
		logger.Errorw("engine setup failed", "error", cause)
		fmt.Fprintf(progress, "  %s: %s\n", name, msg)
		for _, q := range plan.Queries[from:] {
			if err := record(result.Failure(name, q.ID, 1, msg, nil)); err != nil {
				return err
			}
		}
		return nil
	}

	if connectErr != nil {
		return finish(setupFailed(0, connectErr))
	}

	for qi, q := range plan.Queries {
		req := engine.Request{
			QueryID:     q.ID,
			Text:        q.TextFor(name),
			ScaleFactor: plan.ScaleFactor,
			DataDir:     plan.DataDir,
			Tables:      plan.Tables,
		}

		for i := 0; i < plan.Warmup && ctx.Err() == nil; i++ {
			r := s.Runner.Run(ctx, adapter, req, 1, plan.Timeout)
			logger.Debugw("warmup", "query", q.ID, "status", r.Status)
			if r.Status == result.StatusTimeout {
				if err := s.reset(ctx, adapter); err != nil {
					return finish(setupFailed(qi, err))
				}
				break
			}
		}

		for run := 1; run <= plan.Runs; run++ {
			if ctx.Err() != nil {
				return finish(nil)
			}
			fmt.Fprintf(progress, "Running %s × %s (run %d/%d)...\n", name, q.ID, run, plan.Runs)
			r := s.Runner.Run(ctx, adapter, req, run, plan.Timeout)
			if ctx.Err() != nil {
				// the run was cut short by the interrupt, not by the engine
				if err := record(r); err != nil {
					return finish(err)
				}
				return finish(nil)
			}
			if err := record(r); err != nil {
				return finish(err)
			}
			fmt.Fprintf(progress, "  %s\n", describe(r))

			if r.Status == result.StatusTimeout {
				if err := s.reset(ctx, adapter); err != nil {
					if ctx.Err() != nil {
						return finish(nil)
					}
					return finish(setupFailed(qi+1, err))
				}
			}
		}
	}
	return finish(nil)
}

// reset reconnects the adapter so work abandoned by a timed-out run does
// not bleed into the next one.
func (s *Session) reset(ctx context.Context, adapter engine.Adapter) error {
	if err := adapter.Disconnect(); err != nil {
		s.logger().Warnw("disconnect after timeout failed", "engine", adapter.Name(), "error", err)
	}
	return adapter.Connect(ctx)
}

func setupCause(err error) error {
	var setup *engine.SetupError
	if errors.As(err, &setup) && setup.Err != nil {
		return setup.Err
	}
	return err
}

func describe(r result.RunResult) string {
	switch r.Status {
	case result.StatusSuccess:
		return fmt.Sprintf("success (%.2fs, %d rows)", r.Elapsed(), r.Rows())
	case result.StatusTimeout:
		return "TIMEOUT: " + r.Message()
	default:
		return "ERROR: " + r.Message()
	}
}

func (s *Session) logger() *zap.SugaredLogger {
	return logging.OrNop(s.Logger)
}

func (s *Session) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// syncWriter serializes progress lines from concurrent engines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	if s.w == nil {
		return len(p), nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
