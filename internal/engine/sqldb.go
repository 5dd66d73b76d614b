package engine

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/signalnine/spatialbench/internal/config"
	"github.com/signalnine/spatialbench/internal/logging"
)

// SQL executes queries over a database/sql connection. Registered drivers
// are "sqlite", "pgx" and "mysql".
type SQL struct {
	cfg    config.Engine
	opts   Options
	logger *zap.SugaredLogger
	db     *sql.DB
}

func NewSQL(cfg config.Engine, opts Options) (Adapter, error) {
	if !slices.Contains(sql.Drivers(), cfg.Driver) {
		return nil, fmt.Errorf("engine %s: unknown sql driver %q (available: %v)", cfg.Name, cfg.Driver, sql.Drivers())
	}
	return &SQL{cfg: cfg, opts: opts, logger: logging.OrNop(opts.Logger)}, nil
}

func (s *SQL) Name() string { return s.cfg.Name }
func (s *SQL) Kind() string { return config.KindSQL }

// Connect opens a single-connection pool so session state created by the
// setup statements (views, loaded extensions) is visible to every query.
func (s *SQL) Connect(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	db, err := sql.Open(s.cfg.Driver, s.cfg.DSN)
	if err != nil {
		return setupErr(s.cfg.Name, fmt.Errorf("opening %s: %w", s.cfg.Driver, err))
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return setupErr(s.cfg.Name, fmt.Errorf("connecting: %w", err))
	}

	req := s.opts.baseRequest()
	for i, stmt := range s.cfg.Setup {
		text, err := hostRenderer.render(stmt, req)
		if err != nil {
			db.Close()
			return setupErr(s.cfg.Name, err)
		}
		if _, err := db.ExecContext(ctx, text); err != nil {
			db.Close()
			return setupErr(s.cfg.Name, fmt.Errorf("setup statement %d: %w", i+1, err))
		}
	}
	s.db = db
	s.logger.Debugw("connected", "driver", s.cfg.Driver, "setup_statements", len(s.cfg.Setup))
	return nil
}

func (s *SQL) Disconnect() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQL) Version(ctx context.Context) (string, error) {
	if v, ok := staticVersion(s.cfg); ok {
		return v, nil
	}
	if s.cfg.VersionQuery == "" {
		return UnknownVersion, fmt.Errorf("no version or version_query configured")
	}
	if s.db == nil {
		return UnknownVersion, fmt.Errorf("engine %s not connected", s.cfg.Name)
	}
	var v string
	if err := s.db.QueryRowContext(ctx, s.cfg.VersionQuery).Scan(&v); err != nil {
		return UnknownVersion, fmt.Errorf("querying version: %w", err)
	}
	return v, nil
}

// Execute scans every row of the result set so lazy engines do the full
// work, and returns the number of rows.
func (s *SQL) Execute(ctx context.Context, req Request) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("engine %s not connected", s.cfg.Name)
	}
	text, err := hostRenderer.render(req.Text, req)
	if err != nil {
		return 0, err
	}
	rows, err := s.db.QueryContext(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	dest := make([]any, len(cols))
	for i := range dest {
		dest[i] = new(any)
	}

	var n int64
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return 0, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, err
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	return n, nil
}
