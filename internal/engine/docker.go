package engine

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/signalnine/spatialbench/internal/config"
	"github.com/signalnine/spatialbench/internal/logging"
	"github.com/signalnine/spatialbench/internal/docker"
)

const (
	containerDataDir = "/data"
	containerWorkDir = "/workspace"
)

// Docker runs one container per query. The data dir is mounted read-only
// at /data and table paths are rewritten to their container locations.
type Docker struct {
	cfg    config.Engine
	opts   Options
	logger *zap.SugaredLogger
	runner *docker.Runner

	tables map[string]string
	render renderer
}

func NewDocker(cfg config.Engine, opts Options) (Adapter, error) {
	if cfg.Image == "" || len(cfg.Command) == 0 {
		return nil, fmt.Errorf("engine %s: docker engines need image and command", cfg.Name)
	}
	d := &Docker{cfg: cfg, opts: opts, logger: logging.OrNop(opts.Logger)}
	d.tables, d.render = containerTables(opts.DataDir, opts.Tables)
	return d, nil
}

// containerTables maps host table paths below dataDir into /data.
func containerTables(dataDir string, tables map[string]string) (map[string]string, renderer) {
	out := make(map[string]string, len(tables))
	dirs := make(map[string]bool)
	for name, p := range tables {
		target := p
		if rel, err := filepath.Rel(dataDir, p); err == nil && !strings.HasPrefix(rel, "..") {
			target = path.Join(containerDataDir, filepath.ToSlash(rel))
		}
		if fi, err := os.Stat(p); err == nil && fi.IsDir() {
			dirs[target] = true
		}
		out[name] = target
	}
	return out, renderer{pattern: func(p string) string {
		if dirs[p] {
			return path.Join(p, "*.parquet")
		}
		return p
	}}
}

func (d *Docker) Name() string { return d.cfg.Name }
func (d *Docker) Kind() string { return config.KindDocker }

func (d *Docker) Connect(ctx context.Context) error {
	if d.runner != nil {
		return nil
	}
	r, err := docker.NewRunner()
	if err != nil {
		return setupErr(d.cfg.Name, err)
	}
	d.runner = r
	return nil
}

func (d *Docker) Disconnect() error {
	if d.runner == nil {
		return nil
	}
	err := d.runner.Close()
	d.runner = nil
	return err
}

func (d *Docker) Version(ctx context.Context) (string, error) {
	if v, ok := staticVersion(d.cfg); ok {
		return v, nil
	}
	if len(d.cfg.VersionCommand) == 0 {
		return d.cfg.Image, nil
	}
	if d.runner == nil {
		return UnknownVersion, fmt.Errorf("engine %s not connected", d.cfg.Name)
	}
	var out tailBuffer
	opts, err := d.runOpts(d.cfg.VersionCommand, d.containerRequest(d.opts.baseRequest()))
	if err != nil {
		return UnknownVersion, err
	}
	opts.Stdout = &out
	opts.Timeout = versionTimeout
	res, err := d.runner.RunContainer(ctx, opts)
	if err != nil {
		return UnknownVersion, err
	}
	if res.TimedOut || res.ExitCode != 0 {
		return UnknownVersion, fmt.Errorf("version command exited with code %d", res.ExitCode)
	}
	return firstLine(out.String())
}

func (d *Docker) Execute(ctx context.Context, req Request) (int64, error) {
	if d.runner == nil {
		return 0, fmt.Errorf("engine %s not connected", d.cfg.Name)
	}
	opts, err := d.runOpts(d.cfg.Command, d.containerRequest(req))
	if err != nil {
		return 0, err
	}
	var stdout lineCounter
	var stderr tailBuffer
	opts.Stdout = &stdout
	opts.Stderr = &stderr
	opts.Labels = map[string]string{"spatialbench.query": req.QueryID}

	d.logger.Debugw("starting container", "query", req.QueryID, "image", opts.Image)
	res, err := d.runner.RunContainer(ctx, opts)
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if err != nil {
		return 0, err
	}
	if res.ExitCode != 0 {
		msg := stderr.String()
		if msg == "" {
			msg = "no stderr output"
		}
		return 0, fmt.Errorf("container exited with code %d: %s", res.ExitCode, msg)
	}
	return rows(stdout.Count(), d.cfg.HeaderLines), nil
}

func (d *Docker) containerRequest(req Request) Request {
	req.DataDir = containerDataDir
	req.Tables = d.tables
	return req
}

func (d *Docker) runOpts(command []string, req Request) (*docker.RunOpts, error) {
	argv, err := d.render.renderAll(command, req)
	if err != nil {
		return nil, err
	}
	env, err := d.render.renderEnv(d.cfg.Env, req)
	if err != nil {
		return nil, err
	}
	opts := &docker.RunOpts{
		Image:       d.cfg.Image,
		Command:     argv,
		Env:         env,
		CPULimit:    d.cfg.CPULimit,
		MemoryLimit: d.cfg.MemoryLimit,
	}
	if d.opts.DataDir != "" {
		abs, err := filepath.Abs(d.opts.DataDir)
		if err != nil {
			return nil, fmt.Errorf("resolving data dir: %w", err)
		}
		opts.Mounts = append(opts.Mounts, docker.Mount{Source: abs, Target: containerDataDir, ReadOnly: true})
	}
	if d.cfg.WorkDir != "" {
		abs, err := filepath.Abs(d.cfg.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("resolving work dir: %w", err)
		}
		opts.Mounts = append(opts.Mounts, docker.Mount{Source: abs, Target: containerWorkDir, ReadOnly: true})
		opts.WorkDir = containerWorkDir
	}
	return opts, nil
}
