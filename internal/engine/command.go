package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/signalnine/spatialbench/internal/config"
	"github.com/signalnine/spatialbench/internal/logging"
)

const (
	versionTimeout = 30 * time.Second
	// waitDelay bounds how long Execute waits for output pipes after the
	// process group has been killed.
	waitDelay = 2 * time.Second
)

// Command runs one subprocess per query. The query text is rendered into
// the configured argv and also written to the process's stdin; every
// non-blank stdout line after header_lines counts as a row.
type Command struct {
	cfg       config.Engine
	opts      Options
	logger    *zap.SugaredLogger
	connected bool
}

func NewCommand(cfg config.Engine, opts Options) (Adapter, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("engine %s: empty command", cfg.Name)
	}
	return &Command{cfg: cfg, opts: opts, logger: logging.OrNop(opts.Logger)}, nil
}

func (c *Command) Name() string { return c.cfg.Name }
func (c *Command) Kind() string { return config.KindCommand }

func (c *Command) Connect(ctx context.Context) error {
	if c.connected {
		return nil
	}
	if bin := c.cfg.Command[0]; !strings.Contains(bin, "{{") {
		if _, err := exec.LookPath(bin); err != nil {
			return setupErr(c.cfg.Name, err)
		}
	}
	if c.cfg.WorkDir != "" {
		if _, err := os.Stat(c.cfg.WorkDir); err != nil {
			return setupErr(c.cfg.Name, fmt.Errorf("work dir: %w", err))
		}
	}
	c.connected = true
	return nil
}

func (c *Command) Disconnect() error {
	c.connected = false
	return nil
}

func (c *Command) Version(ctx context.Context) (string, error) {
	if v, ok := staticVersion(c.cfg); ok {
		return v, nil
	}
	if len(c.cfg.VersionCommand) == 0 {
		return UnknownVersion, fmt.Errorf("no version or version_command configured")
	}
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	req := c.opts.baseRequest()
	argv, err := hostRenderer.renderAll(c.cfg.VersionCommand, req)
	if err != nil {
		return UnknownVersion, err
	}
	env, err := hostRenderer.renderEnv(c.cfg.Env, req)
	if err != nil {
		return UnknownVersion, err
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = c.environ(env)
	cmd.Dir = c.cfg.WorkDir
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	out, err := cmd.CombinedOutput()
	if err != nil {
		return UnknownVersion, fmt.Errorf("running version command: %w", err)
	}
	return firstLine(string(out))
}

func (c *Command) Execute(ctx context.Context, req Request) (int64, error) {
	argv, err := hostRenderer.renderAll(c.cfg.Command, req)
	if err != nil {
		return 0, err
	}
	env, err := hostRenderer.renderEnv(c.cfg.Env, req)
	if err != nil {
		return 0, err
	}

	var stdout lineCounter
	var stderr tailBuffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = c.cfg.WorkDir
	cmd.Env = c.environ(env)
	cmd.Stdin = strings.NewReader(req.Text)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	c.logger.Debugw("starting command", "query", req.QueryID, "argv", argv)
	err = cmd.Run()
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := stderr.String()
			if msg == "" {
				msg = "no stderr output"
			}
			return 0, fmt.Errorf("%s exited with code %d: %s", argv[0], exitErr.ExitCode(), msg)
		}
		return 0, fmt.Errorf("running %s: %w", argv[0], err)
	}
	return rows(stdout.Count(), c.cfg.HeaderLines), nil
}

func (c *Command) environ(env map[string]string) []string {
	out := os.Environ()
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func firstLine(s string) (string, error) {
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line, nil
		}
	}
	return UnknownVersion, fmt.Errorf("version output was empty")
}
