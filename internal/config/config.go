package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Adapter kinds understood by the engine registry.
const (
	KindCommand = "command"
	KindDocker  = "docker"
	KindSQL     = "sql"
)

const (
	DefaultTimeoutSeconds = 10
	DefaultRuns           = 3
	DefaultScaleFactor    = 1.0
	DefaultResultsDir     = "results"
)

type Config struct {
	Engines   []Engine  `yaml:"engines"`
	Queries   []Query   `yaml:"queries"`
	Benchmark Benchmark `yaml:"benchmark"`
	Results   Results   `yaml:"results"`
	Secrets   Secrets   `yaml:"secrets"`
}

// Engine describes one system under test and how to reach it.
// Which fields apply depends on Kind.
type Engine struct {
	Name    string            `yaml:"name"`
	Kind    string            `yaml:"kind"`
	Version string            `yaml:"version"`
	Env     map[string]string `yaml:"env"`

	// command and docker
	Command        []string `yaml:"command"`
	VersionCommand []string `yaml:"version_command"`
	HeaderLines    int      `yaml:"header_lines"`
	WorkDir        string   `yaml:"work_dir"`

	// docker
	Image       string  `yaml:"image"`
	CPULimit    float64 `yaml:"cpu_limit"`
	MemoryLimit int64   `yaml:"memory_limit"`

	// sql
	Driver       string   `yaml:"driver"`
	DSN          string   `yaml:"dsn"`
	Setup        []string `yaml:"setup"`
	VersionQuery string   `yaml:"version_query"`
}

type Query struct {
	ID          string            `yaml:"id"`
	Description string            `yaml:"description"`
	SQL         string            `yaml:"sql"`
	Dialects    map[string]string `yaml:"dialects"`
}

// TextFor returns the query text an engine should run: its dialect
// override when present, otherwise the shared SQL.
func (q Query) TextFor(engine string) string {
	if text, ok := q.Dialects[engine]; ok && strings.TrimSpace(text) != "" {
		return text
	}
	return q.SQL
}

type Benchmark struct {
	DataDir        string  `yaml:"data_dir"`
	QueriesDir     string  `yaml:"queries_dir"`
	ScaleFactor    float64 `yaml:"scale_factor"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Runs           int     `yaml:"runs"`
	Warmup         int     `yaml:"warmup"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	applyDefaults(&cfg)

	baseDir := filepath.Dir(path)
	if cfg.Benchmark.QueriesDir != "" {
		dir := resolve(baseDir, cfg.Benchmark.QueriesDir)
		queries, err := LoadQueriesDir(dir, cfg.Queries)
		if err != nil {
			return nil, fmt.Errorf("loading queries for %s: %w", path, err)
		}
		cfg.Queries = queries
	}
	if cfg.Secrets.EnvFile != "" {
		cfg.Secrets.EnvFile = resolve(baseDir, cfg.Secrets.EnvFile)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Benchmark.TimeoutSeconds == 0 {
		cfg.Benchmark.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.Benchmark.Runs == 0 {
		cfg.Benchmark.Runs = DefaultRuns
	}
	if cfg.Benchmark.ScaleFactor == 0 {
		cfg.Benchmark.ScaleFactor = DefaultScaleFactor
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = DefaultResultsDir
	}
	for i := range cfg.Engines {
		e := &cfg.Engines[i]
		e.Name = strings.ToLower(strings.TrimSpace(e.Name))
		if e.Kind == "" {
			e.Kind = KindCommand
		}
	}
	for i := range cfg.Queries {
		cfg.Queries[i].ID = strings.ToLower(strings.TrimSpace(cfg.Queries[i].ID))
	}
}

func validate(cfg *Config) error {
	if len(cfg.Engines) == 0 {
		return fmt.Errorf("no engines defined")
	}
	seen := make(map[string]bool, len(cfg.Engines))
	for i, e := range cfg.Engines {
		if e.Name == "" {
			return fmt.Errorf("engine %d: name is required", i)
		}
		if strings.ContainsAny(e.Name, `/\ `) {
			return fmt.Errorf("engine %q: name must not contain path separators or spaces", e.Name)
		}
		if seen[e.Name] {
			return fmt.Errorf("engine %q: defined more than once", e.Name)
		}
		seen[e.Name] = true
		if err := validateEngine(&e); err != nil {
			return err
		}
	}

	if len(cfg.Queries) == 0 {
		return fmt.Errorf("no queries defined")
	}
	ids := make(map[string]bool, len(cfg.Queries))
	for i, q := range cfg.Queries {
		if q.ID == "" {
			return fmt.Errorf("query %d: id is required", i)
		}
		if ids[q.ID] {
			return fmt.Errorf("query %q: defined more than once", q.ID)
		}
		ids[q.ID] = true
	}

	if cfg.Benchmark.TimeoutSeconds < 1 {
		return fmt.Errorf("timeout_seconds must be at least 1")
	}
	if cfg.Benchmark.Runs < 1 {
		return fmt.Errorf("runs must be at least 1")
	}
	if cfg.Benchmark.ScaleFactor <= 0 {
		return fmt.Errorf("scale_factor must be positive")
	}
	if cfg.Benchmark.Warmup < 0 {
		return fmt.Errorf("warmup must not be negative")
	}
	return nil
}

func validateEngine(e *Engine) error {
	switch e.Kind {
	case KindCommand:
		if len(e.Command) == 0 {
			return fmt.Errorf("engine %q: command is required for kind %q", e.Name, e.Kind)
		}
	case KindDocker:
		if e.Image == "" {
			return fmt.Errorf("engine %q: image is required for kind %q", e.Name, e.Kind)
		}
		if len(e.Command) == 0 {
			return fmt.Errorf("engine %q: command is required for kind %q", e.Name, e.Kind)
		}
	case KindSQL:
		if e.Driver == "" {
			return fmt.Errorf("engine %q: driver is required for kind %q", e.Name, e.Kind)
		}
		if e.DSN == "" {
			return fmt.Errorf("engine %q: dsn is required for kind %q", e.Name, e.Kind)
		}
	default:
		return fmt.Errorf("engine %q: unknown kind %q", e.Name, e.Kind)
	}
	if e.HeaderLines < 0 {
		return fmt.Errorf("engine %q: header_lines must not be negative", e.Name)
	}
	return nil
}

// Engine returns the engine with the given name.
func (c *Config) Engine(name string) (*Engine, bool) {
	for i := range c.Engines {
		if c.Engines[i].Name == name {
			return &c.Engines[i], true
		}
	}
	return nil, false
}

func (c *Config) EngineNames() []string {
	names := make([]string, 0, len(c.Engines))
	for _, e := range c.Engines {
		names = append(names, e.Name)
	}
	return names
}

func resolve(baseDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
