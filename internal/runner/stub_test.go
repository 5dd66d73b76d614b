package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/signalnine/spatialbench/internal/config"
	"github.com/signalnine/spatialbench/internal/engine"
)

type execFunc func(ctx context.Context, req engine.Request) (int64, error)

func succeedIn(d time.Duration, rows int64) execFunc {
	return func(ctx context.Context, req engine.Request) (int64, error) {
		select {
		case <-time.After(d):
			return rows, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func hang(ctx context.Context, req engine.Request) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func raise(msg string) execFunc {
	return func(context.Context, engine.Request) (int64, error) {
		return 0, errors.New(msg)
	}
}

type stubAdapter struct {
	name    string
	version string

	mu          sync.Mutex
	connects    int
	disconnects int
	executed    []string
	// connectErr is consulted on every Connect with the attempt number.
	connectErr func(attempt int) error
	byQuery    map[string]execFunc
}

func newStub(name string, byQuery map[string]execFunc) *stubAdapter {
	return &stubAdapter{name: name, version: "1.0", byQuery: byQuery}
}

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) Kind() string { return "stub" }

func (s *stubAdapter) Version(context.Context) (string, error) {
	if s.version == "" {
		return "", errors.New("no version")
	}
	return s.version, nil
}

func (s *stubAdapter) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	if s.connectErr != nil {
		if err := s.connectErr(s.connects); err != nil {
			return &engine.SetupError{Engine: s.name, Err: err}
		}
	}
	return nil
}

func (s *stubAdapter) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	return nil
}

func (s *stubAdapter) Execute(ctx context.Context, req engine.Request) (int64, error) {
	s.mu.Lock()
	s.executed = append(s.executed, req.QueryID)
	f := s.byQuery[req.QueryID]
	s.mu.Unlock()
	if f == nil {
		return 1, nil
	}
	return f(ctx, req)
}

func (s *stubAdapter) calls() (connects, disconnects int, executed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects, s.disconnects, append([]string(nil), s.executed...)
}

// stubRegistry serves the given adapters by engine name.
func stubRegistry(stubs ...*stubAdapter) (*engine.Registry, []config.Engine) {
	byName := make(map[string]*stubAdapter, len(stubs))
	catalog := make([]config.Engine, 0, len(stubs))
	for _, s := range stubs {
		byName[s.name] = s
		catalog = append(catalog, config.Engine{Name: s.name, Kind: "stub"})
	}
	reg := engine.NewRegistry()
	reg.Register("stub", func(cfg config.Engine, opts engine.Options) (engine.Adapter, error) {
		return byName[cfg.Name], nil
	})
	return reg, catalog
}
