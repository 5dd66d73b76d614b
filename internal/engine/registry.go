package engine

import (
	"fmt"
	"sort"

	"github.com/signalnine/spatialbench/internal/config"
	"github.com/signalnine/spatialbench/internal/logging"
)

// Factory builds an adapter for one configured engine.
type Factory func(cfg config.Engine, opts Options) (Adapter, error)

// Registry maps adapter kinds to factories.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry knows the command, docker and sql kinds.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(config.KindCommand, NewCommand)
	r.Register(config.KindDocker, NewDocker)
	r.Register(config.KindSQL, NewSQL)
	return r
}

func (r *Registry) Register(kind string, f Factory) {
	r.factories[kind] = f
}

func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New builds the adapter for cfg.
func (r *Registry) New(cfg config.Engine, opts Options) (Adapter, error) {
	f, ok := r.factories[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("engine %s: no adapter for kind %q", cfg.Name, cfg.Kind)
	}
	opts.Logger = logging.OrNop(opts.Logger).With("engine", cfg.Name)
	return f(cfg, opts)
}
