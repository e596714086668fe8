package producer

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/role"
)

// Producer modes selectable from configuration.
const (
	ModeTemplate = "template"
	ModePlugin   = "plugin"
)

// Options carries the settings factories need to build producers.
type Options struct {
	PluginDir string
	Parser    Parser
}

// Factory constructs the producer for one role.
type Factory func(r role.Role, opts Options) (Producer, error)

// Registry maintains the known producer modes.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// DefaultRegistry returns a registry with the built-in modes installed.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(ModeTemplate, templateFactory)
	r.MustRegister(ModePlugin, pluginFactory)
	return r
}

// Register installs a factory. Returns an error if the mode already exists.
func (r *Registry) Register(mode string, factory Factory) error {
	if mode == "" {
		return fmt.Errorf("producer: mode is required")
	}
	if factory == nil {
		return fmt.Errorf("producer: factory is required for %s", mode)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[mode]; exists {
		return fmt.Errorf("producer: %s already registered", mode)
	}
	r.factories[mode] = factory
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(mode string, factory Factory) {
	if err := r.Register(mode, factory); err != nil {
		panic(err)
	}
}

// Resolve returns the factory for mode.
func (r *Registry) Resolve(mode string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[mode]
	if !ok {
		return nil, fmt.Errorf("producer: unknown mode %s", mode)
	}
	return factory, nil
}

// Modes returns the sorted registered modes.
func (r *Registry) Modes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modes := make([]string, 0, len(r.factories))
	for mode := range r.factories {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	return modes
}

// Bind resolves a producer for every role in roleIDs once, up front.
// Unknown roles and factory failures are reported together.
func Bind(roles *role.Registry, roleIDs []string, factory Factory, opts Options) (Set, error) {
	if roles == nil {
		return nil, fmt.Errorf("producer: role registry is required")
	}
	if factory == nil {
		return nil, fmt.Errorf("producer: factory is required")
	}
	set := Set{}
	var errs []error
	for _, id := range roleIDs {
		if _, done := set[id]; done {
			continue
		}
		r, err := roles.Lookup(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p, err := factory(r, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("producer: bind %s: %w", id, err))
			continue
		}
		set[id] = p
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return set, nil
}

func templateFactory(r role.Role, _ Options) (Producer, error) {
	return NewTemplateProducer(r), nil
}

// pluginFactory loads <PluginDir>/<role>.go and falls back to the template
// producer for roles without a script.
func pluginFactory(r role.Role, opts Options) (Producer, error) {
	if opts.PluginDir == "" {
		return nil, fmt.Errorf("producer: plugin mode requires a plugin directory")
	}
	path := PluginPath(opts.PluginDir, r.ID)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewTemplateProducer(r), nil
		}
		return nil, err
	}
	return LoadPlugin(r, path, opts.Parser)
}
