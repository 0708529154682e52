package optimization

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aristath/hybrid/internal/domain"
)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes an optimizer available by name. It is meant to be called from
// init functions and panics on an empty name, a nil factory or a duplicate.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if name == "" {
		panic("optimization: Register with empty name")
	}
	if factory == nil {
		panic("optimization: Register factory is nil for " + name)
	}
	if _, dup := factories[name]; dup {
		panic("optimization: Register called twice for " + name)
	}
	factories[name] = factory
}

// New builds the named optimizer. An empty name selects DefaultAlgorithm.
func New(name string, opts Options) (Optimizer, error) {
	if name == "" {
		name = DefaultAlgorithm
	}

	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, domain.NewConfigurationError(KeyAlgorithm, "unknown optimizer %q (available: %v)", name, Names())
	}

	opt, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to configure optimizer %s: %w", name, err)
	}
	return opt, nil
}

// FromOptions builds the optimizer selected by the algorithm key.
func FromOptions(opts Options) (Optimizer, error) {
	name, err := opts.Algorithm()
	if err != nil {
		return nil, err
	}
	return New(name, opts)
}

// Names returns the registered optimizer names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Available describes every registered optimizer with default settings.
func Available() []Info {
	names := Names()
	infos := make([]Info, 0, len(names))
	for _, name := range names {
		opt, err := New(name, nil)
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Name:             name,
			RequiresGradient: opt.RequiresGradient(),
			Default:          name == DefaultAlgorithm,
		})
	}
	return infos
}
