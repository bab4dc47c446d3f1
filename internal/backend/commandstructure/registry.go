package commandstructure

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultRegistry is filled by the init functions of the commands package
var DefaultRegistry = NewCommandRegistry()

// CommandRegistry resolves configured command names to factories
type CommandRegistry struct {
	mu        sync.RWMutex
	factories map[string]CommandFactory
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{factories: make(map[string]CommandFactory)}
}

// Register fails on empty names, nil factories and duplicates
func (r *CommandRegistry) Register(name string, factory CommandFactory) error {
	switch {
	case name == "":
		return fmt.Errorf("command name cannot be empty")
	case factory == nil:
		return fmt.Errorf("factory for command %s cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("command %s is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister is Register for package init functions
func (r *CommandRegistry) MustRegister(name string, factory CommandFactory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Create builds a command; nil params are passed on as an empty map
func (r *CommandRegistry) Create(name string, params map[string]any) (Command, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("unknown command %q (registered: %v)", name, r.Names())
	}

	if params == nil {
		params = map[string]any{}
	}
	command, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters for command %s: %w", name, err)
	}
	return command, nil
}

func (r *CommandRegistry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[name]
	return exists
}

// Names returns the registered command names in sorted order
func (r *CommandRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
