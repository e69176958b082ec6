package connector

import (
	"fmt"
	"sort"
	"sync"
)

// Factory is a function that creates a new Connector instance.
type Factory func() Connector

// Registry manages connector factories and the live connection to each
// configured target.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	active    map[string]Connector // keyed by target name
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		active:    make(map[string]Connector),
	}
}

// RegisterDriver registers a connector factory for a driver type.
func (r *Registry) RegisterDriver(driver string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[driver] = factory
}

// Connect creates a new connector for the given driver and connects it,
// replacing any existing connection for the target.
func (r *Registry) Connect(target string, cfg ConnectionConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	factory, ok := r.factories[cfg.Driver]
	if !ok {
		return fmt.Errorf("unsupported driver: %s (available: %v)", cfg.Driver, r.availableDrivers())
	}

	conn := factory()
	if err := conn.Connect(cfg); err != nil {
		return fmt.Errorf("failed to connect target %q: %w", target, err)
	}

	if existing, ok := r.active[target]; ok {
		existing.Disconnect()
	}

	r.active[target] = conn
	return nil
}

// Get returns the connector for a target.
func (r *Registry) Get(target string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.active[target]
	if !ok {
		return nil, fmt.Errorf("target %q not found (available: %v)", target, r.activeTargets())
	}
	return conn, nil
}

// Disconnect removes and disconnects a target.
func (r *Registry) Disconnect(target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.active[target]
	if !ok {
		return fmt.Errorf("target %q not found", target)
	}

	err := conn.Disconnect()
	delete(r.active, target)
	return err
}

// CloseAll disconnects all targets.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, conn := range r.active {
		conn.Disconnect()
		delete(r.active, name)
	}
}

// ListTargets returns connected target names in sorted order.
func (r *Registry) ListTargets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeTargets()
}

func (r *Registry) availableDrivers() []string {
	drivers := make([]string, 0, len(r.factories))
	for d := range r.factories {
		drivers = append(drivers, d)
	}
	sort.Strings(drivers)
	return drivers
}

func (r *Registry) activeTargets() []string {
	names := make([]string, 0, len(r.active))
	for n := range r.active {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
