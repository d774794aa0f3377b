package resource

import (
	"slices"
	"sync"

	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/telemetry"
)

// Manager is a registry of resources keyed by name. Names are kept in
// registration order; re-registering a name replaces the resource in place.
// It is safe for concurrent use.
type Manager struct {
	// mu protects the registry state.
	mu sync.RWMutex

	// resources maps resource name to resource.
	resources map[string]*Resource

	// order lists resource names in first-registration order.
	order []string

	// tel is optional instrumentation.
	tel *telemetry.Telemetry
}

// NewManager creates a manager holding the given resources.
func NewManager(resources ...*Resource) (*Manager, error) {
	m := &Manager{resources: make(map[string]*Resource)}
	for _, r := range resources {
		if err := m.RegisterResource(r); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SetTelemetry attaches instrumentation to the manager.
func (m *Manager) SetTelemetry(tel *telemetry.Telemetry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tel = tel
	m.reportCountLocked()
}

// RegisterResource adds r under its name. A later registration under the
// same name wins.
func (m *Manager) RegisterResource(r *Resource) error {
	if !r.valid() {
		return engine.ErrInvalidResource.WithOperation("registerResource")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.resources[r.name]; !exists {
		m.order = append(m.order, r.name)
	}
	m.resources[r.name] = r
	m.reportCountLocked()

	if m.tel != nil {
		m.tel.Logger.NewComponentLogger("manager").WithResource(r.name, r.path).Debug("resource registered")
		_ = m.tel.Events.PublishResourceRegistered(r.name, r.path)
	}
	return nil
}

// CreateResource creates a resource from opts and registers it.
func (m *Manager) CreateResource(opts Options) (*Resource, error) {
	r, err := New(opts)
	if err != nil {
		return nil, err
	}
	if err := m.RegisterResource(r); err != nil {
		return nil, err
	}
	return r, nil
}

// UnregisterResource removes the named resource and reports whether it was present.
func (m *Manager) UnregisterResource(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.resources[name]; !ok {
		return false
	}
	delete(m.resources, name)
	m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == name })
	m.reportCountLocked()
	return true
}

// GetResourceByName returns the named resource.
func (m *Manager) GetResourceByName(name string) (*Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.resources[name]
	if !ok {
		return nil, engine.ErrInvalidResourceName.WithResource(name)
	}
	return r, nil
}

// GetAllResources returns every resource in registration order.
func (m *Manager) GetAllResources() []*Resource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Resource, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.resources[name])
	}
	return out
}

// GetAllResourceNames returns every resource name in registration order.
func (m *Manager) GetAllResourceNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

// Len returns the number of registered resources.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

func (m *Manager) reportCountLocked() {
	if m.tel != nil {
		m.tel.Metrics.SetRegisteredResources(len(m.order))
	}
}
