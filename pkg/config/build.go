package config

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/resource"
	"github.com/openfroyo/rbkit/pkg/telemetry"
)

// Builder turns definitions into resources bound to named data providers.
type Builder struct {
	providers map[string]engine.DataProvider
	evaluator *StarlarkEvaluator
	tel       *telemetry.Telemetry
	methods   map[string]map[string]resource.Method

	mu      sync.Mutex
	applied map[string]struct{}
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithTelemetry instruments built resources and publishes their dirty
// notifications as events.
func WithTelemetry(tel *telemetry.Telemetry) BuilderOption {
	return func(b *Builder) {
		b.tel = tel
	}
}

// WithScriptTimeout sets the default timeout of action scripts.
func WithScriptTimeout(d time.Duration) BuilderOption {
	return func(b *Builder) {
		b.evaluator = NewStarlarkEvaluator(d)
	}
}

// WithMethods attaches Go methods to the named resource. Methods cannot be
// expressed in definition files.
func WithMethods(resourceName string, methods map[string]resource.Method) BuilderOption {
	return func(b *Builder) {
		b.methods[resourceName] = methods
	}
}

// NewBuilder creates a builder resolving provider names in providers.
func NewBuilder(providers map[string]engine.DataProvider, opts ...BuilderOption) *Builder {
	b := &Builder{
		providers: maps.Clone(providers),
		evaluator: NewStarlarkEvaluator(0),
		methods:   make(map[string]map[string]resource.Method),
		applied:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build creates one resource per definition, in definition order.
func (b *Builder) Build(defs *Definitions) ([]*resource.Resource, error) {
	out := make([]*resource.Resource, 0, len(defs.Resources))
	for _, def := range defs.Resources {
		r, err := b.build(def, "")
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Apply builds defs and registers the result with m, replacing resources
// of the same name. Resources registered by an earlier Apply that defs no
// longer defines are unregistered. Nothing is registered when any
// definition fails to build.
func (b *Builder) Apply(m *resource.Manager, defs *Definitions) ([]*resource.Resource, error) {
	resources, err := b.Build(defs)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	current := make(map[string]struct{}, len(resources))
	for _, r := range resources {
		if err := m.RegisterResource(r); err != nil {
			return nil, err
		}
		current[r.Name()] = struct{}{}
	}

	for _, name := range slices.Sorted(maps.Keys(b.applied)) {
		if _, ok := current[name]; !ok {
			m.UnregisterResource(name)
		}
	}
	b.applied = current
	return resources, nil
}

func (b *Builder) build(def ResourceDefinition, inherited string) (*resource.Resource, error) {
	providerName := def.Provider
	if providerName == "" {
		providerName = inherited
	}
	provider, ok := b.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("resource %s: unknown provider %q", def.Name, providerName)
	}

	opts := resource.Options{
		Name:          def.Name,
		Provider:      provider,
		Key:           def.Key,
		Path:          def.Path,
		Label:         def.Label,
		DisplayAttr:   def.DisplayAttr,
		Schema:        def.Schema,
		CreateSchema:  def.CreateSchema,
		UpdateSchema:  def.UpdateSchema,
		Columns:       def.Columns,
		DefaultParams: defaultParams(def.DefaultParams),
		IsKeyEditable: def.IsKeyEditable,
		Methods:       b.methods[def.Name],
		UI:            resource.UI(def.UI),
		Telemetry:     b.tel,
	}

	if len(def.Actions) > 0 {
		opts.Actions = make(map[string]resource.Action, len(def.Actions))
		for name, ad := range def.Actions {
			act, err := b.evaluator.action(name, ad)
			if err != nil {
				return nil, fmt.Errorf("resource %s: %w", def.Name, err)
			}
			opts.Actions[name] = act
		}
	}

	if len(def.Relations) > 0 {
		opts.Relations = make(map[string]*resource.Resource, len(def.Relations))
		for name, rd := range def.Relations {
			if rd.Name == "" {
				rd.Name = name
			}
			rel, err := b.build(rd, providerName)
			if err != nil {
				return nil, fmt.Errorf("resource %s: relation %s: %w", def.Name, name, err)
			}
			opts.Relations[name] = rel
		}
	}

	if b.tel != nil && b.tel.Events != nil {
		opts.Listeners = append(opts.Listeners, b.tel.Events.DirtyListener(def.Name))
	}

	return resource.New(opts)
}
