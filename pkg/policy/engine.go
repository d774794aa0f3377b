package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog"
)

// Engine evaluates capability checks against the enabled policies.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	store    storage.Store
	logger   zerolog.Logger
	query    *rego.PreparedEvalQuery
	builtins bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithData makes data available to policies under the data document. A nil
// map leaves the empty store in place.
func WithData(data map[string]any) Option {
	return func(e *Engine) {
		if data == nil {
			return
		}
		e.store = inmem.NewFromObject(data)
	}
}

// WithoutBuiltins starts the engine with no policies loaded.
func WithoutBuiltins() Option {
	return func(e *Engine) {
		e.builtins = false
	}
}

// NewEngine creates a new policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*Policy),
		store:    inmem.New(),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
		builtins: true,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.builtins {
		for _, p := range GetBuiltinPolicies() {
			e.policies[p.Name] = &p
		}
	}

	if err := e.prepare(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	e.logger.Debug().Int("count", len(e.policies)).Msg("Policy engine ready")
	return e, nil
}

// Authorize evaluates input against the enabled policies.
func (e *Engine) Authorize(ctx context.Context, input Input) (*Decision, error) {
	start := time.Now()
	if input.Context == nil {
		input.Context = &InputContext{Timestamp: start}
		if input.User != nil {
			input.Context.Tenant = input.User.Tenant
		}
	}

	e.mu.RLock()
	query := e.query
	e.mu.RUnlock()

	decision := &Decision{EvaluatedAt: start}
	if query == nil {
		decision.Duration = time.Since(start)
		return decision, nil
	}

	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var allowed bool
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		doc, ok := result.Expressions[0].Value.(map[string]any)
		if !ok {
			continue
		}
		if a, ok := doc["allow"].(bool); ok && a {
			allowed = true
		}
		decision.Reasons = append(decision.Reasons, denyReasons(doc["deny"])...)
	}

	decision.Allowed = allowed && len(decision.Reasons) == 0
	decision.Duration = time.Since(start)

	e.logger.Debug().
		Str("action", input.Action).
		Bool("allowed", decision.Allowed).
		Strs("reasons", decision.Reasons).
		Dur("duration", decision.Duration).
		Msg("Capability check evaluated")

	return decision, nil
}

// denyReasons flattens the deny set. Entries may be strings or objects
// with a message field.
func denyReasons(v any) []string {
	set, ok := v.([]any)
	if !ok {
		return nil
	}
	reasons := make([]string, 0, len(set))
	for _, d := range set {
		switch r := d.(type) {
		case string:
			reasons = append(reasons, r)
		case map[string]any:
			if msg, ok := r["message"].(string); ok {
				reasons = append(reasons, msg)
				continue
			}
			reasons = append(reasons, fmt.Sprint(r))
		default:
			reasons = append(reasons, fmt.Sprint(r))
		}
	}
	sort.Strings(reasons)
	return reasons
}

// LoadPolicies loads policy files from paths and adds them to the engine.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.AddPolicies(ctx, policies...)
}

// AddPolicies adds or replaces policies by name. Nothing changes if the
// resulting set does not compile.
func (e *Engine) AddPolicies(ctx context.Context, policies ...Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	previous := e.snapshot()
	for i := range policies {
		p := policies[i]
		e.policies[p.Name] = &p
	}
	if err := e.prepare(ctx); err != nil {
		e.policies = previous
		return err
	}

	e.logger.Info().Int("count", len(policies)).Msg("Policies loaded successfully")
	return nil
}

// ReplacePolicies swaps every non built-in policy for policies. It is the
// reload callback for Loader.Watch. Nothing changes if the new set does not
// compile.
func (e *Engine) ReplacePolicies(ctx context.Context, policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	previous := e.snapshot()
	next := make(map[string]*Policy, len(policies))
	for name, p := range e.policies {
		if p.Builtin {
			next[name] = p
		}
	}
	for i := range policies {
		p := policies[i]
		next[p.Name] = &p
	}

	e.policies = next
	if err := e.prepare(ctx); err != nil {
		e.policies = previous
		return err
	}

	e.logger.Info().Int("count", len(policies)).Msg("Policies replaced")
	return nil
}

// prepare compiles the enabled policies into a single query. Callers hold
// the write lock, or own the engine exclusively.
func (e *Engine) prepare(ctx context.Context) error {
	names := make([]string, 0, len(e.policies))
	for name, p := range e.policies {
		if p.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		e.query = nil
		return nil
	}

	opts := []func(*rego.Rego){
		rego.Query(Query),
		rego.Store(e.store),
	}
	for _, name := range names {
		p := e.policies[name]
		if _, err := ast.ParseModule(p.Name, p.Rego); err != nil {
			return fmt.Errorf("failed to parse policy %s: %w", p.Name, err)
		}
		opts = append(opts, rego.Module(p.Name+".rego", p.Rego))
	}

	query, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}
	e.query = &query
	return nil
}

func (e *Engine) snapshot() map[string]*Policy {
	out := make(map[string]*Policy, len(e.policies))
	for k, v := range e.policies {
		out[k] = v
	}
	return out
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	c := *p
	return &c, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, p := range e.policies {
		policies = append(policies, *p)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(ctx context.Context, name string) error {
	return e.setEnabled(ctx, name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(ctx context.Context, name string) error {
	return e.setEnabled(ctx, name, false)
}

func (e *Engine) setEnabled(ctx context.Context, name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	c := *p
	c.Enabled = enabled
	previous := e.snapshot()
	e.policies[name] = &c
	if err := e.prepare(ctx); err != nil {
		e.policies = previous
		return err
	}

	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}
