package resource

import "context"

// ActionFunc runs an action on behalf of r.
type ActionFunc func(ctx context.Context, r *Resource, args ...any) (any, error)

// VisibilityFunc reports whether an action applies, typically to the
// instance passed in args.
type VisibilityFunc func(r *Resource, args ...any) bool

// Action is a named operation on a single instance. An Action with only
// Run set is the plain callable form.
type Action struct {
	// Label is an optional display label.
	Label string

	// Run performs the action.
	Run ActionFunc

	// IsVisible reports whether the action applies. Nil means always.
	IsVisible VisibilityFunc
}

// Func wraps fn as a plain callable action.
func Func(fn ActionFunc) Action {
	return Action{Run: fn}
}

// BoundAction is an action with its resource already captured.
type BoundAction struct {
	Label     string
	Run       func(ctx context.Context, args ...any) (any, error)
	IsVisible func(args ...any) bool
}

// Visible reports whether the action applies to args. Actions without a
// visibility check are always visible.
func (a BoundAction) Visible(args ...any) bool {
	if a.IsVisible == nil {
		return true
	}
	return a.IsVisible(args...)
}

// GetActions returns the resource's actions bound to it.
func (r *Resource) GetActions() map[string]BoundAction {
	out := make(map[string]BoundAction, len(r.actions))
	for name, action := range r.actions {
		out[name] = r.bindAction(action)
	}
	return out
}

func (r *Resource) bindAction(action Action) BoundAction {
	bound := BoundAction{Label: action.Label}
	if run := action.Run; run != nil {
		bound.Run = func(ctx context.Context, args ...any) (any, error) {
			return run(ctx, r, args...)
		}
	}
	if visible := action.IsVisible; visible != nil {
		bound.IsVisible = func(args ...any) bool {
			return visible(r, args...)
		}
	}
	return bound
}

// Method is an extra operation added to a resource.
type Method func(ctx context.Context, r *Resource, args ...any) (any, error)

// BoundMethod is a method with its resource already captured.
type BoundMethod func(ctx context.Context, args ...any) (any, error)

// Methods returns the extra methods bound to the resource.
func (r *Resource) Methods() map[string]BoundMethod {
	out := make(map[string]BoundMethod, len(r.methods))
	for name := range r.methods {
		out[name], _ = r.Method(name)
	}
	return out
}

// Method returns the named extra method bound to the resource.
func (r *Resource) Method(name string) (BoundMethod, bool) {
	m, ok := r.methods[name]
	if !ok || m == nil {
		return nil, false
	}
	return func(ctx context.Context, args ...any) (any, error) {
		return m(ctx, r, args...)
	}, true
}
