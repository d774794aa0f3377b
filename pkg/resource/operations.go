package resource

import (
	"context"
	"slices"
	"time"

	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/telemetry"
)

// Listener is notified with the new last update time when a resource
// becomes dirty.
type Listener func(lastUpdate time.Time)

// ListenerID identifies a registered listener. The zero value is never issued.
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// GetMany lists instances. It never marks the resource dirty.
func (r *Resource) GetMany(ctx context.Context, params engine.Params) (*engine.Response, error) {
	merged := r.MergeParams(params)
	return r.delegate(ctx, "getMany", false, func(ctx context.Context) (*engine.Response, error) {
		return r.provider.GetMany(ctx, r.path, merged)
	})
}

// GetOne fetches the instance identified by key. It never marks the resource dirty.
func (r *Resource) GetOne(ctx context.Context, key any, params engine.Params) (*engine.Response, error) {
	merged := r.MergeParams(params)
	return r.delegate(ctx, "getOne", false, func(ctx context.Context) (*engine.Response, error) {
		return r.provider.GetOne(ctx, r.path, key, merged)
	})
}

// CreateOne creates an instance and marks the resource dirty on success.
func (r *Resource) CreateOne(ctx context.Context, data engine.Record, params engine.Params) (*engine.Response, error) {
	merged := r.MergeParams(params)
	return r.delegate(ctx, "createOne", true, func(ctx context.Context) (*engine.Response, error) {
		return r.provider.CreateOne(ctx, r.path, data, merged)
	})
}

// UpdateOne updates the instance identified by key and marks the resource
// dirty on success.
func (r *Resource) UpdateOne(ctx context.Context, key any, data engine.Record, params engine.Params) (*engine.Response, error) {
	merged := r.MergeParams(params)
	return r.delegate(ctx, "updateOne", true, func(ctx context.Context) (*engine.Response, error) {
		return r.provider.UpdateOne(ctx, r.path, key, data, merged)
	})
}

// UpdateMany updates several instances, each carrying its key, and marks
// the resource dirty on success.
func (r *Resource) UpdateMany(ctx context.Context, data []engine.Record, params engine.Params) (*engine.Response, error) {
	merged := r.MergeParams(params)
	return r.delegate(ctx, "updateMany", true, func(ctx context.Context) (*engine.Response, error) {
		return r.provider.UpdateMany(ctx, r.path, data, merged)
	})
}

// DeleteOne deletes the instance identified by key and marks the resource
// dirty on success.
func (r *Resource) DeleteOne(ctx context.Context, key any, params engine.Params) (*engine.Response, error) {
	merged := r.MergeParams(params)
	return r.delegate(ctx, "deleteOne", true, func(ctx context.Context) (*engine.Response, error) {
		return r.provider.DeleteOne(ctx, r.path, key, merged)
	})
}

// DeleteMany deletes the instances identified by keys and marks the resource
// dirty on success.
func (r *Resource) DeleteMany(ctx context.Context, keys []any, params engine.Params) (*engine.Response, error) {
	merged := r.MergeParams(params)
	return r.delegate(ctx, "deleteMany", true, func(ctx context.Context) (*engine.Response, error) {
		return r.provider.DeleteMany(ctx, r.path, keys, merged)
	})
}

// delegate runs call under telemetry and, for mutations, marks the resource
// dirty once the provider has succeeded. Provider errors are returned as-is.
func (r *Resource) delegate(ctx context.Context, operation string, mutates bool, call func(context.Context) (*engine.Response, error)) (*engine.Response, error) {
	if r.tel != nil && telemetry.FromTelemetryContext(ctx) == nil {
		ctx = r.tel.WithContext(ctx)
	}

	var resp *engine.Response
	err := telemetry.RecordProviderOperation(ctx, r.name, r.path, operation, func(ctx context.Context) error {
		var err error
		resp, err = call(ctx)
		return err
	})
	if err != nil {
		return resp, err
	}

	if mutates {
		r.SetDirty()
	}
	return resp, nil
}

// SetDirty records the current time as the last update and notifies every
// listener in registration order. A panicking listener stops the
// notification of the listeners after it.
func (r *Resource) SetDirty() {
	now := time.Now()

	r.mu.Lock()
	r.lastUpdate = now
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	if r.tel != nil {
		r.tel.Metrics.RecordDirty(r.name)
	}

	for _, l := range listeners {
		l.fn(now)
	}
}

// AddListener registers fn and returns its id. A nil fn is ignored and
// yields the zero id.
func (r *Resource) AddListener(fn Listener) ListenerID {
	if fn == nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.listeners = append(r.listeners, listenerEntry{id: r.nextID, fn: fn})
	return r.nextID
}

// RemoveListener unregisters the listener with the given id. Unknown ids
// are ignored.
func (r *Resource) RemoveListener(id ListenerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.listeners, func(e listenerEntry) bool { return e.id == id })
	if idx < 0 {
		return
	}
	r.listeners = slices.Delete(r.listeners, idx, idx+1)
}

// ListenerCount returns the number of registered listeners.
func (r *Resource) ListenerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}
