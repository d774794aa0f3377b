package resource

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/openfroyo/rbkit/pkg/engine"
)

type relationOptions struct {
	notifyParentOnDirty bool
}

// RelationOption configures GetRelation.
type RelationOption func(*relationOptions)

// WithNotifyParentOnDirty controls whether the parent is marked dirty when
// the relation is. It defaults to true.
func WithNotifyParentOnDirty(notify bool) RelationOption {
	return func(o *relationOptions) {
		o.notifyParentOnDirty = notify
	}
}

// GetRelation binds template to the instance of r identified by key,
// returning a new resource at {r.Path}/{key}/{template.Path}. Everything
// else is copied from template. Relations are not memoized; each call
// returns a fresh resource.
func (r *Resource) GetRelation(key any, template *Resource, opts ...RelationOption) (*Resource, error) {
	if !template.valid() {
		return nil, engine.ErrInvalidResource.WithOperation("getRelation")
	}

	o := relationOptions{notifyParentOnDirty: true}
	for _, opt := range opts {
		opt(&o)
	}

	rel := template.clone()
	rel.path = fmt.Sprintf("%s/%v/%s", r.path, key, template.path)

	if o.notifyParentOnDirty {
		rel.AddListener(func(time.Time) { r.SetDirty() })
	}

	return rel, nil
}

// AddRelation registers template as the relation named name, replacing any
// relation of that name.
func (r *Resource) AddRelation(name string, template *Resource) error {
	if !template.valid() {
		return engine.ErrInvalidResource.WithResource(name).WithOperation("addRelation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.relations == nil {
		r.relations = make(map[string]*Resource)
	}
	r.relations[name] = template
	return nil
}

// Relation resolves the relation template registered under name for the
// instance identified by key.
func (r *Resource) Relation(name string, key any, opts ...RelationOption) (*Resource, error) {
	r.mu.Lock()
	template, ok := r.relations[name]
	r.mu.Unlock()
	if !ok {
		return nil, engine.ErrInvalidResource.WithResource(name).WithOperation("relation")
	}
	return r.GetRelation(key, template, opts...)
}

// RelationNames returns the sorted names of the registered relation templates.
func (r *Resource) RelationNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.relations))
}
