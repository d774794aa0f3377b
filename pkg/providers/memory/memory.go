// Package memory provides an in-memory engine.DataProvider. It is useful
// for tests, prototypes and for serving fixtures.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/openfroyo/rbkit/pkg/engine"
)

var (
	// ErrNotFound is returned when no record has the requested key.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when creating a record whose key is taken.
	ErrConflict = errors.New("record already exists")

	// ErrMissingKey is returned by UpdateMany for records without a key.
	ErrMissingKey = errors.New("record has no key")
)

// SearchFilter is the filter name matched as a case-insensitive substring
// against every string attribute.
const SearchFilter = "q"

// Provider stores records per path in memory. It is safe for concurrent use.
type Provider struct {
	engine.BaseDataProvider

	mu          sync.RWMutex
	key         string
	newKey      func() any
	collections map[string]*collection
}

type collection struct {
	order   []string
	records map[string]engine.Record
}

// Option configures a Provider.
type Option func(*Provider)

// WithKey sets the identifier attribute. Defaults to "id".
func WithKey(attr string) Option {
	return func(p *Provider) {
		p.key = attr
	}
}

// WithKeyGenerator sets the function generating keys for records created
// without one. Defaults to random UUID strings.
func WithKeyGenerator(fn func() any) Option {
	return func(p *Provider) {
		p.newKey = fn
	}
}

// SequentialKeys returns a key generator yielding 1, 2, 3, ...
func SequentialKeys() func() any {
	var mu sync.Mutex
	next := 0
	return func() any {
		mu.Lock()
		defer mu.Unlock()
		next++
		return next
	}
}

// New creates an empty provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		key:         "id",
		newKey:      func() any { return uuid.NewString() },
		collections: make(map[string]*collection),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Seed stores records under path, replacing records with the same key.
func (p *Provider) Seed(path string, records ...engine.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.collection(path)
	for _, rec := range records {
		k, ok := rec[p.key]
		if !ok {
			return fmt.Errorf("seed %s: %w", path, ErrMissingKey)
		}
		c.put(NormalizeKey(k), maps.Clone(rec))
	}
	return nil
}

// GetMany lists the records under path matching the filters, sorted and
// paginated as requested. Total is the number of matches before pagination.
func (p *Provider) GetMany(ctx context.Context, path string, params engine.Params) (*engine.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	var records []engine.Record
	if c := p.collections[path]; c != nil {
		records = make([]engine.Record, 0, len(c.order))
		for _, k := range c.order {
			records = append(records, maps.Clone(c.records[k]))
		}
	}
	p.mu.RUnlock()

	page, total := Query(records, params)
	return &engine.Response{Data: page, Total: total}, nil
}

// GetOne returns the record identified by key.
func (p *Provider) GetOne(ctx context.Context, path string, key any, _ engine.Params) (*engine.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.lookup(path, key)
	if !ok {
		return nil, notFound(path, key)
	}
	return &engine.Response{Data: maps.Clone(rec)}, nil
}

// CreateOne stores data, generating a key when it has none.
func (p *Provider) CreateOne(ctx context.Context, path string, data engine.Record, _ engine.Params) (*engine.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec := maps.Clone(data)
	if rec == nil {
		rec = engine.Record{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := rec[p.key]; !ok {
		rec[p.key] = p.newKey()
	}

	c := p.collection(path)
	k := NormalizeKey(rec[p.key])
	if _, exists := c.records[k]; exists {
		return nil, fmt.Errorf("%s/%s: %w", path, k, ErrConflict)
	}
	c.put(k, rec)

	return &engine.Response{Data: maps.Clone(rec)}, nil
}

// UpdateOne merges data into the record identified by key. The key itself
// is never changed.
func (p *Provider) UpdateOne(ctx context.Context, path string, key any, data engine.Record, _ engine.Params) (*engine.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.lookup(path, key)
	if !ok {
		return nil, notFound(path, key)
	}
	p.merge(rec, data)
	return &engine.Response{Data: maps.Clone(rec)}, nil
}

// UpdateMany merges each record of data into the stored record with the
// same key. Nothing is changed unless every record exists.
func (p *Provider) UpdateMany(ctx context.Context, path string, data []engine.Record, _ engine.Params) (*engine.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	targets := make([]engine.Record, len(data))
	for i, d := range data {
		key, ok := d[p.key]
		if !ok {
			return nil, fmt.Errorf("%s[%d]: %w", path, i, ErrMissingKey)
		}
		rec, ok := p.lookup(path, key)
		if !ok {
			return nil, notFound(path, key)
		}
		targets[i] = rec
	}

	updated := make([]engine.Record, len(data))
	for i, rec := range targets {
		p.merge(rec, data[i])
		updated[i] = maps.Clone(rec)
	}
	return &engine.Response{Data: updated, Total: int64(len(updated))}, nil
}

// DeleteOne removes the record identified by key and returns it.
func (p *Provider) DeleteOne(ctx context.Context, path string, key any, _ engine.Params) (*engine.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.lookup(path, key)
	if !ok {
		return nil, notFound(path, key)
	}
	p.collections[path].remove(NormalizeKey(key))
	return &engine.Response{Data: rec}, nil
}

// DeleteMany removes the records identified by keys. Nothing is removed
// unless every key exists.
func (p *Provider) DeleteMany(ctx context.Context, path string, keys []any, _ engine.Params) (*engine.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	deleted := make([]engine.Record, 0, len(keys))
	for _, key := range keys {
		rec, ok := p.lookup(path, key)
		if !ok {
			return nil, notFound(path, key)
		}
		deleted = append(deleted, rec)
	}
	for _, key := range keys {
		p.collections[path].remove(NormalizeKey(key))
	}
	return &engine.Response{Data: deleted, Total: int64(len(deleted))}, nil
}

func (p *Provider) collection(path string) *collection {
	c, ok := p.collections[path]
	if !ok {
		c = &collection{records: make(map[string]engine.Record)}
		p.collections[path] = c
	}
	return c
}

func (p *Provider) lookup(path string, key any) (engine.Record, bool) {
	c, ok := p.collections[path]
	if !ok {
		return nil, false
	}
	rec, ok := c.records[NormalizeKey(key)]
	return rec, ok
}

func (p *Provider) merge(rec, data engine.Record) {
	for k, v := range data {
		if k == p.key {
			continue
		}
		rec[k] = v
	}
}

func (c *collection) put(k string, rec engine.Record) {
	if _, exists := c.records[k]; !exists {
		c.order = append(c.order, k)
	}
	c.records[k] = rec
}

func (c *collection) remove(k string) {
	delete(c.records, k)
	c.order = slices.DeleteFunc(c.order, func(o string) bool { return o == k })
}

func notFound(path string, key any) error {
	return fmt.Errorf("%s/%v: %w", path, key, ErrNotFound)
}
