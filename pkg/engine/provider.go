package engine

import (
	"context"
	"reflect"
)

// Record is a single instance of a resource as exchanged with a data provider.
type Record = map[string]any

// Response is the payload a data provider returns. Data holds a Record,
// a []Record or whatever the provider chooses to return.
type Response struct {
	// Data is the provider-defined payload.
	Data any `json:"data"`

	// Total is the total number of matching records for list operations.
	// It is zero when the provider does not report it.
	Total int64 `json:"total,omitempty"`

	// Meta carries provider-specific metadata.
	Meta map[string]any `json:"meta,omitempty"`
}

// Records returns Data as a slice of records, or nil if it holds something else.
func (r *Response) Records() []Record {
	if r == nil {
		return nil
	}
	switch v := r.Data.(type) {
	case []Record:
		return v
	case []any:
		out := make([]Record, 0, len(v))
		for _, item := range v {
			if rec, ok := item.(Record); ok {
				out = append(out, rec)
			}
		}
		return out
	}
	return nil
}

// Record returns Data as a single record, or nil if it holds something else.
func (r *Response) Record() Record {
	if r == nil {
		return nil
	}
	rec, _ := r.Data.(Record)
	return rec
}

// DataProvider is the transport a resource delegates its CRUD operations to.
// Implementations must embed BaseDataProvider.
type DataProvider interface {
	// GetMany lists records under path.
	GetMany(ctx context.Context, path string, params Params) (*Response, error)

	// GetOne fetches the record identified by key.
	GetOne(ctx context.Context, path string, key any, params Params) (*Response, error)

	// CreateOne creates a record.
	CreateOne(ctx context.Context, path string, data Record, params Params) (*Response, error)

	// UpdateOne updates the record identified by key.
	UpdateOne(ctx context.Context, path string, key any, data Record, params Params) (*Response, error)

	// UpdateMany updates several records at once.
	UpdateMany(ctx context.Context, path string, data []Record, params Params) (*Response, error)

	// DeleteOne deletes the record identified by key.
	DeleteOne(ctx context.Context, path string, key any, params Params) (*Response, error)

	// DeleteMany deletes the records identified by keys.
	DeleteMany(ctx context.Context, path string, keys []any, params Params) (*Response, error)

	mustEmbedBaseDataProvider()
}

// BaseDataProvider implements every DataProvider operation by failing with
// ErrNotImplemented.
type BaseDataProvider struct{}

func (BaseDataProvider) GetMany(context.Context, string, Params) (*Response, error) {
	return nil, NotImplemented("getMany")
}

func (BaseDataProvider) GetOne(context.Context, string, any, Params) (*Response, error) {
	return nil, NotImplemented("getOne")
}

func (BaseDataProvider) CreateOne(context.Context, string, Record, Params) (*Response, error) {
	return nil, NotImplemented("createOne")
}

func (BaseDataProvider) UpdateOne(context.Context, string, any, Record, Params) (*Response, error) {
	return nil, NotImplemented("updateOne")
}

func (BaseDataProvider) UpdateMany(context.Context, string, []Record, Params) (*Response, error) {
	return nil, NotImplemented("updateMany")
}

func (BaseDataProvider) DeleteOne(context.Context, string, any, Params) (*Response, error) {
	return nil, NotImplemented("deleteOne")
}

func (BaseDataProvider) DeleteMany(context.Context, string, []any, Params) (*Response, error) {
	return nil, NotImplemented("deleteMany")
}

func (BaseDataProvider) mustEmbedBaseDataProvider() {}

// CheckDataProvider verifies p can be used as a resource's data provider.
// A nil interface yields ErrMissingResourceDataProvider; an interface holding
// a nil pointer, map, func or similar yields ErrInvalidResourceDataProvider.
func CheckDataProvider(p DataProvider) error {
	if p == nil {
		return ErrMissingResourceDataProvider
	}
	if isNilValue(p) {
		return ErrInvalidResourceDataProvider
	}
	return nil
}

func isNilValue(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
