package resource

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/telemetry"
	"github.com/openfroyo/rbkit/pkg/validation"
)

// DefaultKey is the identifier attribute used when Options.Key is empty.
const DefaultKey = "id"

// StringifyFunc renders an instance for display.
type StringifyFunc func(instance engine.Record) string

// UI is an opaque bag of presentation options. A "formComponent" entry is
// used for "createFormComponent" and "updateFormComponent" when those are
// not set.
type UI map[string]any

// Options configure a Resource.
type Options struct {
	// Name is the unique resource name, e.g. "users". Required.
	Name string

	// Provider is the data provider operations are delegated to. Required.
	Provider engine.DataProvider

	// Key is the identifier attribute. Defaults to "id".
	Key string

	// Path is the provider path. Defaults to Name.
	Path string

	// Label is the human-readable name. Defaults to Name humanized.
	Label string

	// DisplayAttr is the attribute used to represent an instance. Defaults to Key.
	DisplayAttr string

	// Stringify overrides the default instance rendering.
	Stringify StringifyFunc

	// Schema describes instances. When nil, UpdateSchema, CreateSchema and
	// finally a schema holding only the integer key are tried in turn.
	Schema *Schema

	// CreateSchema is used as-is for creation payloads when set.
	CreateSchema *Schema

	// UpdateSchema is used as-is for update payloads when set.
	UpdateSchema *Schema

	// Columns overrides the columns derived from the schema.
	Columns []Column

	// DefaultParams are merged under the params of every provider call.
	DefaultParams engine.Params

	// IsKeyEditable keeps the key in derived create/update schemas.
	IsKeyEditable bool

	// Actions are named operations on single instances.
	Actions map[string]Action

	// Methods extend the resource with extra named operations.
	Methods map[string]Method

	// Relations are templates for sub-resources, resolved with Relation.
	Relations map[string]*Resource

	// Listeners are notified whenever the resource becomes dirty.
	Listeners []Listener

	// UI holds presentation options.
	UI UI

	// Telemetry, when set, instruments provider calls and dirty notifications.
	Telemetry *telemetry.Telemetry
}

// Resource describes a remote collection and delegates its operations to a
// data provider. Its description is immutable after construction; only the
// last update time, the listeners and the relations change.
type Resource struct {
	name          string
	provider      engine.DataProvider
	key           string
	path          string
	label         string
	displayAttr   string
	stringify     StringifyFunc
	schema        *Schema
	createSchema  *Schema
	updateSchema  *Schema
	columns       []Column
	defaultParams engine.Params
	isKeyEditable bool
	actions       map[string]Action
	methods       map[string]Method
	relations     map[string]*Resource
	ui            UI
	tel           *telemetry.Telemetry

	mu         sync.Mutex
	lastUpdate time.Time
	listeners  []listenerEntry
	nextID     ListenerID

	validatorsOnce  sync.Once
	createValidator *validation.Validator
	updateValidator *validation.Validator
	validatorsErr   error
}

// New creates a resource from opts.
func New(opts Options) (*Resource, error) {
	if opts.Name == "" {
		return nil, engine.ErrMissingResourceName
	}
	if err := engine.CheckDataProvider(opts.Provider); err != nil {
		var e *engine.Error
		if errors.As(err, &e) {
			return nil, e.WithResource(opts.Name)
		}
		return nil, err
	}

	r := &Resource{
		name:          opts.Name,
		provider:      opts.Provider,
		key:           opts.Key,
		path:          opts.Path,
		label:         opts.Label,
		displayAttr:   opts.DisplayAttr,
		stringify:     opts.Stringify,
		isKeyEditable: opts.IsKeyEditable,
		defaultParams: opts.DefaultParams.Clone(),
		actions:       maps.Clone(opts.Actions),
		methods:       maps.Clone(opts.Methods),
		relations:     maps.Clone(opts.Relations),
		ui:            normalizeUI(opts.UI),
		tel:           opts.Telemetry,
	}

	if r.key == "" {
		r.key = DefaultKey
	}
	if r.path == "" {
		r.path = r.name
	}
	if r.label == "" {
		r.label = Humanize(r.name)
	}
	if r.displayAttr == "" {
		r.displayAttr = r.key
	}
	if r.defaultParams == nil {
		r.defaultParams = engine.Params{}
	}

	source := opts.Schema
	if source == nil {
		source = opts.UpdateSchema
	}
	if source == nil {
		source = opts.CreateSchema
	}
	if source == nil {
		source = defaultSchema(r.key)
	}
	r.schema = source.Clone()

	base := source.Clone()
	if !r.isKeyEditable {
		base = base.Without(r.key)
	}

	r.createSchema = base
	if opts.CreateSchema != nil {
		r.createSchema = opts.CreateSchema.Clone()
	}
	r.updateSchema = base.Clone()
	if opts.UpdateSchema != nil {
		r.updateSchema = opts.UpdateSchema.Clone()
	}

	if opts.Columns != nil {
		r.columns = slices.Clone(opts.Columns)
	} else {
		r.columns = columnsFromSchema(source)
	}

	for _, l := range opts.Listeners {
		r.AddListener(l)
	}

	return r, nil
}

// valid reports whether r was built by New.
func (r *Resource) valid() bool {
	return r != nil && r.name != "" && r.provider != nil
}

// Name returns the unique resource name.
func (r *Resource) Name() string { return r.name }

// Provider returns the data provider.
func (r *Resource) Provider() engine.DataProvider { return r.provider }

// Key returns the identifier attribute.
func (r *Resource) Key() string { return r.key }

// Path returns the provider path.
func (r *Resource) Path() string { return r.path }

// Label returns the human-readable name.
func (r *Resource) Label() string { return r.label }

// DisplayAttr returns the attribute used to represent an instance.
func (r *Resource) DisplayAttr() string { return r.displayAttr }

// IsKeyEditable reports whether the key appears in derived schemas.
func (r *Resource) IsKeyEditable() bool { return r.isKeyEditable }

// Schema returns a copy of the schema describing instances.
func (r *Resource) Schema() *Schema { return r.schema.Clone() }

// CreateSchema returns a copy of the schema used for creation payloads.
func (r *Resource) CreateSchema() *Schema { return r.createSchema.Clone() }

// UpdateSchema returns a copy of the schema used for update payloads.
func (r *Resource) UpdateSchema() *Schema { return r.updateSchema.Clone() }

// Columns returns the display columns.
func (r *Resource) Columns() []Column { return slices.Clone(r.columns) }

// DefaultParams returns a copy of the default params.
func (r *Resource) DefaultParams() engine.Params { return r.defaultParams.Clone() }

// UI returns a copy of the presentation options.
func (r *Resource) UI() UI { return maps.Clone(r.ui) }

// GetKey returns the identifier of instance, or nil when it has none.
func (r *Resource) GetKey(instance engine.Record) any {
	if instance == nil {
		return nil
	}
	if v, ok := instance[r.key]; ok {
		return v
	}
	return nil
}

// Stringify renders instance for display. By default it formats the
// display attribute; a nil instance renders as "".
func (r *Resource) Stringify(instance engine.Record) string {
	if r.stringify != nil {
		return r.stringify(instance)
	}
	if instance == nil {
		return ""
	}
	return fmt.Sprint(instance[r.displayAttr])
}

// MergeParams merges params over the resource's default params.
func (r *Resource) MergeParams(params engine.Params) engine.Params {
	return engine.MergeParams(r.defaultParams, params)
}

// LastUpdate returns the time of the last successful mutation, or the zero
// time if the resource has never been marked dirty.
func (r *Resource) LastUpdate() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUpdate
}

// IsDirty reports whether the resource has been marked dirty at least once.
func (r *Resource) IsDirty() bool {
	return !r.LastUpdate().IsZero()
}

// clone copies the resource description. Listeners are copied, the last
// update time is not.
func (r *Resource) clone() *Resource {
	r.mu.Lock()
	listeners := slices.Clone(r.listeners)
	nextID := r.nextID
	relations := maps.Clone(r.relations)
	r.mu.Unlock()

	return &Resource{
		name:          r.name,
		provider:      r.provider,
		key:           r.key,
		path:          r.path,
		label:         r.label,
		displayAttr:   r.displayAttr,
		stringify:     r.stringify,
		schema:        r.schema.Clone(),
		createSchema:  r.createSchema.Clone(),
		updateSchema:  r.updateSchema.Clone(),
		columns:       slices.Clone(r.columns),
		defaultParams: r.defaultParams.Clone(),
		isKeyEditable: r.isKeyEditable,
		actions:       maps.Clone(r.actions),
		methods:       maps.Clone(r.methods),
		relations:     relations,
		ui:            maps.Clone(r.ui),
		tel:           r.tel,
		listeners:     listeners,
		nextID:        nextID,
	}
}

func normalizeUI(ui UI) UI {
	out := make(UI, len(ui)+2)
	maps.Copy(out, ui)
	form, ok := out["formComponent"]
	if !ok {
		return out
	}
	delete(out, "formComponent")
	if out["createFormComponent"] == nil {
		out["createFormComponent"] = form
	}
	if out["updateFormComponent"] == nil {
		out["updateFormComponent"] = form
	}
	return out
}
