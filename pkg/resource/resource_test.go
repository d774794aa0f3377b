package resource

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/rbkit/pkg/engine"
)

func newTestResource(t *testing.T, opts Options) *Resource {
	t.Helper()
	if opts.Provider == nil {
		opts.Provider = noopProvider{}
	}
	r, err := New(opts)
	require.NoError(t, err)
	return r
}

func TestNewRequiresNameAndProvider(t *testing.T) {
	_, err := New(Options{Provider: noopProvider{}})
	assert.ErrorIs(t, err, engine.ErrMissingResourceName)

	_, err = New(Options{Name: "test"})
	assert.ErrorIs(t, err, engine.ErrMissingResourceDataProvider)

	var typedNil *mockProvider
	_, err = New(Options{Name: "test", Provider: typedNil})
	assert.ErrorIs(t, err, engine.ErrInvalidResourceDataProvider)
	assert.Contains(t, err.Error(), "resource=test")
}

func TestNewDefaults(t *testing.T) {
	p := noopProvider{}
	r := newTestResource(t, Options{Name: "test_resource", Provider: p})

	assert.Equal(t, "test_resource", r.Name())
	assert.Equal(t, p, r.Provider())
	assert.Equal(t, "test_resource", r.Path())
	assert.Equal(t, "id", r.Key())
	assert.Equal(t, "Test resource", r.Label())
	assert.Equal(t, "id", r.DisplayAttr())
	assert.False(t, r.IsDirty())
	assert.True(t, r.LastUpdate().IsZero())
	assert.Empty(t, r.DefaultParams())
}

func TestNewExplicitOptions(t *testing.T) {
	r := newTestResource(t, Options{
		Name:        "test",
		Path:        "products",
		Key:         "myId",
		Label:       "Catalogue",
		DisplayAttr: "title",
	})

	assert.Equal(t, "products", r.Path())
	assert.Equal(t, "myId", r.Key())
	assert.Equal(t, "Catalogue", r.Label())
	assert.Equal(t, "title", r.DisplayAttr())
}

func TestDisplayAttrDefaultsToCustomKey(t *testing.T) {
	r := newTestResource(t, Options{Name: "test", Key: "myId"})
	assert.Equal(t, "myId", r.DisplayAttr())
}

func TestHumanize(t *testing.T) {
	tests := map[string]string{
		"test_resource": "Test resource",
		"users":         "Users",
		"userProfiles":  "User profiles",
		"blog-posts":    "Blog posts",
		"":              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Humanize(in), in)
	}
}

func TestStringify(t *testing.T) {
	r := newTestResource(t, Options{Name: "users", DisplayAttr: "email"})
	assert.Equal(t, "ada@example.com", r.Stringify(engine.Record{"id": 1, "email": "ada@example.com"}))
	assert.Equal(t, "", r.Stringify(nil))

	custom := newTestResource(t, Options{
		Name: "users",
		Stringify: func(instance engine.Record) string {
			return "user #" + instance["id"].(string)
		},
	})
	assert.Equal(t, "user #7", custom.Stringify(engine.Record{"id": "7"}))
}

func TestGetKey(t *testing.T) {
	r := newTestResource(t, Options{Name: "users"})
	assert.Equal(t, 1, r.GetKey(engine.Record{"id": 1}))
	assert.Nil(t, r.GetKey(engine.Record{"name": "ada"}))
	assert.Nil(t, r.GetKey(nil))

	custom := newTestResource(t, Options{Name: "users", Key: "uuid"})
	assert.Equal(t, "abc", custom.GetKey(engine.Record{"uuid": "abc", "id": 1}))
}

func TestDefaultSchemaStripsKey(t *testing.T) {
	r := newTestResource(t, Options{Name: "users"})

	assert.Equal(t, []string{"id"}, r.Schema().Names())
	assert.Empty(t, r.CreateSchema().Properties)
	assert.Empty(t, r.UpdateSchema().Properties)
	assert.Equal(t, "object", r.CreateSchema().Type)

	editable := newTestResource(t, Options{Name: "users", IsKeyEditable: true})
	spec, ok := editable.CreateSchema().Property("id")
	require.True(t, ok)
	assert.Equal(t, AttrSpec{"type": "integer"}, spec)
}

func TestSchemaDerivation(t *testing.T) {
	schema := NewSchema(
		Prop("id", AttrSpec{"type": "integer"}),
		Prop("name", AttrSpec{"type": "string"}),
		Prop("email", AttrSpec{"type": "string"}),
	)
	schema.Required = []string{"id", "name"}

	r := newTestResource(t, Options{Name: "users", Schema: schema})

	assert.Equal(t, []string{"name", "email"}, r.CreateSchema().Names())
	assert.Equal(t, []string{"name", "email"}, r.UpdateSchema().Names())
	assert.Equal(t, []string{"name"}, r.CreateSchema().Required)
	assert.Equal(t, []string{"id", "name", "email"}, schema.Names(), "input schema must not be modified")
	assert.Equal(t, []string{"id", "name"}, schema.Required)
}

func TestExplicitCreateAndUpdateSchemasAreKept(t *testing.T) {
	create := NewSchema(Prop("id", AttrSpec{"type": "integer"}), Prop("name", AttrSpec{"type": "string"}))
	update := NewSchema(Prop("name", AttrSpec{"type": "string"}))

	onlyCreate := newTestResource(t, Options{Name: "users", CreateSchema: create})
	assert.Equal(t, []string{"id", "name"}, onlyCreate.CreateSchema().Names())
	assert.Equal(t, []string{"name"}, onlyCreate.UpdateSchema().Names())

	both := newTestResource(t, Options{Name: "users", Schema: create, UpdateSchema: update})
	assert.Equal(t, []string{"name"}, both.CreateSchema().Names())
	assert.Equal(t, []string{"name"}, both.UpdateSchema().Names())

	updateOnly := newTestResource(t, Options{Name: "users", UpdateSchema: create})
	assert.Equal(t, []string{"id", "name"}, updateOnly.UpdateSchema().Names())
	assert.Equal(t, []string{"name"}, updateOnly.CreateSchema().Names())
}

func TestColumnsFollowDeclarationOrder(t *testing.T) {
	schema := NewSchema(
		Prop("id", AttrSpec{"type": "integer"}),
		Prop("zeta", AttrSpec{"type": "string", "title": "Zeta"}),
		Prop("alpha", AttrSpec{"type": "boolean"}),
	)
	r := newTestResource(t, Options{Name: "users", Schema: schema})

	cols := r.Columns()
	require.Len(t, cols, 3)
	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, "zeta", cols[1].Name)
	assert.Equal(t, "Zeta", cols[1].Get("title"))
	assert.Equal(t, "alpha", cols[2].Name)

	b, err := json.Marshal(cols[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"zeta","type":"string","title":"Zeta"}`, string(b))
}

func TestExplicitColumns(t *testing.T) {
	cols := []Column{{Name: "email", Spec: AttrSpec{"title": "E-mail"}}}
	r := newTestResource(t, Options{Name: "users", Columns: cols})
	assert.Equal(t, cols, r.Columns())
}

func TestUIFormComponent(t *testing.T) {
	r := newTestResource(t, Options{Name: "users", UI: UI{"formComponent": "UserForm", "icon": "user"}})
	ui := r.UI()
	assert.Equal(t, "UserForm", ui["createFormComponent"])
	assert.Equal(t, "UserForm", ui["updateFormComponent"])
	assert.Equal(t, "user", ui["icon"])
	assert.NotContains(t, ui, "formComponent")

	r = newTestResource(t, Options{Name: "users", UI: UI{"formComponent": "UserForm", "updateFormComponent": "EditForm"}})
	assert.Equal(t, "UserForm", r.UI()["createFormComponent"])
	assert.Equal(t, "EditForm", r.UI()["updateFormComponent"])
}

func TestMergeParams(t *testing.T) {
	r := newTestResource(t, Options{
		Name:          "test",
		DefaultParams: engine.Params{"filters": engine.Filters{"category": 1}},
	})

	got := r.MergeParams(engine.Params{"foo": "bar", "filters": engine.Filters{"name": "test"}})
	assert.Equal(t, engine.Params{
		"foo":     "bar",
		"filters": engine.Filters{"category": 1, "name": "test"},
	}, got)
}

func TestDescribe(t *testing.T) {
	r := newTestResource(t, Options{
		Name:    "users",
		Actions: map[string]Action{"ban": {}, "approve": {}},
	})
	d := r.Describe()
	assert.Equal(t, "users", d.Name)
	assert.Equal(t, []string{"approve", "ban"}, d.Actions)
	assert.Nil(t, d.LastUpdate)

	r.SetDirty()
	assert.NotNil(t, r.Describe().LastUpdate)
}
