package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/providers/memory"
	"github.com/openfroyo/rbkit/pkg/resource"
	"github.com/openfroyo/rbkit/pkg/telemetry"
)

func loadPosts(t *testing.T) *Definitions {
	t.Helper()
	defs, err := NewLoader(nil).Parse([]byte(postsYAML), "yaml")
	require.NoError(t, err)
	return defs
}

func seededProvider(t *testing.T) *memory.Provider {
	t.Helper()
	p := memory.New()
	require.NoError(t, p.Seed("posts",
		engine.Record{"id": 1, "title": "Hello", "status": "draft"},
		engine.Record{"id": 2, "title": "World", "status": "published"},
	))
	return p
}

func TestBuild(t *testing.T) {
	b := NewBuilder(map[string]engine.DataProvider{"api": seededProvider(t)})

	resources, err := b.Build(loadPosts(t))
	require.NoError(t, err)
	require.Len(t, resources, 1)

	posts := resources[0]
	assert.Equal(t, "posts", posts.Name())
	assert.Equal(t, "Posts", posts.Label())
	assert.Equal(t, "title", posts.DisplayAttr())
	assert.Equal(t, engine.Params{"limit": 20}, posts.DefaultParams())
	assert.Equal(t, []string{"title", "status"}, posts.CreateSchema().Names())

	var cols []string
	for _, c := range posts.Columns() {
		cols = append(cols, c.Name)
	}
	assert.Equal(t, []string{"title", "id", "status"}, cols)

	comments, err := posts.Relation("comments", 1)
	require.NoError(t, err)
	assert.Equal(t, "posts/1/comments", comments.Path())
	assert.Equal(t, "comments", comments.Name())
}

func TestBuildUnknownProvider(t *testing.T) {
	_, err := NewBuilder(nil).Build(loadPosts(t))
	assert.ErrorContains(t, err, `unknown provider "api"`)
}

func TestBuildRejectsBadActions(t *testing.T) {
	b := NewBuilder(map[string]engine.DataProvider{"api": memory.New()})

	_, err := b.Build(&Definitions{Resources: []ResourceDefinition{{
		Name: "posts", Provider: "api",
		Actions: map[string]ActionDefinition{"x": {Script: "result = 1", Visible: "record[", Timeout: ""}},
	}}})
	assert.ErrorContains(t, err, "invalid visibility expression")

	_, err = b.Build(&Definitions{Resources: []ResourceDefinition{{
		Name: "posts", Provider: "api",
		Actions: map[string]ActionDefinition{"x": {Script: "result = 1", Timeout: "soon"}},
	}}})
	assert.ErrorContains(t, err, "invalid timeout")
}

func TestScriptedAction(t *testing.T) {
	provider := seededProvider(t)
	resources, err := NewBuilder(map[string]engine.DataProvider{"api": provider}).Build(loadPosts(t))
	require.NoError(t, err)
	posts := resources[0]
	ctx := context.Background()

	draft, err := posts.GetOne(ctx, 1, nil)
	require.NoError(t, err)
	published, err := posts.GetOne(ctx, 2, nil)
	require.NoError(t, err)

	publish := posts.GetActions()["publish"]
	assert.Equal(t, "Publish", publish.Label)
	assert.True(t, publish.Visible(draft.Record()))
	assert.False(t, publish.Visible(published.Record()))
	assert.False(t, publish.Visible())

	out, err := publish.Run(ctx, draft.Record())
	require.NoError(t, err)
	assert.Equal(t, "published", out.(map[string]any)["status"])
	assert.True(t, posts.IsDirty())

	after, err := posts.GetOne(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "published", after.Record()["status"])
}

func TestScriptedActionBuiltins(t *testing.T) {
	b := NewBuilder(map[string]engine.DataProvider{"api": seededProvider(t)})
	resources, err := b.Build(&Definitions{Resources: []ResourceDefinition{{
		Name:     "posts",
		Provider: "api",
		Actions: map[string]ActionDefinition{
			"titles": {Script: `
titles = [p["title"] for p in get_many({"sort": "title", "order": "desc"})]
result = {"resource": resource["name"], "titles": titles, "args": args}
`},
			"copy": {Script: `
created = create_one({"title": record["title"] + " (copy)"})
delete_one(key)
result = created["title"]
`},
		},
	}}})
	require.NoError(t, err)
	posts := resources[0]
	ctx := context.Background()

	out, err := posts.GetActions()["titles"].Run(ctx, "x", 2)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"resource": "posts",
		"titles":   []any{"World", "Hello"},
		"args":     []any{"x", int64(2)},
	}, out)

	first, err := posts.GetOne(ctx, 1, nil)
	require.NoError(t, err)
	out, err = posts.GetActions()["copy"].Run(ctx, first.Record())
	require.NoError(t, err)
	assert.Equal(t, "Hello (copy)", out)

	_, err = posts.GetOne(ctx, 1, nil)
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestScriptedActionErrors(t *testing.T) {
	b := NewBuilder(map[string]engine.DataProvider{"api": memory.New()}, WithScriptTimeout(50*time.Millisecond))
	resources, err := b.Build(&Definitions{Resources: []ResourceDefinition{{
		Name:     "posts",
		Provider: "api",
		Actions: map[string]ActionDefinition{
			"missing": {Script: "result = get_one(99)"},
			"forever": {Script: "def spin():\n    for i in range(1000000000):\n        pass\nspin()\n"},
		},
	}}})
	require.NoError(t, err)
	actions := resources[0].GetActions()

	_, err = actions["missing"].Run(context.Background())
	assert.ErrorContains(t, err, "action missing")

	start := time.Now()
	_, err = actions["forever"].Run(context.Background())
	assert.ErrorContains(t, err, "cancelled")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestApply(t *testing.T) {
	provider := seededProvider(t)
	b := NewBuilder(map[string]engine.DataProvider{"api": provider})
	m, err := resource.NewManager()
	require.NoError(t, err)

	manual, err := resource.New(resource.Options{Name: "manual", Provider: provider})
	require.NoError(t, err)
	require.NoError(t, m.RegisterResource(manual))

	defs := loadPosts(t)
	defs.Resources = append(defs.Resources, ResourceDefinition{Name: "tags", Provider: "api"})
	_, err = b.Apply(m, defs)
	require.NoError(t, err)
	assert.Equal(t, []string{"manual", "posts", "tags"}, m.GetAllResourceNames())

	before, err := m.GetResourceByName("posts")
	require.NoError(t, err)

	_, err = b.Apply(m, loadPosts(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"manual", "posts"}, m.GetAllResourceNames())

	after, err := m.GetResourceByName("posts")
	require.NoError(t, err)
	assert.NotSame(t, before, after)

	_, err = b.Apply(m, &Definitions{Resources: []ResourceDefinition{{Name: "broken", Provider: "nope"}}})
	assert.Error(t, err)
	assert.Equal(t, []string{"manual", "posts"}, m.GetAllResourceNames())
}

func TestBuildWithTelemetry(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = false
	events := telemetry.NewEventPublisher(cfg.Events)
	var dirty []telemetry.Event
	events.Subscribe(func(e telemetry.Event) { dirty = append(dirty, e) }, telemetry.FilterByType(telemetry.EventTypeResourceDirty))
	tel := &telemetry.Telemetry{Logger: telemetry.NewNopLogger(), Events: events, Config: cfg}

	b := NewBuilder(map[string]engine.DataProvider{"api": seededProvider(t)}, WithTelemetry(tel))
	resources, err := b.Build(loadPosts(t))
	require.NoError(t, err)

	_, err = resources[0].DeleteOne(context.Background(), 2, nil)
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	assert.Equal(t, "posts", dirty[0].Resource)
}

func TestWithMethods(t *testing.T) {
	b := NewBuilder(map[string]engine.DataProvider{"api": seededProvider(t)}, WithMethods("posts", map[string]resource.Method{
		"count": func(ctx context.Context, r *resource.Resource, _ ...any) (any, error) {
			resp, err := r.GetMany(ctx, engine.Params{})
			if err != nil {
				return nil, err
			}
			return resp.Total, nil
		},
	}))
	resources, err := b.Build(loadPosts(t))
	require.NoError(t, err)

	count, ok := resources[0].Method("count")
	require.True(t, ok)
	n, err := count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestScriptInput(t *testing.T) {
	r, err := resource.New(resource.Options{Name: "posts", Provider: memory.New()})
	require.NoError(t, err)

	rec := engine.Record{"id": 7, "tags": []engine.Record{{"name": "go"}}}
	input, err := scriptInput(r, []any{rec, "extra"})
	require.NoError(t, err)
	assert.Equal(t, rec, input["record"])
	assert.Equal(t, 7, input["key"])
	assert.Len(t, input["args"], 2)

	input, err = scriptInput(r, []any{"plain"})
	require.NoError(t, err)
	assert.Nil(t, input["record"])
	assert.Nil(t, input["key"])
}
