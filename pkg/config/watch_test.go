package config

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/providers/memory"
	"github.com/openfroyo/rbkit/pkg/resource"
	"github.com/openfroyo/rbkit/pkg/telemetry"
)

type recorder struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (r *recorder) record(e telemetry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func testTelemetry(rec *recorder) *telemetry.Telemetry {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = false
	events := telemetry.NewEventPublisher(cfg.Events)
	events.Subscribe(rec.record, telemetry.FilterByType(telemetry.EventTypeConfigReloaded, telemetry.EventTypeConfigReloadFailed))
	return &telemetry.Telemetry{Logger: telemetry.NewNopLogger(), Events: events, Config: cfg}
}

func TestReloadRecordsOutcome(t *testing.T) {
	file := filepath.Join(t.TempDir(), "posts.yaml")
	writeFile(t, file, postsYAML)

	rec := &recorder{}
	loader := NewLoader(testTelemetry(rec))
	ctx := context.Background()

	var applied *Definitions
	require.NoError(t, loader.Reload(ctx, []string{file}, func(_ context.Context, defs *Definitions) (int, error) {
		applied = defs
		return len(defs.Resources), nil
	}))
	require.NotNil(t, applied)
	assert.Equal(t, []string{"posts"}, applied.Names())

	err := loader.Reload(ctx, []string{file}, func(context.Context, *Definitions) (int, error) {
		return 0, errors.New("boom")
	})
	assert.ErrorContains(t, err, "boom")

	writeFile(t, file, "resources: [")
	assert.Error(t, loader.Reload(ctx, []string{file}, func(context.Context, *Definitions) (int, error) {
		t.Fatal("apply called with invalid definitions")
		return 0, nil
	}))

	assert.Equal(t, []string{
		telemetry.EventTypeConfigReloaded,
		telemetry.EventTypeConfigReloadFailed,
		telemetry.EventTypeConfigReloadFailed,
	}, rec.types())
}

func TestWatchReappliesDefinitions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "posts.yaml"), postsYAML)

	rec := &recorder{}
	tel := testTelemetry(rec)
	loader := NewLoader(tel)
	builder := NewBuilder(map[string]engine.DataProvider{"api": memory.New()})
	m, err := resource.NewManager()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apply := ApplyTo(builder, m)
	require.NoError(t, loader.Reload(ctx, []string{dir}, apply))
	assert.Equal(t, []string{"posts"}, m.GetAllResourceNames())

	require.NoError(t, loader.Watch(ctx, []string{dir}, apply))
	defer loader.StopWatching()

	writeFile(t, filepath.Join(dir, "tags.json"), `{"resources": [{"name": "tags", "provider": "api"}]}`)

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"posts", "tags"}, m.GetAllResourceNames())
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatchPicksUpNewDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "posts.yaml"), postsYAML)

	loader := NewLoader(nil)
	builder := NewBuilder(map[string]engine.DataProvider{"api": memory.New()})
	m, err := resource.NewManager()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, loader.Watch(ctx, []string{dir}, ApplyTo(builder, m)))
	defer loader.StopWatching()

	writeFile(t, filepath.Join(dir, "extra", "tags.json"), `{"resources": [{"name": "tags", "provider": "api"}]}`)
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"posts", "tags"}, m.GetAllResourceNames())
	}, 5*time.Second, 50*time.Millisecond)

	writeFile(t, filepath.Join(dir, "extra", "users.json"), `{"resources": [{"name": "users", "provider": "api"}]}`)
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"posts", "tags", "users"}, m.GetAllResourceNames())
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatchMissingPath(t *testing.T) {
	err := NewLoader(nil).Watch(context.Background(), []string{"/does/not/exist"}, nil)
	assert.Error(t, err)
}
