package resource

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/telemetry"
)

func TestManagerRegisterAndLookup(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	users := newTestResource(t, Options{Name: "users"})
	posts := newTestResource(t, Options{Name: "posts"})
	require.NoError(t, m.RegisterResource(users))
	require.NoError(t, m.RegisterResource(posts))

	got, err := m.GetResourceByName("users")
	require.NoError(t, err)
	assert.Same(t, users, got)

	_, err = m.GetResourceByName("comments")
	assert.ErrorIs(t, err, engine.ErrInvalidResourceName)

	assert.Equal(t, []string{"users", "posts"}, m.GetAllResourceNames())
	assert.Equal(t, []*Resource{users, posts}, m.GetAllResources())
}

func TestManagerLastRegistrationWins(t *testing.T) {
	first := newTestResource(t, Options{Name: "users", Path: "v1/users"})
	other := newTestResource(t, Options{Name: "posts"})
	second := newTestResource(t, Options{Name: "users", Path: "v2/users"})

	m, err := NewManager(first, other, second)
	require.NoError(t, err)

	got, err := m.GetResourceByName("users")
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Equal(t, []string{"users", "posts"}, m.GetAllResourceNames())
	assert.Equal(t, 2, m.Len())
}

func TestManagerRejectsInvalidResources(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	assert.ErrorIs(t, m.RegisterResource(nil), engine.ErrInvalidResource)
	assert.ErrorIs(t, m.RegisterResource(&Resource{}), engine.ErrInvalidResource)

	_, err = NewManager(nil)
	assert.ErrorIs(t, err, engine.ErrInvalidResource)
}

func TestManagerCreateResource(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	r, err := m.CreateResource(Options{Name: "users", Provider: noopProvider{}})
	require.NoError(t, err)

	got, err := m.GetResourceByName("users")
	require.NoError(t, err)
	assert.Same(t, r, got)

	_, err = m.CreateResource(Options{Name: "broken"})
	assert.ErrorIs(t, err, engine.ErrMissingResourceDataProvider)
	_, err = m.GetResourceByName("broken")
	assert.ErrorIs(t, err, engine.ErrInvalidResourceName)
}

func TestManagerUnregister(t *testing.T) {
	a := newTestResource(t, Options{Name: "a"})
	b := newTestResource(t, Options{Name: "b"})
	m, err := NewManager(a, b)
	require.NoError(t, err)

	assert.True(t, m.UnregisterResource("a"))
	assert.False(t, m.UnregisterResource("a"))
	assert.Equal(t, []string{"b"}, m.GetAllResourceNames())
}

func TestManagerPublishesRegistrations(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "disabled"
	tel, err := telemetry.NewTelemetry(cfg)
	require.NoError(t, err)

	var names []string
	tel.Events.Subscribe(func(e telemetry.Event) { names = append(names, e.Resource) },
		telemetry.FilterByType(telemetry.EventTypeResourceRegistered))

	m, err := NewManager()
	require.NoError(t, err)
	m.SetTelemetry(tel)

	_, err = m.CreateResource(Options{Name: "users", Provider: noopProvider{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, names)
}

func TestManagerConcurrentAccess(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = m.CreateResource(Options{Name: "users", Provider: noopProvider{}})
		}()
		go func() {
			defer wg.Done()
			_ = m.GetAllResourceNames()
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"users"}, m.GetAllResourceNames())
}
