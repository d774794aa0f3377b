package resource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/telemetry"
)

func TestReadsDelegateWithMergedParams(t *testing.T) {
	ctx := context.Background()
	p := new(mockProvider)
	r := newTestResource(t, Options{
		Name:          "users",
		Path:          "api/users",
		Provider:      p,
		DefaultParams: engine.Params{"limit": 10, "filters": engine.Filters{"active": true}},
	})

	want := &engine.Response{Data: []engine.Record{{"id": 1}}, Total: 1}
	p.On("GetMany", mock.Anything, "api/users", engine.Params{
		"limit":   10,
		"sort":    "name",
		"filters": engine.Filters{"active": true, "role": "admin"},
	}).Return(want, nil).Once()
	p.On("GetOne", mock.Anything, "api/users", 1, engine.Params{
		"limit":   10,
		"filters": engine.Filters{"active": true},
	}).Return(&engine.Response{Data: engine.Record{"id": 1}}, nil).Once()

	got, err := r.GetMany(ctx, engine.Params{"sort": "name", "filters": engine.Filters{"role": "admin"}})
	require.NoError(t, err)
	assert.Same(t, want, got)

	one, err := r.GetOne(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.Record{"id": 1}, one.Record())

	assert.False(t, r.IsDirty(), "reads must not mark the resource dirty")
	p.AssertExpectations(t)
}

func TestMutationsMarkDirtyOnSuccess(t *testing.T) {
	ctx := context.Background()
	params := engine.Params{"filters": engine.Filters{}}
	ok := &engine.Response{}

	tests := []struct {
		name  string
		setup func(p *mockProvider)
		call  func(r *Resource) (*engine.Response, error)
	}{
		{
			name:  "createOne",
			setup: func(p *mockProvider) { p.On("CreateOne", mock.Anything, "users", engine.Record{"name": "ada"}, params).Return(ok, nil) },
			call:  func(r *Resource) (*engine.Response, error) { return r.CreateOne(ctx, engine.Record{"name": "ada"}, nil) },
		},
		{
			name:  "updateOne",
			setup: func(p *mockProvider) { p.On("UpdateOne", mock.Anything, "users", 1, engine.Record{"name": "ada"}, params).Return(ok, nil) },
			call:  func(r *Resource) (*engine.Response, error) { return r.UpdateOne(ctx, 1, engine.Record{"name": "ada"}, nil) },
		},
		{
			name: "updateMany",
			setup: func(p *mockProvider) {
				p.On("UpdateMany", mock.Anything, "users", []engine.Record{{"id": 1}, {"id": 2}}, params).Return(ok, nil)
			},
			call: func(r *Resource) (*engine.Response, error) {
				return r.UpdateMany(ctx, []engine.Record{{"id": 1}, {"id": 2}}, nil)
			},
		},
		{
			name:  "deleteOne",
			setup: func(p *mockProvider) { p.On("DeleteOne", mock.Anything, "users", "abc", params).Return(ok, nil) },
			call:  func(r *Resource) (*engine.Response, error) { return r.DeleteOne(ctx, "abc", nil) },
		},
		{
			name:  "deleteMany",
			setup: func(p *mockProvider) { p.On("DeleteMany", mock.Anything, "users", []any{1, 2}, params).Return(ok, nil) },
			call:  func(r *Resource) (*engine.Response, error) { return r.DeleteMany(ctx, []any{1, 2}, nil) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(mockProvider)
			tt.setup(p)
			r := newTestResource(t, Options{Name: "users", Provider: p})

			var notified []time.Time
			r.AddListener(func(at time.Time) { notified = append(notified, at) })

			before := time.Now()
			resp, err := tt.call(r)
			require.NoError(t, err)
			assert.Same(t, ok, resp)

			assert.True(t, r.IsDirty())
			assert.False(t, r.LastUpdate().Before(before))
			require.Len(t, notified, 1)
			assert.Equal(t, r.LastUpdate(), notified[0])
			p.AssertExpectations(t)
		})
	}
}

func TestFailedMutationDoesNotMarkDirty(t *testing.T) {
	p := new(mockProvider)
	boom := errors.New("boom")
	p.On("CreateOne", mock.Anything, "users", mock.Anything, mock.Anything).Return(nil, boom)

	r := newTestResource(t, Options{Name: "users", Provider: p})
	called := false
	r.AddListener(func(time.Time) { called = true })

	_, err := r.CreateOne(context.Background(), engine.Record{}, nil)
	assert.Same(t, boom, err)
	assert.False(t, r.IsDirty())
	assert.False(t, called)
}

func TestNotImplementedProviderPropagates(t *testing.T) {
	r := newTestResource(t, Options{Name: "users", Provider: noopProvider{}})
	ctx := context.Background()

	_, err := r.GetMany(ctx, nil)
	assert.ErrorIs(t, err, engine.ErrNotImplemented)

	_, err = r.DeleteOne(ctx, 1, nil)
	assert.ErrorIs(t, err, engine.ErrNotImplemented)
	assert.False(t, r.IsDirty())
}

func TestProviderCallsAreInstrumented(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "disabled"
	tel, err := telemetry.NewTelemetry(cfg)
	require.NoError(t, err)

	var events []telemetry.Event
	tel.Events.Subscribe(func(e telemetry.Event) { events = append(events, e) }, nil)

	p := new(mockProvider)
	p.On("DeleteOne", mock.Anything, "users", 1, mock.Anything).Return(&engine.Response{}, nil)

	r := newTestResource(t, Options{Name: "users", Provider: p, Telemetry: tel})
	r.AddListener(tel.Events.DirtyListener(r.Name()))

	_, err = r.DeleteOne(context.Background(), 1, nil)
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, telemetry.EventTypeResourceDirty, events[0].Type)
	assert.Equal(t, "users", events[0].Resource)
}

func TestSetDirtyNotifiesInOrder(t *testing.T) {
	r := newTestResource(t, Options{Name: "users"})

	var order []int
	r.AddListener(func(time.Time) { order = append(order, 1) })
	r.AddListener(func(time.Time) { order = append(order, 2) })
	r.AddListener(func(time.Time) { order = append(order, 3) })

	r.SetDirty()
	assert.Equal(t, []int{1, 2, 3}, order)

	first := r.LastUpdate()
	time.Sleep(time.Millisecond)
	r.SetDirty()
	assert.True(t, r.LastUpdate().After(first))
}

func TestListenerPanicStopsNotification(t *testing.T) {
	r := newTestResource(t, Options{Name: "users"})

	reached := false
	r.AddListener(func(time.Time) { panic("listener failed") })
	r.AddListener(func(time.Time) { reached = true })

	assert.Panics(t, r.SetDirty)
	assert.False(t, reached)
	assert.True(t, r.IsDirty())
}

func TestAddAndRemoveListener(t *testing.T) {
	r := newTestResource(t, Options{Name: "users"})

	assert.Equal(t, ListenerID(0), r.AddListener(nil))
	assert.Equal(t, 0, r.ListenerCount())

	calls := 0
	fn := func(time.Time) { calls++ }
	a := r.AddListener(fn)
	b := r.AddListener(fn)
	assert.NotEqual(t, a, b)

	r.SetDirty()
	assert.Equal(t, 2, calls)

	r.RemoveListener(a)
	r.RemoveListener(a)
	r.RemoveListener(ListenerID(999))
	assert.Equal(t, 1, r.ListenerCount())

	r.SetDirty()
	assert.Equal(t, 3, calls)
}

func TestInitialListeners(t *testing.T) {
	calls := 0
	r := newTestResource(t, Options{
		Name:      "users",
		Listeners: []Listener{func(time.Time) { calls++ }, nil},
	})
	assert.Equal(t, 1, r.ListenerCount())
	r.SetDirty()
	assert.Equal(t, 1, calls)
}
