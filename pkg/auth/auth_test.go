package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/policy"
	"github.com/openfroyo/rbkit/pkg/telemetry"
)

type memStorage struct {
	engine.BaseStorageProvider

	mu         sync.Mutex
	items      map[string]string
	persistent map[string]bool
}

func newMemStorage() *memStorage {
	return &memStorage{items: map[string]string{}, persistent: map[string]bool{}}
}

func (s *memStorage) GetItem(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *memStorage) SetItem(_ context.Context, key, value string, persistent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	s.persistent[key] = persistent
	return nil
}

func (s *memStorage) RemoveItem(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	delete(s.persistent, key)
	return nil
}

func (s *memStorage) IsItemPersistent(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistent[key], nil
}

type mockAuthorizer struct {
	mock.Mock
}

func (m *mockAuthorizer) Authorize(ctx context.Context, input policy.Input) (*policy.Decision, error) {
	args := m.Called(ctx, input)
	if d := args.Get(0); d != nil {
		return d.(*policy.Decision), args.Error(1)
	}
	return nil, args.Error(1)
}

func testConfig(t *testing.T) Config {
	t.Helper()
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	return Config{
		Secret: "0123456789abcdef0123456789abcdef",
		Users: []UserConfig{
			{ID: "u1", Username: "ada", PasswordHash: hash, FullName: "Ada Lovelace", Avatar: "ada.png", Tenant: "acme", Roles: []string{"admin"}},
			{ID: "u2", Username: "bob", PasswordHash: hash},
		},
		Tenants: map[string]TenantConfig{"acme": {Name: "ACME Corp", Avatar: "acme.png"}},
	}
}

func login(t *testing.T, p *Provider, username string, remember bool) *engine.User {
	t.Helper()
	user, err := p.Login(context.Background(), engine.Credentials{
		"username": username,
		"password": "s3cret",
		"remember": remember,
	})
	require.NoError(t, err)
	return user
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{}, newMemStorage())
	assert.Error(t, err)

	_, err = New(Config{Secret: "x"}, nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Users = append(cfg.Users, cfg.Users[0])
	_, err = New(cfg, newMemStorage())
	assert.Error(t, err)
}

func TestLoginStoresToken(t *testing.T) {
	storage := newMemStorage()
	p, err := New(testConfig(t), storage)
	require.NoError(t, err)

	user := login(t, p, "ada", true)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "acme", user.Tenant)
	assert.NotEmpty(t, user.Token)

	token, ok, _ := storage.GetItem(context.Background(), TokenKey)
	assert.True(t, ok)
	assert.Equal(t, user.Token, token)
	persistent, _ := storage.IsItemPersistent(context.Background(), TokenKey)
	assert.True(t, persistent)

	login(t, p, "bob", false)
	persistent, _ = storage.IsItemPersistent(context.Background(), TokenKey)
	assert.False(t, persistent)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	p, err := New(testConfig(t), newMemStorage())
	require.NoError(t, err)

	_, err = p.Login(context.Background(), engine.Credentials{"username": "ada", "password": "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = p.Login(context.Background(), engine.Credentials{"username": "nobody", "password": "s3cret"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUnknownUserHashMatchesConfiguredCost(t *testing.T) {
	cost, err := bcrypt.Cost(dummyHash())
	require.NoError(t, err)

	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	want, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, want, cost)
}

func TestCheckAuthRoundTrip(t *testing.T) {
	p, err := New(testConfig(t), newMemStorage())
	require.NoError(t, err)

	_, err = p.CheckAuth(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	login(t, p, "ada", false)

	user, err := p.CheckAuth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "ada", user.Username)
	assert.True(t, user.HasRole("admin"))

	require.NoError(t, p.Logout(context.Background()))
	_, err = p.CheckAuth(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestCheckAuthExpiredToken(t *testing.T) {
	storage := newMemStorage()
	now := time.Now()
	p, err := New(testConfig(t), storage, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	login(t, p, "ada", true)
	now = now.Add(25 * time.Hour)

	_, err = p.CheckAuth(context.Background())
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, ok, _ := storage.GetItem(context.Background(), TokenKey)
	assert.False(t, ok)
}

func TestCheckAuthTamperedToken(t *testing.T) {
	storage := newMemStorage()
	p, err := New(testConfig(t), storage)
	require.NoError(t, err)

	other := testConfig(t)
	other.Secret = "ffffffffffffffffffffffffffffffff"
	forger, err := New(other, storage)
	require.NoError(t, err)

	login(t, forger, "ada", false)
	_, err = p.CheckAuth(context.Background())
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentities(t *testing.T) {
	p, err := New(testConfig(t), newMemStorage())
	require.NoError(t, err)
	ctx := context.Background()

	login(t, p, "ada", false)

	id, err := p.GetIdentity(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, &engine.Identity{ID: "u1", FullName: "Ada Lovelace", Avatar: "ada.png"}, id)

	tenant, err := p.GetTenantIdentity(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, &engine.Identity{ID: "acme", FullName: "ACME Corp", Avatar: "acme.png"}, tenant)

	bob := &engine.User{ID: "u2", Username: "bob"}
	id, err = p.GetIdentity(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, "bob", id.FullName)

	tenant, err = p.GetTenantIdentity(ctx, bob)
	require.NoError(t, err)
	assert.Nil(t, tenant)
}

func TestCanWithoutAuthorizer(t *testing.T) {
	p, err := New(testConfig(t), newMemStorage())
	require.NoError(t, err)

	_, err = p.Can(context.Background(), &engine.User{ID: "u1"}, "delete", "posts")
	assert.True(t, engine.IsNotImplemented(err))
}

func TestCanDelegatesAndRecordsDenials(t *testing.T) {
	authz := &mockAuthorizer{}
	user := &engine.User{ID: "u2", Username: "bob"}

	authz.On("Authorize", mock.Anything, policy.Input{
		User: user, Action: "list", Subject: policy.Subject{Resource: "posts"},
	}).Return(&policy.Decision{Allowed: true}, nil)
	authz.On("Authorize", mock.Anything, policy.Input{
		User: user, Action: "delete", Subject: policy.Subject{Resource: "posts"},
	}).Return(&policy.Decision{Allowed: false, Reasons: []string{"nope"}}, nil)

	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = false
	events := telemetry.NewEventPublisher(cfg.Events)
	var denied []telemetry.Event
	events.Subscribe(func(e telemetry.Event) { denied = append(denied, e) }, telemetry.FilterByType(telemetry.EventTypeAccessDenied))

	tel := &telemetry.Telemetry{Logger: telemetry.NewNopLogger(), Events: events, Config: cfg}
	p, err := New(testConfig(t), newMemStorage(), WithAuthorizer(authz), WithTelemetry(tel))
	require.NoError(t, err)

	ok, err := p.Can(context.Background(), user, "list", "posts")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Can(context.Background(), user, "delete", "posts")
	require.NoError(t, err)
	assert.False(t, ok)

	require.Len(t, denied, 1)
	assert.Equal(t, "posts", denied[0].Resource)
	assert.Equal(t, "bob", denied[0].Data["user"])
	authz.AssertExpectations(t)
}

func TestCanPropagatesErrors(t *testing.T) {
	authz := &mockAuthorizer{}
	authz.On("Authorize", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	p, err := New(testConfig(t), newMemStorage(), WithAuthorizer(authz))
	require.NoError(t, err)

	_, err = p.Can(context.Background(), nil, "list", nil)
	assert.EqualError(t, err, "boom")
}

func TestCanWithPolicyEngine(t *testing.T) {
	eng, err := policy.NewEngine(zerolog.Nop())
	require.NoError(t, err)

	p, err := New(testConfig(t), newMemStorage(), WithAuthorizer(eng))
	require.NoError(t, err)
	ctx := context.Background()

	admin := login(t, p, "ada", false)
	ok, err := p.Can(ctx, admin, "delete", "posts")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Can(ctx, admin, "delete", engine.Record{"tenant": "globex"})
	require.NoError(t, err)
	assert.False(t, ok)

	bob := login(t, p, "bob", false)
	ok, err = p.Can(ctx, bob, "delete", "posts")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProviderSatisfiesContract(t *testing.T) {
	p, err := New(testConfig(t), newMemStorage())
	require.NoError(t, err)
	var _ engine.AuthProvider = p
}
