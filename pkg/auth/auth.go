// Package auth provides an engine.AuthProvider issuing signed JWT session
// tokens for a configured set of users. The session token is kept in an
// engine.StorageProvider and capability checks are delegated to the
// policy engine.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/policy"
	"github.com/openfroyo/rbkit/pkg/telemetry"
)

// TokenKey is the storage key the session token is kept under.
const TokenKey = "rb.auth.token"

var (
	// ErrInvalidCredentials is returned by Login for unknown users or wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotAuthenticated is returned when there is no session.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInvalidToken is returned when the stored session token is expired,
	// tampered with or otherwise unusable. The token is discarded.
	ErrInvalidToken = errors.New("invalid session token")
)

// dummyHash is compared against when the username is unknown, so a failed
// login costs the same whether or not the user exists.
var dummyHash = sync.OnceValue(func() []byte {
	hash, _ := bcrypt.GenerateFromPassword([]byte("rbkit"), bcrypt.DefaultCost)
	return hash
})

// Authorizer decides capability checks.
type Authorizer interface {
	Authorize(ctx context.Context, input policy.Input) (*policy.Decision, error)
}

// UserConfig describes a user allowed to log in.
type UserConfig struct {
	ID           string         `yaml:"id" json:"id" validate:"required"`
	Username     string         `yaml:"username" json:"username" validate:"required"`
	PasswordHash string         `yaml:"password_hash" json:"password_hash" validate:"required"`
	FullName     string         `yaml:"full_name" json:"full_name,omitempty"`
	Avatar       string         `yaml:"avatar" json:"avatar,omitempty"`
	Tenant       string         `yaml:"tenant" json:"tenant,omitempty"`
	Roles        []string       `yaml:"roles" json:"roles,omitempty"`
	Attributes   map[string]any `yaml:"attributes" json:"attributes,omitempty"`
}

// TenantConfig describes a tenant.
type TenantConfig struct {
	Name   string `yaml:"name" json:"name"`
	Avatar string `yaml:"avatar" json:"avatar,omitempty"`
}

// Config configures a Provider.
type Config struct {
	// Issuer is the iss claim of issued tokens.
	Issuer string `yaml:"issuer" json:"issuer"`

	// Secret is the HMAC key tokens are signed with.
	Secret string `yaml:"secret" json:"-" validate:"required,min=16"`

	// TokenExpiry is how long a session lasts. Defaults to 24 hours.
	TokenExpiry time.Duration `yaml:"token_expiry" json:"token_expiry"`

	// Users are the accounts allowed to log in.
	Users []UserConfig `yaml:"users" json:"users" validate:"dive"`

	// Tenants describes tenants by ID.
	Tenants map[string]TenantConfig `yaml:"tenants" json:"tenants,omitempty"`
}

// Provider implements engine.AuthProvider.
type Provider struct {
	engine.BaseAuthProvider

	cfg        Config
	storage    engine.StorageProvider
	authorizer Authorizer
	tel        *telemetry.Telemetry
	now        func() time.Time
	byName     map[string]*UserConfig
	byID       map[string]*UserConfig
}

// Option configures a Provider.
type Option func(*Provider)

// WithAuthorizer sets who decides capability checks. Without one, Can
// fails with engine.ErrNotImplemented.
func WithAuthorizer(a Authorizer) Option {
	return func(p *Provider) {
		p.authorizer = a
	}
}

// WithTelemetry records capability decisions in t. Otherwise telemetry
// is taken from the context of each call.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(p *Provider) {
		p.tel = t
	}
}

// WithClock sets the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// New creates a provider keeping its session token in storage.
func New(cfg Config, storage engine.StorageProvider, opts ...Option) (*Provider, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	if storage == nil {
		return nil, fmt.Errorf("storage provider is required")
	}
	if cfg.TokenExpiry == 0 {
		cfg.TokenExpiry = 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "rbkit"
	}

	p := &Provider{
		cfg:     cfg,
		storage: storage,
		now:     time.Now,
		byName:  make(map[string]*UserConfig, len(cfg.Users)),
		byID:    make(map[string]*UserConfig, len(cfg.Users)),
	}
	for i := range cfg.Users {
		u := &p.cfg.Users[i]
		if _, dup := p.byName[u.Username]; dup {
			return nil, fmt.Errorf("duplicate username %q", u.Username)
		}
		p.byName[u.Username] = u
		p.byID[u.ID] = u
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// HashPassword returns the bcrypt hash to put in UserConfig.PasswordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type claims struct {
	Username string   `json:"username,omitempty"`
	Tenant   string   `json:"tenant,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Login checks the "username" and "password" credentials and starts a
// session. A true "remember" credential stores the token persistently.
func (p *Provider) Login(ctx context.Context, credentials engine.Credentials) (*engine.User, error) {
	username, _ := credentials["username"].(string)
	password, _ := credentials["password"].(string)
	remember, _ := credentials["remember"].(bool)

	u, ok := p.byName[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := p.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: u.Username,
		Tenant:   u.Tenant,
		Roles:    u.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.cfg.Issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.cfg.TokenExpiry)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString([]byte(p.cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	if err := p.storage.SetItem(ctx, TokenKey, signed, remember); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}

	telemetry.FromContext(ctx).WithField("user", u.Username).Debug("user logged in")

	user := p.userFromConfig(u)
	user.Token = signed
	return user, nil
}

// Logout forgets the session token.
func (p *Provider) Logout(ctx context.Context) error {
	return p.storage.RemoveItem(ctx, TokenKey)
}

// CheckAuth validates the stored session token and returns its user.
func (p *Provider) CheckAuth(ctx context.Context) (*engine.User, error) {
	signed, ok, err := p.storage.GetItem(ctx, TokenKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	if !ok || signed == "" {
		return nil, ErrNotAuthenticated
	}

	var c claims
	_, err = jwt.ParseWithClaims(signed, &c, func(*jwt.Token) (any, error) {
		return []byte(p.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.cfg.Issuer),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		_ = p.storage.RemoveItem(ctx, TokenKey)
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	user := &engine.User{
		ID:       c.Subject,
		Username: c.Username,
		Tenant:   c.Tenant,
		Roles:    c.Roles,
		Token:    signed,
	}
	if u, ok := p.byID[c.Subject]; ok && len(u.Attributes) > 0 {
		user.Attributes = u.Attributes
	}
	return user, nil
}

// GetIdentity describes user, or the session user when user is nil.
func (p *Provider) GetIdentity(ctx context.Context, user *engine.User) (*engine.Identity, error) {
	user, err := p.resolve(ctx, user)
	if err != nil {
		return nil, err
	}

	id := &engine.Identity{ID: user.ID, FullName: user.Username}
	if u, ok := p.byID[user.ID]; ok {
		if u.FullName != "" {
			id.FullName = u.FullName
		}
		id.Avatar = u.Avatar
	}
	return id, nil
}

// GetTenantIdentity describes the tenant of user, or of the session user
// when user is nil. It returns nil for users without a tenant.
func (p *Provider) GetTenantIdentity(ctx context.Context, user *engine.User) (*engine.Identity, error) {
	user, err := p.resolve(ctx, user)
	if err != nil {
		return nil, err
	}
	if user.Tenant == "" {
		return nil, nil
	}

	id := &engine.Identity{ID: user.Tenant, FullName: user.Tenant}
	if t, ok := p.cfg.Tenants[user.Tenant]; ok {
		if t.Name != "" {
			id.FullName = t.Name
		}
		id.Avatar = t.Avatar
	}
	return id, nil
}

// Can asks the authorizer whether user may perform action on subject.
// A string subject names a resource, a map is taken as a record and a
// policy.Subject is passed as is.
func (p *Provider) Can(ctx context.Context, user *engine.User, action string, subject any) (bool, error) {
	if p.authorizer == nil {
		return false, engine.NotImplemented("can")
	}

	decision, err := p.authorizer.Authorize(ctx, policy.Input{
		User:    user,
		Action:  action,
		Subject: toSubject(subject),
	})
	if err != nil {
		return false, err
	}

	tel := p.tel
	if tel == nil {
		tel = telemetry.FromTelemetryContext(ctx)
	}
	if tel != nil {
		tel.Metrics.RecordAuthzDecision(action, decision.Allowed)
		if !decision.Allowed {
			_ = tel.Events.PublishAccessDenied(userName(user), action, subjectName(subject))
		}
	}

	if !decision.Allowed {
		telemetry.FromContext(ctx).
			WithField("user", userName(user)).
			WithField("action", action).
			WithField("reasons", decision.Reasons).
			Debug("capability check denied")
	}
	return decision.Allowed, nil
}

func (p *Provider) resolve(ctx context.Context, user *engine.User) (*engine.User, error) {
	if user != nil {
		return user, nil
	}
	return p.CheckAuth(ctx)
}

func (p *Provider) userFromConfig(u *UserConfig) *engine.User {
	return &engine.User{
		ID:         u.ID,
		Username:   u.Username,
		Tenant:     u.Tenant,
		Roles:      u.Roles,
		Attributes: u.Attributes,
	}
}

func toSubject(subject any) any {
	switch s := subject.(type) {
	case nil:
		return nil
	case string:
		return policy.Subject{Resource: s}
	case engine.Record:
		return policy.Subject{Record: s}
	}
	return subject
}

func subjectName(subject any) string {
	switch s := subject.(type) {
	case string:
		return s
	case policy.Subject:
		return s.Resource
	case *policy.Subject:
		if s != nil {
			return s.Resource
		}
	}
	return ""
}

func userName(u *engine.User) string {
	switch {
	case u == nil:
		return "anonymous"
	case u.Username != "":
		return u.Username
	}
	return u.ID
}
