package engine

import "context"

// Credentials carries whatever a login requires, typically "username" and "password".
type Credentials map[string]any

// User is the authenticated principal returned by an AuthProvider.
type User struct {
	// ID is the stable identifier of the user.
	ID string `json:"id"`

	// Username is the login name.
	Username string `json:"username,omitempty"`

	// Tenant is the tenant the user belongs to, if any.
	Tenant string `json:"tenant,omitempty"`

	// Roles are the roles granted to the user.
	Roles []string `json:"roles,omitempty"`

	// Token is the session token issued at login.
	Token string `json:"-"`

	// Attributes carries provider-specific claims.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// HasRole reports whether the user has role.
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Identity describes a user or tenant for display.
type Identity struct {
	ID       string         `json:"id"`
	FullName string         `json:"fullName,omitempty"`
	Avatar   string         `json:"avatar,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// AuthProvider authenticates users and answers capability checks.
// Implementations must embed BaseAuthProvider.
type AuthProvider interface {
	// Login authenticates with credentials and starts a session.
	Login(ctx context.Context, credentials Credentials) (*User, error)

	// Logout ends the current session.
	Logout(ctx context.Context) error

	// CheckAuth returns the user of the current session, failing when there is none.
	CheckAuth(ctx context.Context) (*User, error)

	// GetIdentity describes user.
	GetIdentity(ctx context.Context, user *User) (*Identity, error)

	// GetTenantIdentity describes the tenant user belongs to.
	GetTenantIdentity(ctx context.Context, user *User) (*Identity, error)

	// Can reports whether user may perform action on subject.
	Can(ctx context.Context, user *User, action string, subject any) (bool, error)

	mustEmbedBaseAuthProvider()
}

// BaseAuthProvider implements every AuthProvider operation by failing with
// ErrNotImplemented. Can does not default to allowing anything.
type BaseAuthProvider struct{}

func (BaseAuthProvider) Login(context.Context, Credentials) (*User, error) {
	return nil, NotImplemented("login")
}

func (BaseAuthProvider) Logout(context.Context) error {
	return NotImplemented("logout")
}

func (BaseAuthProvider) CheckAuth(context.Context) (*User, error) {
	return nil, NotImplemented("checkAuth")
}

func (BaseAuthProvider) GetIdentity(context.Context, *User) (*Identity, error) {
	return nil, NotImplemented("getIdentity")
}

func (BaseAuthProvider) GetTenantIdentity(context.Context, *User) (*Identity, error) {
	return nil, NotImplemented("getTenantIdentity")
}

func (BaseAuthProvider) Can(context.Context, *User, string, any) (bool, error) {
	return false, NotImplemented("can")
}

func (BaseAuthProvider) mustEmbedBaseAuthProvider() {}
