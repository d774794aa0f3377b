package policy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/rbkit/pkg/engine"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop(), opts...)
	require.NoError(t, err)
	return eng
}

func TestNewEngineLoadsBuiltins(t *testing.T) {
	eng := newTestEngine(t)

	var names []string
	for _, p := range eng.ListPolicies() {
		names = append(names, p.Name)
		assert.True(t, p.Builtin)
	}
	assert.Equal(t, []string{
		"admin-full-access",
		"authenticated-read",
		"require-authentication",
		"role-permissions",
		"tenant-isolation",
	}, names)
}

func TestAuthorizeBuiltins(t *testing.T) {
	eng := newTestEngine(t, WithData(map[string]any{
		"roles": map[string]any{
			"editor":    []any{"create", "update"},
			"superuser": []any{"*"},
		},
	}))

	admin := &engine.User{ID: "1", Roles: []string{"admin"}}
	viewer := &engine.User{ID: "2"}
	editor := &engine.User{ID: "3", Roles: []string{"editor"}}
	super := &engine.User{ID: "4", Roles: []string{"superuser"}}
	tenantUser := &engine.User{ID: "5", Tenant: "acme", Roles: []string{"admin"}}

	tests := []struct {
		name    string
		input   Input
		allowed bool
	}{
		{"anonymous is denied", Input{Action: "list"}, false},
		{"admin may delete", Input{User: admin, Action: "delete"}, true},
		{"viewer may list", Input{User: viewer, Action: "list"}, true},
		{"viewer may not delete", Input{User: viewer, Action: "delete"}, false},
		{"editor may update", Input{User: editor, Action: "update"}, true},
		{"editor may not delete", Input{User: editor, Action: "delete"}, false},
		{"wildcard role", Input{User: super, Action: "purge"}, true},
		{
			"same tenant record",
			Input{User: tenantUser, Action: "update", Subject: Subject{Resource: "posts", Record: map[string]any{"tenant": "acme"}}},
			true,
		},
		{
			"other tenant record",
			Input{User: tenantUser, Action: "update", Subject: Subject{Resource: "posts", Record: map[string]any{"tenant": "globex"}}},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := eng.Authorize(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed)
		})
	}
}

func TestWithNilData(t *testing.T) {
	var eng *Engine
	require.NotPanics(t, func() { eng = newTestEngine(t, WithData(nil)) })

	d, err := eng.Authorize(context.Background(), Input{
		User:   &engine.User{ID: "1", Roles: []string{"admin"}},
		Action: "delete",
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAuthorizeReportsDenyReasons(t *testing.T) {
	eng := newTestEngine(t)

	d, err := eng.Authorize(context.Background(), Input{
		User:    &engine.User{ID: "1", Tenant: "acme", Roles: []string{"admin"}},
		Action:  "show",
		Subject: Subject{Record: map[string]any{"tenant": "globex"}},
	})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, []string{"record belongs to tenant globex"}, d.Reasons)

	d, err = eng.Authorize(context.Background(), Input{Action: "show"})
	require.NoError(t, err)
	assert.Equal(t, []string{"authentication required"}, d.Reasons)
}

func TestAuthorizeWithoutPoliciesDenies(t *testing.T) {
	eng := newTestEngine(t, WithoutBuiltins())

	d, err := eng.Authorize(context.Background(), Input{
		User:   &engine.User{ID: "1", Roles: []string{"admin"}},
		Action: "list",
	})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestAddPolicies(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	user := &engine.User{ID: "7", Username: "ops"}

	d, err := eng.Authorize(ctx, Input{User: user, Action: "restart"})
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	require.NoError(t, eng.AddPolicies(ctx, Policy{
		Name:    "ops-restart",
		Enabled: true,
		Rego: `package rbkit.authz

import rego.v1

allow if {
	input.user.username == "ops"
	input.action == "restart"
}
`,
	}))

	d, err = eng.Authorize(ctx, Input{User: user, Action: "restart"})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAddPoliciesRejectsInvalidRego(t *testing.T) {
	eng := newTestEngine(t)
	before := len(eng.ListPolicies())

	err := eng.AddPolicies(context.Background(), Policy{
		Name:    "broken",
		Enabled: true,
		Rego:    "package rbkit.authz\n\nallow if {",
	})
	assert.Error(t, err)
	assert.Len(t, eng.ListPolicies(), before)

	_, err = eng.GetPolicy("broken")
	assert.Error(t, err)
}

func TestReplacePoliciesKeepsBuiltins(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	custom := Policy{Name: "custom", Enabled: true, Rego: "package rbkit.authz\n\nimport rego.v1\n\nallow if input.action == \"ping\"\n"}
	require.NoError(t, eng.AddPolicies(ctx, custom))
	require.NoError(t, eng.ReplacePolicies(ctx, nil))

	_, err := eng.GetPolicy("custom")
	assert.Error(t, err)
	_, err = eng.GetPolicy("admin-full-access")
	assert.NoError(t, err)
}

func TestDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	viewer := &engine.User{ID: "2"}

	require.NoError(t, eng.DisablePolicy(ctx, "authenticated-read"))
	d, err := eng.Authorize(ctx, Input{User: viewer, Action: "list"})
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	require.NoError(t, eng.EnablePolicy(ctx, "authenticated-read"))
	d, err = eng.Authorize(ctx, Input{User: viewer, Action: "list"})
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	assert.Error(t, eng.EnablePolicy(ctx, "missing"))
}
