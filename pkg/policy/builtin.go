package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		requireAuthenticationPolicy(),
		adminFullAccessPolicy(),
		authenticatedReadPolicy(),
		rolePermissionsPolicy(),
		tenantIsolationPolicy(),
	}
}

func builtin(name, description, src string) Policy {
	return Policy{
		Name:        name,
		Description: description,
		Rego:        src,
		Enabled:     true,
		Builtin:     true,
		Metadata:    map[string]any{"source": "builtin"},
		UpdatedAt:   time.Now(),
	}
}

// requireAuthenticationPolicy denies every check without a user.
func requireAuthenticationPolicy() Policy {
	return builtin(
		"require-authentication",
		"Denies every action to anonymous callers",
		`package rbkit.authz

import rego.v1

deny contains "authentication required" if {
	not input.user.id
}
`)
}

// adminFullAccessPolicy allows anything to admins.
func adminFullAccessPolicy() Policy {
	return builtin(
		"admin-full-access",
		"Users with the admin role may perform any action",
		`package rbkit.authz

import rego.v1

allow if {
	"admin" in input.user.roles
}
`)
}

// authenticatedReadPolicy allows read-only actions to any user.
func authenticatedReadPolicy() Policy {
	return builtin(
		"authenticated-read",
		"Authenticated users may list and show records",
		`package rbkit.authz

import rego.v1

read_actions := {"list", "show", "read", "export"}

allow if {
	input.user.id
	input.action in read_actions
}
`)
}

// rolePermissionsPolicy grants actions listed for a role in data.roles,
// e.g. {"roles": {"editor": ["create", "update"]}}. "*" grants every action.
func rolePermissionsPolicy() Policy {
	return builtin(
		"role-permissions",
		"Grants the actions listed per role in data.roles",
		`package rbkit.authz

import rego.v1

allow if {
	some role in input.user.roles
	some granted in data.roles[role]
	granted in {input.action, "*"}
}
`)
}

// tenantIsolationPolicy denies access to records of another tenant.
func tenantIsolationPolicy() Policy {
	return builtin(
		"tenant-isolation",
		"Records carrying a tenant are only accessible to users of that tenant",
		`package rbkit.authz

import rego.v1

deny contains msg if {
	record_tenant := input.subject.record.tenant
	input.user.tenant
	record_tenant != input.user.tenant
	msg := sprintf("record belongs to tenant %s", [record_tenant])
}
`)
}
