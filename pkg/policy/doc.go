// Package policy answers capability checks with Open Policy Agent.
//
// Policies are Rego modules in the rbkit.authz package. A check builds an
// Input from the user, the action and the subject, then evaluates
// data.rbkit.authz. The check is allowed when some policy sets allow and no
// policy adds a reason to the deny set.
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	decision, err := eng.Authorize(ctx, policy.Input{
//	    User:    user,
//	    Action:  "delete",
//	    Subject: policy.Subject{Resource: "posts", Record: rec},
//	})
//
// # Writing policies
//
// Modules must declare package rbkit.authz and import rego.v1:
//
//	package rbkit.authz
//
//	import rego.v1
//
//	# Editors may update posts
//	allow if {
//	    "editor" in input.user.roles
//	    input.action == "update"
//	    input.subject.resource == "posts"
//	}
//
// Extra documents passed with WithData are available under data, for
// example data.roles for role to permission tables.
//
// Loader reads .rego and .json policy files from files and directories and
// can watch them, calling back with the fresh set on every change.
package policy
