package policy

import (
	"time"

	"github.com/openfroyo/rbkit/pkg/engine"
)

// Package is the Rego package every policy module contributes to.
const Package = "rbkit.authz"

// Query is the document evaluated for every check.
const Query = "data." + Package

// Policy is a Rego module with its metadata.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Enabled indicates if the policy takes part in checks.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with the engine.
	Builtin bool `json:"builtin,omitempty"`

	// Metadata contains additional policy metadata, such as its source file.
	Metadata map[string]any `json:"metadata,omitempty"`

	// UpdatedAt is when the policy was last loaded.
	UpdatedAt time.Time `json:"updated_at"`
}

// Subject is what an action is performed on. Resource is the resource name
// and Record the record concerned, if any. Checks may pass any other value
// as subject too; it is handed to Rego as is.
type Subject struct {
	Resource string         `json:"resource,omitempty"`
	Record   map[string]any `json:"record,omitempty"`
}

// Input is the document a check evaluates policies against.
type Input struct {
	User    *engine.User  `json:"user"`
	Action  string        `json:"action"`
	Subject any           `json:"subject,omitempty"`
	Context *InputContext `json:"context,omitempty"`
}

// InputContext describes when and where a check happens.
type InputContext struct {
	Timestamp time.Time `json:"timestamp"`
	Tenant    string    `json:"tenant,omitempty"`
}

// Decision is the outcome of a check.
type Decision struct {
	// Allowed reports whether the action may proceed.
	Allowed bool `json:"allowed"`

	// Reasons lists the deny messages, if any.
	Reasons []string `json:"reasons,omitempty"`

	// EvaluatedAt is when the decision was taken.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}
