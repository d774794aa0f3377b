package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/resource"
)

// Definitions is the content of one or more definition files.
type Definitions struct {
	// Resources are the resource definitions in file order.
	Resources []ResourceDefinition `yaml:"resources" json:"resources" validate:"dive"`

	// SourceFiles are the files the definitions were read from.
	SourceFiles []string `yaml:"-" json:"-"`

	// LoadedAt is when the definitions were read.
	LoadedAt time.Time `yaml:"-" json:"-"`
}

// Names returns the resource names in definition order.
func (d *Definitions) Names() []string {
	names := make([]string, len(d.Resources))
	for i, r := range d.Resources {
		names[i] = r.Name
	}
	return names
}

// Lookup returns the definition of the named resource.
func (d *Definitions) Lookup(name string) (*ResourceDefinition, bool) {
	for i := range d.Resources {
		if d.Resources[i].Name == name {
			return &d.Resources[i], true
		}
	}
	return nil, false
}

// ResourceDefinition declares a resource. Schemas keep the order their
// properties are written in.
type ResourceDefinition struct {
	// Name is the unique resource name. Relation templates default to
	// their relation name.
	Name string `yaml:"name" json:"name,omitempty"`

	// Provider names the data provider the resource delegates to. Relation
	// templates inherit the provider of their parent when empty.
	Provider string `yaml:"provider" json:"provider,omitempty"`

	Path          string `yaml:"path" json:"path,omitempty"`
	Key           string `yaml:"key" json:"key,omitempty"`
	Label         string `yaml:"label" json:"label,omitempty"`
	DisplayAttr   string `yaml:"display_attr" json:"display_attr,omitempty"`
	IsKeyEditable bool   `yaml:"is_key_editable" json:"is_key_editable,omitempty"`

	Schema       *resource.Schema `yaml:"schema" json:"schema,omitempty"`
	CreateSchema *resource.Schema `yaml:"create_schema" json:"create_schema,omitempty"`
	UpdateSchema *resource.Schema `yaml:"update_schema" json:"update_schema,omitempty"`

	// Columns override the columns derived from the schema.
	Columns []resource.Column `yaml:"columns" json:"columns,omitempty"`

	// DefaultParams are merged under the params of every provider call.
	DefaultParams map[string]any `yaml:"default_params" json:"default_params,omitempty"`

	// Actions are Starlark-scripted operations keyed by name.
	Actions map[string]ActionDefinition `yaml:"actions" json:"actions,omitempty" validate:"dive"`

	// Relations are sub-resource templates keyed by relation name.
	Relations map[string]ResourceDefinition `yaml:"relations" json:"relations,omitempty" validate:"dive"`

	UI map[string]any `yaml:"ui" json:"ui,omitempty"`
}

// ActionDefinition declares a scripted action.
type ActionDefinition struct {
	Label string `yaml:"label" json:"label,omitempty"`

	// Script is the Starlark program run by the action. The value it binds
	// to "result" is the action's result.
	Script string `yaml:"script" json:"script" validate:"required"`

	// Visible is an optional Starlark expression deciding whether the
	// action applies to a record.
	Visible string `yaml:"visible" json:"visible,omitempty"`

	// Timeout bounds a single run, e.g. "5s". Empty uses the evaluator
	// default.
	Timeout string `yaml:"timeout" json:"timeout,omitempty"`
}

// ValidationError represents a definition error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path of the error (e.g., "resources[0].name").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity"`
}

func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors is returned when definitions fail to parse or validate.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.String()
	}
	return fmt.Sprintf("invalid resource definitions: %s", strings.Join(msgs, "; "))
}

// ScriptResult represents the result of a Starlark run.
type ScriptResult struct {
	// Output holds the script's public globals.
	Output map[string]any `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}

func defaultParams(m map[string]any) engine.Params {
	if m == nil {
		return nil
	}
	return engine.Params(m)
}
