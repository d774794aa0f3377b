// Package validation checks resource payloads against JSON Schemas.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Violation is a single failed constraint.
type Violation struct {
	// Field is the dotted path of the offending attribute, "" for the payload itself.
	Field string `json:"field,omitempty"`

	// Message describes the failed constraint.
	Message string `json:"message"`
}

// Error is returned when a payload does not satisfy its schema.
type Error struct {
	Schema     string      `json:"schema"`
	Violations []Violation `json:"violations"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Field == "" {
			parts = append(parts, v.Message)
			continue
		}
		parts = append(parts, v.Field+": "+v.Message)
	}
	return fmt.Sprintf("payload does not match %s: %s", e.Schema, strings.Join(parts, "; "))
}

// Validator validates payloads against one compiled schema.
type Validator struct {
	name   string
	schema *jsonschema.Schema
}

// Compile compiles the JSON Schema document doc. name identifies the schema
// in error messages.
func Compile(name string, doc []byte) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	url := name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("failed to add schema %s: %w", name, err)
	}

	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	return &Validator{name: name, schema: schema}, nil
}

// CompileValue marshals v to JSON and compiles it.
func CompileValue(name string, v any) (*Validator, error) {
	doc, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema %s: %w", name, err)
	}
	return Compile(name, doc)
}

// Validate checks data against the schema. It returns *Error when data is
// invalid.
func (v *Validator) Validate(data any) error {
	normalized, err := normalize(data)
	if err != nil {
		return err
	}

	err = v.schema.Validate(normalized)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err
	}

	out := &Error{Schema: v.name}
	collect(verr, out)
	sort.SliceStable(out.Violations, func(i, j int) bool {
		return out.Violations[i].Field < out.Violations[j].Field
	})
	return out
}

// normalize round-trips data through JSON so Go values such as int or
// structs reach the validator as JSON types.
func normalize(data any) (any, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return out, nil
}

func collect(err *jsonschema.ValidationError, out *Error) {
	if len(err.Causes) == 0 {
		out.Violations = append(out.Violations, Violation{
			Field:   fieldFromPointer(err.InstanceLocation),
			Message: err.Message,
		})
		return
	}
	for _, cause := range err.Causes {
		collect(cause, out)
	}
}

func fieldFromPointer(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	return strings.ReplaceAll(ptr, "/", ".")
}
