package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// AttrSpec is the JSON Schema fragment describing one attribute,
// e.g. {"type": "string", "title": "Name"}.
type AttrSpec map[string]any

// Property is a named attribute of a schema.
type Property struct {
	Name string
	Spec AttrSpec
}

// Schema is the object schema describing a resource instance. Properties
// keep their declaration order, which drives column order.
type Schema struct {
	// Type is the JSON Schema type, normally "object".
	Type string

	// Properties lists the attributes in declaration order.
	Properties []Property

	// Required lists required attribute names.
	Required []string

	// Extra holds any other top-level schema keywords.
	Extra map[string]any
}

// NewSchema creates an object schema with the given properties.
func NewSchema(props ...Property) *Schema {
	return &Schema{Type: "object", Properties: props}
}

// Prop is shorthand for building a Property.
func Prop(name string, spec AttrSpec) Property {
	return Property{Name: name, Spec: spec}
}

func defaultSchema(key string) *Schema {
	return NewSchema(Prop(key, AttrSpec{"type": "integer"}))
}

// Names returns the property names in declaration order.
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.Properties))
	for i, p := range s.Properties {
		names[i] = p.Name
	}
	return names
}

// Property returns the spec of the named property.
func (s *Schema) Property(name string) (AttrSpec, bool) {
	if s == nil {
		return nil, false
	}
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Spec, true
		}
	}
	return nil, false
}

// Has reports whether the schema declares the named property.
func (s *Schema) Has(name string) bool {
	_, ok := s.Property(name)
	return ok
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	c := &Schema{
		Type:     s.Type,
		Required: slices.Clone(s.Required),
		Extra:    deepCopyMap(s.Extra),
	}
	if s.Properties != nil {
		c.Properties = make([]Property, len(s.Properties))
		for i, p := range s.Properties {
			c.Properties[i] = Property{Name: p.Name, Spec: AttrSpec(deepCopyMap(p.Spec))}
		}
	}
	return c
}

// Without returns a deep copy of the schema with the named property removed
// from both the properties and the required list.
func (s *Schema) Without(name string) *Schema {
	c := s.Clone()
	c.Properties = slices.DeleteFunc(c.Properties, func(p Property) bool { return p.Name == name })
	c.Required = slices.DeleteFunc(c.Required, func(r string) bool { return r == name })
	return c
}

// MarshalJSON writes the schema with properties in declaration order.
func (s Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	field := func(name string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(name)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(b)
		return nil
	}

	if s.Type != "" {
		if err := field("type", s.Type); err != nil {
			return nil, err
		}
	}

	if !first {
		buf.WriteByte(',')
	}
	first = false
	buf.WriteString(`"properties":{`)
	for i, p := range s.Properties {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(p.Name)
		spec := p.Spec
		if spec == nil {
			spec = AttrSpec{}
		}
		v, err := json.Marshal(spec)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", p.Name, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')

	if len(s.Required) > 0 {
		if err := field("required", s.Required); err != nil {
			return nil, err
		}
	}

	for _, k := range slices.Sorted(maps.Keys(s.Extra)) {
		if err := field(k, s.Extra[k]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a schema, preserving the order of its properties.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Schema{}
	for k, v := range raw {
		switch k {
		case "type":
			if err := json.Unmarshal(v, &s.Type); err != nil {
				return fmt.Errorf("schema type: %w", err)
			}
		case "required":
			if err := json.Unmarshal(v, &s.Required); err != nil {
				return fmt.Errorf("schema required: %w", err)
			}
		case "properties":
			props, err := decodeOrderedProperties(v)
			if err != nil {
				return err
			}
			s.Properties = props
		default:
			var x any
			if err := json.Unmarshal(v, &x); err != nil {
				return err
			}
			if s.Extra == nil {
				s.Extra = make(map[string]any)
			}
			s.Extra[k] = x
		}
	}
	return nil
}

func decodeOrderedProperties(data []byte) ([]Property, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("schema properties: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("schema properties: expected object")
	}

	var props []Property
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("schema properties: %w", err)
		}
		name, _ := tok.(string)

		var spec AttrSpec
		if err := dec.Decode(&spec); err != nil {
			return nil, fmt.Errorf("schema property %s: %w", name, err)
		}
		props = append(props, Property{Name: name, Spec: spec})
	}
	return props, nil
}

// UnmarshalYAML reads a schema from YAML, preserving property order.
func (s *Schema) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: schema must be a mapping", node.Line)
	}

	*s = Schema{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		switch key {
		case "type":
			if err := val.Decode(&s.Type); err != nil {
				return err
			}
		case "required":
			if err := val.Decode(&s.Required); err != nil {
				return err
			}
		case "properties":
			if val.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: properties must be a mapping", val.Line)
			}
			for j := 0; j+1 < len(val.Content); j += 2 {
				var spec AttrSpec
				if err := val.Content[j+1].Decode(&spec); err != nil {
					return fmt.Errorf("property %s: %w", val.Content[j].Value, err)
				}
				s.Properties = append(s.Properties, Property{Name: val.Content[j].Value, Spec: spec})
			}
		default:
			var x any
			if err := val.Decode(&x); err != nil {
				return err
			}
			if s.Extra == nil {
				s.Extra = make(map[string]any)
			}
			s.Extra[key] = x
		}
	}
	return nil
}

// MarshalYAML writes the schema with properties in declaration order.
func (s Schema) MarshalYAML() (any, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, v any) error {
		var n yaml.Node
		if err := n.Encode(v); err != nil {
			return err
		}
		root.Content = append(root.Content, scalar(key), &n)
		return nil
	}

	if s.Type != "" {
		if err := add("type", s.Type); err != nil {
			return nil, err
		}
	}

	props := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range s.Properties {
		var n yaml.Node
		if err := n.Encode(map[string]any(p.Spec)); err != nil {
			return nil, err
		}
		props.Content = append(props.Content, scalar(p.Name), &n)
	}
	root.Content = append(root.Content, scalar("properties"), props)

	if len(s.Required) > 0 {
		if err := add("required", s.Required); err != nil {
			return nil, err
		}
	}
	for _, k := range slices.Sorted(maps.Keys(s.Extra)) {
		if err := add(k, s.Extra[k]); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return deepCopyMap(x)
	case AttrSpec:
		return AttrSpec(deepCopyMap(x))
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopyValue(e)
		}
		return out
	case []string:
		return slices.Clone(x)
	}
	return v
}
