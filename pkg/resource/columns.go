package resource

import (
	"encoding/json"
	"maps"
)

// Column describes how one attribute is displayed in list views.
// It serializes as {"name": Name, ...Spec}.
type Column struct {
	Name string
	Spec AttrSpec
}

// Get returns the value of attribute attr of the column spec.
func (c Column) Get(attr string) any {
	return c.Spec[attr]
}

// MarshalJSON flattens the column into a single object.
func (c Column) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Spec)+1)
	maps.Copy(out, c.Spec)
	out["name"] = c.Name
	return json.Marshal(out)
}

// MarshalYAML flattens the column into a single mapping.
func (c Column) MarshalYAML() (any, error) {
	out := make(map[string]any, len(c.Spec)+1)
	maps.Copy(out, c.Spec)
	out["name"] = c.Name
	return out, nil
}

// UnmarshalJSON reads a flattened column object.
func (c *Column) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	name, _ := raw["name"].(string)
	delete(raw, "name")
	*c = Column{Name: name, Spec: raw}
	return nil
}

// UnmarshalYAML reads a flattened column object.
func (c *Column) UnmarshalYAML(unmarshal func(any) error) error {
	var raw map[string]any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	name, _ := raw["name"].(string)
	delete(raw, "name")
	*c = Column{Name: name, Spec: raw}
	return nil
}

// columnsFromSchema derives one column per property in declaration order.
func columnsFromSchema(s *Schema) []Column {
	if s == nil {
		return nil
	}
	cols := make([]Column, 0, len(s.Properties))
	for _, p := range s.Properties {
		cols = append(cols, Column{Name: p.Name, Spec: AttrSpec(deepCopyMap(p.Spec))})
	}
	return cols
}
