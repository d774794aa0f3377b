package resource

import (
	"maps"
	"slices"
	"time"

	"github.com/openfroyo/rbkit/pkg/engine"
)

// Description is a serializable snapshot of a resource.
type Description struct {
	Name          string        `json:"name" yaml:"name"`
	Path          string        `json:"path" yaml:"path"`
	Key           string        `json:"key" yaml:"key"`
	Label         string        `json:"label" yaml:"label"`
	DisplayAttr   string        `json:"displayAttr" yaml:"displayAttr"`
	IsKeyEditable bool          `json:"isKeyEditable" yaml:"isKeyEditable"`
	Schema        *Schema       `json:"schema" yaml:"schema"`
	CreateSchema  *Schema       `json:"createSchema" yaml:"createSchema"`
	UpdateSchema  *Schema       `json:"updateSchema" yaml:"updateSchema"`
	Columns       []Column      `json:"columns" yaml:"columns"`
	DefaultParams engine.Params `json:"defaultParams,omitempty" yaml:"defaultParams,omitempty"`
	Actions       []string      `json:"actions,omitempty" yaml:"actions,omitempty"`
	Methods       []string      `json:"methods,omitempty" yaml:"methods,omitempty"`
	Relations     []string      `json:"relations,omitempty" yaml:"relations,omitempty"`
	UI            UI            `json:"ui,omitempty" yaml:"ui,omitempty"`
	LastUpdate    *time.Time    `json:"lastUpdate,omitempty" yaml:"lastUpdate,omitempty"`
}

// Describe returns a snapshot of the resource.
func (r *Resource) Describe() Description {
	d := Description{
		Name:          r.name,
		Path:          r.path,
		Key:           r.key,
		Label:         r.label,
		DisplayAttr:   r.displayAttr,
		IsKeyEditable: r.isKeyEditable,
		Schema:        r.Schema(),
		CreateSchema:  r.CreateSchema(),
		UpdateSchema:  r.UpdateSchema(),
		Columns:       r.Columns(),
		DefaultParams: r.DefaultParams(),
		Actions:       slices.Sorted(maps.Keys(r.actions)),
		Methods:       slices.Sorted(maps.Keys(r.methods)),
		Relations:     r.RelationNames(),
		UI:            r.UI(),
	}
	if t := r.LastUpdate(); !t.IsZero() {
		d.LastUpdate = &t
	}
	return d
}
