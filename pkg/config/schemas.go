package config

import (
	"fmt"

	"cuelang.org/go/cue"
)

// definitionsSchema constrains CUE definition files before they are
// decoded, so that mistakes are reported with CUE positions.
const definitionsSchema = `
#Definitions: {
	resources: [...#Resource]
}

#Resource: {
	name:             string & != ""
	provider?:        string
	path?:            string
	key?:             string
	label?:           string
	display_attr?:    string
	is_key_editable?: bool
	schema?:          #Schema
	create_schema?:   #Schema
	update_schema?:   #Schema
	columns?: [...{name: string, ...}]
	default_params?: {...}
	actions?: [string]: #Action
	relations?: [string]: {...}
	ui?: {...}
}

#Schema: {
	type?: string
	properties?: [string]: {...}
	required?: [...string]
	...
}

#Action: {
	label?:   string
	script:   string & != ""
	visible?: string
	timeout?: =~"^([0-9.]+(ns|us|µs|ms|s|m|h))+$"
}
`

// compileSchema compiles the definitions schema in ctx.
func compileSchema(ctx *cue.Context) (cue.Value, error) {
	val := ctx.CompileString(definitionsSchema, cue.Filename("definitions.cue"))
	if err := val.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to compile definitions schema: %w", err)
	}
	return val.LookupPath(cue.ParsePath("#Definitions")), nil
}
