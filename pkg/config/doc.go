// Package config loads declarative resource definitions and builds them
// into resources registered with a resource.Manager.
//
// # Overview
//
// Definitions are written in YAML, JSON or CUE. Each names the data
// provider the resource delegates to; the providers themselves are Go
// values handed to the Builder under those names. Schema properties keep
// the order they are written in, so derived columns follow the file.
//
// # Definition Structure
//
//	resources:
//	  - name: posts
//	    provider: api
//	    label: Blog posts
//	    display_attr: title
//	    default_params:
//	      limit: 20
//	    schema:
//	      type: object
//	      required: [title]
//	      properties:
//	        id: {type: integer}
//	        title: {type: string}
//	        status: {type: string, enum: [draft, published]}
//	    actions:
//	      publish:
//	        label: Publish
//	        visible: record != None and record["status"] == "draft"
//	        script: |
//	          result = update_one(key, {"status": "published"})
//	    relations:
//	      comments:
//	        path: comments
//
// CUE files are checked against a closed schema before decoding, so
// misspelt fields are reported with their CUE position. All formats are
// then validated with go-playground/validator.
//
// # Actions
//
// Actions are Starlark scripts. A script sees the resource, the call
// arguments and the record it was called on, may call the resource's
// operations through get_one, get_many, create_one, update_one and
// delete_one, and returns whatever it binds to "result". Scripts are
// cancelled with their context or after their timeout. Visibility
// expressions are evaluated with a step limit.
//
// # Hot Reload
//
// Loader.Watch reloads definitions when a file under the watched paths
// changes. ApplyTo re-registers the rebuilt resources with a Manager; the
// last registration under a name wins and resources that disappeared from
// the files are unregistered. Each reload is counted in the
// rbkit_config_reloads_total metric and published as an event.
package config
