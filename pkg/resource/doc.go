// Package resource models remote API collections ("resources") and
// delegates their CRUD operations to an engine.DataProvider.
//
// A Resource is built from Options. Only Name and Provider are required;
// everything else has a default derived from them:
//
//	users, err := resource.New(resource.Options{
//	    Name:     "users",
//	    Provider: rest.New("https://api.example.com"),
//	    Schema: resource.NewSchema(
//	        resource.Prop("id", resource.AttrSpec{"type": "integer"}),
//	        resource.Prop("email", resource.AttrSpec{"type": "string", "format": "email"}),
//	    ),
//	})
//
// Read operations are pure delegation. Mutations mark the resource dirty
// after the provider succeeds, which updates LastUpdate and notifies the
// registered listeners in order. Relations bind a template resource below
// one instance of a parent (users/1/posts) and, by default, propagate their
// dirty notifications to the parent.
//
// A Manager keeps resources by name in registration order.
package resource
