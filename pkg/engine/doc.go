// Package engine defines the contracts the resource core delegates to and the
// error taxonomy it reports.
//
// # Providers
//
// Three capability contracts are declared here:
//
//   - DataProvider: the CRUD transport a resource forwards its operations to
//   - AuthProvider: login, identity lookup and capability checks
//   - StorageProvider: a small key/value store with a per-item persistence flag
//
// Each contract has a Base struct whose methods all fail with ErrNotImplemented.
// Implementations embed the base and override the operations they support:
//
//	type UsersAPI struct {
//	    engine.BaseDataProvider
//	}
//
//	func (u *UsersAPI) GetMany(ctx context.Context, path string, params engine.Params) (*engine.Response, error) {
//	    ...
//	}
//
// Embedding the base is mandatory: every interface carries an unexported marker
// method that only the base supplies. New operations added to a contract later
// therefore fail with ErrNotImplemented instead of breaking implementations.
//
// # Errors
//
// Errors raised by the core are *Error values carrying one of a closed set of
// codes. Use errors.Is against the exported sentinels:
//
//	if errors.Is(err, engine.ErrInvalidResourceName) {
//	    ...
//	}
//
// Errors returned by providers are passed through unchanged.
package engine
