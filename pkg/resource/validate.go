package resource

import (
	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/validation"
)

// ValidateCreate checks data against the create schema. It returns a
// *validation.Error describing every violation.
func (r *Resource) ValidateCreate(data engine.Record) error {
	if err := r.compileValidators(); err != nil {
		return err
	}
	return r.createValidator.Validate(data)
}

// ValidateUpdate checks data against the update schema.
func (r *Resource) ValidateUpdate(data engine.Record) error {
	if err := r.compileValidators(); err != nil {
		return err
	}
	return r.updateValidator.Validate(data)
}

func (r *Resource) compileValidators() error {
	r.validatorsOnce.Do(func() {
		r.createValidator, r.validatorsErr = validation.CompileValue(r.name+".create", r.createSchema)
		if r.validatorsErr != nil {
			return
		}
		r.updateValidator, r.validatorsErr = validation.CompileValue(r.name+".update", r.updateSchema)
	})
	return r.validatorsErr
}
