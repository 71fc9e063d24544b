// Package schema validates inbound records against declarative descriptors.
// Field rules live as struct tags on the model types; this package owns the
// validator instance and the custom rules the tags reference.
package schema

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/oncoregistry/ingest/pkg/model"
)

// Validator checks records before they reach the store.
type Validator struct {
	validate *validator.Validate
}

// New builds a validator with the service's custom rules registered.
func New() (*Validator, error) {
	v := validator.New()
	if err := v.RegisterValidation("progress", validProgress); err != nil {
		return nil, fmt.Errorf("register progress rule: %w", err)
	}
	return &Validator{validate: v}, nil
}

// Validate checks a record against its struct tags.
func (v *Validator) Validate(record interface{}) error {
	if err := v.validate.Struct(record); err != nil {
		var invalid *validator.InvalidValidationError
		if ok := asInvalid(err, &invalid); ok {
			return fmt.Errorf("validate record: %w", err)
		}
		return fmt.Errorf("invalid record: %s", describe(err))
	}
	return nil
}

func asInvalid(err error, target **validator.InvalidValidationError) bool {
	if e, ok := err.(*validator.InvalidValidationError); ok {
		*target = e
		return true
	}
	return false
}

// describe renders validation failures without leaking struct internals.
func describe(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msg := ""
	for i, fe := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("field %s failed rule %s", fe.Field(), fe.Tag())
	}
	return msg
}

// validProgress accepts the known job progress states and the empty string.
func validProgress(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", model.ProgressInProgress, model.ProgressCompleted,
		model.ProgressAborted, model.ProgressFailed:
		return true
	}
	return false
}
