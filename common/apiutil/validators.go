// Package apiutil holds gin helpers shared by the HTTP handlers.
package apiutil

import (
	"reflect"
	"strings"

	apperrors "github.com/Aidin1998/teammatch/pkg/errors"
	"github.com/go-playground/validator/v10"
)

func NewValidator() *Validator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validate}
}

// Validator reports struct tag violations as a Validation error with one field entry per failure
type Validator struct {
	validator *validator.Validate
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validator.Struct(i); err != nil {
		validationErr := apperrors.Validation.Explain("validation error")
		var fieldsError validator.ValidationErrors
		if apperrors.As(err, &fieldsError) {
			for _, fieldErr := range fieldsError {
				validationErr = validationErr.WithField(fieldErr.Field(), "failed on "+fieldErr.Tag())
			}
		}
		return validationErr
	}
	return nil
}
