// Package validation checks API request bodies with struct tags and reports
// failures as validation errors keyed by JSON field name.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shirosync/shirosync-server/internal/domain"
	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
)

// Validator wraps go-playground/validator.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator with the list_status tag registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	_ = v.RegisterValidation("list_status", func(fl validator.FieldLevel) bool {
		_, ok := domain.ParseListStatus(fl.Field().String())
		return ok
	})
	return &Validator{v: v}
}

// Validate returns nil or a CodeValidation error whose details map each
// offending field to a short message.
func (v *Validator) Validate(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = describe(fe)
	}
	return domainerrors.ValidationWithDetails("validation failed", details)
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

func describe(fe validator.FieldError) string {
	p := fe.Param()
	switch fe.Tag() {
	case "required":
		return "is required"
	case "list_status":
		return "must be one of watching, completed, on_hold, dropped, plan_to_watch"
	case "oneof":
		return "must be one of " + p
	case "max":
		if fe.Kind() == reflect.Slice {
			return "must have at most " + p + " entries"
		}
		return "must be at most " + p + " characters"
	case "min":
		return "must be at least " + p + " characters"
	case "gt":
		return "must be greater than " + p
	case "gte":
		return "must be " + p + " or more"
	case "lte":
		return "must be " + p + " or less"
	case "url":
		return "must be a URL"
	}
	return "is invalid"
}
