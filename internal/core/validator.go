package core

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"stockwatch/internal/types"
)

// validate is the package-level validator instance. go-playground/validator
// caches struct metadata internally, so one shared instance is both the
// cheapest and the thread-safe option.
var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields under their JSON names so error details read like the
	// payload the client actually sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return v
}

// ValidateStruct runs the validate tags on a request struct and translates
// failures into a structured AppError:
//   - a failed "required" tag maps to validation_missing_required_field,
//   - any other failed tag maps to validation_invalid_field,
//
// with a details map of field name to failed constraint. The first failed
// field decides the top-level code; all failures appear in the details.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation target must be a struct", err)
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return types.NewAppError(types.ErrCodeValidationInvalidField, "request validation failed", err)
	}

	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		constraint := fe.Tag()
		if fe.Param() != "" {
			constraint += "=" + fe.Param()
		}
		details[fieldName(fe)] = constraint
	}

	code := types.ErrCodeValidationInvalidField
	message := "request validation failed"
	if verrs[0].Tag() == "required" {
		code = types.ErrCodeValidationMissingField
		message = "missing required field: " + fieldName(verrs[0])
	}

	return types.NewAppErrorWithDetails(code, message, err, details)
}

// fieldName renders the field path relative to the request struct, so a
// nested failure reads "config.datacenter" rather than
// "AddSubscriptionRequest.Config.Datacenter".
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	if ns == "" {
		return fe.Field()
	}
	return ns
}
