package domain

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names so messages match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks the `validate` struct tags of v and reports the first
// violated constraint as an InvalidArgument error.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return InvalidArgument("invalid request: %v", err)
	}

	fe := ve[0]
	switch fe.Tag() {
	case "required":
		return InvalidArgument("%s is required", fe.Field())
	case "min":
		if fe.Kind() == reflect.String {
			return InvalidArgument("%s must have at least %s characters", fe.Field(), fe.Param())
		}
		return InvalidArgument("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return InvalidArgument("%s must have at most %s characters", fe.Field(), fe.Param())
		}
		return InvalidArgument("%s must be at most %s", fe.Field(), fe.Param())
	case "gte":
		return InvalidArgument("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	case "lte":
		return InvalidArgument("%s must be less than or equal to %s", fe.Field(), fe.Param())
	case "gt":
		return InvalidArgument("%s must be greater than %s", fe.Field(), fe.Param())
	case "len":
		return InvalidArgument("%s must have exactly %s characters", fe.Field(), fe.Param())
	case "numeric":
		return InvalidArgument("%s must contain only digits", fe.Field())
	default:
		return InvalidArgument("%s fails the %q constraint", fe.Field(), fe.Tag())
	}
}
