package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
)

// FieldError is one form field failure. Several are collected into a
// *multierror.Error by Validate and the clean helpers.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return IsPhoneNumber(fl.Field().String())
		})
	})
	return validate
}

// Validate runs the struct's validate tags and returns every failure.
func Validate(s interface{}) error {
	err := structValidator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	var result *multierror.Error
	for _, fe := range verrs {
		result = multierror.Append(result, FieldError{Field: fe.Field(), Message: tagMessage(fe)})
	}
	return result.ErrorOrNil()
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
	case "email":
		return "Enter a valid email address."
	case "oneof":
		return "Select a valid choice."
	case "phone":
		return "Enter a valid phone number."
	default:
		return "Invalid value."
	}
}

// FieldErrors flattens an error built from FieldErrors into field -> message.
// Messages for the same field are joined with a space.
func FieldErrors(err error) map[string]string {
	if err == nil {
		return nil
	}
	out := map[string]string{}
	var errs []error
	var merr *multierror.Error
	if errors.As(err, &merr) {
		errs = merr.Errors
	} else {
		errs = []error{err}
	}
	for _, e := range errs {
		var fe FieldError
		if errors.As(e, &fe) {
			if prev, ok := out[fe.Field]; ok {
				out[fe.Field] = prev + " " + fe.Message
			} else {
				out[fe.Field] = fe.Message
			}
			continue
		}
		out["__all__"] = e.Error()
	}
	return out
}
