// Package validation wraps go-playground/validator with the field naming and
// messages used across the service.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kkkkikiki/redemption/internal/model"
)

var mobilePattern = regexp.MustCompile(`^5[0-9]{9}$`)

// Validator checks tagged structs and reports failures as model field errors
type Validator struct {
	v *validator.Validate
}

// New creates a validator that names fields by their json tag and knows the
// "mobile" rule: ten national digits starting with 5.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
		return mobilePattern.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// Fields validates in and returns one FieldError per rejected field
func (v *Validator) Fields(in any) ([]model.FieldError, error) {
	err := v.v.Struct(in)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, model.WrapError(model.ReasonInternal, "failed to validate input", err)
	}
	details := make([]model.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, model.FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return details, nil
}

// Check validates in and returns a ValidationFailed error when any field is rejected
func (v *Validator) Check(in any) error {
	details, err := v.Fields(in)
	if err != nil {
		return err
	}
	if len(details) > 0 {
		return model.ValidationError(details...)
	}
	return nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "mobile":
		return "must be a 10 digit mobile number starting with 5"
	default:
		return "is invalid"
	}
}
