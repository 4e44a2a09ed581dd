package sccm

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	sccmValidator *validator.Validate
	varNameRe     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// V returns the validator used for operation inputs.
func V() *validator.Validate {
	if sccmValidator == nil {
		sccmValidator = validator.New(validator.WithRequiredStructEnabled())
	}
	return sccmValidator
}

func varNameValidator(fl validator.FieldLevel) bool {
	return varNameRe.MatchString(fl.Field().String())
}

func noWildcardValidator(fl validator.FieldLevel) bool {
	return !strings.ContainsAny(fl.Field().String(), "*?")
}

func init() {
	V().RegisterValidation("varname", varNameValidator)
	V().RegisterValidation("nowildcard", noWildcardValidator)
}

// validate runs struct validation and reports the first failing field as an
// invalid argument.
func validate(v any) error {
	err := V().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return ErrInvalidInput.Suffix(describe(fe)).With("field", fe.Field())
	}
	return ErrInvalidInput.Err(err)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "varname":
		return fe.Field() + " may only contain letters, digits, '_' and '-': " + fe.Value().(string)
	case "nowildcard":
		return fe.Field() + " may not contain wildcards"
	case "max":
		return fe.Field() + " is longer than " + fe.Param() + " characters"
	}
	return fe.Field() + " failed " + fe.Tag() + " validation"
}
