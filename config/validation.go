package config

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/saltfishpr/resilience/retry"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			return f.Tag.Get("koanf")
		})
		_ = validate.RegisterValidation("backoff", func(fl validator.FieldLevel) bool {
			_, err := retry.ParseBackoff(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// ValidationError lists the invalid fields of a Config.
type ValidationError struct {
	Fields []FieldError
}

type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Validate checks cfg and returns a *ValidationError describing every
// invalid field.
func Validate(cfg *Config) error {
	err := getValidator().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	ve := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		field := fieldPath(fe.Namespace())
		ve.Fields = append(ve.Fields, FieldError{Field: field, Message: message(field, fe)})
	}
	return ve
}

// fieldPath turns Config.retry.budget.rate into retry.budget.rate.
func fieldPath(ns string) string {
	_, path, found := strings.Cut(ns, ".")
	if !found {
		return ns
	}
	return path
}

func message(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", field, strings.ToLower(fe.Param()))
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "backoff":
		return fmt.Sprintf("%s is not a valid backoff spec: %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
