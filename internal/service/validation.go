package service

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var (
	ErrValidation = errors.New("validation error")
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
	MaxTagLength = 50
)

// ValidationError carries a message per offending field. It matches
// ErrValidation with errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// notblank живет в non-standard, регистрируем вручную
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// collectFieldErrors copies validator failures into fields. Errors that are
// not validation failures are returned unchanged.
func collectFieldErrors(err error, fields map[string]string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return "field required"
	case "notblank":
		return "must not be blank"
	case "min":
		if isString {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// normalizeTags trims, lower-cases and de-duplicates tag names, keeping the
// first occurrence order. The returned slice is never nil.
func normalizeTags(names []string) ([]string, string) {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" {
			return nil, "tag names must not be empty"
		}
		if utf8.RuneCountInString(n) > MaxTagLength {
			return nil, fmt.Sprintf("tag names must be at most %d characters", MaxTagLength)
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, ""
}
