package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Violation names a single violated constraint on a single field.
type Violation struct {
	Field  string
	Reason string
}

func (v Violation) String() string {
	return v.Field + " " + v.Reason
}

// ValidationError enumerates every violated constraint found on a record,
// not just the first one.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	reasons := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		reasons[i] = v.String()
	}
	return "validation failed: " + strings.Join(reasons, "; ")
}

// Check runs field-level constraint tags on v and returns the violations
// found. Cross-field rules stay in the entity constructors.
func Check(v any) []Violation {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []Violation{{Field: "record", Reason: err.Error()}}
	}

	violations := make([]Violation, 0, len(errs))
	for _, fe := range errs {
		violations = append(violations, Violation{
			Field:  snakeCase(fe.Field()),
			Reason: reason(fe),
		})
	}
	return violations
}

func snakeCase(field string) string {
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters long", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "email":
		return "must be a valid email address"
	default:
		return fmt.Sprintf("violates constraint %q", fe.Tag())
	}
}
