package validation

import (
	"errors"
	"fmt"
	"letsplay/pkg/logger"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// refID matches identifiers issued by other services, such as user and
// ground ids. No whitespace and no query operators.
var refID = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return v.Field + ": " + v.Message
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(parts, "; "))
}

func Single(field, message string) ValidationErrors {
	return ValidationErrors{{Field: field, Message: message}}
}

// New returns a validator with the ref_id tag registered.
func New(log *logger.Logger) *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("ref_id", func(fl validator.FieldLevel) bool {
		return refID.MatchString(fl.Field().String())
	}); err != nil {
		log.Fatal("Failed to register 'ref_id' validator", "error", err)
	}
	return v
}

// Struct validates s and converts tag failures into ValidationErrors.
func Struct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	var tagErrs validator.ValidationErrors
	if errors.As(err, &tagErrs) {
		return Translate(tagErrs)
	}
	return err
}

// messages renders a failed tag. Each format gets the field name and the tag
// parameter, in that order.
var messages = map[string]string{
	"required": "%s is required%.0s",
	"min":      "%s must be at least %s",
	"max":      "%s must be at most %s",
	"gte":      "%s must be greater than or equal to %s",
	"mongodb":  "%s must be a valid MongoDB ObjectID%.0s",
	"oneof":    "%s must be one of: %s",
	"gtfield":  "%s must be after %s",
	"ltefield": "%s must not exceed %s",
	"ref_id":   "%s may only contain letters, digits, '_', '.', ':' and '-'%.0s",
}

func Translate(errs validator.ValidationErrors) ValidationErrors {
	out := make(ValidationErrors, 0, len(errs))
	for _, fe := range errs {
		msg := fe.Error()
		if format, ok := messages[fe.Tag()]; ok {
			msg = fmt.Sprintf(format, fe.Field(), fe.Param())
		}
		out = append(out, ValidationError{Field: fe.Field(), Message: msg})
	}
	return out
}
