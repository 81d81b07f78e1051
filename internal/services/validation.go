package services

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"egharbari/api/internal/apperrors"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names so messages match the request body.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// validateInput runs struct-tag validation and renders failures as a ValidationError
// listing every offending field.
func validateInput(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return apperrors.Validation("invalid input: %v", err)
	}
	msgs := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		msgs = append(msgs, describeFieldError(fe))
	}
	return apperrors.Validation("%s", strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.SplitN(fe.Namespace(), ".", 2)
	name := fe.Field()
	if len(field) == 2 {
		name = field[1]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", name)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", name)
	case "max":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", name, fe.Param())
	case "len":
		return fmt.Sprintf("%s must have length %s", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", name, fe.Param())
	}
	return fmt.Sprintf("%s is invalid (%s)", name, fe.Tag())
}

// ParseObjectID parses a hex id from a request, reporting malformed ids as not found.
func ParseObjectID(resource, hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(hex))
	if err != nil {
		return primitive.NilObjectID, apperrors.NotFound(resource)
	}
	return id, nil
}

// containsPattern builds a case-insensitive regex matching q literally.
func containsPattern(q string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(strings.TrimSpace(q)), Options: "i"}
}

// exactPattern builds a case-insensitive regex matching exactly s.
func exactPattern(s string) primitive.Regex {
	return primitive.Regex{Pattern: "^" + regexp.QuoteMeta(strings.TrimSpace(s)) + "$", Options: "i"}
}

// storeError classifies an error from the store: typed errors pass through, anything else is
// wrapped as unexpected with context.
func storeError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Unexpected(fmt.Errorf(format+": %w", append(args, err)...), "internal error")
}
