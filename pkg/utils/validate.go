package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

func FormatValidationError(err error) map[string]string {
	result := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		result["body"] = err.Error()
		return result
	}

	for _, fe := range validationErrors {
		field := strings.ToLower(fe.Field())

		switch fe.Tag() {
		case "required":
			result[field] = fmt.Sprintf("%s is required", field)
		case "min":
			if fe.Kind().String() == "slice" {
				result[field] = fmt.Sprintf("%s must contain at least %s entries", field, fe.Param())
			} else {
				result[field] = fmt.Sprintf("%s must be at least %s", field, fe.Param())
			}
		case "max":
			result[field] = fmt.Sprintf("%s must be at most %s", field, fe.Param())
		case "gt":
			result[field] = fmt.Sprintf("%s must be greater than %s", field, fe.Param())
		case "gte":
			result[field] = fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
		case "oneof":
			result[field] = fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
		default:
			result[field] = fmt.Sprintf("%s is invalid", field)
		}
	}

	return result
}
