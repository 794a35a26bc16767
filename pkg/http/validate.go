package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// ValidationError is one failed rule, reported per field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

var validate = validator.New()

// RegisterValidation adds a custom validation tag to the shared validator.
// Handlers register domain rules (duration strings, clock times) at init.
func RegisterValidation(tag string, fn validator.Func) error {
	return validate.RegisterValidation(tag, fn)
}

// ReadAndValidateRequest binds the request body into req, fills declared
// defaults and runs struct validation. A nil return means req is ready.
func ReadAndValidateRequest(c echo.Context, req interface{}) []ValidationError {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return toValidationErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			out = append(out, ValidationError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: fieldMessage(fe),
				Params:  fieldParams(fe),
			})
		}
		return out
	}

	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprintf("%v", he.Message)
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: msg}}
}

// comparisonFormats covers rules whose message is field-verb-param.
var comparisonFormats = map[string]string{
	"gt":      "%s must be greater than %s",
	"gtfield": "%s must be greater than %s",
	"gte":     "%s must be greater than or equal to %s",
	"lt":      "%s must be less than %s",
	"lte":     "%s must be less than or equal to %s",
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	if format, ok := comparisonFormats[fe.Tag()]; ok {
		return fmt.Sprintf(format, field, fe.Param())
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "max":
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		if fe.Type().Kind() == reflect.String {
			return fmt.Sprintf("%s must be %s %s characters", field, bound, fe.Param())
		}
		return fmt.Sprintf("%s must be %s %s", field, bound, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "duration":
		return fmt.Sprintf("%s must be a valid duration (e.g. 2h, 30m)", field)
	case "timeofday":
		return fmt.Sprintf("%s must be a clock time in HH:MM:SS form", field)
	case "flextime":
		return fmt.Sprintf("%s must be RFC3339 or unix seconds", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

func fieldParams(fe validator.FieldError) map[string]interface{} {
	switch fe.Tag() {
	case "min", "gte":
		return map[string]interface{}{"min": fe.Param()}
	case "max", "lte":
		return map[string]interface{}{"max": fe.Param()}
	case "gt", "lt":
		return map[string]interface{}{"value": fe.Param()}
	case "oneof":
		return map[string]interface{}{"options": strings.Split(fe.Param(), " ")}
	default:
		return nil
	}
}
