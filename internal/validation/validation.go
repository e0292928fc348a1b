// Package validation binds request data and validates it, turning failures
// into errs.HTTPError values with per-field details.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/deppfellow/user-registry/internal/errs"
)

// Validatable is implemented by request types that validate themselves,
// usually with validator.Struct and tags.
type Validatable interface {
	Validate() error
}

// BindAndValidate binds the request into payload (a pointer) and validates
// it.
//
// Requests that cannot be decoded, and payloads missing required keys, get
// a 422. Any other error from Validate gets a 400.
func BindAndValidate(c echo.Context, payload Validatable) error {
	if err := c.Bind(payload); err != nil {
		return bindError(err)
	}

	if err := payload.Validate(); err != nil {
		return validationError(err)
	}

	return nil
}

// bindError reads the decoder error Echo keeps in HTTPError.Internal.
func bindError(err error) *errs.HTTPError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return errs.NewUnprocessableEntityError("Request body must be a JSON object", nil)
		}

		field := typeErr.Field
		return errs.NewUnprocessableEntityError("Validation failed: "+field+" has the wrong type", []errs.FieldError{
			{Field: field, Error: fmt.Sprintf("must be of type %s, got %s", typeName(typeErr.Type), typeErr.Value)},
		})
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errs.NewUnprocessableEntityError("Request body is not valid JSON", nil)
	}

	message := http.StatusText(http.StatusUnprocessableEntity)

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		if msg, ok := echoErr.Message.(string); ok && msg != "" {
			message = msg
		}
	}

	return errs.NewUnprocessableEntityError(message, nil)
}

func validationError(err error) *errs.HTTPError {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return errs.NewUnprocessableEntityError("Validation failed", extractFieldErrors(validationErrors))
	}

	return errs.NewBadRequestError(err.Error(), true, nil, nil)
}

func extractFieldErrors(validationErrors validator.ValidationErrors) []errs.FieldError {
	fieldErrors := make([]errs.FieldError, 0, len(validationErrors))

	for _, err := range validationErrors {
		msg := "is required"
		if err.Tag() != "required" {
			msg = fmt.Sprintf("failed the %q rule", err.Tag())
		}

		fieldErrors = append(fieldErrors, errs.FieldError{
			Field: strings.ToLower(err.Field()),
			Error: msg,
		})
	}

	return fieldErrors
}

// typeName reports JSON type names rather than Go ones.
func typeName(t reflect.Type) string {
	if t == nil {
		return "unknown"
	}

	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.String:
		return "string"
	default:
		return t.String()
	}
}
