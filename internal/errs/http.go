// Package errs defines the error shape returned to API clients.
//
// Every failed request is answered with an HTTPError serialized as JSON, so
// clients always see the same fields:
//
//	{
//	  "code": "USER_ALREADY_EXISTS",
//	  "message": "a user with this ID already exists",
//	  "status": 400,
//	  "override": true,
//	  "errors": [{ "field": "id", "error": "already exists" }]
//	}
package errs

import "strings"

// FieldError is a field-level validation failure.
//
//	{ "field": "birth_date", "error": "must be a valid date in DD/MM/YYYY format" }
type FieldError struct {
	// Field is the JSON key the error relates to.
	Field string `json:"field"`

	// Error is the human-readable reason.
	Error string `json:"error"`
}

// HTTPError is the error type handed to the global error handler.
//
// Fields:
//   - Code: machine-friendly error code (e.g. "NOT_FOUND").
//   - Message: human-friendly message.
//   - Status: HTTP status code.
//   - Override: true when Message is meant to be shown to end users as is.
//   - Errors: per-field validation errors.
type HTTPError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
	Override bool   `json:"override"`

	Errors []FieldError `json:"errors"`
}

// Error returns the message, so logging the error prints what the client sees.
func (e *HTTPError) Error() string {
	return e.Message
}

// Is reports whether target is also an *HTTPError. Code and Status are not
// compared.
func (e *HTTPError) Is(target error) bool {
	_, ok := target.(*HTTPError)

	return ok
}

// MakeUpperCaseWithUnderscores converts "Bad Request" into "BAD_REQUEST".
func MakeUpperCaseWithUnderscores(str string) string {
	return strings.ToUpper(strings.ReplaceAll(str, " ", "_"))
}
