// Package user defines the user record and the conversions between its
// three shapes:
//
//   - external (Payload): the JSON body clients send and receive,
//     with the birth date as "DD/MM/YYYY" text.
//   - internal (User): the validated value handed around the service,
//     with the birth date as a calendar date.
//   - storage (Row): the positional tuple exchanged with the users table.
//
// Conversions are pure. The birth date stays a date value until ToExternal
// renders it, so a record read from the database is never re-parsed.
package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// BirthDateLayout is the Go reference layout for "DD/MM/YYYY".
const BirthDateLayout = "02/01/2006"

// User is the internal representation of a user record.
type User struct {
	// ID is the national identifier and the table's primary key.
	ID int64

	// Name is the user's full name. Never blank.
	Name string

	// BirthDate is a calendar date: midnight UTC, no time component.
	BirthDate time.Time
}

// Payload is the external (wire) representation.
//
// Fields are pointers so a key that is absent from the JSON body can be told
// apart from a key that is present with a zero value.
//
// Example:
//
//	{ "id": 12345678901, "name": "Fulano", "birth_date": "01/01/2000" }
type Payload struct {
	ID        *int64  `json:"id" validate:"required"`
	Name      *string `json:"name" validate:"required"`
	BirthDate *string `json:"birth_date" validate:"required"`
}

// payloadValidator reports fields by their JSON key. validator.Validate
// caches struct metadata and is safe for concurrent use.
var payloadValidator = newPayloadValidator()

func newPayloadValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate runs the structural checks (every key present).
//
// It satisfies validation.Validatable so the HTTP layer can reject an
// incomplete body before the service is reached. Value rules (positive ID,
// real calendar date) live in FromExternal.
func (p *Payload) Validate() error {
	return payloadValidator.Struct(p)
}

// Row is the storage representation: the (id, name, birth_date) tuple in
// column order.
type Row struct {
	ID        int64
	Name      string
	BirthDate time.Time
}

// Args returns the row as positional query arguments.
func (r Row) Args() []any {
	return []any{r.ID, r.Name, r.BirthDate}
}

// FromExternal validates a payload and converts it into a User.
//
// It fails with *ValidationError when a key is missing, the ID is not
// positive, the name is blank, or the birth date is not a real calendar date
// in DD/MM/YYYY form.
func FromExternal(p Payload) (User, error) {
	switch {
	case p.ID == nil:
		return User{}, missing("id")
	case p.Name == nil:
		return User{}, missing("name")
	case p.BirthDate == nil:
		return User{}, missing("birth_date")
	}

	if *p.ID <= 0 {
		return User{}, invalid("id", "must be a positive integer")
	}

	if strings.TrimSpace(*p.Name) == "" {
		return User{}, invalid("name", "must not be empty")
	}

	birthDate, err := ParseBirthDate(*p.BirthDate)
	if err != nil {
		return User{}, err
	}

	return User{
		ID:        *p.ID,
		Name:      *p.Name,
		BirthDate: birthDate,
	}, nil
}

// DecodeExternal decodes a raw JSON body and converts it with FromExternal.
// It serves callers outside the HTTP layer; the API decodes through Echo's
// binder, which reports the same reasons.
//
// A key with the wrong JSON type is reported as a missing field for that key,
// the same category as an absent key.
func DecodeExternal(data []byte) (User, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return User{}, &ValidationError{
				Field:  typeErr.Field,
				Reason: fmt.Sprintf("must be of type %s, got %s", jsonKind(typeErr.Field), typeErr.Value),
				kind:   ErrMissingField,
			}
		case errors.As(err, &typeErr):
			return User{}, &ValidationError{Field: "body", Reason: "must be a JSON object", kind: ErrMissingField}
		default:
			return User{}, &ValidationError{Field: "body", Reason: "is not valid JSON", kind: ErrMissingField}
		}
	}

	return FromExternal(p)
}

// ParseBirthDate parses a DD/MM/YYYY string into a date at midnight UTC.
// Impossible dates such as 31/02/2000 are rejected.
func ParseBirthDate(s string) (time.Time, error) {
	t, err := time.Parse(BirthDateLayout, s)
	if err != nil {
		return time.Time{}, &ValidationError{
			Field:  "birth_date",
			Reason: "must be a valid date in DD/MM/YYYY format",
			kind:   ErrInvalidField,
		}
	}

	return t, nil
}

// FromStorage builds a User from a stored row. The store enforces column
// types, so no validation is done; the date is only normalized to UTC
// midnight.
func FromStorage(r Row) User {
	return User{
		ID:        r.ID,
		Name:      r.Name,
		BirthDate: dateOnly(r.BirthDate),
	}
}

// ToStorage returns the row to insert.
func (u User) ToStorage() Row {
	return Row{
		ID:        u.ID,
		Name:      u.Name,
		BirthDate: dateOnly(u.BirthDate),
	}
}

// ToExternal renders the user for a response body.
func (u User) ToExternal() Payload {
	id := u.ID
	name := u.Name
	birthDate := u.BirthDate.Format(BirthDateLayout)

	return Payload{
		ID:        &id,
		Name:      &name,
		BirthDate: &birthDate,
	}
}

// ToExternalList renders a slice of users. A nil or empty input yields an
// empty, non-nil slice so it encodes as [] rather than null.
func ToExternalList(users []User) []Payload {
	out := make([]Payload, 0, len(users))
	for _, u := range users {
		out = append(out, u.ToExternal())
	}
	return out
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func jsonKind(field string) string {
	switch field {
	case "id":
		return "integer"
	default:
		return "string"
	}
}
