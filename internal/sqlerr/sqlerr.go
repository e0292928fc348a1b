// Package sqlerr classifies PostgreSQL driver errors.
//
// It turns the SQLSTATE codes carried by *pgconn.PgError into a small enum
// the rest of the application can switch on (e.g. recognising a unique
// violation on insert), and converts leftover driver errors into
// client-safe HTTP errors for the global error handler.
package sqlerr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Code is the application-level category of a database error.
type Code string

const (
	Other               Code = "other"
	NotNullViolation    Code = "not_null_violation"
	ForeignKeyViolation Code = "foreign_key_violation"
	UniqueViolation     Code = "unique_violation"
	CheckViolation      Code = "check_violation"
	UndefinedTable      Code = "undefined_table"
	ConnectionFailure   Code = "connection_failure"
	SerializationFail   Code = "serialization_failure"
)

// Severity mirrors the PostgreSQL message severity.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityFatal   Severity = "FATAL"
	SeverityPanic   Severity = "PANIC"
	SeverityWarning Severity = "WARNING"
	SeverityNotice  Severity = "NOTICE"
	SeverityDebug   Severity = "DEBUG"
	SeverityInfo    Severity = "INFO"
	SeverityLog     Severity = "LOG"
)

// SQLSTATE values we care about.
// https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	sqlStateNotNullViolation    = "23502"
	sqlStateForeignKeyViolation = "23503"
	sqlStateUniqueViolation     = "23505"
	sqlStateCheckViolation      = "23514"
	sqlStateUndefinedTable      = "42P01"
	sqlStateSerialization       = "40001"
)

// Error is the normalized form of a *pgconn.PgError.
type Error struct {
	Code           Code
	Severity       Severity
	DatabaseCode   string
	Message        string
	SchemaName     string
	TableName      string
	ColumnName     string
	DataTypeName   string
	ConstraintName string

	driverErr error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Severity, e.DatabaseCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.driverErr
}

// MapCode maps a SQLSTATE string onto a Code.
//
// Class 08 (connection exception) is matched by prefix.
func MapCode(sqlState string) Code {
	switch sqlState {
	case sqlStateNotNullViolation:
		return NotNullViolation
	case sqlStateForeignKeyViolation:
		return ForeignKeyViolation
	case sqlStateUniqueViolation:
		return UniqueViolation
	case sqlStateCheckViolation:
		return CheckViolation
	case sqlStateUndefinedTable:
		return UndefinedTable
	case sqlStateSerialization:
		return SerializationFail
	}

	if len(sqlState) == 5 && sqlState[:2] == "08" {
		return ConnectionFailure
	}

	return Other
}

// MapSeverity maps the driver's severity string onto a Severity.
// Unknown values are treated as ERROR.
func MapSeverity(severity string) Severity {
	switch s := Severity(severity); s {
	case SeverityError, SeverityFatal, SeverityPanic, SeverityWarning,
		SeverityNotice, SeverityDebug, SeverityInfo, SeverityLog:
		return s
	default:
		return SeverityError
	}
}

// IsUniqueViolation reports whether err (or anything it wraps) is a
// PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return MapCode(pgErr.Code) == UniqueViolation
	}

	return ErrCode(err) == UniqueViolation
}
