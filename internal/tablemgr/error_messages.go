package tablemgr

// error_messages.go maps technical errors to user-facing messages with a
// code for support reference.
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Type not registered: the entity type has no table declaration
//	CFG002 - Invalid declaration: empty name, duplicate column, or no primary key
//
// # Entity Errors (KEY001, ENT001, CAS001)
//
//	KEY001 - Missing key: a primary-key value is absent
//	ENT001 - Construction: an entity could not be constructed for hydration
//	CAS001 - Cascade depth: related entities nest too deeply (likely a cycle)
//
// # Database Errors (DB001-DB099)
//
// PostgreSQL SQLSTATE codes are matched first, then message patterns
// (case-insensitive, first match wins):
//
//	DB001 - Duplicate key        23505, "duplicate key", "unique constraint"
//	DB002 - Not null             23502, "not null constraint", "violates not-null"
//	DB003 - Foreign key          23503, "foreign key constraint"
//	DB004 - Connection refused   "connection refused"
//	DB005 - Connection reset     "connection reset", "conn closed"
//	DB006 - Timeout / cancelled  57014, "timeout", "context deadline exceeded"
//	DB007 - Deadlock             40P01, "deadlock"
//	DB008 - Unknown table/column 42P01, 42703, "no such table", "does not exist"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the logs for the original error.

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgNotRegistered = UserMessage{
		Message: "This record type is not mapped to a table",
		Action:  "Register the type before using it",
		Code:    "CFG001",
	}
	msgBadDeclaration = UserMessage{
		Message: "The table mapping for this record type is invalid",
		Action:  "Check the table name, column names, and primary key",
		Code:    "CFG002",
	}
	msgMissingKey = UserMessage{
		Message: "A record is missing its identifier",
		Action:  "Provide a value for every key field",
		Code:    "KEY001",
	}
	msgConstruction = UserMessage{
		Message: "Records of this type cannot be created",
		Action:  "Check the type's constructor",
		Code:    "ENT001",
	}
	msgCascadeDepth = UserMessage{
		Message: "Related records nest too deeply",
		Action:  "Check for circular relationships between records",
		Code:    "CAS001",
	}
	msgUnknown = UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again or contact support",
		Code:    "ERR000",
	}
)

// sqlStateMessages maps PostgreSQL SQLSTATE codes.
var sqlStateMessages = map[string]UserMessage{
	"23505": {Message: "A record with this key already exists", Action: "Use upsert or remove the duplicate", Code: "DB001"},
	"23502": {Message: "A required value is missing", Action: "Provide values for all required fields", Code: "DB002"},
	"23503": {Message: "Referenced record does not exist", Action: "Save parent records first", Code: "DB003"},
	"57014": {Message: "Operation timed out", Action: "Try a smaller batch or try again later", Code: "DB006"},
	"40P01": {Message: "Database was busy with conflicting operations", Action: "Please try again", Code: "DB007"},
	"42P01": {Message: "Table or column does not exist", Action: "Check the table mapping against the database", Code: "DB008"},
	"42703": {Message: "Table or column does not exist", Action: "Check the table mapping against the database", Code: "DB008"},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched with strings.Contains on the lowercased error.
// More specific patterns come first.
var errorPatterns = []errorPattern{
	{"duplicate key", sqlStateMessages["23505"]},
	{"unique constraint", sqlStateMessages["23505"]},
	{"not null constraint", sqlStateMessages["23502"]},
	{"violates not-null", sqlStateMessages["23502"]},
	{"foreign key constraint", sqlStateMessages["23503"]},
	{"connection refused", UserMessage{Message: "Unable to connect to database", Action: "Please try again in a few moments", Code: "DB004"}},
	{"connection reset", UserMessage{Message: "Database connection was interrupted", Action: "Please try again", Code: "DB005"}},
	{"conn closed", UserMessage{Message: "Database connection was interrupted", Action: "Please try again", Code: "DB005"}},
	{"context deadline exceeded", sqlStateMessages["57014"]},
	{"timeout", sqlStateMessages["57014"]},
	{"deadlock", sqlStateMessages["40P01"]},
	{"no such table", sqlStateMessages["42P01"]},
	{"no such column", sqlStateMessages["42P01"]},
	{"does not exist", sqlStateMessages["42P01"]},
}

// MapError converts an error into a UserMessage.
// Returns a generic message when no mapping matches.
func MapError(err error) UserMessage {
	if err == nil {
		return msgUnknown
	}

	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		if errors.Is(err, ErrNotRegistered) {
			return msgNotRegistered
		}
		return msgBadDeclaration
	}

	var keyErr *MissingKeyError
	if errors.As(err, &keyErr) {
		return msgMissingKey
	}

	var ctorErr *ConstructionError
	if errors.As(err, &ctorErr) {
		return msgConstruction
	}

	var depthErr *CascadeDepthError
	if errors.As(err, &depthErr) {
		return msgCascadeDepth
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if msg, ok := sqlStateMessages[pgErr.Code]; ok {
			return msg
		}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(lower, p.pattern) {
			return p.msg
		}
	}

	return msgUnknown
}

// ErrorCode returns just the support code for err.
func ErrorCode(err error) string {
	return MapError(err).Code
}
