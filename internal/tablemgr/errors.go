package tablemgr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRegistered is wrapped by ConfigurationError when a type has no table declaration.
	ErrNotRegistered = errors.New("type not registered")

	// ErrNoPrimaryKey is wrapped by ConfigurationError when no column is marked as key.
	ErrNoPrimaryKey = errors.New("no primary key column")

	// ErrClosed is returned by any operation on a Manager after Close.
	ErrClosed = errors.New("manager is closed")
)

// ConfigurationError reports an invalid or missing table declaration.
type ConfigurationError struct {
	Type   string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("table configuration for %s: %s", e.Type, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// MissingKeyError reports an absent primary-key value on an entity.
type MissingKeyError struct {
	Table  string
	Column string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing primary key value for %s.%s", e.Table, e.Column)
}

// ConstructionError reports that an entity could not be constructed for hydration.
type ConstructionError struct {
	Type string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("cannot construct entity of type %s", e.Type)
}

// EngineError wraps any failure surfaced by the relational engine.
// Statement is the SQL text that failed, if any.
type EngineError struct {
	Op        string
	Statement string
	Err       error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// CascadeDepthError is returned when cascade hooks nest deeper than allowed,
// which usually means the entity graph has a cycle.
type CascadeDepthError struct {
	Depth int
}

func (e *CascadeDepthError) Error() string {
	return fmt.Sprintf("cascade depth limit %d exceeded", e.Depth)
}

func engineErr(op, stmt string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return err
	}
	return &EngineError{Op: op, Statement: stmt, Err: err}
}
