package source

import (
	"errors"
	"fmt"
)

var (
	ErrConnection    = errors.New("connection failed")
	ErrQuery         = errors.New("metadata query failed")
	ErrUnsupported   = errors.New("operation not supported")
	ErrTableNotFound = errors.New("table not found")
)

// ConnectionError is fatal for a run.
type ConnectionError struct {
	Backend string
	Target  string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s at %s: %v", e.Backend, e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error        { return e.Err }
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// QueryError means the answer to a metadata question cannot be determined.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error        { return e.Err }
func (e *QueryError) Is(target error) bool { return target == ErrQuery }

type TableNotFoundError struct {
	Schema string
	Table  string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table %s.%s not found or has no columns", e.Schema, e.Table)
}

func (e *TableNotFoundError) Is(target error) bool { return target == ErrTableNotFound }

type UnsupportedOperationError struct {
	Backend string
	Op      Operation
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s is not supported by the %s backend", e.Op, e.Backend)
}

func (e *UnsupportedOperationError) Is(target error) bool { return target == ErrUnsupported }
