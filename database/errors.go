package database

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this package matches exactly one
// of these with errors.Is:
//
//	if errors.Is(err, database.ErrPrecondition) {
//	    // caller supplied bad input, nothing was executed
//	}
var (
	// ErrOpen is returned when the database cannot be opened or created, a
	// required pragma cannot be set, or a preset image cannot be deserialized.
	ErrOpen = errors.New("database: cannot open")

	// ErrPrecondition is returned when an operation is rejected before any
	// statement reaches the engine.
	ErrPrecondition = errors.New("database: precondition failed")

	// ErrExecution is returned when the engine rejects a statement.
	ErrExecution = errors.New("database: execution failed")

	// ErrDataShape is returned when a value does not have the shape the
	// caller asked for.
	ErrDataShape = errors.New("database: unexpected data shape")
)

// Precondition failures.
var (
	// ErrNotExist is returned by OpenExisting when the file is absent.
	ErrNotExist = &kindError{kind: ErrPrecondition, msg: "database: file does not exist"}

	// ErrEmptyData is returned by Upsert when no columns are supplied.
	ErrEmptyData = &kindError{kind: ErrPrecondition, msg: "database: cannot upsert empty data"}

	// ErrNoWhereClauses is returned by DeleteWhere when no clauses are supplied.
	// Deleting a whole table has to be done with Exec.
	ErrNoWhereClauses = &kindError{kind: ErrPrecondition, msg: "database: cannot delete without where clauses"}

	// ErrClosed is returned by every operation on a closed DB.
	ErrClosed = &kindError{kind: ErrPrecondition, msg: "database: handle is closed"}

	// ErrEmptyMigration is returned by LoadMigrations for a file with no SQL.
	ErrEmptyMigration = &kindError{kind: ErrPrecondition, msg: "database: empty migration"}

	// ErrDuplicateMigration is returned by LoadMigrations when two files
	// yield the same title, such as 0001_x.sql and 0001_x.up.sql.
	ErrDuplicateMigration = &kindError{kind: ErrPrecondition, msg: "database: duplicate migration title"}
)

// Data shape failures.
var (
	// ErrInvalidDataType is returned when a bound value is not text, integer or nil.
	ErrInvalidDataType = &kindError{kind: ErrDataShape, msg: "database: invalid data type"}

	// ErrColumnNotFound is returned when a row has no cell for the requested column.
	ErrColumnNotFound = &kindError{kind: ErrDataShape, msg: "database: column not found"}

	// ErrNullValue is returned when a non-optional getter meets a NULL cell.
	ErrNullValue = &kindError{kind: ErrDataShape, msg: "database: requested value is null"}

	// ErrFormat is returned when a cell cannot be parsed as the requested type.
	ErrFormat = &kindError{kind: ErrDataShape, msg: "database: cannot parse value"}
)

// kindError is a specific error that also matches its category.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// ExecutionError describes a statement rejected by the engine.
// The engine's diagnostic text is carried by Err.
type ExecutionError struct {
	Op    string // operation being performed (upsert, select, migrate, ...)
	Query string // SQL text, if any
	Err   error  // underlying engine error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("database: %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the category and the engine error.
func (e *ExecutionError) Unwrap() []error {
	return []error{ErrExecution, e.Err}
}

// execError wraps err unless it already carries a category from this package.
func execError(op, query string, err error) error {
	if isCategorised(err) {
		return err
	}
	return &ExecutionError{Op: op, Query: query, Err: err}
}

func isCategorised(err error) bool {
	return errors.Is(err, ErrOpen) ||
		errors.Is(err, ErrPrecondition) ||
		errors.Is(err, ErrExecution) ||
		errors.Is(err, ErrDataShape)
}
