// Package jeterrors provides the structured error kinds returned by every
// layer of the jetdb engine.
package jeterrors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every typed error below unwraps to exactly one of these,
// so callers can use errors.Is against the kind they care about without
// depending on the concrete wrapper type.
var (
	// ErrCorruptFile indicates the container's page structure violates an
	// invariant the engine depends on (bad magic, bad checksum, dangling
	// page reference).
	ErrCorruptFile = errors.New("corrupt file")
	// ErrUnsupportedFormat indicates a file format version or page layout
	// the engine does not know how to decode.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrUniquenessViolation indicates an insert or update would duplicate
	// a value in a unique index.
	ErrUniquenessViolation = errors.New("uniqueness violation")
	// ErrReferentialIntegrityViolation indicates an operation would leave a
	// relationship's foreign key pointing at a nonexistent row.
	ErrReferentialIntegrityViolation = errors.New("referential integrity violation")
	// ErrConstraintViolation indicates a column-level or row-level
	// validation hook rejected a value.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrInvalidValue indicates a value cannot be encoded or decoded for
	// its declared column type.
	ErrInvalidValue = errors.New("invalid value")
	// ErrCascadeCycle indicates a cascade delete/update would revisit a
	// table already touched in the same cascade, so depth-first cascading
	// refuses to proceed.
	ErrCascadeCycle = errors.New("cascade cycle")
	// ErrUnknownEncoding indicates a text column's compressed-unicode flag
	// or codepage cannot be interpreted.
	ErrUnknownEncoding = errors.New("unknown encoding")
	// ErrVersionImmutable indicates an attempt to modify or delete a
	// complex-value version history entry, which is append-only.
	ErrVersionImmutable = errors.New("version history entry is immutable")
	// ErrLinkedTableReadOnly indicates a write against an ODBC-linked
	// table, which this engine never resolves for writes.
	ErrLinkedTableReadOnly = errors.New("linked table is read-only")
	// ErrSavepointMismatch indicates a cursor savepoint was released or
	// rolled back out of order.
	ErrSavepointMismatch = errors.New("savepoint mismatch")
	// ErrDatabasePoisoned indicates a prior write barrier failed partway
	// through and the page store refuses further writes until reopened.
	ErrDatabasePoisoned = errors.New("database poisoned by failed write")
	// ErrIO wraps a failure from the underlying file or device.
	ErrIO = errors.New("i/o error")
	// ErrInvalidArgument indicates a caller-supplied argument is
	// structurally wrong for the operation (wrong arity, unknown name),
	// as distinct from ErrInvalidValue's "right shape, wrong content".
	ErrInvalidArgument = errors.New("invalid argument")
)

// CorruptFileError reports a structural problem with a specific page.
type CorruptFileError struct {
	Page   uint32
	Reason string
	Err    error
}

func (e *CorruptFileError) Error() string {
	if e.Page != 0 {
		return fmt.Sprintf("corrupt file at page %d: %s", e.Page, e.Reason)
	}
	return fmt.Sprintf("corrupt file: %s", e.Reason)
}

func (e *CorruptFileError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrCorruptFile
}

// UnsupportedFormatError reports a file format or encoding the engine
// cannot open.
type UnsupportedFormatError struct {
	Version string
	Reason  string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %s: %s", e.Version, e.Reason)
}

func (e *UnsupportedFormatError) Unwrap() error { return ErrUnsupportedFormat }

// UniquenessViolationError reports which index and key rejected a write.
type UniquenessViolationError struct {
	Table string
	Index string
	Key   string
}

func (e *UniquenessViolationError) Error() string {
	return fmt.Sprintf("uniqueness violation on %s.%s: key %s already exists", e.Table, e.Index, e.Key)
}

func (e *UniquenessViolationError) Unwrap() error { return ErrUniquenessViolation }

// ReferentialIntegrityViolationError reports a relationship that would be
// broken by the attempted write.
type ReferentialIntegrityViolationError struct {
	Relationship string
	ChildTable   string
	ParentTable  string
	Reason       string
}

func (e *ReferentialIntegrityViolationError) Error() string {
	return fmt.Sprintf("referential integrity violation on %s (%s -> %s): %s",
		e.Relationship, e.ChildTable, e.ParentTable, e.Reason)
}

func (e *ReferentialIntegrityViolationError) Unwrap() error {
	return ErrReferentialIntegrityViolation
}

// ConstraintViolationError reports a validation hook's rejection of a row
// or column value.
type ConstraintViolationError struct {
	Table  string
	Column string
	Reason string
	Err    error
}

func (e *ConstraintViolationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("constraint violation on %s.%s: %s", e.Table, e.Column, e.Reason)
	}
	return fmt.Sprintf("constraint violation on %s: %s", e.Table, e.Reason)
}

func (e *ConstraintViolationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrConstraintViolation
}

// InvalidValueError reports a value that cannot be encoded or decoded for
// its column type.
type InvalidValueError struct {
	Column   string
	TypeName string
	Reason   string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value for %s (%s): %s", e.Column, e.TypeName, e.Reason)
}

func (e *InvalidValueError) Unwrap() error { return ErrInvalidValue }

// CascadeCycleError reports the table at which a cascade revisited itself.
type CascadeCycleError struct {
	Table string
	Path  []string
}

func (e *CascadeCycleError) Error() string {
	return fmt.Sprintf("cascade cycle detected at table %s (path: %v)", e.Table, e.Path)
}

func (e *CascadeCycleError) Unwrap() error { return ErrCascadeCycle }

// UnknownEncodingError reports a text value the codec could not interpret.
type UnknownEncodingError struct {
	Column string
	Reason string
}

func (e *UnknownEncodingError) Error() string {
	return fmt.Sprintf("unknown encoding for %s: %s", e.Column, e.Reason)
}

func (e *UnknownEncodingError) Unwrap() error { return ErrUnknownEncoding }

// VersionImmutableError reports an attempted write to a version-history row.
type VersionImmutableError struct {
	Table   string
	Version int
}

func (e *VersionImmutableError) Error() string {
	return fmt.Sprintf("version %d of %s is immutable", e.Version, e.Table)
}

func (e *VersionImmutableError) Unwrap() error { return ErrVersionImmutable }

// LinkedTableReadOnlyError reports a write attempted against a resolved
// ODBC-linked table.
type LinkedTableReadOnlyError struct {
	Table string
}

func (e *LinkedTableReadOnlyError) Error() string {
	return fmt.Sprintf("table %s is ODBC-linked and read-only", e.Table)
}

func (e *LinkedTableReadOnlyError) Unwrap() error { return ErrLinkedTableReadOnly }

// SavepointMismatchError reports a cursor savepoint released or rolled back
// out of creation order.
type SavepointMismatchError struct {
	Table string
	Name  string
}

func (e *SavepointMismatchError) Error() string {
	return fmt.Sprintf("savepoint mismatch on %s: %s", e.Table, e.Name)
}

func (e *SavepointMismatchError) Unwrap() error { return ErrSavepointMismatch }

// DatabasePoisonedError reports that a prior write barrier failed partway
// through and the page store is refusing further writes.
type DatabasePoisonedError struct {
	Reason string
	Err    error
}

func (e *DatabasePoisonedError) Error() string {
	return fmt.Sprintf("database poisoned: %s", e.Reason)
}

func (e *DatabasePoisonedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrDatabasePoisoned
}

// IOError wraps a failure from the underlying file or device.
type IOError struct {
	Operation string
	Path      string
	Err       error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrIO
}

// InvalidArgumentError reports a caller argument with the wrong shape for
// the operation, such as a partial-key lookup supplying more components
// than the index has columns.
type InvalidArgumentError struct {
	Operation string
	Reason    string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument to %s: %s", e.Operation, e.Reason)
}

func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool { return errors.Is(err, target) }

// As wraps errors.As for convenience.
func As(err error, target interface{}) bool { return errors.As(err, target) }
