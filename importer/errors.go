package importer

import (
	"errors"
	"fmt"
)

var (
	ErrMissingHeader   = errors.New("missing header row")
	ErrSchemaMismatch  = errors.New("header does not match schema")
	ErrInvalidEncoding = errors.New("invalid UTF-8")
	ErrNotMarked       = errors.New("reference timestamp not captured")
)

// DecodeError reports a malformed or unreadable input file. It aborts the phase.
type DecodeError struct {
	Dataset Dataset
	Line    int
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("decode %s file (line %d): %v", e.Dataset, e.Line, e.Err)
	}
	return fmt.Sprintf("decode %s file: %v", e.Dataset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// StoreWriteError reports a failed store round-trip (write, existence check,
// clock read or bulk update). It aborts the phase; nothing is retried.
type StoreWriteError struct {
	Dataset Dataset
	Op      string
	Rows    int
	Err     error
}

func (e *StoreWriteError) Error() string {
	if e.Rows > 0 {
		return fmt.Sprintf("%s %s (%d rows): %v", e.Dataset, e.Op, e.Rows, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Dataset, e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// ImportError tags any phase failure with its dataset for the trigger layer.
type ImportError struct {
	Dataset Dataset
	Err     error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("%s import failed: %v", e.Dataset.Tag(), e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }
