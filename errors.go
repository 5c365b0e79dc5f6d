package partsearch

import (
	"errors"
	"fmt"
)

// Sentinel errors for the import and search pipeline. Callers match
// these with errors.Is; the CLI/web layer decides presentation.
var (
	// ErrSchema indicates a malformed source schema, e.g. a header row
	// that yields no usable column labels.
	ErrSchema = errors.New("partsearch: invalid schema")

	// ErrImport indicates a failed import. The store is left in its
	// pre-import state; no partial source is visible.
	ErrImport = errors.New("partsearch: import failed")

	// ErrSchemaMismatch indicates a row referencing a column that is not
	// declared for its source.
	ErrSchemaMismatch = errors.New("partsearch: row references undeclared column")

	// ErrDuplicateSource indicates an active source already exists under
	// the requested logical name and replace was not requested.
	ErrDuplicateSource = errors.New("partsearch: source already exists")

	// ErrInvalidQuery indicates a search referencing a column that does
	// not exist in any requested source's schema.
	ErrInvalidQuery = errors.New("partsearch: unknown column in query")

	// ErrConcurrentWrite indicates another writer mutated the store
	// while an import was in flight. Imports require single-writer
	// exclusivity per store; serialize them externally.
	ErrConcurrentWrite = errors.New("partsearch: concurrent structural mutation detected")

	// ErrMigration indicates the legacy-layout upgrade was attempted and
	// failed. A store that is missing or already current is not an error.
	ErrMigration = errors.New("partsearch: legacy store migration failed")

	// ErrSourceNotFound indicates an operation referenced a source id
	// that does not exist or is not active.
	ErrSourceNotFound = errors.New("partsearch: source not found")

	// ErrUnsupportedFormat indicates an input file with an unsupported
	// extension.
	ErrUnsupportedFormat = errors.New("partsearch: unsupported file format")

	// ErrEmptyFile indicates an input file with no content.
	ErrEmptyFile = errors.New("partsearch: empty input file")
)

// ImportError carries the failure position of an aborted import. It
// unwraps to ErrImport so errors.Is(err, ErrImport) holds.
type ImportError struct {
	// Path is the input file being imported.
	Path string
	// RowOffset is the number of data rows consumed before the failure.
	RowOffset int64
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ImportError) Error() string {
	return fmt.Sprintf("%v: file %s, row offset %d: %v", ErrImport, e.Path, e.RowOffset, e.Err)
}

// Unwrap reports ErrImport and the underlying cause.
func (e *ImportError) Unwrap() []error {
	return []error{ErrImport, e.Err}
}

// newImportError wraps err as an ImportError unless it already is one.
func newImportError(path string, rowOffset int64, err error) error {
	var ie *ImportError
	if errors.As(err, &ie) {
		return err
	}
	return &ImportError{Path: path, RowOffset: rowOffset, Err: err}
}
