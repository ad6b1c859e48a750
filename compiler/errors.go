package compiler

import (
	"errors"
	"fmt"

	"github.com/quantadb/quantadb/sqlast"
)

var (
	ErrAlreadyCompiled      = errors.New("select is already compiled")
	ErrFullTableScan        = errors.New("full table scans are not supported")
	ErrNoLowerBound         = errors.New("where clause has no lower time bound")
	ErrNoUpperBound         = errors.New("where clause has no upper time bound")
	ErrDuplicateLowerBound  = errors.New("where clause has more than one lower time bound")
	ErrDuplicateUpperBound  = errors.New("where clause has more than one upper time bound")
	ErrLowerBoundGTUpper    = errors.New("lower time bound is greater than the upper time bound")
	ErrDegenerateRange      = errors.New("equal time bounds with strict operators select nothing")
	ErrTimeBoundsMustUseAnd = errors.New("time bounds must be joined with AND")
	ErrInvalidQuery         = errors.New("invalid query")
)

// MissingKeyFieldError reports a local key field the WHERE clause never
// constrains.
type MissingKeyFieldError struct {
	Field string
}

func (e *MissingKeyFieldError) Error() string {
	return fmt.Sprintf("missing constraint on key field %s", e.Field)
}

// KeyFieldOpError reports a key field constrained with something other than
// equality.
type KeyFieldOpError struct {
	Field string
	Op    sqlast.Op
}

func (e *KeyFieldOpError) Error() string {
	return fmt.Sprintf("key field %s must be constrained with =, got %s", e.Field, e.Op)
}

// TooManySubQueriesError reports a time range crossing more quantum windows
// than the configured ceiling.
type TooManySubQueriesError struct {
	N int
}

func (e *TooManySubQueriesError) Error() string {
	return fmt.Sprintf("query spans %d quanta, over the configured maximum", e.N)
}
