package members

import (
	"errors"
	"strings"
)

var (
	// ErrTotalExtractionFailure means a fetched page matched none of the
	// profile labels, usually an error page.
	ErrTotalExtractionFailure = errors.New("no member fields found in page")

	ErrStoreUnavailable    = errors.New("member store unavailable")
	ErrReconcileInProgress = errors.New("reconciliation already in progress")
	ErrImportInProgress    = errors.New("import batch in progress")
	ErrNotFound            = errors.New("member not found")
)

// ValidationError carries every validation message for one record.
type ValidationError struct {
	ExternalID string
	Messages   []string
	Err        error
}

func (e *ValidationError) Error() string {
	return "member " + e.ExternalID + " invalid: " + strings.Join(e.Messages, "; ")
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a per-record validation failure.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// IsPhaseConflict reports whether err means an import or a reconciliation
// already holds the phase lock.
func IsPhaseConflict(err error) bool {
	return errors.Is(err, ErrReconcileInProgress) || errors.Is(err, ErrImportInProgress)
}
