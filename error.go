package queuectl

import "github.com/queuectl/queuectl/internal/qerr"

// The error taxonomy from spec.md §7, re-exported as type aliases so
// callers outside this module can use errors.As against the concrete
// types without importing an internal package, mirroring how
// river/error.go re-exports rivertype's error types.
type (
	DuplicateIDError  = qerr.DuplicateIDError
	InvalidArgError   = qerr.InvalidArgError
	NotFoundError     = qerr.NotFoundError
	InvalidStateError = qerr.InvalidStateError
	StoreBusyError    = qerr.StoreBusyError
	StoreFatalError   = qerr.StoreFatalError
)
