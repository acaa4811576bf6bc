package errs

import "errors"

// Common sentinel errors for cross-layer signaling.
var (
	// ErrNotFound covers both unknown and foreign-owned resources so that a
	// caller cannot tell whether another user's rules or entries exist.
	ErrNotFound = errors.New("not_found")
	ErrInvalid  = errors.New("invalid")
	ErrConflict = errors.New("conflict")
	// ErrNotActive signals a materialization request for a (rule, period) the
	// expander no longer considers active (rule edited or ended after the
	// pending placeholder was built). Retryable after the client refreshes.
	ErrNotActive = errors.New("occurrence_not_active")
	// ErrUnavailable wraps storage timeouts and connection failures (HTTP 503).
	ErrUnavailable = errors.New("storage_unavailable")
)
