package sync

import (
	"errors"
	"fmt"
)

// ErrorKind classifies sync failures into a closed set of categories.
// Callers branch on the kind; the detail string is for humans.
type ErrorKind int

const (
	// KindUnknown covers failures that fit no other category.
	KindUnknown ErrorKind = iota

	// KindNetworkUnavailable means a pass started while offline, or the
	// network dropped mid-pass.
	KindNetworkUnavailable

	// KindOperationTimeout means a retried operation did not complete
	// within its configured operation timeout.
	KindOperationTimeout

	// KindQuotaExceeded means the remote backend rejected a push because
	// the account's storage or operation allotment is exhausted.
	KindQuotaExceeded

	// KindConflictResolution means one or more conflict candidates could
	// not be resolved (e.g. a missing modification timestamp).
	KindConflictResolution

	// KindAuthenticationRequired means the remote account is missing or
	// restricted and the user must re-authenticate.
	KindAuthenticationRequired
)

// String returns the stable category name used in logs and error text.
func (k ErrorKind) String() string {
	switch k {
	case KindNetworkUnavailable:
		return "networkUnavailable"
	case KindOperationTimeout:
		return "operationTimeout"
	case KindQuotaExceeded:
		return "cloudQuotaExceeded"
	case KindConflictResolution:
		return "conflictResolutionFailed"
	case KindAuthenticationRequired:
		return "authenticationRequired"
	default:
		return "unknown"
	}
}

// Error is the terminal error surfaced by a sync pass. Every failure inside
// a pass is converted to an *Error at the engine boundary; nothing else
// escapes to callers.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error // underlying cause, may be nil
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError wraps cause as a sync error of the given kind.
func newError(kind ErrorKind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: cause}
}

// KindOf extracts the error kind from err. Errors that are not sync errors
// report KindUnknown.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// asSyncError converts an arbitrary error into an *Error, preserving an
// existing kind and classifying everything else as unknown.
func asSyncError(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Kind: KindUnknown, Err: err}
}
