// Package errkind defines the stable error taxonomy shared by the IPC
// server, HTTP API, and CLI (spec §7): a closed set of Kind values plus a
// typed Error that carries one, so every transport can map the same
// failure to its own status vocabulary (HTTP status codes, CLI exit codes)
// from a single table instead of re-deriving it ad hoc.
package errkind

import "fmt"

// Kind is one of the stable error identifiers from spec §7. These are
// names, not Go types, by design: they are meant to survive refactors of
// the concrete error values that carry them.
type Kind string

const (
	NotFound           Kind = "NotFound"
	AlreadyExists      Kind = "AlreadyExists"
	InvalidInput       Kind = "InvalidInput"
	Unauthorized       Kind = "Unauthorized"
	Forbidden          Kind = "Forbidden"
	TierLimitExceeded  Kind = "TierLimitExceeded"
	DaemonUnavailable  Kind = "DaemonUnavailable"
	StorageFailure     Kind = "StorageFailure"
	EncryptionFailure  Kind = "EncryptionFailure"
	DecryptionFailure  Kind = "DecryptionFailure"
	NetworkUnavailable Kind = "NetworkUnavailable"
	ServiceShutdown    Kind = "ServiceShutdown"
)

// Error wraps a Kind with a human-readable message and an optional cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an *Error of the given kind.
func New(k Kind, msg string) *Error {
	return &Error{Kind: k, Msg: msg}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Msg: msg, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// otherwise it returns "" and false.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if asError(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// asError is a tiny errors.As shim kept local to avoid importing errors
// just for this one call site in multiple files.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// HTTPStatus maps a Kind to the HTTP status code spec §7 assigns it.
func HTTPStatus(k Kind) int {
	switch k {
	case NotFound:
		return 404
	case AlreadyExists:
		return 409
	case InvalidInput:
		return 400
	case Unauthorized:
		return 401
	case Forbidden:
		return 403
	case TierLimitExceeded:
		return 402
	case DaemonUnavailable:
		return 503
	case ServiceShutdown:
		return 503
	default:
		return 500
	}
}

// CLIExitCode maps a Kind to the CLI wrapper exit code spec §6 assigns it.
func CLIExitCode(k Kind) int {
	switch k {
	case InvalidInput:
		return 2
	case DaemonUnavailable:
		return 3
	case Unauthorized:
		return 4
	case Forbidden:
		return 5
	default:
		return 1
	}
}
