package proto

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed set of protocol failure classifications. Every
// failed operation surfaces as exactly one Kind; the mapping to and from
// HTTP status codes lives here and nowhere else.
type Kind string

const (
	// Session-level failures.
	AuthenticationFailed Kind = "authentication_failed"
	ExistingSession      Kind = "existing_session"
	VersionRejected      Kind = "version_rejected"
	UnsupportedVersion   Kind = "unsupported_version"
	NoPermission         Kind = "no_permission"

	// Task claim protocol failures.
	NoSuchTask        Kind = "no_such_task"
	AlreadyClaimed    Kind = "already_claimed"
	VersionMismatch   Kind = "version_mismatch"
	TaskChanged       Kind = "task_changed"
	TaskDeleted       Kind = "task_deleted"
	IntegrityConflict Kind = "integrity_conflict"
	QuotaExceeded     Kind = "quota_exceeded"

	// Bundle page state machine failures.
	SlotConflict      Kind = "slot_conflict"
	BundleLocked      Kind = "bundle_locked"
	BundlePushed      Kind = "bundle_pushed"
	NoSuchBundle      Kind = "no_such_bundle"
	InvalidTransition Kind = "invalid_transition"
	ValidationFailed  Kind = "validation_failed"

	// Transport-level classifications (client-side only; never sent on
	// the wire).
	NetworkTimeout  Kind = "network_timeout"
	ConnectionError Kind = "connection_error"

	// Anything the taxonomy does not cover.
	Internal Kind = "internal"
)

// Error is the typed result every protocol operation fails with. Pages
// carries the offending page order indexes for ValidationFailed.
type Error struct {
	Kind  Kind   `json:"kind"`
	Msg   string `json:"detail,omitempty"`
	Pages []int  `json:"pages,omitempty"`
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Errf builds an *Error with a formatted message.
func Errf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from an error chain, Internal if none.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retriable reports whether the caller may reasonably retry the same
// call. Only transport-level failures qualify; everything else requires
// the caller to refresh state or stop.
func (k Kind) Retriable() bool {
	return k == NetworkTimeout || k == ConnectionError
}

// httpStatus maps each wire-visible Kind to the HTTP status the server
// responds with. Client decoding goes through the JSON body's kind
// field, so statuses need not be unique per Kind.
var httpStatus = map[Kind]int{
	AuthenticationFailed: http.StatusUnauthorized,
	ExistingSession:      http.StatusConflict,
	VersionRejected:      http.StatusBadRequest,
	NoPermission:         http.StatusForbidden,
	NoSuchTask:           http.StatusGone,
	AlreadyClaimed:       http.StatusConflict,
	VersionMismatch:      http.StatusExpectationFailed,
	TaskChanged:          http.StatusConflict,
	TaskDeleted:          http.StatusGone,
	IntegrityConflict:    http.StatusExpectationFailed,
	QuotaExceeded:        http.StatusTooManyRequests,
	SlotConflict:         http.StatusConflict,
	BundleLocked:         http.StatusConflict,
	BundlePushed:         http.StatusConflict,
	NoSuchBundle:         http.StatusGone,
	InvalidTransition:    http.StatusConflict,
	ValidationFailed:     http.StatusBadRequest,
	Internal:             http.StatusInternalServerError,
}

// HTTPStatus returns the response status for a Kind, 500 for kinds the
// table does not name.
func (k Kind) HTTPStatus() int {
	if s, ok := httpStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}
