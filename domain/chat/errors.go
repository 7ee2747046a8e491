package chat

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every error surfaced by the chat core matches exactly one of these
// with errors.Is.
var (
	// ErrAuth is returned for missing, malformed, expired or forged credentials.
	ErrAuth = errors.New("authentication failed")

	// ErrAuthorization is returned when the caller is not allowed to act on a room.
	ErrAuthorization = errors.New("not authorized")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrStore is returned when persistence fails or times out.
	ErrStore = errors.New("store failure")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a record already exists.
	ErrConflict = errors.New("already exists")
)

var kinds = []error{ErrAuth, ErrAuthorization, ErrValidation, ErrStore, ErrNotFound, ErrConflict}

// Error carries a kind, a client-facing message and an optional cause.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Validationf returns a validation error with a formatted message.
func Validationf(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

// Forbidden returns an authorization error.
func Forbidden(msg string) error {
	return &Error{Kind: ErrAuthorization, Msg: msg}
}

// Unauthenticated returns an authentication error.
func Unauthenticated(msg string) error {
	return &Error{Kind: ErrAuth, Msg: msg}
}

// NotFound returns a not-found error.
func NotFound(msg string) error {
	return &Error{Kind: ErrNotFound, Msg: msg}
}

// Conflict returns a conflict error.
func Conflict(msg string) error {
	return &Error{Kind: ErrConflict, Msg: msg}
}

// StoreFailure wraps a persistence error. Errors that already carry a kind pass
// through unchanged; deadline overruns get a dedicated message.
func StoreFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrStore, Msg: op + ": store timed out", Err: err}
	}
	return &Error{Kind: ErrStore, Msg: op + ": store unavailable", Err: err}
}

// KindOf returns the kind sentinel err matches, or nil.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Fault is the serializable form of an Error, used in request-reply payloads.
type Fault struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

var kindNames = map[error]string{
	ErrAuth:          "auth",
	ErrAuthorization: "authorization",
	ErrValidation:    "validation",
	ErrStore:         "store",
	ErrNotFound:      "not_found",
	ErrConflict:      "conflict",
}

// KindName returns the wire name of err's kind ("store" when unknown).
func KindName(err error) string {
	if name, ok := kindNames[KindOf(err)]; ok {
		return name
	}
	return kindNames[ErrStore]
}

// FaultFrom converts err into a Fault. Errors without a kind become store faults
// with a generic message so internals never leak to clients.
func FaultFrom(err error) *Fault {
	if err == nil {
		return nil
	}
	if KindOf(err) == nil {
		return &Fault{Kind: kindNames[ErrStore], Message: "internal error"}
	}
	return &Fault{Kind: KindName(err), Message: err.Error()}
}

// Err rebuilds the typed error carried by f.
func (f *Fault) Err() error {
	if f == nil {
		return nil
	}
	for kind, name := range kindNames {
		if name == f.Kind {
			return &Error{Kind: kind, Msg: f.Message}
		}
	}
	return &Error{Kind: ErrStore, Msg: f.Message}
}
