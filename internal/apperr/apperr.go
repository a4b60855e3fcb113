// Package apperr defines the error taxonomy shared by services and handlers.
//
// Every error that crosses a service boundary is marked with exactly one Kind.
// Handlers map the Kind to an HTTP status; the hint attached at construction
// time is the human-readable reason returned to clients.
package apperr

import (
	cr "github.com/cockroachdb/errors"
)

// Kind classifies an error for transport mapping
type Kind string

const (
	KindValidation Kind = "validation_error"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindGateway    Kind = "gateway_error"
	KindInternal   Kind = "internal_error"
)

// Kind markers
var (
	ErrValidation = cr.New("validation error")
	ErrNotFound   = cr.New("not found")
	ErrConflict   = cr.New("conflict")
	ErrGateway    = cr.New("gateway error")
	ErrInternal   = cr.New("internal error")
)

// Conflict reasons
var (
	ErrCapacityExceeded = cr.New("capacity exceeded")
	ErrSlotUnavailable  = cr.New("slot unavailable")
	ErrSlotOverlap      = cr.New("slot overlap")
	ErrDuplicate        = cr.New("duplicate")
	ErrInvalidState     = cr.New("invalid state")
)

var reasonNames = []struct {
	marker error
	name   string
}{
	{ErrCapacityExceeded, "capacity_exceeded"},
	{ErrSlotUnavailable, "slot_unavailable"},
	{ErrSlotOverlap, "slot_overlap"},
	{ErrDuplicate, "duplicate"},
	{ErrInvalidState, "invalid_state"},
}

// Validation returns a client-correctable input error
func Validation(format string, args ...interface{}) error {
	msg := cr.Newf(format, args...)
	return cr.WithHint(cr.Mark(msg, ErrValidation), msg.Error())
}

// NotFound returns an error for an unknown entity
func NotFound(entity string) error {
	msg := cr.Newf("%s not found", entity)
	return cr.WithHint(cr.Mark(msg, ErrNotFound), msg.Error())
}

// Conflict returns a conflict error tagged with one of the reason markers
func Conflict(reason error, format string, args ...interface{}) error {
	msg := cr.Newf(format, args...)
	err := cr.Mark(msg, ErrConflict)
	if reason != nil {
		err = cr.Mark(err, reason)
	}
	return cr.WithHint(err, msg.Error())
}

// Gateway wraps a payment gateway failure (signing, network or provider rejection)
func Gateway(op string, err error) error {
	if err == nil {
		err = cr.Newf("gateway %s failed", op)
	} else {
		err = cr.Wrapf(err, "gateway %s", op)
	}
	return cr.WithHint(cr.Mark(err, ErrGateway), "payment gateway is unavailable, please retry")
}

// Internal wraps an unexpected failure
func Internal(err error) error {
	if err == nil {
		return nil
	}
	return cr.Mark(cr.WithStack(err), ErrInternal)
}

// KindOf returns the kind of err. Unmarked errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case cr.Is(err, ErrValidation):
		return KindValidation
	case cr.Is(err, ErrNotFound):
		return KindNotFound
	case cr.Is(err, ErrConflict):
		return KindConflict
	case cr.Is(err, ErrGateway):
		return KindGateway
	default:
		return KindInternal
	}
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HasReason reports whether err is marked with the given conflict reason
func HasReason(err, reason error) bool {
	return err != nil && cr.Is(err, reason)
}

// Reason returns the conflict reason name, or "" when none is attached
func Reason(err error) string {
	for _, r := range reasonNames {
		if cr.Is(err, r.marker) {
			return r.name
		}
	}
	return ""
}

// Message returns the client-facing message for err
func Message(err error) string {
	if err == nil {
		return ""
	}
	if hint := cr.FlattenHints(err); hint != "" {
		return hint
	}
	if KindOf(err) == KindInternal {
		return "internal server error"
	}
	return err.Error()
}
