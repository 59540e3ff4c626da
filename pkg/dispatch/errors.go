package dispatch

import (
	"errors"
	"fmt"
)

// Taxonomy errors. These are expected, per-invocation outcomes and are
// translated to status codes by the front-ends.
var (
	// ErrMalformedDescriptor is returned when a descriptor is not of the
	// form "VERB entity".
	ErrMalformedDescriptor = errors.New("dispatch: malformed route descriptor")

	// ErrUnknownEntity is returned when no entity is registered under the
	// requested name.
	ErrUnknownEntity = errors.New("dispatch: unknown entity")

	// ErrUnsupportedVerb is returned when the entity exists but has no
	// handler for the requested verb.
	ErrUnsupportedVerb = errors.New("dispatch: unsupported verb")

	// ErrMalformedInput is returned when a request payload cannot be parsed.
	ErrMalformedInput = errors.New("dispatch: malformed input")

	// ErrEmptyResult is returned when a handler produced no content.
	ErrEmptyResult = errors.New("dispatch: empty result")
)

// Kind classifies an outcome error.
type Kind string

const (
	KindNone                Kind = "none"
	KindMalformedDescriptor Kind = "malformed_descriptor"
	KindUnknownEntity       Kind = "unknown_entity"
	KindUnsupportedVerb     Kind = "unsupported_verb"
	KindMalformedInput      Kind = "malformed_input"
	KindEmptyResult         Kind = "empty_result"
	KindHandlerFault        Kind = "handler_fault"
)

// KindOf returns the taxonomy kind of err. A nil error is KindNone and any
// error outside the taxonomy is KindHandlerFault.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrMalformedDescriptor):
		return KindMalformedDescriptor
	case errors.Is(err, ErrUnknownEntity):
		return KindUnknownEntity
	case errors.Is(err, ErrUnsupportedVerb):
		return KindUnsupportedVerb
	case errors.Is(err, ErrMalformedInput):
		return KindMalformedInput
	case errors.Is(err, ErrEmptyResult):
		return KindEmptyResult
	default:
		return KindHandlerFault
	}
}

// IsFault reports whether err is a handler fault, i.e. an error that must
// be logged with full detail and surfaced only opaquely.
func IsFault(err error) bool {
	return KindOf(err) == KindHandlerFault
}

// PanicError carries a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("dispatch: handler panic: %v", e.Value)
}
