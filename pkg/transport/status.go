package transport

import (
	"net/http"

	"github.com/rhuss/ribamar/pkg/dispatch"
)

// Lowercase verbs known to the status policy.
const (
	VerbGet    = "get"
	VerbPost   = "post"
	VerbPut    = "put"
	VerbPatch  = "patch"
	VerbDelete = "delete"
)

// CarriesPayload reports whether verb reads a request body.
func CarriesPayload(verb string) bool {
	switch verb {
	case VerbPost, VerbPut, VerbPatch:
		return true
	}
	return false
}

// creates reports whether a successful verb answers 201.
func creates(verb string) bool {
	return verb == VerbPost || verb == VerbPut
}

// StatusFor resolves the response status for verb given the handler's
// status override (0 when unset) and the dispatch error.
func StatusFor(verb string, override int, err error) int {
	if override != 0 {
		return override
	}

	switch dispatch.KindOf(err) {
	case dispatch.KindNone:
		if creates(verb) {
			return http.StatusCreated
		}
		return http.StatusOK
	case dispatch.KindMalformedInput, dispatch.KindMalformedDescriptor:
		return http.StatusBadRequest
	case dispatch.KindUnsupportedVerb:
		// An entity without a read verb is treated as absent.
		if verb == VerbGet {
			return http.StatusNotFound
		}
		return http.StatusMethodNotAllowed
	case dispatch.KindUnknownEntity:
		return http.StatusNotFound
	case dispatch.KindEmptyResult:
		return http.StatusNoContent
	default:
		return http.StatusInternalServerError
	}
}
