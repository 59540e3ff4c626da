// Package dispatch routes (verb, entity) route descriptors to handlers.
//
// A descriptor is a string of the form "VERB entity", for example
// "POST account" or "EXPIRE reset". The Engine resolves it against a
// capability table built once at startup and invokes the matching handler
// with the request Envelope and the Deps bound at construction time.
//
// # Capability Table
//
// Entities are registered with NewEntity, which detects the standard verbs
// from the Getter, Poster, Putter, Patcher and Deleter interfaces (in that
// order) and appends any extra verbs given with WithVerb:
//
//	reset := dispatch.NewEntity("reset", &api.Reset{},
//	    dispatch.WithVerb("expire", api.ExpireResets))
//
// The table is read-only after New returns, so lookups take no locks.
//
// # Error Taxonomy
//
// Lookup failures are reported as ErrMalformedDescriptor, ErrUnknownEntity
// and ErrUnsupportedVerb. Front-ends add ErrMalformedInput and
// ErrEmptyResult. Handler errors are returned unmodified; KindOf classifies
// anything outside the taxonomy as KindHandlerFault.
package dispatch
