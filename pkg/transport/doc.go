// Package transport holds the protocol-neutral response policy shared by
// the front-ends of the dispatch engine.
//
// # Status Policy
//
// StatusFor resolves the final status of a dispatched operation in fixed
// priority order:
//
//  1. an explicit status set by the handler through the envelope
//  2. the taxonomy kind of the error: malformed input or descriptor is
//     400, an unsupported verb is 405 (404 for reads), an unknown entity
//     is 404 and an empty result is 204
//  3. the success default: 201 for create and replace verbs, 200 otherwise
//
// Any other error is a handler fault and resolves to 500.
//
// # Encoding
//
// Encode turns a handler outcome into a response body. Structured values
// are encoded as JSON, non-empty scalars as plain text, and empty outcomes
// report dispatch.ErrEmptyResult.
package transport
