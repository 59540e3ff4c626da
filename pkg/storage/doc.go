// Package storage defines the document store used by the resource
// handlers, together with the sentinel errors and helpers shared by the
// store implementations (memory, postgres, mongo).
//
// Documents are JSON-shaped maps. Lookups address fields with dotted keys
// ("credentials.id"); a key segment that reaches an array matches against
// every element, so "credentials.id" finds an account holding a credential
// with that id anywhere in its credentials list.
package storage
