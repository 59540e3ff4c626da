package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
)

// Values is a multi-valued string map used for headers and query
// parameters. Keys keep every occurrence in arrival order; when serialized
// to JSON a key with a single value becomes a scalar string and a repeated
// key becomes an array.
type Values map[string][]string

// Get returns the first value for key, or "" when absent.
func (v Values) Get(key string) string {
	if vs := v[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// All returns every value recorded for key.
func (v Values) All(key string) []string {
	return v[key]
}

// Has reports whether key is present.
func (v Values) Has(key string) bool {
	_, ok := v[key]
	return ok
}

// Add appends value to key.
func (v Values) Add(key, value string) {
	v[key] = append(v[key], value)
}

// Fold returns the map with singletons folded to strings.
func (v Values) Fold() map[string]any {
	out := make(map[string]any, len(v))
	for k, vs := range v {
		if len(vs) == 1 {
			out[k] = vs[0]
		} else {
			out[k] = vs
		}
	}
	return out
}

// MarshalJSON encodes the folded form.
func (v Values) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Fold())
}

// Envelope is the normalized input of one handler invocation.
//
// Scheduler-triggered invocations receive an envelope whose maps and path
// are empty and whose body is nil.
type Envelope struct {
	Headers Values   `json:"headers"`
	Query   Values   `json:"query"`
	Path    []string `json:"path"`
	Body    any      `json:"body,omitempty"`

	// RawBody holds the undecoded payload, when one was read.
	RawBody json.RawMessage `json:"-"`

	status      atomic.Int32
	respHeaders Values
}

// NewEnvelope returns an empty envelope.
func NewEnvelope() *Envelope {
	return &Envelope{
		Headers: Values{},
		Query:   Values{},
		Path:    []string{},
	}
}

// SetStatus forces the response status. Only the first call with a code
// in 100..599 takes effect; it reports whether this call set the status.
func (e *Envelope) SetStatus(code int) bool {
	if code < 100 || code > 599 {
		return false
	}
	return e.status.CompareAndSwap(0, int32(code))
}

// Status returns the forced status, or 0 when none was set.
func (e *Envelope) Status() int {
	return int(e.status.Load())
}

// SetHeader sets a response header to be written by the transport.
func (e *Envelope) SetHeader(key, value string) {
	if e.respHeaders == nil {
		e.respHeaders = Values{}
	}
	e.respHeaders[key] = []string{value}
}

// ResponseHeaders returns the headers set with SetHeader.
func (e *Envelope) ResponseHeaders() Values {
	return e.respHeaders
}

// Segment returns the i-th path segment, or "" when out of range.
// Segment 0 is the entity name.
func (e *Envelope) Segment(i int) string {
	if i < 0 || i >= len(e.Path) {
		return ""
	}
	return e.Path[i]
}

// Decode unmarshals the request payload into dst.
func (e *Envelope) Decode(dst any) error {
	raw := e.RawBody
	if len(raw) == 0 {
		if e.Body == nil {
			return fmt.Errorf("%w: missing body", ErrMalformedInput)
		}
		var err error
		if raw, err = json.Marshal(e.Body); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return nil
}

// ParseDescriptor splits a route descriptor into its lowercased verb and
// entity. The verb and entity are separated by a single space; the entity
// may be empty (the root resource) but may not contain whitespace.
func ParseDescriptor(descriptor string) (verb, entity string, err error) {
	verb, entity, ok := strings.Cut(descriptor, " ")
	if !ok || verb == "" || strings.ContainsAny(verb, " \t\r\n") || strings.ContainsAny(entity, " \t\r\n") {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedDescriptor, descriptor)
	}
	return strings.ToLower(verb), strings.ToLower(entity), nil
}
