package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
)

// IDKey is the key holding a document's identifier.
const IDKey = "_id"

// Document is a JSON-shaped stored record.
type Document map[string]any

// ID returns the document identifier, or "" when unset.
func (d Document) ID() string {
	id, _ := d[IDKey].(string)
	return id
}

// Op is a comparison operator used in Find conditions.
type Op string

const (
	OpEq Op = "=="
	OpLt Op = "<"
	OpGt Op = ">"
)

// Condition compares the field at Key with Value.
type Condition struct {
	Key   string
	Op    Op
	Value any
}

// Eq matches documents whose Key equals value.
func Eq(key string, value any) Condition { return Condition{Key: key, Op: OpEq, Value: value} }

// Lt matches documents whose Key is less than value.
func Lt(key string, value any) Condition { return Condition{Key: key, Op: OpLt, Value: value} }

// Gt matches documents whose Key is greater than value.
func Gt(key string, value any) Condition { return Condition{Key: key, Op: OpGt, Value: value} }

// Store is a collection-oriented document store. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the first document in collection whose key equals value.
	// Returns ErrNotFound when nothing matches.
	Get(ctx context.Context, collection, key string, value any) (Document, error)

	// Find returns every document matching all conditions, in insertion
	// order. No conditions matches the whole collection.
	Find(ctx context.Context, collection string, conds ...Condition) ([]Document, error)

	// Insert stores doc and returns its id. An id is generated when doc
	// has none; ErrConflict is returned when the id already exists.
	Insert(ctx context.Context, collection string, doc Document) (string, error)

	// Update sets the top-level fields in set on the first document whose
	// key equals value. Returns ErrNotFound when nothing matches.
	Update(ctx context.Context, collection, key string, value any, set Document) error

	// Delete removes every document whose key equals value and returns
	// how many were removed.
	Delete(ctx context.Context, collection, key string, value any) (int, error)

	// Exists reports whether any document's key equals value.
	Exists(ctx context.Context, collection, key string, value any) (bool, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidateKey checks that key is a dotted identifier path. Backends rely on
// this before embedding keys into query languages.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// ValidateConditions checks every condition key and operator.
func ValidateConditions(conds []Condition) error {
	for _, c := range conds {
		if err := ValidateKey(c.Key); err != nil {
			return err
		}
		switch c.Op {
		case OpEq, OpLt, OpGt:
		default:
			return fmt.Errorf("storage: unsupported operator %q", c.Op)
		}
	}
	return nil
}

// Normalize returns a deep copy of doc in plain JSON form: nested objects
// become map[string]any, arrays []any and numbers float64.
func Normalize(doc Document) (Document, error) {
	if doc == nil {
		return Document{}, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalizing document: %w", err)
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalizing document: %w", err)
	}
	return out, nil
}

// NormalizeValue converts a single value to its plain JSON form.
func NormalizeValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalizing value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalizing value: %w", err)
	}
	return out, nil
}
