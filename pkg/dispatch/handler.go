package dispatch

import (
	"context"
	"log/slog"

	"github.com/rhuss/ribamar/pkg/config"
	"github.com/rhuss/ribamar/pkg/storage"
)

// Mailer sends templated e-mail to the account owning a credential. It
// returns the recipient address, or "" when nothing was sent.
type Mailer interface {
	Notify(ctx context.Context, template, credentialID string, data map[string]any) (string, error)
}

// Validator checks a decoded input value and returns human-readable error
// messages, or nil when the value is valid.
type Validator interface {
	Validate(v any) []string
}

// Deps is the execution context bound to every handler invocation.
// Handlers must treat it as read-only.
type Deps struct {
	Store     storage.Store
	Logger    *slog.Logger
	Mailer    Mailer
	Validator Validator
	Config    *config.Config
}

// HandlerFunc handles one verb of an entity.
type HandlerFunc func(ctx context.Context, deps *Deps, in *Envelope) (any, error)

// Getter handles the "get" verb.
type Getter interface {
	Get(ctx context.Context, deps *Deps, in *Envelope) (any, error)
}

// Poster handles the "post" verb.
type Poster interface {
	Post(ctx context.Context, deps *Deps, in *Envelope) (any, error)
}

// Putter handles the "put" verb.
type Putter interface {
	Put(ctx context.Context, deps *Deps, in *Envelope) (any, error)
}

// Patcher handles the "patch" verb.
type Patcher interface {
	Patch(ctx context.Context, deps *Deps, in *Envelope) (any, error)
}

// Deleter handles the "delete" verb.
type Deleter interface {
	Delete(ctx context.Context, deps *Deps, in *Envelope) (any, error)
}

// Route binds a lowercase verb to its handler.
type Route struct {
	Verb    string
	Handler HandlerFunc
}

// Entity is a named resource with an ordered set of verbs.
type Entity struct {
	Name   string
	Routes []Route
}

// EntityOption adds verbs to an Entity.
type EntityOption func(*Entity)

// WithVerb appends a verb handled by fn.
func WithVerb(verb string, fn HandlerFunc) EntityOption {
	return func(e *Entity) {
		e.Routes = append(e.Routes, Route{Verb: verb, Handler: fn})
	}
}

// NewEntity builds an Entity named name. The standard verbs implemented by
// impl are registered first in the order get, post, put, patch, delete;
// impl may be nil for entities made only of WithVerb handlers.
func NewEntity(name string, impl any, opts ...EntityOption) Entity {
	e := Entity{Name: name}
	if v, ok := impl.(Getter); ok {
		e.Routes = append(e.Routes, Route{Verb: "get", Handler: v.Get})
	}
	if v, ok := impl.(Poster); ok {
		e.Routes = append(e.Routes, Route{Verb: "post", Handler: v.Post})
	}
	if v, ok := impl.(Putter); ok {
		e.Routes = append(e.Routes, Route{Verb: "put", Handler: v.Put})
	}
	if v, ok := impl.(Patcher); ok {
		e.Routes = append(e.Routes, Route{Verb: "patch", Handler: v.Patch})
	}
	if v, ok := impl.(Deleter); ok {
		e.Routes = append(e.Routes, Route{Verb: "delete", Handler: v.Delete})
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}
