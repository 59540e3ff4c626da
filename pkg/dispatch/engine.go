package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/rhuss/ribamar/pkg/debug"
	"github.com/rhuss/ribamar/pkg/observability"
)

// unknownEntityLabel replaces unregistered entity names in metric labels so
// arbitrary request paths cannot grow label cardinality.
const unknownEntityLabel = "_unknown"

// capabilities holds the verbs of one entity.
type capabilities struct {
	order    []string
	handlers map[string]HandlerFunc
}

// Engine resolves route descriptors against an immutable capability table
// and invokes the matching handler with the bound Deps.
type Engine struct {
	deps     Deps
	entities map[string]*capabilities
	names    []string
}

// New builds an Engine over the given entities. Entity names and verbs
// are matched case-insensitively; duplicates are rejected.
func New(deps Deps, entities ...Entity) (*Engine, error) {
	e := &Engine{
		deps:     deps,
		entities: make(map[string]*capabilities, len(entities)),
	}

	for _, ent := range entities {
		name := strings.ToLower(ent.Name)
		if strings.ContainsAny(name, " \t\r\n/") {
			return nil, fmt.Errorf("dispatch: invalid entity name %q", ent.Name)
		}
		if _, dup := e.entities[name]; dup {
			return nil, fmt.Errorf("dispatch: duplicate entity %q", ent.Name)
		}

		caps := &capabilities{handlers: make(map[string]HandlerFunc, len(ent.Routes))}
		for _, r := range ent.Routes {
			verb := strings.ToLower(r.Verb)
			if verb == "" || strings.ContainsAny(verb, " \t\r\n") {
				return nil, fmt.Errorf("dispatch: invalid verb %q for entity %q", r.Verb, ent.Name)
			}
			if r.Handler == nil {
				return nil, fmt.Errorf("dispatch: nil handler for %q %q", r.Verb, ent.Name)
			}
			if _, dup := caps.handlers[verb]; dup {
				return nil, fmt.Errorf("dispatch: duplicate verb %q for entity %q", r.Verb, ent.Name)
			}
			caps.handlers[verb] = r.Handler
			caps.order = append(caps.order, verb)
		}

		e.entities[name] = caps
		e.names = append(e.names, name)
	}

	return e, nil
}

// Run executes the handler addressed by descriptor ("VERB entity").
// A nil envelope is replaced with an empty one. Errors returned by the
// handler are passed through unmodified.
func (e *Engine) Run(ctx context.Context, descriptor string, in *Envelope) (any, error) {
	verb, entity, err := ParseDescriptor(descriptor)
	if err != nil {
		observability.DispatchTotal.WithLabelValues("", unknownEntityLabel, string(KindMalformedDescriptor)).Inc()
		return nil, err
	}

	caps, ok := e.entities[entity]
	if !ok {
		observability.DispatchTotal.WithLabelValues(verb, unknownEntityLabel, string(KindUnknownEntity)).Inc()
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}

	h, ok := caps.handlers[verb]
	if !ok {
		observability.DispatchTotal.WithLabelValues(verb, entity, string(KindUnsupportedVerb)).Inc()
		return nil, fmt.Errorf("%w: %s %q", ErrUnsupportedVerb, verb, entity)
	}

	if in == nil {
		in = NewEnvelope()
	}

	// Each invocation gets its own copy so handlers cannot alter the
	// context seen by others.
	deps := e.deps
	out, err := h(ctx, &deps, in)
	kind := KindOf(err)
	observability.DispatchTotal.WithLabelValues(verb, entity, string(kind)).Inc()
	debug.Log(debug.Dispatch, "handler returned", "verb", verb, "entity", entity, "kind", string(kind))
	return out, err
}

// Options returns the verbs of entity in registration order.
func (e *Engine) Options(entity string) ([]string, error) {
	caps, ok := e.entities[strings.ToLower(entity)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	out := make([]string, len(caps.order))
	copy(out, caps.order)
	return out, nil
}

// Entities returns the registered entity names in registration order.
func (e *Engine) Entities() []string {
	out := make([]string, len(e.names))
	copy(out, e.names)
	return out
}
