package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	rdebug "runtime/debug"
	"strings"
	"time"

	"github.com/rhuss/ribamar/pkg/debug"
	"github.com/rhuss/ribamar/pkg/dispatch"
	"github.com/rhuss/ribamar/pkg/transport"
)

// Dispatcher is the subset of the dispatch engine used by the adapter.
type Dispatcher interface {
	Run(ctx context.Context, descriptor string, in *dispatch.Envelope) (any, error)
	Options(entity string) ([]string, error)
}

// Adapter serves dispatch entities over HTTP. The first path segment
// selects the entity and the request method selects the verb.
type Adapter struct {
	engine      Dispatcher
	logger      *slog.Logger
	maxBodySize int64
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithAdapterLogger sets the logger used for fault and request logs.
func WithAdapterLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = l }
}

// WithMaxBodySize limits the size of request payloads. Zero disables the
// limit.
func WithMaxBodySize(n int64) AdapterOption {
	return func(a *Adapter) { a.maxBodySize = n }
}

// NewAdapter creates an HTTP adapter over engine.
func NewAdapter(engine Dispatcher, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		engine:      engine,
		logger:      slog.Default(),
		maxBodySize: 1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ServeHTTP runs one request through the dispatch pipeline.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	verb := strings.ToLower(r.Method)

	requestID := r.Header.Get(transport.RequestIDHeader)
	if requestID == "" {
		requestID = transport.NewRequestID()
	}
	ctx := transport.ContextWithRequestID(r.Context(), requestID)
	w.Header().Set(transport.RequestIDHeader, requestID)

	in, entity, err := a.envelope(w, r, verb)

	var out any
	if err == nil {
		out, err = a.dispatch(ctx, verb+" "+entity, in)
	}

	var (
		body        []byte
		contentType string
	)
	if err == nil {
		body, contentType, err = transport.Encode(out)
	}

	status := transport.StatusFor(verb, in.Status(), err)

	if dispatch.IsFault(err) {
		attrs := []slog.Attr{
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		}
		var pe *dispatch.PanicError
		if errors.As(err, &pe) {
			attrs = append(attrs, slog.String("stack", string(pe.Stack)))
		}
		a.logger.LogAttrs(ctx, slog.LevelError, "handler fault", attrs...)
	}

	header := w.Header()
	for k, vals := range in.ResponseHeaders() {
		for _, v := range vals {
			header.Add(k, v)
		}
	}
	if status == http.StatusMethodNotAllowed {
		if verbs, oerr := a.engine.Options(entity); oerr == nil {
			header.Set("Allow", strings.ToUpper(strings.Join(verbs, ", ")))
		}
	}

	// Errors never carry a body.
	if err != nil {
		body = nil
	}
	if len(body) > 0 && bodyAllowed(status) {
		header.Set("Content-Type", contentType)
		w.WriteHeader(status)
		w.Write(body)
	} else {
		w.WriteHeader(status)
	}

	a.logger.LogAttrs(ctx, slog.LevelDebug, "request completed",
		slog.String("request_id", requestID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)
}

// envelope builds the dispatch input from r. The envelope is always
// non-nil so the status hook can be read even when parsing fails.
func (a *Adapter) envelope(w http.ResponseWriter, r *http.Request, verb string) (*dispatch.Envelope, string, error) {
	in := dispatch.NewEnvelope()

	for name, vals := range r.Header {
		key := strings.ToLower(name)
		for _, v := range vals {
			in.Headers.Add(key, v)
		}
	}
	for name, vals := range r.URL.Query() {
		for _, v := range vals {
			in.Query.Add(name, v)
		}
	}

	path, err := splitPath(r.URL.EscapedPath())
	if err != nil {
		return in, "", err
	}
	in.Path = path
	entity := path[0]

	if !transport.CarriesPayload(verb) {
		if r.ContentLength != 0 {
			return in, entity, fmt.Errorf("%w: %s request with a body", dispatch.ErrMalformedInput, r.Method)
		}
		return in, entity, nil
	}

	reader := io.Reader(r.Body)
	if a.maxBodySize > 0 {
		reader = http.MaxBytesReader(w, r.Body, a.maxBodySize)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return in, entity, fmt.Errorf("%w: reading body: %v", dispatch.ErrMalformedInput, err)
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return in, entity, fmt.Errorf("%w: %v", dispatch.ErrMalformedInput, err)
	}
	in.Body = body
	in.RawBody = raw
	debug.Log(debug.Transport, "request payload",
		"method", r.Method,
		"path", r.URL.Path,
		"body", debug.Truncate(string(raw), 512),
	)
	return in, entity, nil
}

// dispatch runs the engine, turning a handler panic into a fault.
func (a *Adapter) dispatch(ctx context.Context, descriptor string, in *dispatch.Envelope) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &dispatch.PanicError{Value: r, Stack: rdebug.Stack()}
		}
	}()
	return a.engine.Run(ctx, descriptor, in)
}

// splitPath returns the decoded segments of an escaped URL path. The root
// path yields a single empty segment, the root entity.
func splitPath(escaped string) ([]string, error) {
	parts := strings.Split(strings.TrimPrefix(escaped, "/"), "/")
	for i, p := range parts {
		seg, err := url.PathUnescape(p)
		if err != nil {
			return nil, fmt.Errorf("%w: path segment %q: %v", dispatch.ErrMalformedInput, p, err)
		}
		parts[i] = seg
	}
	return parts, nil
}

// bodyAllowed reports whether status permits a response body.
func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
