package observability

import (
	"net/http"
	"strconv"
	"time"
)

// otherMethod labels requests whose method is not a standard HTTP method.
// Custom verbs such as EXPIRE are routed normally but share this label.
const otherMethod = "OTHER"

var standardMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// MetricsMiddleware records ribamar_requests_total and
// ribamar_request_duration_seconds for every request passing through next.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		method := methodLabel(r.Method)
		RequestsTotal.WithLabelValues(method, statusClass(rec.code())).Inc()
		RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	})
}

func methodLabel(m string) string {
	if standardMethods[m] {
		return m
	}
	return otherMethod
}

// statusClass turns 204 into "2xx".
func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// statusRecorder remembers the first status written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// code returns the recorded status, or 200 when the handler wrote nothing.
func (w *statusRecorder) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
