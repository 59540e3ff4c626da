package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	gohttp "net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type healthFunc func(context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// startServer serves s on a random local port and returns its base URL.
func startServer(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeOn(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("ServeOn() error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})
	return "http://" + ln.Addr().String()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, url string) (*gohttp.Response, string) {
	t.Helper()
	resp, err := gohttp.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestNewServerRejectsInvalidPort(t *testing.T) {
	for _, port := range []int{0, -1, 65536} {
		_, err := NewServer(widgetAdapter(t), WithPort(port))
		if !errors.Is(err, ErrInvalidPort) {
			t.Errorf("NewServer(port %d) error = %v, want ErrInvalidPort", port, err)
		}
	}
}

func TestServerAddr(t *testing.T) {
	s, err := NewServer(widgetAdapter(t), WithPort(7001))
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Addr(); got != ":7001" {
		t.Errorf("Addr() = %q, want :7001", got)
	}
}

func TestServerRoutesToAdapter(t *testing.T) {
	s, err := NewServer(widgetAdapter(t), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	base := startServer(t, s)

	resp, body := get(t, base+"/widget")
	if resp.StatusCode != gohttp.StatusOK || body != "ok" {
		t.Errorf("GET /widget = %d %q, want 200 ok", resp.StatusCode, body)
	}

	req, _ := gohttp.NewRequest(gohttp.MethodPost, base+"/widget", strings.NewReader(`{}`))
	post, err := gohttp.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()
	if post.StatusCode != gohttp.StatusMethodNotAllowed {
		t.Errorf("POST /widget = %d, want 405", post.StatusCode)
	}
	if post.Header.Get("Allow") != "GET" {
		t.Errorf("Allow = %q, want GET", post.Header.Get("Allow"))
	}
}

func TestServerHealth(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	check := healthFunc(func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("store down")
	})

	s, err := NewServer(widgetAdapter(t), WithHealth(check), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	base := startServer(t, s)

	resp, body := get(t, base+"/healthz")
	if resp.StatusCode != gohttp.StatusOK || body != "ok" {
		t.Errorf("healthy = %d %q, want 200 ok", resp.StatusCode, body)
	}

	healthy.Store(false)
	resp, _ = get(t, base+"/healthz")
	if resp.StatusCode != gohttp.StatusServiceUnavailable {
		t.Errorf("unhealthy = %d, want 503", resp.StatusCode)
	}
}

func TestServerWithoutHealthFallsThrough(t *testing.T) {
	s, err := NewServer(widgetAdapter(t), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	base := startServer(t, s)

	resp, _ := get(t, base+"/healthz")
	if resp.StatusCode != gohttp.StatusNotFound {
		t.Errorf("GET /healthz without checker = %d, want 404 from the adapter", resp.StatusCode)
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	s, err := NewServer(widgetAdapter(t), WithMetrics("/metrics"), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	base := startServer(t, s)

	get(t, base+"/widget")
	resp, body := get(t, base+"/metrics")
	if resp.StatusCode != gohttp.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", resp.StatusCode)
	}
	for _, name := range []string{"ribamar_requests_total", "ribamar_dispatch_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestServerGracefulShutdown(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	s, err := NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		close(started)
		<-release
		w.Write([]byte("done"))
	}), WithLogger(quietLogger()), WithShutdownTimeout(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeOn(ctx, ln) }()

	result := make(chan string, 1)
	go func() {
		resp, err := gohttp.Get("http://" + ln.Addr().String() + "/slow")
		if err != nil {
			result <- "error: " + err.Error()
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		result <- string(b)
	}()

	<-started
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	if got := <-result; got != "done" {
		t.Errorf("in-flight request = %q, want done", got)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeOn() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
