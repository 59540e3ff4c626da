package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rhuss/ribamar/pkg/config"
	"github.com/rhuss/ribamar/pkg/dispatch"
	"github.com/rhuss/ribamar/pkg/mailer"
	"github.com/rhuss/ribamar/pkg/storage"
	"github.com/rhuss/ribamar/pkg/storage/memory"
	transporthttp "github.com/rhuss/ribamar/pkg/transport/http"
)

func TestMain(m *testing.M) {
	hashIterations = 10
	os.Exit(m.Run())
}

type mailCall struct {
	Template   string
	Credential string
	Data       map[string]any
}

// fakeMailer records calls and knows a fixed set of templates.
type fakeMailer struct {
	mu        sync.Mutex
	templates map[string]bool
	calls     []mailCall
}

func (f *fakeMailer) Notify(_ context.Context, template, credentialID string, data map[string]any) (string, error) {
	if !f.templates[template] {
		return "", mailer.ErrUnknownTemplate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, mailCall{template, credentialID, data})
	return credentialID + "@example.com", nil
}

type harness struct {
	t      *testing.T
	engine *dispatch.Engine
	server http.Handler
	store  storage.Store
	mail   *fakeMailer
}

func newHarness(t *testing.T, configure ...func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Defaults()
	for _, fn := range configure {
		fn(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New(0)
	mail := &fakeMailer{templates: map[string]bool{"welcome": true, ResetTemplate: true}}

	eng, err := dispatch.New(dispatch.Deps{
		Store:     store,
		Logger:    logger,
		Mailer:    mail,
		Validator: NewValidator(),
		Config:    &cfg,
	}, Entities()...)
	if err != nil {
		t.Fatalf("dispatch.New() error: %v", err)
	}

	return &harness{
		t:      t,
		engine: eng,
		server: transporthttp.NewAdapter(eng, transporthttp.WithAdapterLogger(logger)),
		store:  store,
		mail:   mail,
	}
}

// do sends a request. A string body is sent verbatim, any other non-nil
// body as JSON.
func (h *harness) do(method, target string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			h.t.Fatalf("encoding body: %v", err)
		}
		r = strings.NewReader(string(data))
	}
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

// expect asserts the status and decodes a JSON body into dst when non-nil.
func (h *harness) expect(rec *httptest.ResponseRecorder, status int, dst any) {
	h.t.Helper()
	if rec.Code != status {
		h.t.Fatalf("status = %d, want %d (body %q)", rec.Code, status, rec.Body.String())
	}
	if dst != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
			h.t.Fatalf("decoding %q: %v", rec.Body.String(), err)
		}
	}
}

func (h *harness) expectErrors(rec *httptest.ResponseRecorder, status int, want ...string) {
	h.t.Helper()
	var body ErrorBody
	h.expect(rec, status, &body)
	if diff := cmp.Diff(want, body.Errors); diff != "" {
		h.t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
}

func (h *harness) createAccount(body map[string]any) string {
	h.t.Helper()
	var out map[string]string
	h.expect(h.do(http.MethodPost, "/account", body), http.StatusCreated, &out)
	if out["id"] == "" {
		h.t.Fatal("missing account id")
	}
	return out["id"]
}

func (h *harness) authenticate(id, passcode string) string {
	h.t.Helper()
	var out AuthResult
	h.expect(h.do(http.MethodGet, "/authentication?id="+id+"&passcode="+passcode, nil), http.StatusOK, &out)
	return out.Result
}

func TestRoot(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/", nil)
	h.expect(rec, http.StatusOK, nil)
	if rec.Body.String() != "It works!" {
		t.Errorf("body = %q, want It works!", rec.Body.String())
	}
}

func TestAccountLifecycle(t *testing.T) {
	h := newHarness(t)
	id := h.createAccount(map[string]any{
		"id":       "ana",
		"name":     "Ana",
		"passcode": "secret-passcode",
		"profile":  map[string]any{"city": "Lisbon", "lang": "pt"},
	})

	var got map[string]any
	h.expect(h.do(http.MethodGet, "/account/"+id, nil), http.StatusOK, &got)
	if got["name"] != "Ana" || got["id"] != "ana" {
		t.Errorf("account data = %v", got)
	}
	if _, ok := got["passcode"]; ok {
		t.Error("passcode must not be stored in account data")
	}
	if _, ok := got["creation"].(string); !ok {
		t.Errorf("creation = %v, want a timestamp", got["creation"])
	}
	if diff := cmp.Diff([]any{"ana"}, got["credentials"]); diff != "" {
		t.Errorf("credentials mismatch (-want +got):\n%s", diff)
	}

	rec := h.do(http.MethodPatch, "/account/"+id, map[string]any{
		"profile":  map[string]any{"city": "Porto"},
		"passcode": "ignored!!",
	})
	h.expect(rec, http.StatusNoContent, nil)

	h.expect(h.do(http.MethodGet, "/account/"+id, nil), http.StatusOK, &got)
	wantProfile := map[string]any{"city": "Porto", "lang": "pt"}
	if diff := cmp.Diff(wantProfile, got["profile"]); diff != "" {
		t.Errorf("merged profile mismatch (-want +got):\n%s", diff)
	}
	if _, ok := got["passcode"]; ok {
		t.Error("patch must not store a passcode")
	}

	h.expect(h.do(http.MethodDelete, "/account/"+id, nil), http.StatusNoContent, nil)
	h.expect(h.do(http.MethodGet, "/account/"+id, nil), http.StatusNotFound, nil)
	h.expect(h.do(http.MethodDelete, "/account/"+id, nil), http.StatusNotFound, nil)
	h.expect(h.do(http.MethodPatch, "/account/"+id, map[string]any{"a": 1}), http.StatusNotFound, nil)
}

func TestAccountAddressing(t *testing.T) {
	h := newHarness(t)
	h.expect(h.do(http.MethodGet, "/account", nil), http.StatusNotFound, nil)
	h.expect(h.do(http.MethodGet, "/account/missing", nil), http.StatusNotFound, nil)
	h.expect(h.do(http.MethodPut, "/account", map[string]any{}), http.StatusMethodNotAllowed, nil)
}

func TestAccountCreateValidation(t *testing.T) {
	h := newHarness(t)

	h.expectErrors(h.do(http.MethodPost, "/account", map[string]any{}),
		http.StatusBadRequest, "missing id", "missing passcode")
	h.expectErrors(h.do(http.MethodPost, "/account", map[string]any{"id": "ana", "passcode": "short"}),
		http.StatusBadRequest, "too short passcode")

	h.createAccount(map[string]any{"id": "ana", "passcode": "secret-passcode"})
	h.expectErrors(h.do(http.MethodPost, "/account", map[string]any{"id": "ana", "passcode": "another-passcode"}),
		http.StatusBadRequest, "taken id")

	h.expect(h.do(http.MethodPost, "/account", "not-json"), http.StatusBadRequest, nil)
	h.expect(h.do(http.MethodPost, "/account", `["ana"]`), http.StatusBadRequest, nil)
}

func TestAuthentication(t *testing.T) {
	h := newHarness(t)
	h.createAccount(map[string]any{"id": "ana", "passcode": "secret-passcode"})

	tests := []struct {
		name     string
		id, pass string
		want     string
	}{
		{"correct", "ana", "secret-passcode", ResultSuccess},
		{"wrong passcode", "ana", "wrong-passcode", ResultFailure},
		{"unknown id", "bob", "secret-passcode", ResultFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.authenticate(tt.id, tt.pass); got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
		})
	}

	h.expectErrors(h.do(http.MethodGet, "/authentication", nil),
		http.StatusBadRequest, "missing id", "missing passcode")
	h.expectErrors(h.do(http.MethodGet, "/authentication?id=ana", nil),
		http.StatusBadRequest, "missing passcode")
}

func TestCredentials(t *testing.T) {
	h := newHarness(t)
	acc := h.createAccount(map[string]any{"id": "ana", "passcode": "secret-passcode"})

	// Add.
	h.expect(h.do(http.MethodPost, "/credential", map[string]any{
		"id": "ana@example.com", "account": acc, "passcode": "mail-passcode",
	}), http.StatusNoContent, nil)
	if got := h.authenticate("ana@example.com", "mail-passcode"); got != ResultSuccess {
		t.Errorf("new credential authentication = %q", got)
	}

	h.expectErrors(h.do(http.MethodPost, "/credential", map[string]any{
		"id": "x", "account": "nope", "passcode": "mail-passcode",
	}), http.StatusBadRequest, msgUnknownAccount)
	h.expectErrors(h.do(http.MethodPost, "/credential", map[string]any{
		"id": "ana", "account": acc, "passcode": "mail-passcode",
	}), http.StatusBadRequest, msgTakenID)
	h.expectErrors(h.do(http.MethodPost, "/credential", map[string]any{"id": "x"}),
		http.StatusBadRequest, "missing account", "missing passcode")

	// New passcode.
	h.expect(h.do(http.MethodPatch, "/credential/ana", map[string]any{"passcode": "changed-passcode"}),
		http.StatusNoContent, nil)
	if got := h.authenticate("ana", "changed-passcode"); got != ResultSuccess {
		t.Errorf("patched passcode authentication = %q", got)
	}
	if got := h.authenticate("ana", "secret-passcode"); got != ResultFailure {
		t.Errorf("old passcode authentication = %q", got)
	}
	h.expectErrors(h.do(http.MethodPatch, "/credential/ana", map[string]any{"passcode": "short"}),
		http.StatusBadRequest, "too short passcode")
	h.expect(h.do(http.MethodPatch, "/credential/nobody", map[string]any{"passcode": "changed-passcode"}),
		http.StatusNotFound, nil)

	// Replace id and passcode.
	h.expectErrors(h.do(http.MethodPut, "/credential/ana", map[string]any{"id": "ana@example.com", "passcode": "renamed-passcode"}),
		http.StatusBadRequest, msgTakenID)
	h.expect(h.do(http.MethodPut, "/credential/ana", map[string]any{"id": "ana2", "passcode": "renamed-passcode"}),
		http.StatusNoContent, nil)
	if got := h.authenticate("ana2", "renamed-passcode"); got != ResultSuccess {
		t.Errorf("replaced credential authentication = %q", got)
	}
	h.expect(h.do(http.MethodPut, "/credential/ana", map[string]any{"id": "x", "passcode": "renamed-passcode"}),
		http.StatusNotFound, nil)

	// Remove, keeping the last one.
	h.expect(h.do(http.MethodDelete, "/credential/ana2", nil), http.StatusNoContent, nil)
	h.expectErrors(h.do(http.MethodDelete, "/credential/ana@example.com", nil),
		http.StatusMethodNotAllowed, msgProtectedCredential)
	h.expect(h.do(http.MethodDelete, "/credential/ana2", nil), http.StatusNotFound, nil)
	h.expect(h.do(http.MethodDelete, "/credential", nil), http.StatusNotFound, nil)

	var got map[string]any
	h.expect(h.do(http.MethodGet, "/account/"+acc, nil), http.StatusOK, &got)
	if diff := cmp.Diff([]any{"ana@example.com"}, got["credentials"]); diff != "" {
		t.Errorf("credentials mismatch (-want +got):\n%s", diff)
	}
}

func TestCredentialReadIsNotFound(t *testing.T) {
	h := newHarness(t)
	h.expect(h.do(http.MethodGet, "/credential/ana", nil), http.StatusNotFound, nil)
}

func TestNotification(t *testing.T) {
	h := newHarness(t)
	h.createAccount(map[string]any{"id": "ana", "passcode": "secret-passcode", "email": "ana@example.com"})

	rec := h.do(http.MethodPost, "/notification", map[string]any{
		"key": "ana", "template": "welcome", "data": map[string]any{"code": "42"},
	})
	h.expect(rec, http.StatusOK, nil)
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
	want := []mailCall{{"welcome", "ana", map[string]any{"code": "42"}}}
	if diff := cmp.Diff(want, h.mail.calls); diff != "" {
		t.Errorf("mail calls mismatch (-want +got):\n%s", diff)
	}

	h.expectErrors(h.do(http.MethodPost, "/notification", map[string]any{"key": "bob", "template": "welcome"}),
		http.StatusBadRequest, msgUnknownCredential)
	h.expectErrors(h.do(http.MethodPost, "/notification", map[string]any{"key": "ana", "template": "nope"}),
		http.StatusBadRequest, msgUnknownTemplate)
	h.expectErrors(h.do(http.MethodPost, "/notification", map[string]any{}),
		http.StatusBadRequest, "missing key", "missing template")
}

func TestResetAuto(t *testing.T) {
	h := newHarness(t)
	h.createAccount(map[string]any{"id": "ana", "passcode": "secret-passcode"})

	var tok ResetToken
	h.expect(h.do(http.MethodPost, "/reset", map[string]any{"key": "ana"}), http.StatusCreated, &tok)
	if len(tok.Token) != 64 || tok.Expiry == "" {
		t.Fatalf("reset = %+v", tok)
	}
	if len(h.mail.calls) != 0 {
		t.Error("reset mail sent without recovery e-mail enabled")
	}

	var out map[string]string
	h.expect(h.do(http.MethodGet, "/reset/"+tok.Token, nil), http.StatusOK, &out)
	if got := h.authenticate("ana", out["passcode"]); got != ResultSuccess {
		t.Errorf("generated passcode authentication = %q", got)
	}
	if got := h.authenticate("ana", "secret-passcode"); got != ResultFailure {
		t.Errorf("old passcode authentication = %q", got)
	}

	h.expect(h.do(http.MethodGet, "/reset/"+tok.Token, nil), http.StatusNotFound, nil)
	h.expect(h.do(http.MethodGet, "/reset", nil), http.StatusNotFound, nil)
	h.expectErrors(h.do(http.MethodPost, "/reset", map[string]any{"key": "bob"}),
		http.StatusBadRequest, msgUnknownCredential)
	h.expectErrors(h.do(http.MethodPost, "/reset", map[string]any{}),
		http.StatusBadRequest, "missing key")
}

func TestResetManualWithRecoveryEmail(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Accounts.ResetType = ResetManual
		c.Accounts.RecoveryEmail = true
	})
	h.createAccount(map[string]any{"id": "ana@example.com", "passcode": "secret-passcode"})

	var tok ResetToken
	h.expect(h.do(http.MethodPost, "/reset", map[string]any{"key": "ana@example.com"}), http.StatusCreated, &tok)
	if len(h.mail.calls) != 1 || h.mail.calls[0].Template != ResetTemplate {
		t.Fatalf("mail calls = %+v, want one reset mail", h.mail.calls)
	}
	if h.mail.calls[0].Data["token"] != tok.Token {
		t.Errorf("mailed token = %v, want %s", h.mail.calls[0].Data["token"], tok.Token)
	}

	rec := h.do(http.MethodGet, "/reset/"+tok.Token, nil)
	var out map[string]string
	h.expect(rec, http.StatusSeeOther, &out)
	if loc := rec.Header().Get("Location"); loc != "/credential/ana@example.com" {
		t.Errorf("Location = %q", loc)
	}
	if out["method"] != "PATCH" {
		t.Errorf("body = %v, want method PATCH", out)
	}
}

func TestResetExpire(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, rec := range []resetRecord{
		{Token: "old", Expiry: "2000-01-01T00:00:00Z", Key: "ana"},
		{Token: "fresh", Expiry: "2999-01-01T00:00:00Z", Key: "ana"},
	} {
		doc, err := toDocument(rec)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := h.store.Insert(ctx, ResetCollection, doc); err != nil {
			t.Fatal(err)
		}
	}

	// An expired token is refused before the sweep runs.
	h.expect(h.do(http.MethodGet, "/reset/old", nil), http.StatusNotFound, nil)

	if _, err := h.engine.Run(ctx, "EXPIRE reset", nil); err != nil {
		t.Fatalf("EXPIRE reset error: %v", err)
	}

	docs, err := h.store.Find(ctx, ResetCollection)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0]["token"] != "fresh" {
		t.Errorf("remaining resets = %v, want only fresh", docs)
	}
}

func TestSearch(t *testing.T) {
	h := newHarness(t)
	ana := h.createAccount(map[string]any{"id": "ana", "passcode": "secret-passcode", "name": "Ana", "city": "lisbon"})
	bob := h.createAccount(map[string]any{"id": "bob", "passcode": "secret-passcode", "name": "Bob", "city": "porto"})

	tests := []struct {
		name   string
		target string
		want   any
	}{
		{"all ids", "/search", []any{ana, bob}},
		{"by field", "/search?city=lisbon", []any{ana}},
		{"no match", "/search?city=braga", []any{}},
		{"operator keys ignored", "/search?$where=1&city=porto", []any{bob}},
		{"dotted keys ignored", "/search?data.city=porto", []any{ana, bob}},
		{"fields", "/search?city=lisbon&fields=name,credentials,missing", []any{
			map[string]any{"account": ana, "name": "Ana", "credentials": []any{"ana"}, "missing": ""},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got any
			h.expect(h.do(http.MethodGet, tt.target, nil), http.StatusOK, &got)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("results mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEntities(t *testing.T) {
	eng, err := dispatch.New(dispatch.Deps{}, Entities()...)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string][]string{
		"":               {"get"},
		"account":        {"get", "post", "patch", "delete"},
		"credential":     {"post", "put", "patch", "delete"},
		"authentication": {"get"},
		"notification":   {"post"},
		"reset":          {"get", "post", "expire"},
		"search":         {"get"},
	}
	for entity, verbs := range want {
		got, err := eng.Options(entity)
		if err != nil {
			t.Errorf("Options(%q) error: %v", entity, err)
			continue
		}
		if diff := cmp.Diff(verbs, got); diff != "" {
			t.Errorf("Options(%q) mismatch (-want +got):\n%s", entity, diff)
		}
	}
}
