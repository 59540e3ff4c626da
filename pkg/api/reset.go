package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rhuss/ribamar/pkg/dispatch"
	"github.com/rhuss/ribamar/pkg/storage"
)

// Reset redemption modes.
const (
	ResetAuto   = "auto"
	ResetManual = "manual"
)

// ResetTemplate is the mail template sent on reset creation when recovery
// e-mail is enabled.
const ResetTemplate = "reset"

// expiryLayout keeps expiry strings fixed-width so they order
// lexicographically in every store.
const expiryLayout = time.RFC3339

type resetInput struct {
	Key string `json:"key" validate:"required"`
}

// ResetToken is the client view of a reset.
type ResetToken struct {
	Token  string `json:"token"`
	Expiry string `json:"expiry"`
}

type resetRecord struct {
	ID     string `json:"_id,omitempty"`
	Token  string `json:"token"`
	Expiry string `json:"expiry"`
	Key    string `json:"key"`
}

// Resets serves the reset entity.
type Resets struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func (r Resets) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Post issues a reset token for credential key.
func (r Resets) Post(ctx context.Context, d *dispatch.Deps, in *dispatch.Envelope) (any, error) {
	var input resetInput
	if err := in.Decode(&input); err != nil {
		return nil, err
	}
	if msgs := validate(d, input); msgs != nil {
		return reject(in, http.StatusBadRequest, msgs...)
	}

	known, err := credentialTaken(ctx, d.Store, input.Key)
	if err != nil {
		return nil, err
	}
	if !known {
		return reject(in, http.StatusBadRequest, msgUnknownCredential)
	}

	cfg := accountsConfig(d)
	rec := resetRecord{
		Token:  NewSalt(),
		Expiry: r.now().Add(cfg.ResetExpiry).Format(expiryLayout),
		Key:    input.Key,
	}
	doc, err := toDocument(rec)
	if err != nil {
		return nil, err
	}
	if _, err := d.Store.Insert(ctx, ResetCollection, doc); err != nil {
		return nil, fmt.Errorf("inserting reset: %w", err)
	}

	out := ResetToken{Token: rec.Token, Expiry: rec.Expiry}
	if cfg.RecoveryEmail && d.Mailer != nil {
		data := map[string]any{"token": out.Token, "expiry": out.Expiry}
		if _, err := d.Mailer.Notify(ctx, ResetTemplate, input.Key, data); err != nil {
			return nil, fmt.Errorf("mailing reset for %s: %w", input.Key, err)
		}
	}

	loggerOf(d).Info("reset created", slog.String("credential", input.Key))
	return out, nil
}

// Get redeems a reset token. In auto mode a new passcode is generated,
// stored and answered; in manual mode the client is redirected to the
// credential to patch it.
func (r Resets) Get(ctx context.Context, d *dispatch.Deps, in *dispatch.Envelope) (any, error) {
	token := in.Segment(1)
	if token == "" {
		return absent(in, http.StatusNotFound)
	}
	rec, err := r.load(ctx, d.Store, token)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return absent(in, http.StatusNotFound)
	}

	if accountsConfig(d).ResetType == ResetManual {
		in.SetStatus(http.StatusSeeOther)
		in.SetHeader("Location", "/credential/"+url.PathEscape(rec.Key))
		return map[string]string{"method": http.MethodPatch}, nil
	}

	passcode := NewSalt()
	ok, err := setPasscode(ctx, d.Store, rec.Key, passcode)
	if err != nil {
		return nil, err
	}
	if !ok {
		return absent(in, http.StatusNotFound)
	}
	if _, err := d.Store.Delete(ctx, ResetCollection, "token", token); err != nil {
		return nil, fmt.Errorf("consuming reset: %w", err)
	}

	loggerOf(d).Info("reset redeemed", slog.String("credential", rec.Key))
	return map[string]string{"passcode": passcode}, nil
}

// Expire deletes every reset past its expiry. It is run by the scheduler.
func (r Resets) Expire(ctx context.Context, d *dispatch.Deps, _ *dispatch.Envelope) (any, error) {
	expired, err := d.Store.Find(ctx, ResetCollection, storage.Lt("expiry", r.now().Format(expiryLayout)))
	if err != nil {
		return nil, fmt.Errorf("finding expired resets: %w", err)
	}

	removed := 0
	for _, doc := range expired {
		n, err := d.Store.Delete(ctx, ResetCollection, storage.IDKey, doc.ID())
		if err != nil {
			return nil, fmt.Errorf("deleting reset: %w", err)
		}
		removed += n
	}

	if removed > 0 {
		loggerOf(d).Info("expired resets removed", slog.Int("count", removed))
	}
	return nil, nil
}

// load returns the unexpired reset with token, or nil.
func (r Resets) load(ctx context.Context, store storage.Store, token string) (*resetRecord, error) {
	doc, err := store.Get(ctx, ResetCollection, "token", token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading reset: %w", err)
	}
	var rec resetRecord
	if err := fromDocument(doc, &rec); err != nil {
		return nil, err
	}
	if rec.Expiry < r.now().Format(expiryLayout) {
		return nil, nil
	}
	return &rec, nil
}
