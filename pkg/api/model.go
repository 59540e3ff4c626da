package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhuss/ribamar/pkg/config"
	"github.com/rhuss/ribamar/pkg/dispatch"
	"github.com/rhuss/ribamar/pkg/mailer"
	"github.com/rhuss/ribamar/pkg/storage"
)

// Collections used by the resources.
const (
	AccountCollection = mailer.AccountCollection
	ResetCollection   = "resets"
)

// Credential is a login id with its salted passcode hash.
type Credential struct {
	ID   string `json:"id"`
	Hash string `json:"hash"`
	Salt string `json:"salt"`
}

func newCredential(id, passcode string) Credential {
	salt := NewSalt()
	return Credential{ID: id, Hash: HashPasscode(passcode, salt), Salt: salt}
}

// Account is the stored account document.
type Account struct {
	ID          string         `json:"_id,omitempty"`
	Creation    time.Time      `json:"creation"`
	Credentials []Credential   `json:"credentials"`
	Data        map[string]any `json:"data"`
}

// credential returns the index of the credential with id, or -1.
func (a *Account) credential(id string) int {
	for i, c := range a.Credentials {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// credentialIDs lists the account's credential ids in order.
func (a *Account) credentialIDs() []string {
	ids := make([]string, len(a.Credentials))
	for i, c := range a.Credentials {
		ids[i] = c.ID
	}
	return ids
}

// toDocument converts v to its stored JSON form.
func toDocument(v any) (storage.Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	var doc storage.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return doc, nil
}

// fromDocument decodes a stored document into dst.
func fromDocument(doc storage.Document, dst any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	return nil
}

// loadAccount returns the first account whose key equals value, or nil
// when none does.
func loadAccount(ctx context.Context, store storage.Store, key string, value any) (*Account, error) {
	doc, err := store.Get(ctx, AccountCollection, key, value)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}
	var acc Account
	if err := fromDocument(doc, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// saveCredentials replaces the stored credential list of acc.
func saveCredentials(ctx context.Context, store storage.Store, acc *Account) error {
	set, err := toDocument(map[string]any{"credentials": acc.Credentials})
	if err != nil {
		return err
	}
	if err := store.Update(ctx, AccountCollection, storage.IDKey, acc.ID, set); err != nil {
		return fmt.Errorf("saving credentials of account %s: %w", acc.ID, err)
	}
	return nil
}

// setPasscode rehashes the credential id with a new passcode. It reports
// false when no account holds the credential.
func setPasscode(ctx context.Context, store storage.Store, id, passcode string) (bool, error) {
	acc, err := loadAccount(ctx, store, "credentials.id", id)
	if err != nil || acc == nil {
		return false, err
	}
	i := acc.credential(id)
	if i < 0 {
		return false, nil
	}
	acc.Credentials[i] = newCredential(id, passcode)
	return true, saveCredentials(ctx, store, acc)
}

// mergeDeep returns dst with src merged in. Nested objects are merged
// recursively; any other value in src replaces the one in dst.
func mergeDeep(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := out[k].(map[string]any); ok {
				out[k] = mergeDeep(dv, sv)
				continue
			}
		}
		out[k] = v
	}
	return out
}

var defaultValidator = NewValidator()

func validate(d *dispatch.Deps, v any) []string {
	if d.Validator != nil {
		return d.Validator.Validate(v)
	}
	return defaultValidator.Validate(v)
}

func loggerOf(d *dispatch.Deps) *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func accountsConfig(d *dispatch.Deps) config.AccountsConfig {
	if d.Config != nil {
		return d.Config.Accounts
	}
	return config.Defaults().Accounts
}
