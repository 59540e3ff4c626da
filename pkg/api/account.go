package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/ribamar/pkg/dispatch"
	"github.com/rhuss/ribamar/pkg/storage"
)

type accountInput struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name"`
	Passcode string `json:"passcode" validate:"required,min=8"`
}

// Accounts serves the account entity.
type Accounts struct{}

// Post creates an account with one credential and answers its id. The
// request body, minus the passcode, becomes the account data.
func (Accounts) Post(ctx context.Context, d *dispatch.Deps, in *dispatch.Envelope) (any, error) {
	var input accountInput
	if err := in.Decode(&input); err != nil {
		return nil, err
	}
	if msgs := validate(d, input); msgs != nil {
		return reject(in, http.StatusBadRequest, msgs...)
	}

	taken, err := credentialTaken(ctx, d.Store, input.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		return reject(in, http.StatusBadRequest, msgTakenID)
	}

	data := map[string]any{}
	if body, ok := in.Body.(map[string]any); ok {
		for k, v := range body {
			data[k] = v
		}
	}
	delete(data, "passcode")

	doc, err := toDocument(Account{
		Creation:    time.Now().UTC(),
		Credentials: []Credential{newCredential(input.ID, input.Passcode)},
		Data:        data,
	})
	if err != nil {
		return nil, err
	}
	id, err := d.Store.Insert(ctx, AccountCollection, doc)
	if err != nil {
		return nil, fmt.Errorf("inserting account: %w", err)
	}

	loggerOf(d).Info("account created", slog.String("account", id))
	return map[string]string{"id": id}, nil
}

// Get answers the account data with its creation time and credential ids.
func (Accounts) Get(ctx context.Context, d *dispatch.Deps, in *dispatch.Envelope) (any, error) {
	id := in.Segment(1)
	if id == "" {
		return absent(in, http.StatusNotFound)
	}
	acc, err := loadAccount(ctx, d.Store, storage.IDKey, id)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return absent(in, http.StatusNotFound)
	}

	out := make(map[string]any, len(acc.Data)+2)
	for k, v := range acc.Data {
		out[k] = v
	}
	out["creation"] = acc.Creation
	out["credentials"] = acc.credentialIDs()
	return out, nil
}

// Patch deep-merges the request object into the account data.
func (Accounts) Patch(ctx context.Context, d *dispatch.Deps, in *dispatch.Envelope) (any, error) {
	id := in.Segment(1)
	if id == "" {
		return absent(in, http.StatusNotFound)
	}
	acc, err := loadAccount(ctx, d.Store, storage.IDKey, id)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return absent(in, http.StatusNotFound)
	}

	var patch map[string]any
	if err := in.Decode(&patch); err != nil {
		return nil, err
	}
	delete(patch, "passcode")

	set, err := toDocument(map[string]any{"data": mergeDeep(acc.Data, patch)})
	if err != nil {
		return nil, err
	}
	if err := d.Store.Update(ctx, AccountCollection, storage.IDKey, id, set); err != nil {
		return nil, fmt.Errorf("updating account %s: %w", id, err)
	}

	loggerOf(d).Info("account updated", slog.String("account", id))
	return nil, nil
}

// Delete removes the account.
func (Accounts) Delete(ctx context.Context, d *dispatch.Deps, in *dispatch.Envelope) (any, error) {
	id := in.Segment(1)
	if id == "" {
		return absent(in, http.StatusNotFound)
	}
	n, err := d.Store.Delete(ctx, AccountCollection, storage.IDKey, id)
	if err != nil {
		return nil, fmt.Errorf("deleting account %s: %w", id, err)
	}
	if n == 0 {
		return absent(in, http.StatusNotFound)
	}

	loggerOf(d).Info("account deleted", slog.String("account", id))
	return nil, nil
}
