package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/ribamar/pkg/dispatch"
	"github.com/rhuss/ribamar/pkg/storage"
)

type newCredentialInput struct {
	ID       string `json:"id" validate:"required"`
	Account  string `json:"account" validate:"required"`
	Passcode string `json:"passcode" validate:"required,min=8"`
}

type replaceCredentialInput struct {
	ID       string `json:"id" validate:"required"`
	Passcode string `json:"passcode" validate:"required,min=8"`
}

type passcodeInput struct {
	Passcode string `json:"passcode" validate:"required,min=8"`
}

// Credentials serves the credential entity. Credentials are addressed by
// their id, which is unique across accounts.
type Credentials struct{}

// Post adds a credential to an existing account.
func (Credentials) Post(ctx context.Context, d *dispatch.Deps, in *dispatch.Envelope) (any, error) {
	var input newCredentialInput
	if err := in.Decode(&input); err != nil {
		return nil, err
	}
	if msgs := validate(d, input); msgs != nil {
		return reject(in, http.StatusBadRequest, msgs...)
	}

	acc, err := loadAccount(ctx, d.Store, storage.IDKey, input.Account)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return reject(in, http.StatusBadRequest, msgUnknownAccount)
	}
	taken, err := credentialTaken(ctx, d.Store, input.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		return reject(in, http.StatusBadRequest, msgTakenID)
	}

	acc.Credentials = append(acc.Credentials, newCredential(input.ID, input.Passcode))
	if err := saveCredentials(ctx, d.Store, acc); err != nil {
		return nil, err
	}

	loggerOf(d).Info("credential added",
		slog.String("account", acc.ID),
		slog.String("credential", input.ID),
	)
	return nil, nil
}

// Put replaces both the id and the passcode of a credential.
func (Credentials) Put(ctx context.Context, d *dispatch.Deps, in *dispatch.Envelope) (any, error) {
	id := in.Segment(1)
	acc, i, err := lookupCredential(ctx, d.Store, id)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return absent(in, http.StatusNotFound)
	}

	var input replaceCredentialInput
	if err := in.Decode(&input); err != nil {
		return nil, err
	}
	if msgs := validate(d, input); msgs != nil {
		return reject(in, http.StatusBadRequest, msgs...)
	}
	if input.ID != id {
		taken, err := credentialTaken(ctx, d.Store, input.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return reject(in, http.StatusBadRequest, msgTakenID)
		}
	}

	acc.Credentials[i] = newCredential(input.ID, input.Passcode)
	if err := saveCredentials(ctx, d.Store, acc); err != nil {
		return nil, err
	}

	loggerOf(d).Info("credential replaced",
		slog.String("credential", id),
		slog.String("new_credential", input.ID),
	)
	return nil, nil
}

// Patch sets a new passcode for a credential.
func (Credentials) Patch(ctx context.Context, d *dispatch.Deps, in *dispatch.Envelope) (any, error) {
	id := in.Segment(1)
	acc, _, err := lookupCredential(ctx, d.Store, id)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return absent(in, http.StatusNotFound)
	}

	var input passcodeInput
	if err := in.Decode(&input); err != nil {
		return nil, err
	}
	if msgs := validate(d, input); msgs != nil {
		return reject(in, http.StatusBadRequest, msgs...)
	}

	ok, err := setPasscode(ctx, d.Store, id, input.Passcode)
	if err != nil {
		return nil, err
	}
	if !ok {
		return absent(in, http.StatusNotFound)
	}

	loggerOf(d).Info("passcode updated", slog.String("credential", id))
	return nil, nil
}

// Delete removes a credential. The last credential of an account is
// protected.
func (Credentials) Delete(ctx context.Context, d *dispatch.Deps, in *dispatch.Envelope) (any, error) {
	id := in.Segment(1)
	acc, i, err := lookupCredential(ctx, d.Store, id)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return absent(in, http.StatusNotFound)
	}
	if len(acc.Credentials) < 2 {
		return reject(in, http.StatusMethodNotAllowed, msgProtectedCredential)
	}

	acc.Credentials = append(acc.Credentials[:i], acc.Credentials[i+1:]...)
	if err := saveCredentials(ctx, d.Store, acc); err != nil {
		return nil, err
	}

	loggerOf(d).Info("credential removed", slog.String("credential", id))
	return nil, nil
}

// lookupCredential returns the account holding credential id and the
// credential's index. The account is nil when id is empty or unknown.
func lookupCredential(ctx context.Context, store storage.Store, id string) (*Account, int, error) {
	if id == "" {
		return nil, -1, nil
	}
	acc, err := loadAccount(ctx, store, "credentials.id", id)
	if err != nil || acc == nil {
		return nil, -1, err
	}
	i := acc.credential(id)
	if i < 0 {
		return nil, -1, nil
	}
	return acc, i, nil
}

func credentialTaken(ctx context.Context, store storage.Store, id string) (bool, error) {
	taken, err := store.Exists(ctx, AccountCollection, "credentials.id", id)
	if err != nil {
		return false, fmt.Errorf("checking credential id: %w", err)
	}
	return taken, nil
}
