package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rhuss/ribamar/pkg/dispatch"
)

// Authentication results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

type authenticationInput struct {
	ID       string `json:"id" validate:"required"`
	Passcode string `json:"passcode" validate:"required"`
}

// AuthResult is the answer to an authentication check.
type AuthResult struct {
	Result string `json:"result"`
}

// Authentication serves the authentication entity.
type Authentication struct{}

// Get checks the id and passcode query parameters against the stored
// credential. Unknown ids fail like wrong passcodes.
func (Authentication) Get(ctx context.Context, d *dispatch.Deps, in *dispatch.Envelope) (any, error) {
	input := authenticationInput{
		ID:       in.Query.Get("id"),
		Passcode: in.Query.Get("passcode"),
	}
	if msgs := validate(d, input); msgs != nil {
		return reject(in, http.StatusBadRequest, msgs...)
	}

	acc, i, err := lookupCredential(ctx, d.Store, input.ID)
	if err != nil {
		return nil, err
	}

	result := ResultFailure
	if acc != nil {
		c := acc.Credentials[i]
		if CheckPasscode(input.Passcode, c.Salt, c.Hash) {
			result = ResultSuccess
		}
	}

	loggerOf(d).Info("authentication attempt",
		slog.String("credential", input.ID),
		slog.Bool("known", acc != nil),
		slog.String("result", result),
	)
	return AuthResult{Result: result}, nil
}
