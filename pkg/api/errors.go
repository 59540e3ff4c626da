package api

import "github.com/rhuss/ribamar/pkg/dispatch"

// Client-facing error messages.
const (
	msgTakenID             = "taken id"
	msgUnknownAccount      = "unknown account"
	msgUnknownCredential   = "unknown credential"
	msgUnknownTemplate     = "unknown template"
	msgProtectedCredential = "protected credential"
)

// ErrorBody is the payload sent with input errors.
type ErrorBody struct {
	Errors []string `json:"errors"`
}

// reject forces status and returns the error payload for msgs.
func reject(in *dispatch.Envelope, status int, msgs ...string) (any, error) {
	in.SetStatus(status)
	return ErrorBody{Errors: msgs}, nil
}

// absent forces status with no body.
func absent(in *dispatch.Envelope, status int) (any, error) {
	in.SetStatus(status)
	return nil, nil
}
