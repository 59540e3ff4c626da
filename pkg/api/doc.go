// Package api implements the account and credential resources served by
// ribamar.
//
// Resources are registered with the dispatch engine through [Entities]:
//
//   - "" (root): liveness text.
//   - account: create, read, merge-update and delete accounts.
//   - credential: add, replace, re-key and remove login credentials.
//   - authentication: check a credential id and passcode.
//   - notification: mail a template to the owner of a credential.
//   - reset: issue and redeem password reset tokens; the scheduler-only
//     "expire" verb sweeps expired tokens.
//   - search: list accounts by data fields.
//
// Passcodes are stored as hex PBKDF2-SHA512 hashes with a per-credential
// random salt. Input errors are answered with a forced status and a body of
// the form {"errors": [...]}.
package api
