package auth

import "errors"

// Verification errors. Handlers must collapse all of these into a uniform
// unauthorized response; the detail is for server-side logs only.
var (
	ErrMalformedCredential = errors.New("auth: malformed init data")
	ErrMissingSignature    = errors.New("auth: init data has no hash")
	ErrInvalidSignature    = errors.New("auth: init data signature mismatch")
	ErrMissingIdentity     = errors.New("auth: init data has no user identity")

	// ErrInvalidToken covers every session token failure (bad signature,
	// corrupt encoding, expired). Deliberately a single error so callers
	// cannot tell the sub-checks apart.
	ErrInvalidToken = errors.New("auth: invalid session token")
)
