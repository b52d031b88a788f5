package link

import "errors"

var (
	// ErrMissingCode means the callback arrived without an authorization code
	ErrMissingCode = errors.New("missing authorization code")

	// ErrMissingVerifier means there is no PKCE verifier in the session; the
	// user must restart the linking process.
	ErrMissingVerifier = errors.New("missing PKCE code verifier in session")

	// ErrCodeAlreadyUsed means the session's authorization code was already
	// exchanged. A second callback on the same session is rejected no matter
	// what the aggregator would say about the code itself.
	ErrCodeAlreadyUsed = errors.New("authorization code already used")
)

// ExchangeError means the aggregator rejected the code exchange (expired
// code, code consumed upstream, verifier mismatch). Detail carries the
// upstream error body when one was returned.
type ExchangeError struct {
	Detail string
	Err    error
}

func (e *ExchangeError) Error() string {
	return "token exchange failed: " + e.Err.Error()
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}
