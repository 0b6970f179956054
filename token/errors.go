package token

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// providerFailure carries the details common to exchange and refresh failures.
type providerFailure struct {
	StatusCode int    // 0 when the request never got a response
	ErrorCode  string // RFC 6749 "error" field, e.g. invalid_grant
	Body       string // raw provider response body
	Err        error
}

func newProviderFailure(err error) providerFailure {
	f := providerFailure{Err: err}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		f.ErrorCode = re.ErrorCode
		f.Body = string(re.Body)
		if re.Response != nil {
			f.StatusCode = re.Response.StatusCode
		}
	}
	return f
}

func (f providerFailure) describe(op string) string {
	switch {
	case f.Body != "":
		return fmt.Sprintf("%s failed (status %d): %s", op, f.StatusCode, f.Body)
	case f.ErrorCode != "":
		return fmt.Sprintf("%s failed (status %d): %s", op, f.StatusCode, f.ErrorCode)
	}
	return fmt.Sprintf("%s failed: %v", op, f.Err)
}

// TokenExchangeError means the provider rejected an authorization code.
// The code is single-use, so callers must not retry with it.
type TokenExchangeError struct {
	providerFailure
}

func (e *TokenExchangeError) Error() string {
	return e.describe("token exchange")
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

// TokenRefreshError means the refresh token is invalid or revoked. The caller
// must fall back to an interactive login instead of retrying.
type TokenRefreshError struct {
	providerFailure
}

func (e *TokenRefreshError) Error() string {
	return e.describe("token refresh")
}

func (e *TokenRefreshError) Unwrap() error {
	return e.Err
}
