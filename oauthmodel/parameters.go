package oauthmodel

import (
	"net/url"
	"strings"
)

// AuthorizationRequest holds the parameters of the outbound consent request.
// It is built once per login attempt and never persisted.
type AuthorizationRequest struct {
	// RedirectURI is where the provider sends the browser after consent.
	// Required: Yes
	// Example: "http://localhost:8080/"
	// Security: Must exactly match the loopback listener's bound host:port
	RedirectURI string

	// Challenge is the PKCE challenge derived from the verifier held in memory.
	// Required: Yes
	// Example: BASE64URL(SHA256(code_verifier))
	Challenge string

	// ChallengeMethod specifies how the challenge was derived.
	// Required: Yes
	// Example: "S256" (the only method this client sends)
	ChallengeMethod CodeMethodType

	// State is an opaque CSRF token echoed back on the redirect.
	// Required: Recommended
	// Example: a random uuid
	State string
}

// Validate reports the first missing or malformed parameter.
func (r AuthorizationRequest) Validate() error {
	if strings.TrimSpace(r.Challenge) == "" {
		return ErrInvalidCodeChallenge
	}
	if r.ChallengeMethod != CodeMethodTypeS256 {
		return ErrInvalidCodeChallengeMethod
	}
	if !validRedirectURI(r.RedirectURI) {
		return ErrInvalidRedirectUri
	}
	return nil
}

// ExchangeRequest holds the parameters of an authorization_code grant.
type ExchangeRequest struct {
	// Code is the single-use authorization code captured by the loopback listener.
	// Usage: Exchanged once; retrying burns it
	Code string

	// Verifier is the PKCE code verifier matching the challenge sent earlier.
	// Security: Never log this value
	Verifier string

	// RedirectURI must be the exact value used in the authorization request.
	RedirectURI string
}

// Validate reports the first missing parameter.
func (r ExchangeRequest) Validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return ErrMissingCode
	}
	if strings.TrimSpace(r.Verifier) == "" {
		return ErrMissingVerifier
	}
	if !validRedirectURI(r.RedirectURI) {
		return ErrInvalidRedirectUri
	}
	return nil
}

func validRedirectURI(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" && u.Host != ""
}
