package oauthmodel

import "errors"

var (
	ErrInvalidCodeChallenge       = errors.New("invalid code challenge")
	ErrInvalidCodeChallengeMethod = errors.New("invalid code challenge method")
	ErrInvalidRedirectUri         = errors.New("invalid or no redirect uri")
	ErrMissingCode                = errors.New("missing authorization code")
	ErrMissingVerifier            = errors.New("missing code verifier")
)
