// Package pkce generates Proof Key for Code Exchange material for a single login attempt.
package pkce

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

const (
	// MinVerifierLength and MaxVerifierLength bound the verifier per RFC 7636.
	MinVerifierLength = 43
	MaxVerifierLength = 128

	// MethodS256 is the only challenge method this client sends.
	MethodS256 = "S256"

	defaultVerifierBytes = 64 // encodes to 86 url-safe characters
)

// Params holds one login attempt's verifier and the challenge derived from it.
type Params struct {
	Verifier  string
	Challenge string
	Method    string
}

// New returns fresh PKCE params using the default verifier length.
func New() Params {
	v := NewVerifier()
	return Params{
		Verifier:  v,
		Challenge: Challenge(v),
		Method:    MethodS256,
	}
}

// String keeps the verifier out of logs.
func (p Params) String() string {
	return fmt.Sprintf("pkce{method=%s challenge=%s verifier=[redacted]}", p.Method, p.Challenge)
}

// NewVerifier returns a cryptographically random, url-safe verifier.
func NewVerifier() string {
	return encode(randomBytes(defaultVerifierBytes))
}

// NewVerifierLength returns a verifier of exactly n characters.
// It panics if n is outside [MinVerifierLength, MaxVerifierLength].
func NewVerifierLength(n int) string {
	if n < MinVerifierLength || n > MaxVerifierLength {
		panic(fmt.Sprintf("pkce: verifier length %d outside [%d,%d]", n, MinVerifierLength, MaxVerifierLength))
	}
	// 3 bytes encode to 4 characters; over-allocate then trim.
	return encode(randomBytes((n*3)/4 + 3))[:n]
}

// Challenge returns base64url(SHA-256(verifier)) without padding.
func Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("pkce: crypto/rand failed: %v", err))
	}
	return b
}

func encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
