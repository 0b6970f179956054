package token

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// TokenSet is the credential the application holds in memory.
type TokenSet struct {
	AccessToken  string
	RefreshToken string // optional; without it the set cannot survive expiry
	TokenType    string
	IDToken      string // present when the openid scope was granted
	ExpiresAt    time.Time
}

// CanRefresh reports whether a refresh token is available.
func (t *TokenSet) CanRefresh() bool {
	return t != nil && t.RefreshToken != ""
}

// String keeps token material out of logs.
func (t *TokenSet) String() string {
	if t == nil {
		return "tokenset{nil}"
	}
	return fmt.Sprintf("tokenset{type=%s expires_at=%s refresh=%t}", t.TokenType, t.ExpiresAt.Format(time.RFC3339), t.CanRefresh())
}

func fromOAuth2(tok *oauth2.Token) *TokenSet {
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresAt:    tok.Expiry,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		ts.IDToken = idToken
	}
	return ts
}
