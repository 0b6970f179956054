// Package credstore persists the refresh token between runs.
package credstore

// PersistedCredential is the refresh token at rest. The access token is short
// lived and is never written.
type PersistedCredential struct {
	RefreshToken string `json:"refresh_token"`
}

// Repo is a single-writer store of one credential. Save overwrites wholesale.
type Repo interface {
	Save(refreshToken string) error
	// Load returns nil, nil when nothing has been saved.
	Load() (*PersistedCredential, error)
	// Delete is a no-op when nothing has been saved.
	Delete() error
}
