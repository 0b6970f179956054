package repofake

import (
	"errors"
	"sync"

	"github.com/jrsteele09/drive-snapshot/token/credstore"
)

// FakeCredentialRepo is an in-memory credstore.Repo for tests.
type FakeCredentialRepo struct {
	mu           sync.Mutex
	refreshToken string
	saves        int
	// SaveErr, when set, is returned by Save.
	SaveErr error
}

var _ credstore.Repo = (*FakeCredentialRepo)(nil)

func NewFakeCredentialRepo() *FakeCredentialRepo {
	return &FakeCredentialRepo{}
}

func (r *FakeCredentialRepo) Save(refreshToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	if refreshToken == "" {
		return errors.New("refresh token cannot be empty")
	}
	r.refreshToken = refreshToken
	r.saves++
	return nil
}

func (r *FakeCredentialRepo) Load() (*credstore.PersistedCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refreshToken == "" {
		return nil, nil
	}
	return &credstore.PersistedCredential{RefreshToken: r.refreshToken}, nil
}

func (r *FakeCredentialRepo) Delete() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshToken = ""
	return nil
}

// Saves returns how many successful Save calls were made.
func (r *FakeCredentialRepo) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}
