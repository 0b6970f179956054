package token

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/drive-snapshot/internal/config"
	snaperrors "github.com/jrsteele09/drive-snapshot/internal/errors"
	"github.com/jrsteele09/drive-snapshot/oauthmodel"
	"github.com/jrsteele09/drive-snapshot/token/credstore"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// ExpiryLeeway treats an access token as expired slightly early so it does not
// lapse mid-request.
const ExpiryLeeway = 30 * time.Second

// Manager owns the client side of the authorization code + PKCE flow.
type Manager struct {
	oauthConfig oauth2.Config
	creds       credstore.Repo
	httpClient  *http.Client
	nowTime     func() time.Time
	logger      zerolog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(client *http.Client) ManagerOption {
	return func(m *Manager) {
		m.httpClient = client
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager builds a Manager for a public (secret-less) client unless the
// configuration supplies a client secret.
func NewManager(cfg config.OAuthConfig, creds credstore.Repo, opts ...ManagerOption) *Manager {
	m := &Manager{
		oauthConfig: oauth2.Config{
			ClientID:     cfg.GetClientID(),
			ClientSecret: cfg.GetClientSecret(),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.GetAuthURL(),
				TokenURL:  cfg.GetTokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: cfg.GetScopes(),
		},
		creds:   creds,
		nowTime: time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the manager's notion of the current time.
func (m *Manager) Now() time.Time {
	return m.nowTime()
}

// AuthorizationURL builds the consent URL. No network call is made.
func (m *Manager) AuthorizationURL(req oauthmodel.AuthorizationRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", snaperrors.Wrapf(err, "authorization request")
	}

	c := m.oauthConfig
	c.RedirectURL = req.RedirectURI
	return c.AuthCodeURL(req.State,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("code_challenge", req.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", string(req.ChallengeMethod)),
	), nil
}

// ExchangeCode trades an authorization code for tokens. Failures are returned
// as *TokenExchangeError and are never retried.
func (m *Manager) ExchangeCode(ctx context.Context, req oauthmodel.ExchangeRequest) (*TokenSet, error) {
	if err := req.Validate(); err != nil {
		return nil, &TokenExchangeError{providerFailure{Err: err}}
	}

	c := m.oauthConfig
	c.RedirectURL = req.RedirectURI

	tok, err := c.Exchange(m.clientContext(ctx), req.Code, oauth2.VerifierOption(req.Verifier))
	if err != nil {
		f := newProviderFailure(err)
		m.logger.Warn().Int("status", f.StatusCode).Str("error", f.ErrorCode).Msg("token exchange rejected")
		return nil, &TokenExchangeError{f}
	}

	m.logger.Info().Time("expires_at", tok.Expiry).Bool("refresh_token", tok.RefreshToken != "").Msg("token exchange succeeded")
	return fromOAuth2(tok), nil
}

// Refresh obtains a new access token. A *TokenRefreshError means the refresh
// token is no longer usable and an interactive login is required.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, &TokenRefreshError{providerFailure{Err: snaperrors.ErrNoRefreshToken}}
	}

	src := m.oauthConfig.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		f := newProviderFailure(err)
		m.logger.Warn().Int("status", f.StatusCode).Str("error", f.ErrorCode).Msg("token refresh rejected")
		return nil, &TokenRefreshError{f}
	}

	ts := fromOAuth2(tok)
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	m.logger.Debug().Time("expires_at", ts.ExpiresAt).Msg("access token refreshed")
	return ts, nil
}

// IsExpired reports whether ts must be refreshed before use at now.
func (m *Manager) IsExpired(ts *TokenSet, now time.Time) bool {
	if ts == nil || ts.AccessToken == "" {
		return true
	}
	if ts.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(ExpiryLeeway).Before(ts.ExpiresAt)
}

// Persist stores the refresh token. A token set without one leaves the store untouched.
func (m *Manager) Persist(ts *TokenSet) error {
	if !ts.CanRefresh() {
		m.logger.Warn().Msg("provider returned no refresh token; login will not survive a restart")
		return nil
	}
	return snaperrors.Wrapf(m.creds.Save(ts.RefreshToken), "persist credential")
}

// Load returns the persisted credential, or nil when the user never logged in.
func (m *Manager) Load() (*credstore.PersistedCredential, error) {
	cred, err := m.creds.Load()
	if err != nil {
		return nil, snaperrors.Wrapf(err, "load credential")
	}
	return cred, nil
}

// Forget deletes the persisted credential.
func (m *Manager) Forget() error {
	return snaperrors.Wrapf(m.creds.Delete(), "delete credential")
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}
