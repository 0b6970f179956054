package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	snaperrors "github.com/jrsteele09/drive-snapshot/internal/errors"
	"github.com/jrsteele09/drive-snapshot/loopback"
	"github.com/jrsteele09/drive-snapshot/oauthmodel"
	"github.com/jrsteele09/drive-snapshot/pkce"
	"github.com/jrsteele09/drive-snapshot/profile"
	"github.com/jrsteele09/drive-snapshot/token"
)

const exchangeTimeout = 30 * time.Second

// loginAttempt is one bound listener and the PKCE material it will redeem.
// Fields after listener are guarded by Orchestrator.mu.
type loginAttempt struct {
	listener    *loopback.Listener
	pkce        pkce.Params
	state       string
	redirectURI string

	finished  bool
	cancelled bool
	err       error
}

// Login binds the loopback listener, opens the consent page and returns. The
// channel receives the outcome once the listener has stopped: nil on success,
// otherwise the exchange, denial or cancellation error.
func (o *Orchestrator) Login(ctx context.Context) (<-chan error, error) {
	o.mu.Lock()
	if o.login != nil {
		o.mu.Unlock()
		return nil, snaperrors.ErrLoginInProgress
	}

	attempt := &loginAttempt{
		pkce:  pkce.New(),
		state: uuid.NewString(),
	}
	attempt.listener = loopback.New(
		loopback.WithLogger(o.logger),
		loopback.WithFailureHandler(func(err error) { o.failLogin(attempt, err) }),
	)

	exchangeCtx := context.WithoutCancel(ctx)
	onCode := func(_ context.Context, code, state string) error {
		return o.completeLogin(exchangeCtx, attempt, code, state)
	}
	if err := attempt.listener.Start(o.cfg.GetRedirectAddr(), onCode); err != nil {
		o.mu.Unlock()
		o.report(Error, fmt.Sprintf("Login failed: %v", err))
		return nil, err
	}

	attempt.redirectURI = (&url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(o.cfg.GetRedirectHost(), strconv.Itoa(attempt.listener.Port())),
		Path:   "/",
	}).String()

	authURL, err := o.tokens.AuthorizationURL(oauthmodel.AuthorizationRequest{
		RedirectURI:     attempt.redirectURI,
		Challenge:       attempt.pkce.Challenge,
		ChallengeMethod: oauthmodel.CodeMethodType(attempt.pkce.Method),
		State:           attempt.state,
	})
	if err != nil {
		attempt.cancelled = true
		o.mu.Unlock()
		attempt.listener.Stop()
		return nil, err
	}

	o.login = attempt
	result := make(chan error, 1)
	o.wg.Add(1)
	go o.awaitLogin(attempt, result)
	o.mu.Unlock()

	o.logger.Info().Str("redirect_uri", attempt.redirectURI).Msg("waiting for authorization")
	o.host.Browser.OpenURL(authURL)
	return result, nil
}

// CancelLogin stops a pending login. It is a no-op when none is pending.
func (o *Orchestrator) CancelLogin() {
	o.stopLogin()
}

// Logout stops any pending login, forgets the in-memory session and deletes
// the stored credential.
func (o *Orchestrator) Logout() error {
	o.stopLogin()

	o.mu.Lock()
	o.tokenSet = nil
	o.user = nil
	o.folder = nil
	o.backups = nil
	o.generation++
	err := o.tokens.Forget()
	o.mu.Unlock()

	if err != nil {
		o.report(Error, fmt.Sprintf("Logout failed: %v", err))
		return err
	}
	o.report(Info, "Logged out")
	return nil
}

// stopLogin must be called without o.mu held: Stop waits for an in-flight
// redirect handler, which itself takes o.mu.
func (o *Orchestrator) stopLogin() {
	o.mu.Lock()
	attempt := o.login
	if attempt != nil {
		attempt.cancelled = true
	}
	o.mu.Unlock()

	if attempt != nil {
		if err := attempt.listener.Stop(); err != nil {
			o.logger.Warn().Err(err).Msg("stopping login listener")
		}
		<-attempt.listener.Done()
	}
}

func (o *Orchestrator) awaitLogin(attempt *loginAttempt, result chan<- error) {
	defer o.wg.Done()
	<-attempt.listener.Done()

	o.mu.Lock()
	if o.login == attempt {
		o.login = nil
	}
	finished, err := attempt.finished, attempt.err
	o.mu.Unlock()

	if !finished {
		err = snaperrors.ErrLoginCancelled
		o.report(Warning, "Login cancelled")
	}
	result <- err
}

// completeLogin runs on the listener's goroutine for the one request that
// carried a code.
func (o *Orchestrator) completeLogin(ctx context.Context, attempt *loginAttempt, code, state string) error {
	if state != attempt.state {
		err := snaperrors.Wrapf(snaperrors.ErrStateMismatch, "login")
		o.failLogin(attempt, err)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	o.mu.Lock()
	verifier := attempt.pkce.Verifier
	o.mu.Unlock()

	ts, err := o.tokens.ExchangeCode(ctx, oauthmodel.ExchangeRequest{
		Code:        code,
		Verifier:    verifier,
		RedirectURI: attempt.redirectURI,
	})
	o.mu.Lock()
	// The verifier is single use; redeemed or not it must not outlive the exchange.
	attempt.pkce = pkce.Params{}
	o.mu.Unlock()
	if err != nil {
		o.failLogin(attempt, err)
		return err
	}

	user := o.fetchProfile(ctx, ts)

	o.mu.Lock()
	if attempt.cancelled {
		attempt.finished = true
		attempt.err = snaperrors.ErrLoginCancelled
		o.mu.Unlock()
		return snaperrors.ErrLoginCancelled
	}
	persistErr := o.tokens.Persist(ts)
	o.tokenSet = ts
	o.user = user
	o.folder = nil
	o.generation++
	attempt.finished = true
	o.mu.Unlock()

	if persistErr != nil {
		o.report(Warning, fmt.Sprintf("Logged in, but the session will not be remembered: %v", persistErr))
	}
	if name := user.DisplayName(); name != "" {
		o.report(Info, "Logged in as "+name)
	} else {
		o.report(Info, "Logged in")
	}
	return nil
}

func (o *Orchestrator) failLogin(attempt *loginAttempt, err error) {
	o.mu.Lock()
	attempt.finished = true
	attempt.err = err
	o.mu.Unlock()

	var denied *loopback.DeniedError
	if errors.As(err, &denied) {
		o.report(Error, fmt.Sprintf("Login failed: authorization denied (%s)", denied.Code))
		return
	}
	o.report(Error, fmt.Sprintf("Login failed: %v", err))
}

// fetchProfile never fails the login; a missing profile only costs the display name.
func (o *Orchestrator) fetchProfile(ctx context.Context, ts *token.TokenSet) *profile.Profile {
	if o.profiles == nil {
		return nil
	}
	user, err := o.profiles.Fetch(ctx, ts)
	if err != nil {
		o.logger.Warn().Err(err).Msg("fetching user profile")
		return nil
	}
	return user
}
