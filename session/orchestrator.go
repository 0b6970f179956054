// Package session drives the login, backup, list and restore flows for one
// user in one process.
package session

import (
	"context"
	"slices"
	"sync"

	"github.com/jrsteele09/drive-snapshot/archive"
	"github.com/jrsteele09/drive-snapshot/drive"
	"github.com/jrsteele09/drive-snapshot/internal/config"
	"github.com/jrsteele09/drive-snapshot/profile"
	"github.com/jrsteele09/drive-snapshot/token"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// RemoteStore is the subset of the drive client the orchestrator needs.
type RemoteStore interface {
	ResolveFolder(ctx context.Context, accessToken, name string) (*drive.RemoteFolder, error)
	List(ctx context.Context, accessToken string, folder *drive.RemoteFolder) ([]drive.ObjectRef, error)
	Upload(ctx context.Context, accessToken string, folder *drive.RemoteFolder, archivePath string) (*drive.ObjectRef, error)
	Download(ctx context.Context, accessToken string, ref drive.ObjectRef, destPath string) error
}

// ProfileFetcher resolves the display identity after login.
type ProfileFetcher interface {
	Fetch(ctx context.Context, ts *token.TokenSet) (*profile.Profile, error)
}

var (
	_ RemoteStore    = (*drive.Client)(nil)
	_ ProfileFetcher = (*profile.Fetcher)(nil)
)

// Deps are the components the orchestrator coordinates. Profiles is optional.
type Deps struct {
	Tokens   *token.Manager
	Store    RemoteStore
	Archiver *archive.Archiver
	Profiles ProfileFetcher
}

// Status is a point-in-time view for the host UI.
type Status struct {
	LoggedIn     bool
	Username     string
	LoginPending bool
}

// Orchestrator owns the in-memory session. All exported methods are safe for
// concurrent use; Backup, RefreshBackupList and Restore run in the background
// and report through the host.
type Orchestrator struct {
	cfg      config.Config
	tokens   *token.Manager
	store    RemoteStore
	archiver *archive.Archiver
	profiles ProfileFetcher
	host     Host
	logger   zerolog.Logger

	// mu guards everything below and serialises persist/load/delete of the
	// stored credential. generation changes whenever a login or logout
	// replaces the session.
	mu         sync.Mutex
	tokenSet   *token.TokenSet
	user       *profile.Profile
	login      *loginAttempt
	folder     *drive.RemoteFolder
	backups    []drive.ObjectRef
	generation uint64

	folderGroup  singleflight.Group
	refreshGroup singleflight.Group
	wg           sync.WaitGroup
}

// Option configures the orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an orchestrator. Host fields left nil are replaced by no-ops,
// except ConfigDir which falls back to the configured backup directory.
func New(cfg config.Config, deps Deps, host Host, opts ...Option) *Orchestrator {
	if deps.Tokens == nil || deps.Store == nil || deps.Archiver == nil {
		panic("session: token manager, store and archiver are required")
	}
	if host.Browser == nil {
		host.Browser = BrowserFunc(func(string) {})
	}
	if host.Reporter == nil {
		host.Reporter = ReporterFunc(func(Level, string) {})
	}
	if host.ConfigDir == nil {
		host.ConfigDir = ConfigDir(cfg.GetConfigDir())
	}

	o := &Orchestrator{
		cfg:      cfg,
		tokens:   deps.Tokens,
		store:    deps.Store,
		archiver: deps.Archiver,
		profiles: deps.Profiles,
		host:     host,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Status reports whether a usable session is held in memory.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Status{
		LoggedIn:     o.tokenSet != nil,
		LoginPending: o.login != nil,
	}
	if o.user != nil {
		s.Username = o.user.DisplayName()
	}
	return s
}

// Token returns a copy of the in-memory token set.
func (o *Orchestrator) Token() (token.TokenSet, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tokenSet == nil {
		return token.TokenSet{}, false
	}
	return *o.tokenSet, true
}

// Backups returns the snapshot taken by the last successful RefreshBackupList.
func (o *Orchestrator) Backups() []drive.ObjectRef {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.backups)
}

// Shutdown stops a pending login and waits for background tasks. Hosts call it
// before the process exits.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stopLogin()

	finished := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		o.logger.Debug().Msg("session shut down")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) report(level Level, message string) {
	switch level {
	case Error:
		o.logger.Error().Msg(message)
	case Warning:
		o.logger.Warn().Msg(message)
	default:
		o.logger.Info().Msg(message)
	}
	o.host.Reporter.Report(level, message)
}
