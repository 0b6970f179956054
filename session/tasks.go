package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"

	"github.com/jrsteele09/drive-snapshot/drive"
	snaperrors "github.com/jrsteele09/drive-snapshot/internal/errors"
	"github.com/jrsteele09/drive-snapshot/token"
)

// Backup archives the configuration directory and uploads it. It returns at
// once; the channel receives the outcome. Concurrent calls are not
// serialised here.
func (o *Orchestrator) Backup(ctx context.Context) <-chan error {
	return o.spawn(ctx, "Backup", o.runBackup)
}

// RefreshBackupList lists the backup folder and replaces the snapshot
// returned by Backups.
func (o *Orchestrator) RefreshBackupList(ctx context.Context) <-chan error {
	return o.spawn(ctx, "Listing backups", o.runRefresh)
}

// Restore downloads ref and extracts it over the configuration directory.
// Files not present in the archive are left untouched.
func (o *Orchestrator) Restore(ctx context.Context, ref drive.ObjectRef) <-chan error {
	return o.spawn(ctx, "Restore", func(ctx context.Context) error {
		return o.runRestore(ctx, ref)
	})
}

// FindBackup looks up a listed backup by id or name in the current snapshot.
func (o *Orchestrator) FindBackup(idOrName string) (drive.ObjectRef, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := slices.IndexFunc(o.backups, func(ref drive.ObjectRef) bool {
		return ref.ID == idOrName || ref.Name == idOrName
	})
	if i < 0 {
		return drive.ObjectRef{}, snaperrors.Wrapf(snaperrors.ErrNotFound, "backup %q", idOrName)
	}
	return o.backups[i], nil
}

// Resume restores a session from the stored credential without a browser
// round trip. ErrLoginRequired means an interactive login is needed.
func (o *Orchestrator) Resume(ctx context.Context) error {
	if _, err := o.accessToken(ctx); err != nil {
		return err
	}

	o.mu.Lock()
	ts, user := o.tokenSet, o.user
	o.mu.Unlock()

	if user == nil && ts != nil {
		if user = o.fetchProfile(ctx, ts); user != nil {
			o.mu.Lock()
			if o.tokenSet == ts {
				o.user = user
			}
			o.mu.Unlock()
		}
	}
	return nil
}

func (o *Orchestrator) spawn(ctx context.Context, op string, fn func(context.Context) error) <-chan error {
	result := make(chan error, 1)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		err := fn(ctx)
		if err != nil {
			o.logger.Error().Err(err).Str("op", op).Msg("background task failed")
			o.report(Error, fmt.Sprintf("%s failed: %s", op, describe(err)))
		}
		result <- err
	}()
	return result
}

func (o *Orchestrator) runBackup(ctx context.Context) error {
	accessToken, err := o.accessToken(ctx)
	if err != nil {
		return err
	}

	configDir := o.host.ConfigDir.GetConfigDir()
	if configDir == "" {
		return fmt.Errorf("no configuration directory to back up")
	}

	ba, err := o.archiver.Create(configDir, o.cfg.GetWorkDir(), o.cfg.GetVersionTag())
	if err != nil {
		return err
	}
	if !o.cfg.GetKeepLocalArchive() {
		defer func() {
			if err := os.Remove(ba.LocalPath); err != nil && !os.IsNotExist(err) {
				o.logger.Warn().Err(err).Str("path", ba.LocalPath).Msg("removing local archive")
			}
		}()
	}
	for _, w := range ba.Warnings {
		o.logger.Warn().Str("path", w.Path).Str("reason", w.Reason).Msg("skipped during backup")
	}
	if n := len(ba.Warnings); n > 0 {
		o.report(Warning, fmt.Sprintf("%d entries could not be archived and were skipped", n))
	}

	folder, err := o.resolveFolder(ctx, accessToken)
	if err != nil {
		return o.checkStoreError(err)
	}
	ref, err := o.store.Upload(ctx, accessToken, folder, ba.LocalPath)
	if err != nil {
		return o.checkStoreError(err)
	}

	o.report(Info, fmt.Sprintf("Backup %s created (%d files) and uploaded to %s", ref.Name, ba.Files, folder.Name))
	return nil
}

func (o *Orchestrator) runRefresh(ctx context.Context) error {
	accessToken, err := o.accessToken(ctx)
	if err != nil {
		return err
	}
	folder, err := o.resolveFolder(ctx, accessToken)
	if err != nil {
		return o.checkStoreError(err)
	}
	refs, err := o.store.List(ctx, accessToken, folder)
	if err != nil {
		return o.checkStoreError(err)
	}

	o.mu.Lock()
	o.backups = slices.Clip(refs)
	o.mu.Unlock()

	o.report(Info, fmt.Sprintf("Found %d backups in %s", len(refs), folder.Name))
	return nil
}

func (o *Orchestrator) runRestore(ctx context.Context, ref drive.ObjectRef) error {
	accessToken, err := o.accessToken(ctx)
	if err != nil {
		return err
	}

	configDir := o.host.ConfigDir.GetConfigDir()
	if configDir == "" {
		return fmt.Errorf("no configuration directory to restore into")
	}

	workDir := o.cfg.GetWorkDir()
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return snaperrors.Wrapf(err, "create work dir")
	}
	tmp, err := os.CreateTemp(workDir, "restore-*.zip")
	if err != nil {
		return snaperrors.Wrapf(err, "create temp file")
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := o.store.Download(ctx, accessToken, ref, tmpPath); err != nil {
		os.Remove(tmpPath)
		return o.checkStoreError(err)
	}
	if err := o.archiver.ExtractTemp(tmpPath, configDir); err != nil {
		return err
	}

	o.report(Info, fmt.Sprintf("Restored %s into %s", ref.Name, configDir))
	return nil
}

// accessToken returns a usable access token, refreshing or resuming from the
// stored credential as needed. The refresh runs without o.mu held; concurrent
// callers share it, and its result is dropped if a login or logout happened
// meanwhile.
func (o *Orchestrator) accessToken(ctx context.Context) (string, error) {
	o.mu.Lock()
	ts := o.tokenSet
	if ts != nil && !o.tokens.IsExpired(ts, o.tokens.Now()) {
		o.mu.Unlock()
		return ts.AccessToken, nil
	}

	refreshToken := ""
	if ts != nil {
		refreshToken = ts.RefreshToken
	}
	if refreshToken == "" {
		cred, err := o.tokens.Load()
		if err != nil {
			o.mu.Unlock()
			return "", err
		}
		if cred == nil || cred.RefreshToken == "" {
			o.tokenSet = nil
			o.mu.Unlock()
			return "", snaperrors.ErrLoginRequired
		}
		refreshToken = cred.RefreshToken
	}
	generation := o.generation
	o.mu.Unlock()

	v, err, _ := o.refreshGroup.Do(refreshToken, func() (any, error) {
		return o.tokens.Refresh(ctx, refreshToken)
	})

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.generation != generation {
		// Logged in or out while refreshing; the session now in memory wins.
		if cur := o.tokenSet; cur != nil && !o.tokens.IsExpired(cur, o.tokens.Now()) {
			return cur.AccessToken, nil
		}
		return "", snaperrors.ErrLoginRequired
	}

	if err != nil {
		var refreshErr *token.TokenRefreshError
		if errors.As(err, &refreshErr) && refreshErr.StatusCode != 0 {
			// The provider rejected the refresh token; it will not get better.
			o.tokenSet = nil
			o.user = nil
			o.generation++
			if ferr := o.tokens.Forget(); ferr != nil {
				o.logger.Warn().Err(ferr).Msg("deleting rejected credential")
			}
			return "", fmt.Errorf("%w: %w", snaperrors.ErrLoginRequired, err)
		}
		return "", err
	}

	fresh := v.(*token.TokenSet)
	if o.tokenSet == nil || o.tokenSet.AccessToken != fresh.AccessToken {
		if fresh.RefreshToken != refreshToken {
			if err := o.tokens.Persist(fresh); err != nil {
				o.logger.Warn().Err(err).Msg("persisting rotated refresh token")
			}
		}
		o.tokenSet = fresh
	}
	return fresh.AccessToken, nil
}

// resolveFolder resolves the backup folder once per session. Concurrent
// callers share a single lookup.
func (o *Orchestrator) resolveFolder(ctx context.Context, accessToken string) (*drive.RemoteFolder, error) {
	o.mu.Lock()
	cached := o.folder
	o.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	name := o.cfg.GetFolderName()
	v, err, _ := o.folderGroup.Do(name, func() (any, error) {
		folder, err := o.store.ResolveFolder(ctx, accessToken, name)
		if err != nil {
			return nil, err
		}
		o.mu.Lock()
		o.folder = folder
		o.mu.Unlock()
		return folder, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*drive.RemoteFolder), nil
}

// checkStoreError drops state that a store error shows to be stale.
func (o *Orchestrator) checkStoreError(err error) error {
	var apiErr *drive.APIError
	switch {
	case errors.Is(err, drive.ErrUnauthorized):
		o.mu.Lock()
		if o.tokenSet != nil {
			ts := *o.tokenSet
			ts.AccessToken = ""
			o.tokenSet = &ts
		}
		o.mu.Unlock()
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		o.mu.Lock()
		o.folder = nil
		o.mu.Unlock()
	}
	return err
}

// describe turns an error into the message shown to the user.
func describe(err error) string {
	switch {
	case errors.Is(err, snaperrors.ErrLoginRequired):
		return "not logged in, please log in"
	case errors.Is(err, drive.ErrUnauthorized):
		return "session expired, please re-authenticate"
	default:
		return err.Error()
	}
}
