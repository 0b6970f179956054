// Package archive turns a directory into a timestamped zip archive and back.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	snaperrors "github.com/jrsteele09/drive-snapshot/internal/errors"
	"github.com/rs/zerolog"
)

// BackupArchive is a point-in-time snapshot written to local disk.
type BackupArchive struct {
	LocalPath  string
	Name       string
	CreatedAt  time.Time
	VersionTag string
	SizeBytes  int64
	Files      int
	// Warnings lists entries that could not be archived.
	Warnings []Warning
}

// Archiver creates and extracts archives. It keeps no state between calls.
type Archiver struct {
	nowTime func() time.Time
	logger  zerolog.Logger
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(a *Archiver) {
		a.nowTime = nowFunc
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Archiver) {
		a.logger = logger
	}
}

func New(opts ...Option) *Archiver {
	a := &Archiver{
		nowTime: time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Create writes sourceDir into destDir as backup_<versionTag>_<YYYYMMDD>.zip.
// Unreadable entries and symlinks are skipped and reported as warnings; only a
// failure of the archive file itself aborts the call.
func (a *Archiver) Create(sourceDir, destDir, versionTag string) (*BackupArchive, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return nil, &IOError{Op: "stat", Path: sourceDir, Err: err}
	}
	if !info.IsDir() {
		return nil, &IOError{Op: "stat", Path: sourceDir, Err: errors.New("not a directory")}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, &IOError{Op: "mkdir", Path: destDir, Err: err}
	}

	createdAt := a.nowTime()
	name := ArchiveName(versionTag, createdAt)
	archivePath := filepath.Join(destDir, name)

	out, err := os.Create(archivePath)
	if err != nil {
		return nil, &IOError{Op: "create", Path: archivePath, Err: err}
	}

	result := &BackupArchive{
		LocalPath:  archivePath,
		Name:       name,
		CreatedAt:  createdAt,
		VersionTag: versionTag,
	}

	zw := zip.NewWriter(out)
	walkErr := a.addTree(zw, sourceDir, archivePath, result)
	closeErr := zw.Close()
	if fileErr := out.Close(); closeErr == nil {
		closeErr = fileErr
	}
	if walkErr == nil {
		walkErr = closeErr
	}
	if walkErr != nil {
		os.Remove(archivePath)
		return nil, &IOError{Op: "write", Path: archivePath, Err: walkErr}
	}

	stat, err := os.Stat(archivePath)
	if err != nil {
		return nil, &IOError{Op: "stat", Path: archivePath, Err: err}
	}
	result.SizeBytes = stat.Size()

	a.logger.Info().
		Str("archive", name).
		Int("files", result.Files).
		Int64("bytes", result.SizeBytes).
		Int("skipped", len(result.Warnings)).
		Msg("archive created")
	return result, nil
}

// addTree returns an error only when writing to the archive fails.
func (a *Archiver) addTree(zw *zip.Writer, root, archivePath string, result *BackupArchive) error {
	skip := func(p, reason string) {
		result.Warnings = append(result.Warnings, Warning{Path: p, Reason: reason})
		a.logger.Warn().Str("path", p).Str("reason", reason).Msg("skipping entry")
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			skip(p, err.Error())
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p == root {
			return nil
		}
		if p == archivePath {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			skip(p, err.Error())
			return nil
		}
		rel = filepath.ToSlash(rel)

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			skip(p, "symlink")
			return nil
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				skip(p, err.Error())
				return filepath.SkipDir
			}
			hdr, err := zip.FileInfoHeader(info)
			if err != nil {
				skip(p, err.Error())
				return filepath.SkipDir
			}
			hdr.Name = rel + "/"
			_, err = zw.CreateHeader(hdr)
			return err
		case !d.Type().IsRegular():
			skip(p, "not a regular file")
			return nil
		}

		return a.addFile(zw, p, rel, result, skip)
	})
}

// addFile reports a skipped file through skip and counts it in result only when written.
func (a *Archiver) addFile(zw *zip.Writer, p, rel string, result *BackupArchive, skip func(string, string)) error {
	f, err := os.Open(p)
	if err != nil {
		skip(p, err.Error())
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		skip(p, err.Error())
		return nil
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		skip(p, err.Error())
		return nil
	}
	hdr.Name = rel
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		// The entry header is already written, so the archive cannot be salvaged.
		return fmt.Errorf("copy %s: %w", p, err)
	}
	result.Files++
	return nil
}

// Extract expands archivePath into destDir, overwriting existing files. Files
// in destDir that are not in the archive are left alone.
func (a *Archiver) Extract(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if errors.Is(err, zip.ErrInsecurePath) {
		zr.Close()
		return &IOError{Op: "open", Path: archivePath, Err: fmt.Errorf("%w: %v", snaperrors.ErrUnsafePath, err)}
	}
	if err != nil {
		return &IOError{Op: "open", Path: archivePath, Err: err}
	}
	defer zr.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: destDir, Err: err}
	}

	for _, entry := range zr.File {
		target, err := safeJoin(destDir, entry.Name)
		if err != nil {
			return &IOError{Op: "extract", Path: entry.Name, Err: err}
		}
		if err := unlinkTarget(destDir, target, entry.FileInfo().IsDir()); err != nil {
			return &IOError{Op: "extract", Path: target, Err: err}
		}
		if err := extractEntry(entry, target); err != nil {
			return &IOError{Op: "extract", Path: target, Err: err}
		}
	}

	a.logger.Info().Str("archive", filepath.Base(archivePath)).Int("entries", len(zr.File)).Str("dest", destDir).Msg("archive extracted")
	return nil
}

// ExtractTemp extracts a downloaded archive and removes it whether or not extraction succeeded.
func (a *Archiver) ExtractTemp(archivePath, destDir string) error {
	defer func() {
		if err := os.Remove(archivePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.logger.Warn().Err(err).Str("path", archivePath).Msg("failed to remove temporary archive")
		}
	}()
	return a.Extract(archivePath, destDir)
}

func extractEntry(entry *zip.File, target string) error {
	if entry.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := entry.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// unlinkTarget makes sure writing target cannot follow a symlink out of
// destDir. Symlinked directories are refused; a symlink where a file goes is
// removed so the file replaces it.
func unlinkTarget(destDir, target string, isDir bool) error {
	rel, err := filepath.Rel(destDir, target)
	if err != nil {
		return err
	}
	dir := destDir
	parts := strings.Split(rel, string(filepath.Separator))
	for _, part := range parts[:len(parts)-1] {
		dir = filepath.Join(dir, part)
		fi, err := os.Lstat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s is a symlink", snaperrors.ErrUnsafePath, dir)
		}
	}

	fi, err := os.Lstat(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return err
	case fi.Mode()&fs.ModeSymlink == 0:
		return nil
	case isDir:
		return fmt.Errorf("%w: %s is a symlink", snaperrors.ErrUnsafePath, target)
	default:
		return os.Remove(target)
	}
}

// safeJoin rejects entries that would land outside destDir.
func safeJoin(destDir, name string) (string, error) {
	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) {
		return "", snaperrors.ErrUnsafePath
	}
	return filepath.Join(destDir, local), nil
}
