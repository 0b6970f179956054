package archive_test

import (
	"archive/zip"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/drive-snapshot/archive"
	snaperrors "github.com/jrsteele09/drive-snapshot/internal/errors"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func newArchiver() *archive.Archiver {
	return archive.New(archive.WithNowTime(func() time.Time { return fixedNow }))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// snapshot maps slash-separated relative paths to file contents; directories map to "<dir>".
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			out[rel] = "<dir>"
			return nil
		}
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		out[rel] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestArchiver_RoundTrip(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "userpref.blend", "prefs")
	writeFile(t, src, "config/startup", "no extension")
	writeFile(t, src, "scripts/addons/a/b/c.py", "print('hi')")
	writeFile(t, src, "empty.txt", "")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "empty", "nested"), 0o755))

	dest := filepath.Join(t.TempDir(), "not", "yet", "created")
	a := newArchiver()

	ba, err := a.Create(src, dest, "4.1")
	require.NoError(t, err)
	require.Equal(t, "backup_4.1_20240601.zip", ba.Name)
	require.Equal(t, filepath.Join(dest, ba.Name), ba.LocalPath)
	require.Equal(t, "4.1", ba.VersionTag)
	require.Equal(t, fixedNow, ba.CreatedAt)
	require.Equal(t, 4, ba.Files)
	require.Positive(t, ba.SizeBytes)
	require.Empty(t, ba.Warnings)

	restored := t.TempDir()
	require.NoError(t, a.Extract(ba.LocalPath, restored))
	require.Equal(t, snapshot(t, src), snapshot(t, restored))
}

func TestArchiver_SingleFile(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "a.txt", "hello")

	a := newArchiver()
	ba, err := a.Create(src, t.TempDir(), "4.0")
	require.NoError(t, err)

	restored := t.TempDir()
	require.NoError(t, a.Extract(ba.LocalPath, restored))
	require.Equal(t, map[string]string{"a.txt": "hello"}, snapshot(t, restored))
}

func TestArchiver_SkipsSymlinks(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "real.txt", "data")
	if err := os.Symlink(filepath.Join(src, "real.txt"), filepath.Join(src, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	ba, err := newArchiver().Create(src, t.TempDir(), "tag")
	require.NoError(t, err)
	require.Len(t, ba.Warnings, 1)
	require.Equal(t, filepath.Join(src, "link.txt"), ba.Warnings[0].Path)
	require.Equal(t, "symlink", ba.Warnings[0].Reason)

	zr, err := zip.OpenReader(ba.LocalPath)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	require.Equal(t, "real.txt", zr.File[0].Name)
}

func TestArchiver_DestInsideSource(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "a.txt", "hello")
	dest := filepath.Join(src, "backups")

	ba, err := newArchiver().Create(src, dest, "tag")
	require.NoError(t, err)

	zr, err := zip.OpenReader(ba.LocalPath)
	require.NoError(t, err)
	defer zr.Close()
	for _, f := range zr.File {
		require.NotEqual(t, "backups/"+ba.Name, f.Name, "archive must not contain itself")
	}
}

func TestArchiver_CreateErrors(t *testing.T) {
	_, err := newArchiver().Create(filepath.Join(t.TempDir(), "missing"), t.TempDir(), "tag")
	var ioErr *archive.IOError
	require.ErrorAs(t, err, &ioErr)
	require.Equal(t, "stat", ioErr.Op)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = newArchiver().Create(file, t.TempDir(), "tag")
	require.ErrorAs(t, err, &ioErr)
}

func TestArchiver_ExtractIsAdditive(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "a.txt", "new")
	a := newArchiver()
	ba, err := a.Create(src, t.TempDir(), "tag")
	require.NoError(t, err)

	dest := t.TempDir()
	writeFile(t, dest, "a.txt", "old contents that are longer")
	writeFile(t, dest, "keep.txt", "untouched")

	require.NoError(t, a.Extract(ba.LocalPath, dest))
	require.Equal(t, map[string]string{"a.txt": "new", "keep.txt": "untouched"}, snapshot(t, dest))
}

func TestArchiver_RejectsZipSlip(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(archivePath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("../escaped.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	parent := t.TempDir()
	dest := filepath.Join(parent, "dest")
	err = newArchiver().Extract(archivePath, dest)
	require.ErrorIs(t, err, snaperrors.ErrUnsafePath)
	require.NoFileExists(t, filepath.Join(parent, "escaped.txt"))
}

func TestArchiver_ExtractDoesNotFollowSymlinks(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "a.txt", "from archive")
	writeFile(t, src, "settings/userpref.cfg", "from archive")
	a := newArchiver()
	ba, err := a.Create(src, t.TempDir(), "tag")
	require.NoError(t, err)

	t.Run("symlinked file is replaced", func(t *testing.T) {
		outside := filepath.Join(t.TempDir(), "outside.txt")
		require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))
		dest := t.TempDir()
		if err := os.Symlink(outside, filepath.Join(dest, "a.txt")); err != nil {
			t.Skipf("symlinks unsupported: %v", err)
		}

		require.NoError(t, a.Extract(ba.LocalPath, dest))

		data, err := os.ReadFile(outside)
		require.NoError(t, err)
		require.Equal(t, "secret", string(data))

		fi, err := os.Lstat(filepath.Join(dest, "a.txt"))
		require.NoError(t, err)
		require.True(t, fi.Mode().IsRegular())
		data, err = os.ReadFile(filepath.Join(dest, "a.txt"))
		require.NoError(t, err)
		require.Equal(t, "from archive", string(data))
	})

	t.Run("symlinked directory is refused", func(t *testing.T) {
		outsideDir := t.TempDir()
		dest := t.TempDir()
		if err := os.Symlink(outsideDir, filepath.Join(dest, "settings")); err != nil {
			t.Skipf("symlinks unsupported: %v", err)
		}

		err := a.Extract(ba.LocalPath, dest)
		require.ErrorIs(t, err, snaperrors.ErrUnsafePath)
		require.NoFileExists(t, filepath.Join(outsideDir, "userpref.cfg"))
	})
}

func TestArchiver_ExtractTempRemovesArchive(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "a.txt", "hello")
	a := newArchiver()

	t.Run("success", func(t *testing.T) {
		ba, err := a.Create(src, t.TempDir(), "tag")
		require.NoError(t, err)
		require.NoError(t, a.ExtractTemp(ba.LocalPath, t.TempDir()))
		require.NoFileExists(t, ba.LocalPath)
	})

	t.Run("failure", func(t *testing.T) {
		bogus := filepath.Join(t.TempDir(), "download.zip")
		require.NoError(t, os.WriteFile(bogus, []byte("not a zip"), 0o644))
		err := a.ExtractTemp(bogus, t.TempDir())
		var ioErr *archive.IOError
		require.ErrorAs(t, err, &ioErr)
		require.NoFileExists(t, bogus)
	})
}

func TestParseArchiveName(t *testing.T) {
	tests := []struct {
		name    string
		wantTag string
		wantOK  bool
	}{
		{"backup_4.0_20240101.zip", "4.0", true},
		{"backup_4.1_20240601.zip", "4.1", true},
		{"backup_my_tag_20240601.zip", "my_tag", true},
		{"backup_4.1_2024.zip", "", false},
		{"notes.zip", "", false},
		{"backup_20240601.zip", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tag, _, ok := archive.ParseArchiveName(tc.name)
			require.Equal(t, tc.wantOK, ok)
			require.Equal(t, tc.wantTag, tag)
		})
	}

	tag, date, ok := archive.ParseArchiveName(archive.ArchiveName("4.2", fixedNow))
	require.True(t, ok)
	require.Equal(t, "4.2", tag)
	require.Equal(t, "2024-06-01", date.Format("2006-01-02"))
}
