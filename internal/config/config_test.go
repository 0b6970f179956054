package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/drive-snapshot/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults when no file exists", func(t *testing.T) {
		cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
		require.NoError(t, err)

		require.Equal(t, "Drive Snapshot", cfg.GetAppName())
		require.Equal(t, "https://oauth2.googleapis.com/token", cfg.GetTokenURL())
		require.Equal(t, "localhost:8080", cfg.GetRedirectAddr())
		require.Equal(t, "DriveSnapshot", cfg.GetFolderName())
		require.Equal(t, "default", cfg.GetVersionTag())
		require.Equal(t, 60*time.Second, cfg.GetRequestTimeout())
		require.Empty(t, cfg.GetClientSecret())
		require.Error(t, cfg.Validate())
	})

	t.Run("file values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte(`
[app]
name = "Blender Backup"
log_level = "debug"

[oauth]
client_id = "desktop-client-1"
redirect_host = "127.0.0.1"
redirect_port = 9090
scopes = ["openid", "https://www.googleapis.com/auth/drive.file"]

[drive]
folder_name = "Blender Settings"
rate_limit = 2
timeout = "15s"

[backup]
config_dir = "/home/ada/.config/blender"
version_tag = "4.1"
keep_local_archive = true
`), 0o644))

		cfg, err := config.Load(path)
		require.NoError(t, err)
		require.NoError(t, cfg.Validate())

		require.Equal(t, "Blender Backup", cfg.GetAppName())
		require.Equal(t, "debug", cfg.GetLogLevel())
		require.Equal(t, "desktop-client-1", cfg.GetClientID())
		require.Equal(t, "127.0.0.1:9090", cfg.GetRedirectAddr())
		require.Equal(t, []string{"openid", "https://www.googleapis.com/auth/drive.file"}, cfg.GetScopes())
		require.Equal(t, "Blender Settings", cfg.GetFolderName())
		require.Equal(t, 2, cfg.GetRateLimit())
		require.Equal(t, 15*time.Second, cfg.GetRequestTimeout())
		require.Equal(t, "/home/ada/.config/blender", cfg.GetConfigDir())
		require.Equal(t, "4.1", cfg.GetVersionTag())
		require.True(t, cfg.GetKeepLocalArchive())
		// Untouched sections keep their defaults.
		require.Equal(t, "https://accounts.google.com/o/oauth2/auth", cfg.GetAuthURL())
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte("[oauth]\nclient_id = \"from-file\"\n"), 0o644))
		t.Setenv("DRIVESNAPSHOT_CLIENT_ID", "from-env")
		t.Setenv("DRIVESNAPSHOT_REDIRECT_PORT", "0")
		t.Setenv("DRIVESNAPSHOT_VERSION_TAG", "nightly")

		cfg, err := config.Load(path)
		require.NoError(t, err)
		require.Equal(t, "from-env", cfg.GetClientID())
		require.Equal(t, "localhost:0", cfg.GetRedirectAddr())
		require.Equal(t, "nightly", cfg.GetVersionTag())
	})

	t.Run("data folder holds the default credential file", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("DRIVESNAPSHOT_DATA_FOLDER", dir)
		t.Setenv("DRIVESNAPSHOT_CREDENTIAL_FILE", "")

		cfg, err := config.Load(filepath.Join(dir, "missing.toml"))
		require.NoError(t, err)
		require.Equal(t, filepath.Join(dir, "credentials.json"), cfg.GetCredentialFile())
		require.Equal(t, filepath.Join(dir, "config.toml"), config.DefaultFile())
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte("[oauth\nclient_id = "), 0o644))

		_, err := config.Load(path)
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	s := config.NewDefaultSettings()
	s.OAuth.ClientID = "desktop-client-1"
	require.NoError(t, config.New(s).Validate())

	s.OAuth.RedirectPort = 70000
	require.Error(t, config.New(s).Validate())

	s.OAuth.RedirectPort = 8080
	s.Drive.FolderName = ""
	require.Error(t, config.New(s).Validate())
}
