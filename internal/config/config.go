package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

type Config interface {
	EnvConfig
	OAuthConfig
	DriveConfig
	BackupConfig
	Validate() error
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

// Settings is the on-disk shape of the configuration file.
type Settings struct {
	App    EnvVars `toml:"app"`
	OAuth  OAuth   `toml:"oauth"`
	Drive  Drive   `toml:"drive"`
	Backup Backup  `toml:"backup"`
}

type mainConfig struct {
	EnvVars
	OAuth
	Drive
	Backup
}

var _ Config = mainConfig{}

// NewDefaultSettings returns the settings used when no file or environment override is present.
func NewDefaultSettings() Settings {
	dataFolder := GetEnv(folderEnvVar, defaultDataFolder())
	return Settings{
		App: EnvVars{
			AppName:  "Drive Snapshot",
			Env:      "DEV",
			LogLevel: "info",
		},
		OAuth: OAuth{
			IssuerURL:      "https://accounts.google.com",
			AuthURL:        "https://accounts.google.com/o/oauth2/auth",
			TokenURL:       "https://oauth2.googleapis.com/token",
			UserInfoURL:    "https://openidconnect.googleapis.com/v1/userinfo",
			Scopes:         []string{"openid", "email", "profile", "https://www.googleapis.com/auth/drive.file"},
			RedirectHost:   "localhost",
			RedirectPort:   8080,
			CredentialFile: filepath.Join(dataFolder, "credentials.json"),
		},
		Drive: Drive{
			BaseURL:    "https://www.googleapis.com/drive/v3",
			UploadURL:  "https://www.googleapis.com/upload/drive/v3",
			FolderName: "DriveSnapshot",
			RateLimit:  5,
			Timeout:    "60s",
		},
		Backup: Backup{
			WorkDir:    filepath.Join(os.TempDir(), "drive-snapshot"),
			VersionTag: "default",
		},
	}
}

// New builds a Config from explicit settings.
func New(s Settings) Config {
	return mainConfig{
		EnvVars: s.App,
		OAuth:   s.OAuth,
		Drive:   s.Drive,
		Backup:  s.Backup,
	}
}

// Load reads configuration from the given TOML files with environment overrides applied last.
// Missing files are skipped; later files override earlier ones.
func Load(paths ...string) (Config, error) {
	s := NewDefaultSettings()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&s)
	return New(s), nil
}

func (c mainConfig) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("oauth client_id is required (set %s)", clientIDEnvVar)
	}
	if c.RedirectPort < 0 || c.RedirectPort > 65535 {
		return fmt.Errorf("invalid redirect port %d", c.RedirectPort)
	}
	if c.FolderName == "" {
		return fmt.Errorf("drive folder_name is required")
	}
	return nil
}

// DefaultFile is the configuration file read when none is given.
func DefaultFile() string {
	return filepath.Join(GetEnv(folderEnvVar, defaultDataFolder()), "config.toml")
}

func defaultDataFolder() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(dir, "drive-snapshot")
}
