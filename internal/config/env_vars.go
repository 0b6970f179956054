package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	appNameVar        = "DRIVESNAPSHOT_APP_NAME"
	envVar            = "DRIVESNAPSHOT_ENV"
	logLevelVar       = "DRIVESNAPSHOT_LOG_LEVEL"
	folderEnvVar      = "DRIVESNAPSHOT_DATA_FOLDER"
	clientIDEnvVar    = "DRIVESNAPSHOT_CLIENT_ID"
	clientSecretVar   = "DRIVESNAPSHOT_CLIENT_SECRET"
	redirectPortVar   = "DRIVESNAPSHOT_REDIRECT_PORT"
	credentialFileVar = "DRIVESNAPSHOT_CREDENTIAL_FILE"
	driveFolderVar    = "DRIVESNAPSHOT_FOLDER"
	configDirVar      = "DRIVESNAPSHOT_CONFIG_DIR"
	workDirVar        = "DRIVESNAPSHOT_WORK_DIR"
	versionTagVar     = "DRIVESNAPSHOT_VERSION_TAG"
)

type EnvVars struct {
	AppName  string `toml:"name"`
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return e.Env
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// applyEnvOverrides applies environment variable overrides to settings
func applyEnvOverrides(s *Settings) {
	s.App.AppName = GetEnv(appNameVar, s.App.AppName)
	s.App.Env = GetEnv(envVar, s.App.Env)
	s.App.LogLevel = strings.ToLower(GetEnv(logLevelVar, s.App.LogLevel))

	s.OAuth.ClientID = GetEnv(clientIDEnvVar, s.OAuth.ClientID)
	s.OAuth.ClientSecret = GetEnv(clientSecretVar, s.OAuth.ClientSecret)
	s.OAuth.CredentialFile = GetEnv(credentialFileVar, s.OAuth.CredentialFile)
	if port := os.Getenv(redirectPortVar); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			s.OAuth.RedirectPort = p
		}
	}

	s.Drive.FolderName = GetEnv(driveFolderVar, s.Drive.FolderName)

	s.Backup.ConfigDir = GetEnv(configDirVar, s.Backup.ConfigDir)
	s.Backup.WorkDir = GetEnv(workDirVar, s.Backup.WorkDir)
	s.Backup.VersionTag = GetEnv(versionTagVar, s.Backup.VersionTag)
}
