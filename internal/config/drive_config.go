package config

import "time"

const defaultRequestTimeout = 60 * time.Second

type DriveConfig interface {
	GetDriveBaseURL() string
	GetDriveUploadURL() string
	GetFolderName() string
	GetRateLimit() int
	GetRequestTimeout() time.Duration
}

type Drive struct {
	BaseURL    string `toml:"base_url"`
	UploadURL  string `toml:"upload_url"`
	FolderName string `toml:"folder_name"`
	RateLimit  int    `toml:"rate_limit"` // requests per second
	Timeout    string `toml:"timeout"`
}

var _ DriveConfig = Drive{}

func (d Drive) GetDriveBaseURL() string {
	return d.BaseURL
}

func (d Drive) GetDriveUploadURL() string {
	return d.UploadURL
}

func (d Drive) GetFolderName() string {
	return d.FolderName
}

func (d Drive) GetRateLimit() int {
	if d.RateLimit <= 0 {
		return 5
	}
	return d.RateLimit
}

// GetRequestTimeout bounds metadata calls. Uploads and downloads stream and are not bounded by it.
func (d Drive) GetRequestTimeout() time.Duration {
	timeout, err := time.ParseDuration(d.Timeout)
	if err != nil || timeout <= 0 {
		return defaultRequestTimeout
	}
	return timeout
}
