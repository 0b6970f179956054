package config

type BackupConfig interface {
	GetConfigDir() string
	GetWorkDir() string
	GetVersionTag() string
	GetKeepLocalArchive() bool
}

type Backup struct {
	// ConfigDir is the directory that gets archived and restored into.
	ConfigDir        string `toml:"config_dir"`
	WorkDir          string `toml:"work_dir"`
	VersionTag       string `toml:"version_tag"`
	KeepLocalArchive bool   `toml:"keep_local_archive"`
}

var _ BackupConfig = Backup{}

func (b Backup) GetConfigDir() string {
	return b.ConfigDir
}

func (b Backup) GetWorkDir() string {
	return b.WorkDir
}

func (b Backup) GetVersionTag() string {
	return b.VersionTag
}

func (b Backup) GetKeepLocalArchive() bool {
	return b.KeepLocalArchive
}
