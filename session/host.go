package session

// Level is the severity of a user-facing report.
type Level int

const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// BrowserLauncher opens the consent page. It is fire-and-forget.
type BrowserLauncher interface {
	OpenURL(url string)
}

// Reporter receives every user-facing outcome.
type Reporter interface {
	Report(level Level, message string)
}

// ConfigDirProvider supplies the directory that is backed up and restored into.
type ConfigDirProvider interface {
	GetConfigDir() string
}

// BrowserFunc adapts a function to BrowserLauncher.
type BrowserFunc func(url string)

func (f BrowserFunc) OpenURL(url string) { f(url) }

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(level Level, message string)

func (f ReporterFunc) Report(level Level, message string) { f(level, message) }

// ConfigDir is a fixed ConfigDirProvider.
type ConfigDir string

func (d ConfigDir) GetConfigDir() string { return string(d) }

// Host bundles the collaborators the embedding application provides.
type Host struct {
	Browser   BrowserLauncher
	Reporter  Reporter
	ConfigDir ConfigDirProvider
}
