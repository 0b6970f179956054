package main

import (
	"fmt"
	"io"

	"github.com/jrsteele09/drive-snapshot/session"
	"github.com/pkg/browser"
	"github.com/rs/zerolog"
)

func init() {
	// Keep launcher chatter off the terminal.
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
}

// systemBrowser opens URLs with the platform's default handler. The URL is
// always printed so the user can open it by hand when that fails.
type systemBrowser struct {
	out    io.Writer
	logger zerolog.Logger
}

func (b systemBrowser) OpenURL(url string) {
	fmt.Fprintf(b.out, "Opening your browser to sign in. If it does not open, visit:\n\n  %s\n\n", url)
	if err := browser.OpenURL(url); err != nil {
		b.logger.Debug().Err(err).Msg("could not launch browser")
	}
}

// consoleReporter prints user-facing outcomes.
type consoleReporter struct {
	out io.Writer
}

func (r consoleReporter) Report(level session.Level, message string) {
	if level == session.Info {
		fmt.Fprintln(r.out, message)
		return
	}
	fmt.Fprintf(r.out, "%s: %s\n", level, message)
}
