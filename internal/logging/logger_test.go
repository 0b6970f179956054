package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/jrsteele09/drive-snapshot/internal/logging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			require.Equal(t, want, logging.ParseLevel(in))
		})
	}
}

func TestNewWithOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithOutput("warn", &buf)

	logger.Info().Msg("dropped")
	require.Zero(t, buf.Len())

	logger.Warn().Str("folder", "DriveSnapshot").Msg("ambiguous folder name")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "DriveSnapshot", entry["folder"])
	require.Equal(t, "ambiguous folder name", entry["message"])
	require.Contains(t, entry, "time")
}
