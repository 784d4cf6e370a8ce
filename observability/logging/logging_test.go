package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOptions(Options{Service: "lendd", Env: "test", Level: "debug", Output: &buf})
	logger.Debug("pool accrued", "asset", "DOT", "auth_token", "abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "pool accrued", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "lendd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "DOT", line["asset"])
	require.Equal(t, RedactedValue, line["auth_token"])
	require.Contains(t, line, "timestamp")
}

func TestSetupFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lendd.log")
	var buf bytes.Buffer
	logger := SetupWithOptions(Options{
		Service: "lendd",
		Output:  &buf,
		File:    &FileSink{Path: path, MaxSizeMB: 1},
	})
	logger.Info("replay complete")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "replay complete")
	require.Equal(t, buf.String(), string(data))
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("authorization", "Bearer x").Value.String())
	require.Equal(t, "alice", MaskField("account", "alice").Value.String())
	require.Equal(t, "", MaskValue(""))
	require.Contains(t, RedactionAllowlist(), "asset")
}
