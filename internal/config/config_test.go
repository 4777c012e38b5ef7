package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PARSER_MODE", "local")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ParserLocal, cfg.ParserMode)
	assert.Equal(t, "ORD-", cfg.OrderNumberPrefix)
	assert.Equal(t, 3, cfg.ParserMaxAttempts)
}

func TestLoadRemoteRequiresURL(t *testing.T) {
	t.Setenv("PARSER_MODE", "remote")
	t.Setenv("PARSER_URL", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PARSER_URL")

	t.Setenv("PARSER_URL", "https://parser.example.test/api/parser")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ParserRemote, cfg.ParserMode)
}

func TestLoadRejectsUnknownParser(t *testing.T) {
	t.Setenv("PARSER_MODE", "magic")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadReportsAllInvalidSettings(t *testing.T) {
	t.Setenv("PARSER_MODE", "local")
	t.Setenv("PARSER_MAX_ATTEMPTS", "0")
	t.Setenv("LOG_FORMAT", "xml")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PARSER_MAX_ATTEMPTS")
	assert.Contains(t, err.Error(), "LOG_FORMAT")
}

func TestGetEnvBool(t *testing.T) {
	for value, want := range map[string]bool{"on": true, "YES": true, "0": false, "off": false, "maybe": true} {
		t.Setenv("IMAP_SECURE", value)
		assert.Equal(t, want, getEnvBool("IMAP_SECURE", true), value)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("MAIL_LISTENER_INTERVAL", "45")
	assert.Equal(t, 45*time.Second, getEnvDuration("MAIL_LISTENER_INTERVAL", time.Second))
	t.Setenv("MAIL_LISTENER_INTERVAL", "2m")
	assert.Equal(t, 2*time.Minute, getEnvDuration("MAIL_LISTENER_INTERVAL", time.Second))
	t.Setenv("MAIL_LISTENER_INTERVAL", "soon")
	assert.Equal(t, time.Second, getEnvDuration("MAIL_LISTENER_INTERVAL", time.Second))
}
