package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `service:
  name: switchboard-test
  log_level: debug
  log_format: text
  journal_retention: 24h
journal:
  path: /tmp/test.db
handler_roots:
  - ./handlers
  - ./extra-handlers
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "switchboard-test", cfg.Service.Name)
	assert.Equal(t, "debug", cfg.Service.LogLevel)
	assert.Equal(t, "text", cfg.Service.LogFormat)
	assert.Equal(t, 24*time.Hour, cfg.Service.JournalRetention)
	assert.Equal(t, "/tmp/test.db", cfg.Journal.Path)
	assert.Len(t, cfg.HandlerRoots, 2)
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `journal:
  path: /tmp/test.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	defaults := Defaults()
	assert.Equal(t, defaults.Service.Name, cfg.Service.Name)
	assert.Equal(t, defaults.Service.LogLevel, cfg.Service.LogLevel)
	assert.Equal(t, defaults.Service.JournalRetention, cfg.Service.JournalRetention)
	assert.Equal(t, defaults.HandlerRoots, cfg.HandlerRoots)
	assert.False(t, cfg.API.Enabled)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "journal:\n  path: /tmp/test.db\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test.db", cfg.Journal.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoadInvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `service:
  log_level: loud
journal:
  path: /tmp/test.db
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoadAPIRequiresKey(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `api:
  enabled: true
  listen: 127.0.0.1:8710
journal:
  path: /tmp/test.db
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.auth.api_key")
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("SWITCHBOARD_TEST_KEY", "sekrit")

	dir := t.TempDir()
	path := writeConfig(t, dir, `api:
  enabled: true
  listen: 127.0.0.1:8710
  auth:
    api_key: ${SWITCHBOARD_TEST_KEY}
journal:
  path: /tmp/test.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sekrit", cfg.API.Auth.APIKey)
}

func TestLoadUndefinedEnvVarFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `api:
  enabled: true
  listen: 127.0.0.1:8710
  auth:
    api_key: ${SWITCHBOARD_DEFINITELY_UNSET_VAR}
journal:
  path: /tmp/test.db
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined environment variable")
}

func TestLoadVerifiesChecksums(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "journal:\n  path: /tmp/test.db\n")

	require.NoError(t, GenerateChecksums(dir, []string{"config.yaml"}))

	// Untampered config loads fine.
	_, err := Load(path)
	require.NoError(t, err)

	// Tampering after hashing must be rejected.
	require.NoError(t, os.WriteFile(path, []byte("journal:\n  path: /tmp/evil.db\n"), 0644))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config verification failed")
}
