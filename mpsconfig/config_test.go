package mpsconfig_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcll/mps-refbox/mpsconfig"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "refboxmps.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTemp(t, `
Enable = true
Connection = "mockup"
ClipsTimerInterval = 25

[Stations."C-BS"]
Type = "BS"
Active = true
`)

	cfg, err := mpsconfig.Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Enable)
	assert.Equal(t, uint(25), cfg.ClipsTimerInterval)
	assert.Equal(t, 25*time.Millisecond, cfg.TickInterval())
	require.Contains(t, cfg.Stations, "C-BS")
	assert.Equal(t, "BS", cfg.Stations["C-BS"].Type)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := mpsconfig.Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.Error(t, err)
	var cfgErr *mpsconfig.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadMalformedToml(t *testing.T) {
	path := writeTemp(t, `this is not = = valid toml`)
	_, err := mpsconfig.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeTemp(t, `
Enable = true
NotARealField = true
`)
	_, err := mpsconfig.Load(path)
	require.Error(t, err)
}

func TestDefaultTickInterval(t *testing.T) {
	cfg := mpsconfig.Defaults
	cfg.ClipsTimerInterval = 0
	assert.Equal(t, 40*time.Millisecond, cfg.TickInterval())
}

func TestValidateRejectsUnknownType(t *testing.T) {
	cfg := mpsconfig.Defaults
	cfg.Stations = map[string]mpsconfig.StationConfig{
		"C-XX": {Type: "ZZ", Active: true, Connection: "mockup"},
	}
	err := mpsconfig.Validate(cfg)
	require.Error(t, err)
}

func TestValidateRejectsUnknownConnection(t *testing.T) {
	cfg := mpsconfig.Defaults
	cfg.Stations = map[string]mpsconfig.StationConfig{
		"C-BS": {Type: "BS", Active: true, Connection: "carrier-pigeon"},
	}
	err := mpsconfig.Validate(cfg)
	require.Error(t, err)
}

func TestValidateRequiresHostPortForNetworkConnections(t *testing.T) {
	cfg := mpsconfig.Defaults
	cfg.Stations = map[string]mpsconfig.StationConfig{
		"C-BS": {Type: "BS", Active: true, Connection: "plc"},
	}
	err := mpsconfig.Validate(cfg)
	require.Error(t, err)
}

func TestValidateSkipsInactiveStations(t *testing.T) {
	cfg := mpsconfig.Defaults
	cfg.Stations = map[string]mpsconfig.StationConfig{
		"C-BS": {Type: "bogus", Active: false},
	}
	assert.NoError(t, mpsconfig.Validate(cfg))
}

func TestValidatePassesWithMockupNoHostRequired(t *testing.T) {
	cfg := mpsconfig.Defaults
	cfg.Connection = "mockup"
	cfg.Stations = map[string]mpsconfig.StationConfig{
		"C-BS": {Type: "BS", Active: true},
	}
	assert.NoError(t, mpsconfig.Validate(cfg))
}
