package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var cfg Config
	cfg.LoadDefaults()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.NotEmpty(t, cfg.DatabaseDSN)
	assert.Equal(t, 30*24*time.Hour, cfg.TokenValidityDuration)
}

func TestParseJson(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"listen_addr": ":9999",
		"secret_key": "overridden",
		"token_validity_duration": "1h"
	}`), 0o600))

	oldArgs := os.Args
	os.Args = []string{"server", "-c", path}
	t.Cleanup(func() { os.Args = oldArgs })

	var cfg Config
	cfg.LoadDefaults()
	parseJson(&cfg)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "overridden", cfg.SecretKey)
	assert.Equal(t, time.Hour, cfg.TokenValidityDuration)
	// untouched values keep their defaults
	assert.NotEmpty(t, cfg.DatabaseDSN)
}

func TestParseFlags(t *testing.T) {
	oldArgs := os.Args
	os.Args = []string{"server", "-a", ":7070", "-d", "postgres://x/y", "-k", "k1"}
	t.Cleanup(func() { os.Args = oldArgs })

	var cfg Config
	cfg.LoadDefaults()
	parseFlags(&cfg)

	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, "postgres://x/y", cfg.DatabaseDSN)
	assert.Equal(t, "k1", cfg.SecretKey)
}
