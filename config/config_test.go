package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "https://p8fs.percolationlabs.ai", cfg.AuthBaseURL)
	assert.Equal(t, "https://s3.percolationlabs.ai", cfg.S3Endpoint)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, ":8787", cfg.ListenAddr)
	assert.Contains(t, cfg.StoragePath, filepath.Join(".p8node", "storage.json"))
	assert.False(t, cfg.UseKeyring)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth_base_url: https://auth.test.internal
s3_endpoint: https://objects.test.internal
s3_region: eu-central-1
use_keyring: true
device_name: Test Rig
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://auth.test.internal", cfg.AuthBaseURL)
	assert.Equal(t, "https://objects.test.internal", cfg.S3Endpoint)
	assert.Equal(t, "eu-central-1", cfg.S3Region)
	assert.True(t, cfg.UseKeyring)
	assert.Equal(t, "Test Rig", cfg.DeviceName)

	// Values absent from the file keep their defaults.
	assert.Equal(t, ":8787", cfg.ListenAddr)
	assert.Equal(t, "https://p8fs.percolationlabs.ai/oauth/callback", cfg.RedirectURI)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("s3_region: eu-central-1\n"), 0o600))

	t.Setenv(EnvS3Region, "ap-southeast-2")
	t.Setenv(EnvS3AccessKey, "AKID")
	t.Setenv(EnvListenAddr, ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ap-southeast-2", cfg.S3Region)
	assert.Equal(t, "AKID", cfg.S3AccessKey)
	assert.Equal(t, ":9999", cfg.ListenAddr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().AuthBaseURL, cfg.AuthBaseURL)
}
