package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/vaultbox/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":3001", c.EndpointAddrHTTP)
	assert.Equal(t, "secretKey", c.SecretKey)
	assert.Equal(t, 7*24*time.Hour, c.SessionTokenValidityDuration)
	assert.Equal(t, 30*time.Second, c.MediaTokenValidityDuration)
	assert.Equal(t, "k1", c.ActiveKeyID)
	assert.Contains(t, c.EncryptionKeys, "k1")
	assert.Equal(t, StorageBackendFS, c.StorageBackend)
	assert.Equal(t, 10, c.MaxUploadFiles)
	assert.Equal(t, int64(500<<20), c.MaxUploadFileSize)
	assert.Equal(t, 300, c.ThumbnailSize)
	assert.Equal(t, []string{"http://localhost:5173"}, c.AllowedOrigins)
	assert.Equal(t, "vault", c.S3Bucket)
	assert.NoError(t, c.Validate())
}

func TestStagingPath(t *testing.T) {
	c := Config{StorageRoot: "/data"}
	assert.Equal(t, filepath.Join("/data", ".staging"), c.StagingPath())

	c.StagingDir = "/tmp/stage"
	assert.Equal(t, "/tmp/stage", c.StagingPath())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"defaults", func(c *Config) {}, nil},
		{"empty secret", func(c *Config) { c.SecretKey = "" }, common.ErrValidation},
		{"zero media ttl", func(c *Config) { c.MediaTokenValidityDuration = 0 }, common.ErrValidation},
		{"no keys", func(c *Config) { c.EncryptionKeys = nil }, common.ErrValidation},
		{"active key missing", func(c *Config) { c.ActiveKeyID = "k9" }, common.ErrUnknownKey},
		{"bad backend", func(c *Config) { c.StorageBackend = "ftp" }, common.ErrValidation},
		{"s3 without bucket", func(c *Config) { c.StorageBackend = StorageBackendS3; c.S3Bucket = "" }, common.ErrValidation},
		{"zero max files", func(c *Config) { c.MaxUploadFiles = 0 }, common.ErrValidation},
		{"negative interval", func(c *Config) { c.ReconcileInterval = -time.Second }, common.ErrValidation},
		{"reconcile disabled", func(c *Config) { c.ReconcileInterval = 0 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}
	t.Setenv("VAULT_CONFIG", "")

	c := LoadConfig()
	require.NotNil(t, c, "LoadConfig must not return nil")

	assert.Equal(t, "k1", c.ActiveKeyID)
	assert.Equal(t, 30*time.Second, c.MediaTokenValidityDuration)
}

func TestLoadFile(t *testing.T) {
	path := writeTempJSON(t, "", "", map[string]any{"endpoint_addr_http": ":8080"})

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.EndpointAddrHTTP)
	assert.Equal(t, "k1", c.ActiveKeyID)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
