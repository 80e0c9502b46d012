package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	t.Setenv("VAULT_CONFIG", "")

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"endpoint_addr_http":              "www.example:9000",
		"database_dsn":                    "postgres://vault",
		"secret_key":                      "my_secret_key",
		"session_token_validity_duration": "24h",
		"media_token_validity_duration":   "45s",
		"encryption_keys":                 map[string]string{"k1": "a", "k2": "b"},
		"active_key_id":                   "k2",
		"storage_backend":                 "s3",
		"max_upload_files":                3,
		"reconcile_interval":              "5m",
		"allowed_origins":                 []string{"https://app.example"},
		"s3_bucket":                       "bucket",
		"s3_prefix":                       "tenant-a/",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrHTTP)
		assert.Equal(t, "postgres://vault", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, 24*time.Hour, cfg.SessionTokenValidityDuration)
		assert.Equal(t, 45*time.Second, cfg.MediaTokenValidityDuration)
		assert.Equal(t, map[string]string{"k1": "a", "k2": "b"}, cfg.EncryptionKeys)
		assert.Equal(t, "k2", cfg.ActiveKeyID)
		assert.Equal(t, StorageBackendS3, cfg.StorageBackend)
		assert.Equal(t, 3, cfg.MaxUploadFiles)
		assert.Equal(t, 5*time.Minute, cfg.ReconcileInterval)
		assert.Equal(t, []string{"https://app.example"}, cfg.AllowedOrigins)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, "tenant-a/", cfg.S3Prefix)

		// keys absent from the file keep their defaults
		assert.Equal(t, 300, cfg.ThumbnailSize)
		assert.Equal(t, "us-east-1", cfg.S3Region)
	})

	t.Run("env var names the file", func(t *testing.T) {
		os.Args = []string{"testbin"}
		t.Setenv("VAULT_CONFIG", pathFlag)

		cfg := &Config{}
		parseJson(cfg)
		assert.Equal(t, "www.example:9000", cfg.EndpointAddrHTTP)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{EndpointAddrHTTP: "defaults:1234", SecretKey: "key"}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.EndpointAddrHTTP)
		assert.Equal(t, "key", cfg.SecretKey)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
