package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	var c Config
	c.LoadDefaults()

	applyEnv(&c, mapLookup(map[string]string{
		"VAULT_HTTP_ADDR":            ":9999",
		"VAULT_SECRET_KEY":           "env-secret",
		"VAULT_MEDIA_TOKEN_TTL":      "1m",
		"VAULT_ENCRYPTION_KEYS":      "k1:one, k2:two,broken",
		"VAULT_ACTIVE_KEY_ID":        "k2",
		"VAULT_MAX_UPLOAD_FILES":     "4",
		"VAULT_MAX_UPLOAD_FILE_SIZE": "not-a-number",
		"VAULT_ALLOWED_ORIGINS":      "https://a.example, https://b.example",
		"VAULT_STORAGE_ROOT":         "",
		"VAULT_S3_PREFIX":            "tenant-b/",
	}))

	assert.Equal(t, ":9999", c.EndpointAddrHTTP)
	assert.Equal(t, "env-secret", c.SecretKey)
	assert.Equal(t, time.Minute, c.MediaTokenValidityDuration)
	assert.Empty(t, cmp.Diff(map[string]string{"k1": "one", "k2": "two"}, c.EncryptionKeys))
	assert.Equal(t, "k2", c.ActiveKeyID)
	assert.Equal(t, 4, c.MaxUploadFiles)
	assert.Equal(t, int64(500<<20), c.MaxUploadFileSize, "malformed values are ignored")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowedOrigins)
	assert.Equal(t, "./storage", c.StorageRoot, "empty values are ignored")
	assert.Equal(t, "tenant-b/", c.S3Prefix)
}
