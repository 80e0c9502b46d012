package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable the server reads.
const EnvPrefix = "VAULT_"

// parseEnv loads a .env file from the working directory when one exists
// (without overriding variables already set) and then applies VAULT_*
// variables on top of config.
func parseEnv(config *Config) {
	_ = godotenv.Load()
	applyEnv(config, os.LookupEnv)
}

// applyEnv reads variables through lookup so tests need not touch the real
// environment. Malformed numbers and durations are ignored.
func applyEnv(config *Config, lookup func(string) (string, bool)) {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return v, ok && v != ""
	}

	str := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := get(name); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	num := func(name string, dst *int64) {
		if v, ok := get(name); ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}

	str("HTTP_ADDR", &config.EndpointAddrHTTP)
	str("DATABASE_DSN", &config.DatabaseDSN)
	str("SECRET_KEY", &config.SecretKey)
	dur("SESSION_TOKEN_TTL", &config.SessionTokenValidityDuration)
	dur("MEDIA_TOKEN_TTL", &config.MediaTokenValidityDuration)
	str("ACTIVE_KEY_ID", &config.ActiveKeyID)
	if v, ok := get("ENCRYPTION_KEYS"); ok {
		config.EncryptionKeys = parseKeyList(v)
	}
	str("STORAGE_BACKEND", &config.StorageBackend)
	str("STORAGE_ROOT", &config.StorageRoot)
	str("STAGING_DIR", &config.StagingDir)

	maxFiles := int64(config.MaxUploadFiles)
	num("MAX_UPLOAD_FILES", &maxFiles)
	config.MaxUploadFiles = int(maxFiles)
	num("MAX_UPLOAD_FILE_SIZE", &config.MaxUploadFileSize)

	dur("RECONCILE_INTERVAL", &config.ReconcileInterval)
	dur("RECONCILE_GRACE_PERIOD", &config.ReconcileGracePeriod)
	if v, ok := get("ALLOWED_ORIGINS"); ok {
		config.AllowedOrigins = splitList(v)
	}
	str("LOG_LEVEL", &config.LogLevel)
	str("S3_ROOT_USER", &config.S3RootUser)
	str("S3_ROOT_PASSWORD", &config.S3RootPassword)
	str("S3_BUCKET", &config.S3Bucket)
	str("S3_REGION", &config.S3Region)
	str("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	str("S3_PREFIX", &config.S3Prefix)
}

// parseKeyList reads "id1:secret1,id2:secret2". Entries without a colon are skipped.
func parseKeyList(s string) map[string]string {
	keys := make(map[string]string)
	for _, part := range splitList(s) {
		id, secret, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		keys[strings.TrimSpace(id)] = strings.TrimSpace(secret)
	}
	return keys
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
