package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/vaultbox/internal/flagx"
	"github.com/dmitrijs2005/vaultbox/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations go through
// timex.Duration so "30s" and raw nanoseconds both parse. Only keys present
// in the file override the current values.
type JsonConfig struct {
	EndpointAddrHTTP             *string           `json:"endpoint_addr_http"`
	DatabaseDSN                  *string           `json:"database_dsn"`
	SecretKey                    *string           `json:"secret_key"`
	SessionTokenValidityDuration *timex.Duration   `json:"session_token_validity_duration"`
	MediaTokenValidityDuration   *timex.Duration   `json:"media_token_validity_duration"`
	EncryptionKeys               map[string]string `json:"encryption_keys"`
	ActiveKeyID                  *string           `json:"active_key_id"`
	StorageBackend               *string           `json:"storage_backend"`
	StorageRoot                  *string           `json:"storage_root"`
	StagingDir                   *string           `json:"staging_dir"`
	MaxUploadFiles               *int              `json:"max_upload_files"`
	MaxUploadFileSize            *int64            `json:"max_upload_file_size"`
	ThumbnailSize                *int              `json:"thumbnail_size"`
	ReconcileInterval            *timex.Duration   `json:"reconcile_interval"`
	ReconcileGracePeriod         *timex.Duration   `json:"reconcile_grace_period"`
	AllowedOrigins               []string          `json:"allowed_origins"`
	LogLevel                     *string           `json:"log_level"`
	S3RootUser                   *string           `json:"s3_root_user"`
	S3RootPassword               *string           `json:"s3_root_password"`
	S3Bucket                     *string           `json:"s3_bucket"`
	S3Region                     *string           `json:"s3_region"`
	S3BaseEndpoint               *string           `json:"s3_base_endpoint"`
	S3Prefix                     *string           `json:"s3_prefix"`
}

// parseJson overlays the file named by -c/-config (or $VAULT_CONFIG) onto
// config. Nothing happens without a path; an unreadable or invalid file panics.
func parseJson(config *Config) {
	path := flagx.ConfigFilePath()
	if path == "" {
		return
	}
	if err := loadJSONFile(config, path); err != nil {
		panic(err)
	}
}

func loadJSONFile(config *Config, path string) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.SessionTokenValidityDuration, c.SessionTokenValidityDuration)
	setDuration(&config.MediaTokenValidityDuration, c.MediaTokenValidityDuration)
	if c.EncryptionKeys != nil {
		config.EncryptionKeys = c.EncryptionKeys
	}
	setString(&config.ActiveKeyID, c.ActiveKeyID)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.StorageRoot, c.StorageRoot)
	setString(&config.StagingDir, c.StagingDir)
	if c.MaxUploadFiles != nil {
		config.MaxUploadFiles = *c.MaxUploadFiles
	}
	if c.MaxUploadFileSize != nil {
		config.MaxUploadFileSize = *c.MaxUploadFileSize
	}
	if c.ThumbnailSize != nil {
		config.ThumbnailSize = *c.ThumbnailSize
	}
	setDuration(&config.ReconcileInterval, c.ReconcileInterval)
	setDuration(&config.ReconcileGracePeriod, c.ReconcileGracePeriod)
	if c.AllowedOrigins != nil {
		config.AllowedOrigins = c.AllowedOrigins
	}
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3Prefix, c.S3Prefix)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
