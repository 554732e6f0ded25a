// Package config loads the daemon's environment-driven configuration
// once at startup into an immutable struct, passed by dependency
// injection rather than read ad hoc from os.Getenv throughout the tree.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the fully-resolved process configuration.
type Config struct {
	DBPath         string
	EncryptionKey  string
	LogLevel       string
	LogFormat      string
	AttachmentDir  string
	MaxCacheBytes  int64

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string

	OutlookClientID     string
	OutlookClientSecret string
	OutlookRedirectURI  string
	OutlookTenantID     string
}

// Load reads configuration from the environment (INTENTMAIL_* and
// GMAIL_*/OUTLOOK_* variables per the external interfaces contract),
// applying defaults for anything unset.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("INTENTMAIL_DB_PATH", "./data/intentmail.db")
	v.SetDefault("INTENTMAIL_LOG_LEVEL", "info")
	v.SetDefault("INTENTMAIL_LOG_FORMAT", "console")
	v.SetDefault("INTENTMAIL_ATTACHMENT_CACHE_DIR", "./data/attachment-cache")
	v.SetDefault("INTENTMAIL_MAX_CACHE_BYTES", int64(500*1024*1024))

	cfg := &Config{
		DBPath:        v.GetString("INTENTMAIL_DB_PATH"),
		EncryptionKey: v.GetString("INTENTMAIL_ENCRYPTION_KEY"),
		LogLevel:      v.GetString("INTENTMAIL_LOG_LEVEL"),
		LogFormat:     v.GetString("INTENTMAIL_LOG_FORMAT"),
		AttachmentDir: v.GetString("INTENTMAIL_ATTACHMENT_CACHE_DIR"),
		MaxCacheBytes: v.GetInt64("INTENTMAIL_MAX_CACHE_BYTES"),

		GmailClientID:     v.GetString("GMAIL_CLIENT_ID"),
		GmailClientSecret: v.GetString("GMAIL_CLIENT_SECRET"),
		GmailRedirectURI:  v.GetString("GMAIL_REDIRECT_URI"),

		OutlookClientID:     v.GetString("OUTLOOK_CLIENT_ID"),
		OutlookClientSecret: v.GetString("OUTLOOK_CLIENT_SECRET"),
		OutlookRedirectURI:  v.GetString("OUTLOOK_REDIRECT_URI"),
		OutlookTenantID:     v.GetString("OUTLOOK_TENANT_ID"),
	}

	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("config: INTENTMAIL_ENCRYPTION_KEY is required")
	}

	return cfg, nil
}

// IsGmailConfigured reports whether Gmail OAuth credentials are present.
func (c *Config) IsGmailConfigured() bool {
	return c.GmailClientID != "" && c.GmailClientSecret != ""
}

// IsOutlookConfigured reports whether Outlook OAuth credentials are present.
func (c *Config) IsOutlookConfigured() bool {
	return c.OutlookClientID != "" && c.OutlookClientSecret != "" && c.OutlookTenantID != ""
}
