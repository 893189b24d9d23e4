package main

import (
	"errors"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-referrals/adapter/securelink"
)

// BaseConfig holds all configuration for the referrals binary.
type BaseConfig struct {
	Server      ServerConfig      `json:"server"`
	Persistence PersistenceConfig `json:"persistence"`
	SecureLink  securelink.Config `json:"securelink"`
	Referrals   ReferralsConfig   `json:"referrals"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string `json:"port" env:"SERVER_PORT" default:"8979"`
	Host string `json:"host" env:"SERVER_HOST" default:"localhost"`
}

// PersistenceConfig implements persistence.Config.
type PersistenceConfig struct {
	Debug          bool          `json:"debug" default:"false"`
	Driver         string        `json:"driver" env:"DB_DRIVER" default:"sqlite"`
	Server         string        `json:"server" env:"DB_SERVER" default:"file:referrals.db?_journal_mode=WAL&cache=shared&_fk=1"`
	PingTimeout    time.Duration `json:"ping_timeout" default:"5s"`
	OtelIdentifier string        `json:"otel_identifier" default:"go-referrals"`
}

func (c PersistenceConfig) GetDebug() bool                { return c.Debug }
func (c PersistenceConfig) GetDriver() string             { return c.Driver }
func (c PersistenceConfig) GetServer() string             { return c.Server }
func (c PersistenceConfig) GetPingTimeout() time.Duration { return c.PingTimeout }
func (c PersistenceConfig) GetOtelIdentifier() string     { return c.OtelIdentifier }

// ReferralsConfig tunes the provisioning workflow.
type ReferralsConfig struct {
	VerificationRedirectURL  string `json:"verification_redirect_url" env:"REFERRALS_REDIRECT_URL"`
	DedupePendingMemberships bool   `json:"dedupe_pending_memberships" env:"REFERRALS_DEDUPE_MEMBERSHIPS"`
	PhoneScanLimit           int    `json:"phone_scan_limit" default:"1000"`
	GroupCache               bool   `json:"group_cache" default:"true"`
	// Features toggles gate keys such as referrals.provision and
	// referrals.membership. Missing keys are enabled.
	Features map[string]bool `json:"features"`
}

// GetPersistence returns persistence config.
func (c *BaseConfig) GetPersistence() persistence.Config {
	return c.Persistence
}

// GetServer returns server config.
func (c *BaseConfig) GetServer() ServerConfig {
	return c.Server
}

// Validate implements config.Validable.
func (c *BaseConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Persistence.Driver)) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "pg":
	default:
		return errors.New("config: persistence.driver must be sqlite or postgres")
	}
	if c.Referrals.PhoneScanLimit < 0 {
		return errors.New("config: referrals.phone_scan_limit must not be negative")
	}
	return nil
}

func defaultConfig() *BaseConfig {
	return &BaseConfig{
		Server: ServerConfig{
			Host: "localhost",
			Port: "8979",
		},
		Persistence: PersistenceConfig{
			Driver:         "sqlite",
			Server:         "file:referrals.db?_journal_mode=WAL&cache=shared&_fk=1",
			PingTimeout:    5 * time.Second,
			OtelIdentifier: "go-referrals",
		},
		SecureLink: securelink.Config{
			SigningKey: "changeme-securelink-key-please-use-env-var",
			BaseURL:    "http://localhost:8979",
			AsQuery:    true,
		},
		Referrals: ReferralsConfig{
			PhoneScanLimit: 1000,
			GroupCache:     true,
		},
	}
}
