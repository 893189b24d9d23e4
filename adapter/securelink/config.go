package securelink

import (
	"strings"
	"time"

	"github.com/goliatone/go-referrals/pkg/types"
)

// RouteVerify is the route key used for signup verification links.
const RouteVerify = "verify"

const (
	defaultExpiration = 72 * time.Hour
	defaultQueryKey   = "token"
)

// Config implements types.SecureLinkConfigurator from plain values.
type Config struct {
	SigningKey string            `koanf:"signing_key" json:"signing_key"`
	Expiration time.Duration     `koanf:"expiration" json:"expiration"`
	BaseURL    string            `koanf:"base_url" json:"base_url"`
	QueryKey   string            `koanf:"query_key" json:"query_key"`
	Routes     map[string]string `koanf:"routes" json:"routes"`
	AsQuery    bool              `koanf:"as_query" json:"as_query"`
}

var _ types.SecureLinkConfigurator = Config{}

// GetSigningKey implements types.SecureLinkConfigurator.
func (c Config) GetSigningKey() string { return c.SigningKey }

// GetExpiration defaults to 72 hours.
func (c Config) GetExpiration() time.Duration {
	if c.Expiration <= 0 {
		return defaultExpiration
	}
	return c.Expiration
}

// GetBaseURL implements types.SecureLinkConfigurator.
func (c Config) GetBaseURL() string { return strings.TrimRight(c.BaseURL, "/") }

// GetQueryKey defaults to "token".
func (c Config) GetQueryKey() string {
	if strings.TrimSpace(c.QueryKey) == "" {
		return defaultQueryKey
	}
	return c.QueryKey
}

// GetRoutes always includes the verification route.
func (c Config) GetRoutes() map[string]string {
	routes := make(map[string]string, len(c.Routes)+1)
	for key, value := range c.Routes {
		routes[key] = value
	}
	if _, ok := routes[RouteVerify]; !ok {
		routes[RouteVerify] = "/verify"
	}
	return routes
}

// GetAsQuery implements types.SecureLinkConfigurator.
func (c Config) GetAsQuery() bool { return c.AsQuery }
