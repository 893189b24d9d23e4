package securelink

import (
	"errors"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/goliatone/go-referrals/pkg/types"
	urlkit "github.com/goliatone/go-urlkit/securelink"
)

var (
	// ErrNotConfigured is returned by a Manager without a go-urlkit manager.
	ErrNotConfigured = errors.New("securelink: manager not configured")
	// ErrTokenMissing is returned when a verification link carries no token.
	ErrTokenMissing = errors.New("securelink: link has no token")
)

// Manager signs the verification links mailed to referred people and checks
// the tokens they bring back.
type Manager struct {
	inner    urlkit.Manager
	queryKey string
	asQuery  bool
}

// NewManager builds a go-urlkit backed manager from cfg.
func NewManager(cfg types.SecureLinkConfigurator) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("securelink: configurator required")
	}
	if cfg.GetSigningKey() == "" {
		return nil, errors.New("securelink: signing key required")
	}
	inner, err := urlkit.NewManagerFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Manager{
		inner:    inner,
		queryKey: queryKeyOrDefault(cfg.GetQueryKey()),
		asQuery:  cfg.GetAsQuery(),
	}, nil
}

// WrapManager wraps an existing go-urlkit manager. Tokens are read from the
// default "token" query key.
func WrapManager(inner urlkit.Manager) *Manager {
	if inner == nil {
		return nil
	}
	return &Manager{inner: inner, queryKey: defaultQueryKey, asQuery: true}
}

var _ types.SecureLinkManager = (*Manager)(nil)

// Generate signs payloads into a link for route.
func (m *Manager) Generate(route string, payloads ...types.SecureLinkPayload) (string, error) {
	if m == nil || m.inner == nil {
		return "", ErrNotConfigured
	}
	return m.inner.Generate(route, toPayloads(payloads)...)
}

// Validate checks a token and returns its claims.
func (m *Manager) Validate(token string) (map[string]any, error) {
	if m == nil || m.inner == nil {
		return nil, ErrNotConfigured
	}
	return m.inner.Validate(strings.TrimSpace(token))
}

// GetAndValidate reads the token through fn, usually a request query lookup.
func (m *Manager) GetAndValidate(fn func(string) string) (types.SecureLinkPayload, error) {
	if m == nil || m.inner == nil {
		return nil, ErrNotConfigured
	}
	payload, err := m.inner.GetAndValidate(fn)
	if err != nil {
		return nil, err
	}
	return types.SecureLinkPayload(payload), nil
}

// GetExpiration reports how long a verification link stays valid.
func (m *Manager) GetExpiration() time.Duration {
	if m == nil || m.inner == nil {
		return 0
	}
	return m.inner.GetExpiration()
}

// TokenFromLink pulls the signed token out of a link produced by Generate.
// Query links carry it under the configured key, path links as the last
// segment.
func (m *Manager) TokenFromLink(link string) (string, error) {
	if m == nil {
		return "", ErrNotConfigured
	}
	parsed, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", err
	}
	if token := strings.TrimSpace(parsed.Query().Get(queryKeyOrDefault(m.queryKey))); token != "" {
		return token, nil
	}
	if m.asQuery {
		return "", ErrTokenMissing
	}
	segment := path.Base(parsed.Path)
	if segment == "" || segment == "." || segment == "/" {
		return "", ErrTokenMissing
	}
	return segment, nil
}

func queryKeyOrDefault(key string) string {
	if key = strings.TrimSpace(key); key != "" {
		return key
	}
	return defaultQueryKey
}

func toPayloads(payloads []types.SecureLinkPayload) []urlkit.Payload {
	if len(payloads) == 0 {
		return nil
	}
	out := make([]urlkit.Payload, 0, len(payloads))
	for _, payload := range payloads {
		if len(payload) == 0 {
			continue
		}
		out = append(out, urlkit.Payload(payload))
	}
	return out
}
