package securelink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{BaseURL: "https://app.example.com/", Routes: map[string]string{"other": "/other"}}

	require.Equal(t, "https://app.example.com", cfg.GetBaseURL())
	require.Equal(t, "token", cfg.GetQueryKey())
	require.Equal(t, 72*time.Hour, cfg.GetExpiration())
	routes := cfg.GetRoutes()
	require.Equal(t, "/verify", routes[RouteVerify])
	require.Equal(t, "/other", routes["other"])
	require.NotContains(t, cfg.Routes, RouteVerify)
}

func TestNewManagerRequiresConfig(t *testing.T) {
	_, err := NewManager(nil)
	require.Error(t, err)

	_, err = NewManager(Config{BaseURL: "https://app.example.com"})
	require.EqualError(t, err, "securelink: signing key required")
}

func TestNilManagerIsSafe(t *testing.T) {
	var manager *Manager
	_, err := manager.Generate(RouteVerify)
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = manager.Validate("token")
	require.ErrorIs(t, err, ErrNotConfigured)
	require.Zero(t, manager.GetExpiration())
	require.Nil(t, WrapManager(nil))
}

func TestTokenFromLink(t *testing.T) {
	query := &Manager{queryKey: "t", asQuery: true}
	token, err := query.TokenFromLink("https://app.example.com/verify?t=abc.def.ghi")
	require.NoError(t, err)
	require.Equal(t, "abc.def.ghi", token)

	_, err = query.TokenFromLink("https://app.example.com/verify")
	require.ErrorIs(t, err, ErrTokenMissing)

	segment := &Manager{}
	token, err = segment.TokenFromLink("https://app.example.com/verify/abc.def.ghi")
	require.NoError(t, err)
	require.Equal(t, "abc.def.ghi", token)

	token, err = segment.TokenFromLink("https://app.example.com/verify?token=xyz")
	require.NoError(t, err)
	require.Equal(t, "xyz", token)

	var missing *Manager
	_, err = missing.TokenFromLink("https://app.example.com/verify?token=xyz")
	require.ErrorIs(t, err, ErrNotConfigured)
}
