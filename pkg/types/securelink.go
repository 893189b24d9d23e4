package types

import "time"

// Keys carried in verification link payloads.
const (
	LinkKeyAction      = "action"
	LinkKeyJTI         = "jti"
	LinkKeySource      = "source"
	LinkKeyUserID      = "user_id"
	LinkKeyEmail       = "email"
	LinkKeyRedirectURL = "redirect_url"
	LinkKeyIssuedAt    = "issued_at"
	LinkKeyExpiresAt   = "expires_at"
)

// SecureLinkManager signs and checks the verification links mailed to
// referred people. adapter/securelink backs it with go-urlkit.
type SecureLinkManager interface {
	Generate(route string, payloads ...SecureLinkPayload) (string, error)
	Validate(token string) (map[string]any, error)
	GetAndValidate(fn func(string) string) (SecureLinkPayload, error)
	GetExpiration() time.Duration
}

// SecureLinkPayload is the claim set signed into a link.
type SecureLinkPayload map[string]any

// SecureLinkConfigurator supplies signing and routing settings.
type SecureLinkConfigurator interface {
	GetSigningKey() string
	GetExpiration() time.Duration
	GetBaseURL() string
	GetQueryKey() string
	GetRoutes() map[string]string
	GetAsQuery() bool
}
