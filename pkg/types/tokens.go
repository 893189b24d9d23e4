package types

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenPurpose tells verification tokens apart in user_tokens.
type TokenPurpose string

// TokenPurposeSignupVerification backs the email sent to newly provisioned
// referred identities.
const TokenPurposeSignupVerification TokenPurpose = "signup_verification"

// TokenStatus is the lifecycle of a verification token. Only issued tokens
// can be consumed; issuing a new token expires the older issued ones.
type TokenStatus string

const (
	TokenStatusIssued  TokenStatus = "issued"
	TokenStatusUsed    TokenStatus = "used"
	TokenStatusExpired TokenStatus = "expired"
)

// VerificationToken is the stored half of a signed verification link. Email
// records the address the link was sent to.
type VerificationToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Purpose   TokenPurpose
	JTI       string
	Email     string
	Status    TokenStatus
	IssuedAt  time.Time
	ExpiresAt time.Time
	UsedAt    time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VerificationTokenRepository persists verification tokens.
type VerificationTokenRepository interface {
	CreateToken(ctx context.Context, token VerificationToken) (*VerificationToken, error)
	GetTokenByJTI(ctx context.Context, purpose TokenPurpose, jti string) (*VerificationToken, error)
	UpdateTokenStatus(ctx context.Context, purpose TokenPurpose, jti string, status TokenStatus, usedAt time.Time) error
}
