package command

import (
	"context"
	"errors"
	"strings"
	"time"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-referrals/activity"
	"github.com/goliatone/go-referrals/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

var (
	// ErrTokenRequired indicates a securelink token was missing.
	ErrTokenRequired = errors.New("go-referrals: token required")
	// ErrTokenJTIRequired indicates the token payload lacked a JTI.
	ErrTokenJTIRequired = errors.New("go-referrals: token jti required")
	// ErrTokenNotFound indicates no issued token matches the link.
	ErrTokenNotFound = errors.New("go-referrals: token not found")
	// ErrTokenExpired indicates the token has expired or was superseded.
	ErrTokenExpired = errors.New("go-referrals: token expired")
	// ErrTokenAlreadyUsed indicates the token has already been consumed.
	ErrTokenAlreadyUsed = errors.New("go-referrals: token already used")
	// ErrTokenUserMismatch indicates the link and the stored token disagree on the user.
	ErrTokenUserMismatch = errors.New("go-referrals: token user mismatch")
)

type tokenValidator struct {
	tokens  types.VerificationTokenRepository
	manager types.SecureLinkManager
	clock   types.Clock
}

func (v tokenValidator) validate(ctx context.Context, token string) (types.SecureLinkPayload, *types.VerificationToken, error) {
	if v.manager == nil {
		return nil, nil, types.ErrMissingSecureLinkManager
	}
	if v.tokens == nil {
		return nil, nil, types.ErrMissingTokenRepository
	}
	if strings.TrimSpace(token) == "" {
		return nil, nil, ErrTokenRequired
	}

	payloadMap, err := v.manager.Validate(token)
	if err != nil {
		return nil, nil, err
	}
	payload := types.SecureLinkPayload(payloadMap)
	jti := payloadString(payload, types.LinkKeyJTI)
	if jti == "" {
		return nil, nil, ErrTokenJTIRequired
	}

	record, err := v.tokens.GetTokenByJTI(ctx, types.TokenPurposeSignupVerification, jti)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, ErrTokenNotFound
	}
	if record.Status == types.TokenStatusUsed || !record.UsedAt.IsZero() {
		return nil, nil, ErrTokenAlreadyUsed
	}
	if record.Status == types.TokenStatusExpired {
		return nil, nil, ErrTokenExpired
	}

	expiresAt := record.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = payloadTime(payload, types.LinkKeyExpiresAt)
	}
	if !expiresAt.IsZero() && now(v.clock).After(expiresAt) {
		_ = v.tokens.UpdateTokenStatus(ctx, types.TokenPurposeSignupVerification, jti, types.TokenStatusExpired, time.Time{})
		return nil, nil, ErrTokenExpired
	}

	payloadUserID := payloadUUID(payload, types.LinkKeyUserID)
	if payloadUserID != uuid.Nil && record.UserID != uuid.Nil && payloadUserID != record.UserID {
		return nil, nil, ErrTokenUserMismatch
	}
	payloadEmail := payloadString(payload, types.LinkKeyEmail)
	if payloadEmail != "" && record.Email != "" && !strings.EqualFold(payloadEmail, record.Email) {
		return nil, nil, ErrTokenUserMismatch
	}
	return payload, record, nil
}

// VerificationConfirmInput consumes a verification link token.
type VerificationConfirmInput struct {
	Token  string
	Result *VerificationConfirmResult
}

// Type implements gocommand.Message.
func (VerificationConfirmInput) Type() string {
	return "command.referral.verification.confirm"
}

// Validate implements gocommand.Message.
func (input VerificationConfirmInput) Validate() error {
	if strings.TrimSpace(input.Token) == "" {
		return ErrTokenRequired
	}
	return nil
}

// VerificationConfirmResult exposes the confirmed identity and the redirect
// target carried by the link.
type VerificationConfirmResult struct {
	UserID      uuid.UUID
	Email       string
	RedirectURL string
	ConfirmedAt time.Time
}

// VerificationConfirmCommandConfig wires the confirmation command.
type VerificationConfirmCommandConfig struct {
	SecureLinks types.SecureLinkManager
	Tokens      types.VerificationTokenRepository
	// Confirmer stamps the identity; optional for directories owned elsewhere.
	Confirmer types.EmailConfirmer
	Activity  types.ActivitySink
	Hooks     types.Hooks
	Clock     types.Clock
}

// VerificationConfirmCommand validates a verification token, marks it used
// and confirms the identity's email.
type VerificationConfirmCommand struct {
	validator tokenValidator
	tokens    types.VerificationTokenRepository
	confirmer types.EmailConfirmer
	sink      types.ActivitySink
	hooks     types.Hooks
	clock     types.Clock
}

// NewVerificationConfirmCommand constructs the confirmation handler.
func NewVerificationConfirmCommand(cfg VerificationConfirmCommandConfig) *VerificationConfirmCommand {
	clock := safeClock(cfg.Clock)
	return &VerificationConfirmCommand{
		validator: tokenValidator{tokens: cfg.Tokens, manager: cfg.SecureLinks, clock: clock},
		tokens:    cfg.Tokens,
		confirmer: cfg.Confirmer,
		sink:      cfg.Activity,
		hooks:     cfg.Hooks,
		clock:     clock,
	}
}

var _ gocommand.Commander[VerificationConfirmInput] = (*VerificationConfirmCommand)(nil)

// Execute validates and consumes the token.
func (c *VerificationConfirmCommand) Execute(ctx context.Context, input VerificationConfirmInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	payload, record, err := c.validator.validate(ctx, input.Token)
	if err != nil {
		return err
	}

	usedAt := now(c.clock)
	if err := c.tokens.UpdateTokenStatus(ctx, types.TokenPurposeSignupVerification, record.JTI, types.TokenStatusUsed, usedAt); err != nil {
		if repository.IsSQLExpectedCountViolation(err) {
			return ErrTokenAlreadyUsed
		}
		if repository.IsRecordNotFound(err) {
			return ErrTokenNotFound
		}
		return err
	}

	if c.confirmer != nil {
		if _, err := c.confirmer.ConfirmEmail(ctx, record.UserID); err != nil {
			return err
		}
	}

	entry := activity.BuildRecord(types.ActorRef{ID: record.UserID, Type: "user"},
		activity.VerbVerificationConfirmed, activity.ObjectIdentity, record.UserID.String(),
		map[string]any{"jti": record.JTI},
		activity.WithUser(record.UserID))
	entry.OccurredAt = usedAt
	logActivity(ctx, c.sink, entry)
	emitActivityHook(ctx, c.hooks, entry)

	if input.Result != nil {
		email := payloadString(payload, types.LinkKeyEmail)
		if email == "" {
			email = record.Email
		}
		*input.Result = VerificationConfirmResult{
			UserID:      record.UserID,
			Email:       email,
			RedirectURL: payloadString(payload, types.LinkKeyRedirectURL),
			ConfirmedAt: usedAt,
		}
	}
	return nil
}
