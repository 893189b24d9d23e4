package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-referrals/activity"
	"github.com/goliatone/go-referrals/notify"
	"github.com/goliatone/go-referrals/pkg/types"
	"github.com/google/uuid"
)

// VerificationResendInput requests a sign-up verification email.
type VerificationResendInput struct {
	UserID      uuid.UUID
	Email       string
	RedirectURL string
	Actor       types.ActorRef
	Result      *VerificationResendResult
}

// Type implements gocommand.Message.
func (VerificationResendInput) Type() string {
	return "command.referral.verification.resend"
}

// Validate implements gocommand.Message.
func (input VerificationResendInput) Validate() error {
	switch {
	case input.UserID == uuid.Nil:
		return ErrUserIDRequired
	case strings.TrimSpace(input.Email) == "":
		return ErrEmailRequired
	}
	return nil
}

// VerificationResendResult exposes the issued link for callers and tests.
type VerificationResendResult struct {
	Link       string
	JTI        string
	ExpiresAt  time.Time
	Superseded int64
}

// tokenSuperseder is implemented by token stores that can expire older
// unused tokens when a new one is issued.
type tokenSuperseder interface {
	SupersedeIssued(ctx context.Context, userID uuid.UUID, purpose types.TokenPurpose) (int64, error)
}

// VerificationResendCommandConfig wires the verification email command.
type VerificationResendCommandConfig struct {
	SecureLinks types.SecureLinkManager
	Tokens      types.VerificationTokenRepository
	Notifier    types.Notifier
	// Route is the securelink route key used to build the link.
	Route              string
	DefaultRedirectURL string
	Activity           types.ActivitySink
	Hooks              types.Hooks
	Clock              types.Clock
	IDGen              types.IDGenerator
	Logger             types.Logger
}

// VerificationResendCommand issues a verification token and enqueues the
// signup_verification notification.
type VerificationResendCommand struct {
	links    types.SecureLinkManager
	tokens   types.VerificationTokenRepository
	notifier types.Notifier
	route    string
	redirect string
	sink     types.ActivitySink
	hooks    types.Hooks
	clock    types.Clock
	idGen    types.IDGenerator
	logger   types.Logger
}

// NewVerificationResendCommand constructs the command.
func NewVerificationResendCommand(cfg VerificationResendCommandConfig) *VerificationResendCommand {
	route := strings.TrimSpace(cfg.Route)
	if route == "" {
		route = SecureLinkRouteVerify
	}
	return &VerificationResendCommand{
		links:    cfg.SecureLinks,
		tokens:   cfg.Tokens,
		notifier: cfg.Notifier,
		route:    route,
		redirect: strings.TrimSpace(cfg.DefaultRedirectURL),
		sink:     cfg.Activity,
		hooks:    cfg.Hooks,
		clock:    safeClock(cfg.Clock),
		idGen:    safeIDGen(cfg.IDGen),
		logger:   safeLogger(cfg.Logger),
	}
}

var _ gocommand.Commander[VerificationResendInput] = (*VerificationResendCommand)(nil)

// Execute generates the link, persists the token and hands the message to
// the notifier.
func (c *VerificationResendCommand) Execute(ctx context.Context, input VerificationResendInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	switch {
	case c.links == nil:
		return types.ErrMissingSecureLinkManager
	case c.tokens == nil:
		return types.ErrMissingTokenRepository
	case c.notifier == nil:
		return types.ErrMissingNotifier
	}

	email := strings.TrimSpace(input.Email)
	redirect := strings.TrimSpace(input.RedirectURL)
	if redirect == "" {
		redirect = c.redirect
	}
	jti := c.idGen.UUID().String()
	issuedAt := now(c.clock)
	expiresAt := issuedAt.Add(c.links.GetExpiration())

	payload := buildVerificationPayload(input.UserID, email, redirect, jti, issuedAt, expiresAt)
	link, err := c.links.Generate(c.route, payload)
	if err != nil {
		return fmt.Errorf("go-referrals: generate verification link: %w", err)
	}

	var superseded int64
	if store, ok := c.tokens.(tokenSuperseder); ok {
		superseded, err = store.SupersedeIssued(ctx, input.UserID, types.TokenPurposeSignupVerification)
		if err != nil {
			c.logger.Error("verification token supersede failed", err, "user_id", input.UserID.String())
		}
	}
	if _, err := c.tokens.CreateToken(ctx, types.VerificationToken{
		UserID:    input.UserID,
		Purpose:   types.TokenPurposeSignupVerification,
		JTI:       jti,
		Email:     email,
		Status:    types.TokenStatusIssued,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}); err != nil {
		return err
	}

	notifyPayload := map[string]any{
		"link":       link,
		"user_id":    input.UserID.String(),
		"expires_at": expiresAt.Format(time.RFC3339Nano),
	}
	if redirect != "" {
		notifyPayload["redirect_url"] = redirect
	}
	if err := c.notifier.Notify(ctx, types.Notification{
		Channel:   notify.ChannelEmail,
		Template:  notify.TemplateSignupVerification,
		Recipient: email,
		Payload:   notifyPayload,
	}); err != nil {
		return err
	}

	record := activity.BuildRecord(input.Actor, activity.VerbVerificationSent, activity.ObjectIdentity, input.UserID.String(),
		tokenMetadata(jti, issuedAt, expiresAt, input.Actor),
		activity.WithUser(input.UserID))
	record.OccurredAt = issuedAt
	logActivity(ctx, c.sink, record)
	emitActivityHook(ctx, c.hooks, record)

	if input.Result != nil {
		*input.Result = VerificationResendResult{
			Link:       link,
			JTI:        jti,
			ExpiresAt:  expiresAt,
			Superseded: superseded,
		}
	}
	return nil
}
