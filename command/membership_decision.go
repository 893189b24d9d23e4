package command

import (
	"context"
	"errors"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-referrals/activity"
	"github.com/goliatone/go-referrals/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// ErrMembershipDecisionConflict reports that the membership changed status
// between the read and the conditional update.
var ErrMembershipDecisionConflict = errors.New("go-referrals: membership status changed concurrently")

// MembershipDecisionInput approves or declines a membership.
type MembershipDecisionInput struct {
	MembershipID uuid.UUID
	Target       types.MembershipStatus
	Actor        types.ActorRef
	Reason       string
	Result       *MembershipDecisionResult
}

// Type implements gocommand.Message.
func (MembershipDecisionInput) Type() string {
	return "command.referral.membership.decide"
}

// Validate implements gocommand.Message.
func (input MembershipDecisionInput) Validate() error {
	switch {
	case input.MembershipID == uuid.Nil:
		return ErrMembershipIDRequired
	case strings.TrimSpace(string(input.Target)) == "":
		return ErrDecisionRequired
	default:
		return nil
	}
}

// MembershipDecisionResult carries the updated membership.
type MembershipDecisionResult struct {
	Membership *types.Membership
	FromStatus types.MembershipStatus
}

// MembershipDecisionCommandConfig configures the decision handler.
type MembershipDecisionCommandConfig struct {
	Memberships types.MembershipRepository
	Policy      types.TransitionPolicy
	Clock       types.Clock
	Logger      types.Logger
	Hooks       types.Hooks
	Activity    types.ActivitySink
}

// MembershipDecisionCommand enforces the transition policy and records the
// decision.
type MembershipDecisionCommand struct {
	repo     types.MembershipRepository
	policy   types.TransitionPolicy
	clock    types.Clock
	logger   types.Logger
	hooks    types.Hooks
	activity types.ActivitySink
}

// NewMembershipDecisionCommand wires the decision handler.
func NewMembershipDecisionCommand(cfg MembershipDecisionCommandConfig) *MembershipDecisionCommand {
	policy := cfg.Policy
	if policy == nil {
		policy = types.DefaultTransitionPolicy()
	}
	return &MembershipDecisionCommand{
		repo:     cfg.Memberships,
		policy:   policy,
		clock:    safeClock(cfg.Clock),
		logger:   safeLogger(cfg.Logger),
		hooks:    cfg.Hooks,
		activity: cfg.Activity,
	}
}

var _ gocommand.Commander[MembershipDecisionInput] = (*MembershipDecisionCommand)(nil)

// Execute applies the decision with a conditional update on the current status.
func (c *MembershipDecisionCommand) Execute(ctx context.Context, input MembershipDecisionInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	if c.repo == nil {
		return types.ErrMissingMembershipRepository
	}
	current, err := c.repo.GetMembership(ctx, input.MembershipID)
	if err != nil {
		return err
	}
	if current == nil {
		return types.ErrMembershipNotFound
	}
	if err := c.policy.Validate(current.Status, input.Target); err != nil {
		return err
	}
	updated, err := c.repo.UpdateMembershipStatus(ctx, current.ID, current.Status, input.Target)
	if err != nil {
		if repository.IsSQLExpectedCountViolation(err) {
			return ErrMembershipDecisionConflict
		}
		return err
	}

	eventTime := now(c.clock)
	record := activity.BuildRecord(input.Actor, activity.VerbMembershipDecided, activity.ObjectMembership, updated.ID.String(),
		map[string]any{
			"from_status": string(current.Status),
			"to_status":   string(updated.Status),
			"reason":      strings.TrimSpace(input.Reason),
		},
		activity.WithUser(updated.UserID),
		activity.WithGroup(updated.GroupID))
	record.OccurredAt = eventTime
	logActivity(ctx, c.activity, record)
	emitActivityHook(ctx, c.hooks, record)

	emitMembershipHook(ctx, c.hooks, types.MembershipEvent{
		MembershipID: updated.ID,
		GroupID:      updated.GroupID,
		UserID:       updated.UserID,
		ActorID:      input.Actor.ID,
		FromStatus:   current.Status,
		ToStatus:     updated.Status,
		OccurredAt:   eventTime,
	})
	c.logger.Info("membership decided", "membership_id", updated.ID.String(), "status", string(updated.Status))

	if input.Result != nil {
		input.Result.Membership = updated
		input.Result.FromStatus = current.Status
	}
	return nil
}
