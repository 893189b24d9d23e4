package command

import (
	"context"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-referrals/activity"
	"github.com/goliatone/go-referrals/pkg/types"
	"github.com/google/uuid"
)

// ActivityLogInput records a follow-up action on a referral outside the
// provisioning run, such as a referrer contacting the person they referred.
type ActivityLogInput struct {
	Actor      types.ActorRef
	Verb       string
	ObjectType string
	ObjectID   string
	UserID     uuid.UUID
	GroupID    uuid.UUID
	Data       map[string]any
}

// Type implements gocommand.Message.
func (ActivityLogInput) Type() string {
	return "command.referral.activity.log"
}

// Validate implements gocommand.Message.
func (input ActivityLogInput) Validate() error {
	if strings.TrimSpace(input.Verb) == "" {
		return ErrActivityVerbRequired
	}
	return nil
}

// ActivityLogCommand appends a record to the referrals channel.
type ActivityLogCommand struct {
	sink  types.ActivitySink
	hooks types.Hooks
	clock types.Clock
}

// ActivityLogConfig wires dependencies for the log command.
type ActivityLogConfig struct {
	Sink  types.ActivitySink
	Hooks types.Hooks
	Clock types.Clock
}

// NewActivityLogCommand constructs the logging command handler.
func NewActivityLogCommand(cfg ActivityLogConfig) *ActivityLogCommand {
	return &ActivityLogCommand{
		sink:  cfg.Sink,
		hooks: cfg.Hooks,
		clock: safeClock(cfg.Clock),
	}
}

var _ gocommand.Commander[ActivityLogInput] = (*ActivityLogCommand)(nil)

// Execute validates and persists the record.
func (c *ActivityLogCommand) Execute(ctx context.Context, input ActivityLogInput) error {
	if c.sink == nil {
		return types.ErrMissingActivitySink
	}
	if err := input.Validate(); err != nil {
		return err
	}
	record := activity.BuildRecord(input.Actor, input.Verb, input.ObjectType, input.ObjectID, input.Data,
		activity.WithUser(input.UserID),
		activity.WithGroup(input.GroupID))
	record.OccurredAt = now(c.clock)
	if err := c.sink.Log(ctx, record); err != nil {
		return err
	}
	emitActivityHook(ctx, c.hooks, record)
	return nil
}
