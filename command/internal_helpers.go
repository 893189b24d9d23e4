package command

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-referrals/pkg/types"
	"github.com/google/uuid"
)

func safeClock(clock types.Clock) types.Clock {
	if clock != nil {
		return clock
	}
	return types.SystemClock{}
}

func safeLogger(logger types.Logger) types.Logger {
	if logger != nil {
		return logger
	}
	return types.NopLogger{}
}

func safeIDGen(gen types.IDGenerator) types.IDGenerator {
	if gen != nil {
		return gen
	}
	return types.UUIDGenerator{}
}

func now(clock types.Clock) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock.Now()
}

func logActivity(ctx context.Context, sink types.ActivitySink, record types.ActivityRecord) {
	if sink == nil {
		return
	}
	_ = sink.Log(ctx, record)
}

func emitActivityHook(ctx context.Context, hooks types.Hooks, record types.ActivityRecord) {
	if hooks.AfterActivity == nil {
		return
	}
	hooks.AfterActivity(ctx, record)
}

func emitReferralHook(ctx context.Context, hooks types.Hooks, event types.ReferralEvent) {
	if hooks.AfterReferral == nil {
		return
	}
	hooks.AfterReferral(ctx, event)
}

func emitMembershipHook(ctx context.Context, hooks types.Hooks, event types.MembershipEvent) {
	if hooks.AfterMembershipChange == nil {
		return
	}
	hooks.AfterMembershipChange(ctx, event)
}

func idPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	out := id
	return &out
}

func idValue(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

func idString(id *uuid.UUID) string {
	if id == nil || *id == uuid.Nil {
		return ""
	}
	return id.String()
}

func displayName(first, last string) string {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	default:
		return ""
	}
}
