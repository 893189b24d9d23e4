package activity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LogEntry is a row of referral_activity. GroupID is set for records about a
// group-scoped referral or membership.
type LogEntry struct {
	bun.BaseModel `bun:"table:referral_activity"`

	ID         uuid.UUID      `bun:",pk,type:uuid"`
	UserID     uuid.UUID      `bun:"user_id,type:uuid,nullzero"`
	ActorID    uuid.UUID      `bun:"actor_id,type:uuid,nullzero"`
	GroupID    uuid.UUID      `bun:"group_id,type:uuid,nullzero"`
	Verb       string         `bun:"verb"`
	ObjectType string         `bun:"object_type"`
	ObjectID   string         `bun:"object_id"`
	Channel    string         `bun:"channel"`
	Data       map[string]any `bun:"data,type:jsonb"`
	CreatedAt  time.Time      `bun:"created_at"`
}
