package notify

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the notification_outbox row.
type Record struct {
	bun.BaseModel `bun:"table:notification_outbox"`

	ID        uuid.UUID      `bun:"id,pk,type:uuid"`
	Channel   string         `bun:"channel,notnull"`
	Template  string         `bun:"template,notnull"`
	Recipient string         `bun:"recipient,notnull"`
	Payload   map[string]any `bun:"payload,type:jsonb"`
	Status    string         `bun:"status,notnull"`
	CreatedAt time.Time      `bun:"created_at"`
	SentAt    *time.Time     `bun:"sent_at,nullzero"`
}
