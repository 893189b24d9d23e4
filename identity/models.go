package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the identities row.
type Record struct {
	bun.BaseModel `bun:"table:identities"`

	ID               uuid.UUID      `bun:"id,pk,type:uuid"`
	Email            string         `bun:"email,notnull"`
	Phone            string         `bun:"phone,nullzero"`
	PasswordHash     string         `bun:"password_hash"`
	Metadata         map[string]any `bun:"metadata,type:jsonb"`
	EmailConfirmedAt *time.Time     `bun:"email_confirmed_at,nullzero"`
	CreatedAt        time.Time      `bun:"created_at"`
	UpdatedAt        time.Time      `bun:"updated_at"`
}
