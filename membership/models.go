package membership

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the group_memberships row.
type Record struct {
	bun.BaseModel `bun:"table:group_memberships"`

	ID            uuid.UUID  `bun:"id,pk,type:uuid"`
	GroupID       uuid.UUID  `bun:"group_id,notnull,type:uuid"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid"`
	Role          string     `bun:"role,notnull"`
	Status        string     `bun:"status,notnull"`
	ReferralID    *uuid.UUID `bun:"referral_id,type:uuid,nullzero"`
	JourneyStatus int        `bun:"journey_status"`
	CreatedAt     time.Time  `bun:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at"`
}
