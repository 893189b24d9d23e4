package referral

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the referrals row.
type Record struct {
	bun.BaseModel `bun:"table:referrals"`

	ID             uuid.UUID  `bun:"id,pk,type:uuid"`
	GroupID        *uuid.UUID `bun:"group_id,type:uuid,nullzero"`
	ReferrerID     *uuid.UUID `bun:"referrer_id,type:uuid,nullzero"`
	ReferredUserID uuid.UUID  `bun:"referred_user_id,notnull,type:uuid"`
	ChurchID       *uuid.UUID `bun:"church_id,type:uuid,nullzero"`
	Note           string     `bun:"note,nullzero"`
	CreatedAt      time.Time  `bun:"created_at"`
}
