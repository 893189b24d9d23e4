package profile

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the users row that extends an identity.
type Record struct {
	bun.BaseModel `bun:"table:users"`

	ID                 uuid.UUID  `bun:"id,pk,type:uuid"`
	Name               string     `bun:"name"`
	ChurchID           *uuid.UUID `bun:"church_id,type:uuid,nullzero"`
	ServiceID          *uuid.UUID `bun:"service_id,type:uuid,nullzero"`
	OnboardingComplete bool       `bun:"onboarding_complete"`
	Newcomer           bool       `bun:"newcomer"`
	Roles              []string   `bun:"roles,type:jsonb"`
	CreatedAt          time.Time  `bun:"created_at"`
	UpdatedAt          time.Time  `bun:"updated_at"`
}
