package groups

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the groups row.
type Record struct {
	bun.BaseModel `bun:"table:groups"`

	ID        uuid.UUID  `bun:"id,pk,type:uuid"`
	Name      string     `bun:"name"`
	ChurchID  *uuid.UUID `bun:"church_id,type:uuid,nullzero"`
	ServiceID *uuid.UUID `bun:"service_id,type:uuid,nullzero"`
	CreatedAt time.Time  `bun:"created_at"`
	UpdatedAt time.Time  `bun:"updated_at"`
}
