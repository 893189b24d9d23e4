package types

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Identity is the storage-agnostic representation of an account record owned
// by the identity service. Metadata carries name, phone and referral flags.
type Identity struct {
	ID               uuid.UUID
	Email            string
	Phone            string
	Metadata         map[string]any
	EmailConfirmedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// MetadataString returns the metadata value stored under key when it is a string.
func (i *Identity) MetadataString(key string) string {
	if i == nil || len(i.Metadata) == 0 {
		return ""
	}
	if value, ok := i.Metadata[key].(string); ok {
		return value
	}
	return ""
}

// NewIdentity carries the payload used to create an identity.
type NewIdentity struct {
	Email        string
	Phone        string
	PasswordHash string
	Metadata     map[string]any
	// EmailConfirmed is false for referral provisioning; confirmation happens
	// through the verification link.
	EmailConfirmed bool
}

// IdentityPage is a page of identities returned by ListIdentities.
type IdentityPage struct {
	Identities []Identity
	Total      int
	HasMore    bool
}

// IdentityDirectory abstracts whichever identity service backs the workflow.
// GetByEmail returns (nil, nil) when no identity matches. CreateIdentity must
// report ErrIdentityAlreadyRegistered when the email is taken.
type IdentityDirectory interface {
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	ListIdentities(ctx context.Context, page Pagination) (IdentityPage, error)
	CreateIdentity(ctx context.Context, input NewIdentity) (*Identity, error)
	DeleteIdentity(ctx context.Context, id uuid.UUID) error
}

// PhoneIndex is implemented by directories that can look identities up by a
// normalized phone number without scanning.
type PhoneIndex interface {
	FindByPhone(ctx context.Context, phone string) (*Identity, error)
}

// EmailConfirmer is implemented by directories that record email confirmation.
type EmailConfirmer interface {
	ConfirmEmail(ctx context.Context, id uuid.UUID) (*Identity, error)
}
