package types

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultProfileRole is assigned to profiles created by the referral workflow.
const DefaultProfileRole = "user"

// Profile is the application-level extension of an Identity. ID equals the
// identity id.
type Profile struct {
	ID                 uuid.UUID
	Name               string
	ChurchID           *uuid.UUID
	ServiceID          *uuid.UUID
	OnboardingComplete bool
	Newcomer           bool
	Roles              []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ProfilePatch carries the fields to set on an existing profile. Nil fields
// are left untouched.
type ProfilePatch struct {
	Name      *string
	ChurchID  *uuid.UUID
	ServiceID *uuid.UUID
}

// Empty reports whether the patch would change nothing.
func (p ProfilePatch) Empty() bool {
	return p.Name == nil && p.ChurchID == nil && p.ServiceID == nil
}

// ProfileRepository persists profile rows. GetProfile returns (nil, nil) when
// no row exists for the id.
type ProfileRepository interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error)
	CreateProfile(ctx context.Context, profile Profile) (*Profile, error)
	PatchProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*Profile, error)
}

// Group is a community group belonging to a church and optionally a service.
type Group struct {
	ID        uuid.UUID
	Name      string
	ChurchID  *uuid.UUID
	ServiceID *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GroupRepository reads groups. GetGroup returns ErrGroupNotFound on miss.
type GroupRepository interface {
	GetGroup(ctx context.Context, id uuid.UUID) (*Group, error)
}

// Referral is the audit row recording that a referrer vouched for a user.
type Referral struct {
	ID             uuid.UUID
	GroupID        *uuid.UUID
	ReferrerID     *uuid.UUID
	ReferredUserID uuid.UUID
	ChurchID       *uuid.UUID
	Note           string
	CreatedAt      time.Time
}

// ReferralFilter narrows referral listings.
type ReferralFilter struct {
	ReferrerID     uuid.UUID
	ReferredUserID uuid.UUID
	GroupID        uuid.UUID
	Pagination     Pagination
}

// ReferralPage is a page of referrals, newest first.
type ReferralPage struct {
	Referrals  []Referral
	Total      int
	NextOffset int
	HasMore    bool
}

// ReferralRepository persists referral rows.
type ReferralRepository interface {
	CreateReferral(ctx context.Context, referral Referral) (*Referral, error)
	ListReferrals(ctx context.Context, filter ReferralFilter) (ReferralPage, error)
}

// MembershipStatus tracks the approval state of a group membership.
type MembershipStatus string

const (
	MembershipStatusPending  MembershipStatus = "pending"
	MembershipStatusApproved MembershipStatus = "approved"
	MembershipStatusDeclined MembershipStatus = "declined"
)

// DefaultMembershipRole and DefaultJourneyStatus seed referral memberships.
const (
	DefaultMembershipRole = "member"
	DefaultJourneyStatus  = 1
)

// Membership links a user to a group.
type Membership struct {
	ID            uuid.UUID
	GroupID       uuid.UUID
	UserID        uuid.UUID
	Role          string
	Status        MembershipStatus
	ReferralID    *uuid.UUID
	JourneyStatus int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MembershipFilter narrows membership listings.
type MembershipFilter struct {
	GroupID    uuid.UUID
	UserID     uuid.UUID
	Statuses   []MembershipStatus
	Pagination Pagination
}

// MembershipPage is a page of memberships.
type MembershipPage struct {
	Memberships []Membership
	Total       int
	NextOffset  int
	HasMore     bool
}

// MembershipRepository persists group memberships. FindPendingMembership
// returns (nil, nil) when none exists.
type MembershipRepository interface {
	CreateMembership(ctx context.Context, membership Membership) (*Membership, error)
	GetMembership(ctx context.Context, id uuid.UUID) (*Membership, error)
	FindPendingMembership(ctx context.Context, groupID, userID uuid.UUID) (*Membership, error)
	ListMemberships(ctx context.Context, filter MembershipFilter) (MembershipPage, error)
	UpdateMembershipStatus(ctx context.Context, id uuid.UUID, from, to MembershipStatus) (*Membership, error)
}
