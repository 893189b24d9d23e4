package command

import (
	"errors"

	"github.com/goliatone/go-referrals/pkg/types"
)

var (
	// ErrReferralEmailRequired is returned when a provisioning request lacks an email.
	ErrReferralEmailRequired = errors.New("go-referrals: referral requires email")
	// ErrProvisionDisabled indicates referral provisioning is disabled via feature gate.
	ErrProvisionDisabled = errors.New("go-referrals: referral provisioning disabled")
	// ErrReferredAccountUnresolved occurs when creation reported a conflict but no
	// identity could be found afterwards.
	ErrReferredAccountUnresolved = errors.New("unable to determine referred user account")
	// ErrUserIDRequired indicates the command lacks a user id.
	ErrUserIDRequired = types.ErrUserIDRequired
	// ErrEmailRequired indicates the verification command lacks a recipient.
	ErrEmailRequired = types.ErrEmailRequired
	// ErrMembershipIDRequired indicates a decision lacks the membership id.
	ErrMembershipIDRequired = errors.New("go-referrals: membership id required")
	// ErrDecisionRequired indicates a decision lacks a target status.
	ErrDecisionRequired = errors.New("go-referrals: membership decision required")
	// ErrActivityVerbRequired indicates an activity log entry is missing a verb.
	ErrActivityVerbRequired = errors.New("go-referrals: activity verb required")
)
