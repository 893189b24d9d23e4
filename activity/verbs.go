package activity

// ChannelReferrals tags every record written by the referral workflow.
const ChannelReferrals = "referrals"

// Verbs emitted by the referral workflow.
const (
	VerbIdentityCreated       = "referral.identity.created"
	VerbIdentityCompensated   = "referral.identity.compensated"
	VerbReferralCreated       = "referral.created"
	VerbMembershipCreated     = "referral.membership.created"
	VerbMembershipDecided     = "referral.membership.decided"
	VerbVerificationSent      = "referral.verification.sent"
	VerbVerificationConfirmed = "referral.verification.confirmed"
)

// Object types referenced by activity records.
const (
	ObjectIdentity   = "identity"
	ObjectReferral   = "referral"
	ObjectMembership = "membership"
)
