package command

import (
	"context"

	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/google/uuid"
)

const (
	// FeatureReferralsProvision gates the whole provisioning workflow.
	FeatureReferralsProvision = "referrals.provision"
	// FeatureReferralsMembership gates pending membership creation.
	FeatureReferralsMembership = "referrals.membership"
)

func featureEnabled(ctx context.Context, gate featuregate.FeatureGate, key string, userID uuid.UUID) (bool, error) {
	if gate == nil {
		return true, nil
	}
	scopeSet := featureScopeSet(userID)
	if scopeSet == nil {
		return gate.Enabled(ctx, key)
	}
	return gate.Enabled(ctx, key, featuregate.WithScopeSet(*scopeSet))
}

func featureScopeSet(userID uuid.UUID) *featuregate.ScopeSet {
	if userID == uuid.Nil {
		return nil
	}
	return &featuregate.ScopeSet{
		System: true,
		UserID: userID.String(),
	}
}
