package command

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-referrals/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type provisionFixture struct {
	directory   *memDirectory
	profiles    *memProfiles
	groups      *memGroups
	referrals   *memReferrals
	memberships *memMemberships
	verifier    *recordingVerifier
	sink        *recordingActivitySink
	gate        *stubFeatureGate
	events      []types.ReferralEvent
}

func newProvisionFixture() *provisionFixture {
	return &provisionFixture{
		directory:   newMemDirectory(),
		profiles:    newMemProfiles(),
		groups:      newMemGroups(),
		referrals:   &memReferrals{},
		memberships: newMemMemberships(),
		verifier:    &recordingVerifier{},
		sink:        &recordingActivitySink{},
		gate:        &stubFeatureGate{disabled: map[string]bool{}},
	}
}

func (f *provisionFixture) command(mutators ...func(*ReferralProvisionCommandConfig)) *ReferralProvisionCommand {
	cfg := ReferralProvisionCommandConfig{
		Directory:               f.directory,
		Profiles:                f.profiles,
		Groups:                  f.groups,
		Referrals:               f.referrals,
		Memberships:             f.memberships,
		Verification:            f.verifier,
		VerificationRedirectURL: "app://verified",
		SecretHasher:            func() (string, error) { return "hashed", nil },
		FeatureGate:             f.gate,
		Activity:                f.sink,
		Hooks: types.Hooks{
			AfterReferral: func(_ context.Context, event types.ReferralEvent) {
				f.events = append(f.events, event)
			},
		},
		Clock: fixedClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
	}
	for _, mutate := range mutators {
		mutate(&cfg)
	}
	return NewReferralProvisionCommand(cfg)
}

func (f *provisionFixture) provision(t *testing.T, input ReferralProvisionInput) (ReferralProvisionResult, error) {
	t.Helper()
	result := ReferralProvisionResult{}
	input.Result = &result
	err := f.command().Execute(context.Background(), input)
	return result, err
}

func TestReferralProvision_CreatesEverything(t *testing.T) {
	f := newProvisionFixture()
	church := uuid.New()
	service := uuid.New()
	group := f.groups.add(types.Group{Name: "Young adults", ChurchID: &church, ServiceID: &service})
	referrer := uuid.New()

	result, err := f.provision(t, ReferralProvisionInput{
		Email:      " New.Person@Example.com ",
		Phone:      "(555) 123-4567",
		FirstName:  "New",
		LastName:   "Person",
		Note:       "met at the picnic",
		ReferrerID: referrer,
		GroupID:    group.ID,
	})

	require.NoError(t, err)
	require.True(t, result.OK)
	require.False(t, result.ReusedExistingUser)
	require.True(t, result.ReferralCreated)
	require.True(t, result.MembershipCreated)
	require.Empty(t, result.Warnings)
	require.NotEqual(t, uuid.Nil, result.UserID)

	require.Len(t, f.directory.created, 1)
	created := f.directory.created[0]
	require.Equal(t, "new.person@example.com", created.Email)
	require.Equal(t, "+5551234567", created.Phone)
	require.Equal(t, "hashed", created.PasswordHash)
	require.False(t, created.EmailConfirmed)
	require.Equal(t, "New Person", created.Metadata["name"])
	require.Equal(t, true, created.Metadata["referred"])
	require.Equal(t, "+5551234567", created.Metadata["phone"])
	require.Equal(t, referrer.String(), created.Metadata["referrer_id"])

	profile := f.profiles.rows[result.UserID]
	require.NotNil(t, profile)
	require.Equal(t, "New Person", profile.Name)
	require.True(t, profile.Newcomer)
	require.False(t, profile.OnboardingComplete)
	require.Equal(t, []string{types.DefaultProfileRole}, profile.Roles)
	require.Equal(t, church, *profile.ChurchID)
	require.Equal(t, service, *profile.ServiceID)

	require.Len(t, f.referrals.rows, 1)
	referral := f.referrals.rows[0]
	require.Equal(t, *result.ReferralID, referral.ID)
	require.Equal(t, result.UserID, referral.ReferredUserID)
	require.Equal(t, referrer, *referral.ReferrerID)
	require.Equal(t, group.ID, *referral.GroupID)
	require.Equal(t, church, *referral.ChurchID)
	require.Equal(t, "met at the picnic", referral.Note)

	require.Len(t, f.verifier.inputs, 1)
	require.Equal(t, result.UserID, f.verifier.inputs[0].UserID)
	require.Equal(t, "new.person@example.com", f.verifier.inputs[0].Email)
	require.Equal(t, "app://verified", f.verifier.inputs[0].RedirectURL)

	require.Equal(t, []string{
		"referral.identity.created",
		"referral.created",
		"referral.membership.created",
	}, f.sink.verbs())
	require.Len(t, f.events, 1)
	require.Equal(t, result.UserID, f.events[0].UserID)
	require.True(t, f.events[0].MembershipCreated)
}

func TestReferralProvision_SecondCallReusesIdentity(t *testing.T) {
	f := newProvisionFixture()

	first, err := f.provision(t, ReferralProvisionInput{Email: "same@example.com"})
	require.NoError(t, err)
	require.False(t, first.ReusedExistingUser)

	second, err := f.provision(t, ReferralProvisionInput{Email: "SAME@example.com"})
	require.NoError(t, err)
	require.True(t, second.ReusedExistingUser)
	require.Equal(t, first.UserID, second.UserID)
	require.Len(t, f.directory.created, 1)
	require.Len(t, f.verifier.inputs, 1, "verification is only sent for new identities")
	require.Len(t, f.profiles.rows, 1)
}

func TestReferralProvision_SamePhoneDifferentEmailCreatesNewIdentity(t *testing.T) {
	f := newProvisionFixture()

	first, err := f.provision(t, ReferralProvisionInput{Email: "a@x.com", Phone: "+15551234567"})
	require.NoError(t, err)

	second, err := f.provision(t, ReferralProvisionInput{Email: "b@x.com", Phone: "+15551234567"})
	require.NoError(t, err)
	require.False(t, second.ReusedExistingUser)
	require.NotEqual(t, first.UserID, second.UserID)
	require.Len(t, f.directory.created, 2)
}

func TestReferralProvision_GroupChurchBackfillsNewProfile(t *testing.T) {
	f := newProvisionFixture()
	church := uuid.New()
	group := f.groups.add(types.Group{Name: "Alpha", ChurchID: &church})
	referrer := uuid.New()
	f.profiles.rows[referrer] = &types.Profile{ID: referrer, Name: "Referrer"}

	result, err := f.provision(t, ReferralProvisionInput{
		Email:      "backfill@example.com",
		ReferrerID: referrer,
		GroupID:    group.ID,
	})

	require.NoError(t, err)
	require.True(t, result.OK)
	profile := f.profiles.rows[result.UserID]
	require.NotNil(t, profile.ChurchID)
	require.Equal(t, church, *profile.ChurchID)
	require.NotContains(t, result.Warnings, WarningChurchUndetermined)
}

func TestReferralProvision_NeverOverwritesExistingAffiliation(t *testing.T) {
	f := newProvisionFixture()
	existingChurch := uuid.New()
	groupChurch := uuid.New()
	groupService := uuid.New()
	group := f.groups.add(types.Group{Name: "Beta", ChurchID: &groupChurch, ServiceID: &groupService})
	identity := f.directory.add(types.Identity{Email: "member@example.com"})
	f.profiles.rows[identity.ID] = &types.Profile{ID: identity.ID, Name: "Member", ChurchID: &existingChurch}

	result, err := f.provision(t, ReferralProvisionInput{
		Email:     "member@example.com",
		FirstName: "Someone",
		LastName:  "Else",
		GroupID:   group.ID,
	})

	require.NoError(t, err)
	require.True(t, result.ReusedExistingUser)
	profile := f.profiles.rows[identity.ID]
	require.Equal(t, existingChurch, *profile.ChurchID)
	require.Equal(t, groupService, *profile.ServiceID, "empty service is backfilled from the group")
	require.Equal(t, "Member", profile.Name)

	require.Len(t, f.profiles.patches, 1)
	require.Nil(t, f.profiles.patches[0].ChurchID)
	require.Nil(t, f.profiles.patches[0].Name)
	require.Equal(t, existingChurch, *f.referrals.rows[0].ChurchID)
}

func TestReferralProvision_CompleteProfileIsNotPatched(t *testing.T) {
	f := newProvisionFixture()
	church := uuid.New()
	service := uuid.New()
	identity := f.directory.add(types.Identity{Email: "done@example.com"})
	f.profiles.rows[identity.ID] = &types.Profile{ID: identity.ID, Name: "Done", ChurchID: &church, ServiceID: &service}

	result, err := f.provision(t, ReferralProvisionInput{Email: "done@example.com", ReferrerID: uuid.New()})

	require.NoError(t, err)
	require.True(t, result.OK)
	require.Empty(t, f.profiles.patches)
	require.Empty(t, result.Warnings)
}

func TestReferralProvision_ReferrerAffiliationFallback(t *testing.T) {
	f := newProvisionFixture()
	church := uuid.New()
	service := uuid.New()
	referrer := uuid.New()
	f.profiles.rows[referrer] = &types.Profile{ID: referrer, ChurchID: &church, ServiceID: &service}

	result, err := f.provision(t, ReferralProvisionInput{Email: "friend@example.com", ReferrerID: referrer})

	require.NoError(t, err)
	profile := f.profiles.rows[result.UserID]
	require.Equal(t, church, *profile.ChurchID)
	require.Equal(t, service, *profile.ServiceID)
	require.Equal(t, church, *f.referrals.rows[0].ChurchID)
	require.False(t, result.MembershipCreated)
	require.Empty(t, f.memberships.all())
}

func TestReferralProvision_ReferrerLookupFailureWarns(t *testing.T) {
	f := newProvisionFixture()
	referrer := uuid.New()
	f.profiles.getErrs[referrer] = errors.New("replica down")

	result, err := f.provision(t, ReferralProvisionInput{Email: "friend@example.com", ReferrerID: referrer})

	require.NoError(t, err)
	require.True(t, result.OK)
	require.True(t, result.ReferralCreated)
	require.Contains(t, result.Warnings, "unable to load referrer profile: replica down")
	require.Contains(t, result.Warnings, WarningChurchUndetermined)
}

func TestReferralProvision_NoChurchWarns(t *testing.T) {
	f := newProvisionFixture()

	result, err := f.provision(t, ReferralProvisionInput{Email: "lonely@example.com"})

	require.NoError(t, err)
	require.True(t, result.OK)
	require.Equal(t, []string{WarningChurchUndetermined}, result.Warnings)
	require.True(t, result.ReferralCreated)
	require.Nil(t, f.referrals.rows[0].ChurchID)
}

func TestReferralProvision_MembershipOnlyWithGroup(t *testing.T) {
	f := newProvisionFixture()
	church := uuid.New()
	group := f.groups.add(types.Group{Name: "Gamma", ChurchID: &church})

	withGroup, err := f.provision(t, ReferralProvisionInput{Email: "grouped@example.com", GroupID: group.ID})
	require.NoError(t, err)
	require.True(t, withGroup.MembershipCreated)

	memberships := f.memberships.all()
	require.Len(t, memberships, 1)
	membership := memberships[0]
	require.Equal(t, types.MembershipStatusPending, membership.Status)
	require.Equal(t, types.DefaultMembershipRole, membership.Role)
	require.Equal(t, types.DefaultJourneyStatus, membership.JourneyStatus)
	require.Equal(t, *withGroup.ReferralID, *membership.ReferralID)
	require.Equal(t, group.ID, membership.GroupID)
	require.Equal(t, withGroup.UserID, membership.UserID)
	require.Equal(t, membership.ID, *withGroup.MembershipID)

	withoutGroup, err := f.provision(t, ReferralProvisionInput{Email: "solo@example.com"})
	require.NoError(t, err)
	require.False(t, withoutGroup.MembershipCreated)
	require.Nil(t, withoutGroup.MembershipID)
	require.Len(t, f.memberships.all(), 1)
}

func TestReferralProvision_ProfileInsertFailureCompensates(t *testing.T) {
	f := newProvisionFixture()
	f.profiles.createErr = errors.New("insert users: constraint violation")

	result, err := f.provision(t, ReferralProvisionInput{Email: "rollback@example.com"})

	require.Error(t, err)
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	require.Equal(t, goerrors.CategoryInternal, richErr.Category)
	require.Equal(t, "insert users: constraint violation", richErr.Message)
	require.Equal(t, StepProfile, richErr.Metadata["step"])

	require.False(t, result.OK)
	require.Equal(t, "insert users: constraint violation", result.Error)
	require.Equal(t, StepProfile, result.FailedStep)
	require.Equal(t, uuid.Nil, result.UserID)
	require.False(t, result.ReferralCreated)

	require.Len(t, f.directory.deleted, 1)
	found, lookupErr := f.directory.GetByEmail(context.Background(), "rollback@example.com")
	require.NoError(t, lookupErr)
	require.Nil(t, found)
	require.Empty(t, f.referrals.rows)
	require.Empty(t, f.verifier.inputs)
	require.Empty(t, f.events)
	require.Contains(t, f.sink.verbs(), "referral.identity.compensated")
}

func TestReferralProvision_ProfileReadFailureKeepsCreatedIdentity(t *testing.T) {
	f := newProvisionFixture()
	f.profiles.getErr = errors.New("select users: connection reset")

	result, err := f.provision(t, ReferralProvisionInput{Email: "keep@example.com"})

	require.Error(t, err)
	require.False(t, result.OK)
	require.Equal(t, StepProfileLookup, result.FailedStep)
	require.Equal(t, "select users: connection reset", result.Error)
	require.NotEqual(t, uuid.Nil, result.UserID)

	require.Len(t, f.directory.created, 1)
	require.Empty(t, f.directory.deleted)
	found, lookupErr := f.directory.GetByEmail(context.Background(), "keep@example.com")
	require.NoError(t, lookupErr)
	require.NotNil(t, found)
	require.NotContains(t, f.sink.verbs(), "referral.identity.compensated")
	require.Empty(t, f.profiles.rows)
}

func TestReferralProvision_ProfileInsertFailureKeepsReusedIdentity(t *testing.T) {
	f := newProvisionFixture()
	f.directory.add(types.Identity{Email: "orphan@example.com"})
	f.profiles.createErr = errors.New("insert users: timeout")

	result, err := f.provision(t, ReferralProvisionInput{Email: "orphan@example.com"})

	require.Error(t, err)
	require.False(t, result.OK)
	require.Empty(t, f.directory.deleted)
}

func TestReferralProvision_MembershipFailureDoesNotMaskReferral(t *testing.T) {
	f := newProvisionFixture()
	church := uuid.New()
	group := f.groups.add(types.Group{Name: "Delta", ChurchID: &church})
	f.memberships.createErr = errors.New("insert group_memberships: deadlock")

	result, err := f.provision(t, ReferralProvisionInput{Email: "partial@example.com", GroupID: group.ID})

	require.NoError(t, err)
	require.True(t, result.OK)
	require.True(t, result.ReferralCreated)
	require.False(t, result.MembershipCreated)
	require.Equal(t, []string{"failed to create group membership: insert group_memberships: deadlock"}, result.Warnings)
}

func TestReferralProvision_ReferralFailureSkipsMembership(t *testing.T) {
	f := newProvisionFixture()
	church := uuid.New()
	group := f.groups.add(types.Group{Name: "Epsilon", ChurchID: &church})
	f.referrals.err = errors.New("insert referrals: unavailable")

	result, err := f.provision(t, ReferralProvisionInput{Email: "noref@example.com", GroupID: group.ID})

	require.NoError(t, err)
	require.True(t, result.OK)
	require.False(t, result.ReferralCreated)
	require.Nil(t, result.ReferralID)
	require.False(t, result.MembershipCreated)
	require.Empty(t, f.memberships.all())
	require.Equal(t, []string{"failed to record referral: insert referrals: unavailable"}, result.Warnings)
}

func TestReferralProvision_PatchFailureWarns(t *testing.T) {
	f := newProvisionFixture()
	church := uuid.New()
	group := f.groups.add(types.Group{Name: "Zeta", ChurchID: &church})
	identity := f.directory.add(types.Identity{Email: "patch@example.com"})
	f.profiles.rows[identity.ID] = &types.Profile{ID: identity.ID}
	f.profiles.patchErr = errors.New("update users: locked")

	result, err := f.provision(t, ReferralProvisionInput{Email: "patch@example.com", FirstName: "Pat", GroupID: group.ID})

	require.NoError(t, err)
	require.True(t, result.OK)
	require.True(t, result.ReferralCreated)
	require.True(t, result.MembershipCreated)
	require.Equal(t, []string{"failed to update existing profile: update users: locked"}, result.Warnings)
}

func TestReferralProvision_RecoversFromCreateRace(t *testing.T) {
	f := newProvisionFixture()
	winner := types.Identity{ID: uuid.New(), Email: "race@example.com"}
	f.directory.raceWinner = &winner

	result, err := f.provision(t, ReferralProvisionInput{Email: "race@example.com"})

	require.NoError(t, err)
	require.True(t, result.OK)
	require.True(t, result.ReusedExistingUser)
	require.Equal(t, winner.ID, result.UserID)
	require.Empty(t, f.verifier.inputs)
	require.NotNil(t, f.profiles.rows[winner.ID])
}

func TestReferralProvision_UnresolvableAccountIsFatal(t *testing.T) {
	f := newProvisionFixture()
	f.directory.createErr = types.ErrIdentityAlreadyRegistered

	result, err := f.provision(t, ReferralProvisionInput{Email: "ghost@example.com"})

	require.ErrorIs(t, err, ErrReferredAccountUnresolved)
	require.False(t, result.OK)
	require.Equal(t, "unable to determine referred user account", result.Error)
	require.Equal(t, StepIdentity, result.FailedStep)
}

func TestReferralProvision_EmailRequired(t *testing.T) {
	f := newProvisionFixture()

	result, err := f.provision(t, ReferralProvisionInput{Email: "   ", Phone: "+15550001111"})

	require.ErrorIs(t, err, ErrReferralEmailRequired)
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	require.Equal(t, goerrors.CategoryValidation, richErr.Category)
	require.Equal(t, "Email is required", result.Error)
	require.Empty(t, f.directory.created)
}

func TestReferralProvision_MissingGroupIsFatalBeforeIdentity(t *testing.T) {
	f := newProvisionFixture()

	result, err := f.provision(t, ReferralProvisionInput{Email: "lost@example.com", GroupID: uuid.New()})

	require.ErrorIs(t, err, types.ErrGroupNotFound)
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	require.Equal(t, goerrors.CategoryNotFound, richErr.Category)
	require.False(t, result.OK)
	require.Empty(t, f.directory.created)
}

func TestReferralProvision_FeatureGateDisabled(t *testing.T) {
	f := newProvisionFixture()
	f.gate.disabled[FeatureReferralsProvision] = true

	result, err := f.provision(t, ReferralProvisionInput{Email: "gated@example.com"})

	require.ErrorIs(t, err, ErrProvisionDisabled)
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	require.Equal(t, goerrors.CategoryAuthz, richErr.Category)
	require.False(t, result.OK)
	require.Empty(t, f.directory.created)
	require.Equal(t, []string{FeatureReferralsProvision}, f.gate.keys)
}

func TestReferralProvision_MembershipGateDisabledWarns(t *testing.T) {
	f := newProvisionFixture()
	f.gate.disabled[FeatureReferralsMembership] = true
	church := uuid.New()
	group := f.groups.add(types.Group{Name: "Eta", ChurchID: &church})

	result, err := f.provision(t, ReferralProvisionInput{Email: "nogroup@example.com", GroupID: group.ID})

	require.NoError(t, err)
	require.True(t, result.ReferralCreated)
	require.False(t, result.MembershipCreated)
	require.Equal(t, []string{WarningMembershipDisabled}, result.Warnings)
	require.Empty(t, f.memberships.all())
}

func TestReferralProvision_DedupePendingMembership(t *testing.T) {
	f := newProvisionFixture()
	church := uuid.New()
	group := f.groups.add(types.Group{Name: "Theta", ChurchID: &church})
	cmd := f.command(func(cfg *ReferralProvisionCommandConfig) {
		cfg.DedupePendingMemberships = true
	})

	first := ReferralProvisionResult{}
	require.NoError(t, cmd.Execute(context.Background(), ReferralProvisionInput{
		Email: "twice@example.com", GroupID: group.ID, Result: &first,
	}))
	require.True(t, first.MembershipCreated)

	second := ReferralProvisionResult{}
	require.NoError(t, cmd.Execute(context.Background(), ReferralProvisionInput{
		Email: "twice@example.com", GroupID: group.ID, Result: &second,
	}))
	require.True(t, second.ReferralCreated)
	require.False(t, second.MembershipCreated)
	require.Equal(t, []string{WarningMembershipPending}, second.Warnings)
	require.Len(t, f.memberships.all(), 1)
	require.Len(t, f.referrals.rows, 2)
}

func TestReferralProvision_CancelAfterMembershipStillSucceeds(t *testing.T) {
	f := newProvisionFixture()
	church := uuid.New()
	group := f.groups.add(types.Group{Name: "Zeta", ChurchID: &church})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.memberships.afterCreate = cancel

	result := ReferralProvisionResult{}
	err := f.command().Execute(ctx, ReferralProvisionInput{
		Email:   "late@example.com",
		GroupID: group.ID,
		Result:  &result,
	})

	require.NoError(t, err)
	require.True(t, result.OK)
	require.Empty(t, result.FailedStep)
	require.True(t, result.ReferralCreated)
	require.True(t, result.MembershipCreated)
	require.Len(t, f.memberships.all(), 1)
	require.Empty(t, f.directory.deleted)
}

func TestReferralProvision_VerificationFailureIsSwallowed(t *testing.T) {
	f := newProvisionFixture()
	f.verifier.err = errors.New("smtp down")

	result, err := f.provision(t, ReferralProvisionInput{Email: "quiet@example.com", RedirectURL: "app://custom"})

	require.NoError(t, err)
	require.True(t, result.OK)
	require.Equal(t, []string{WarningChurchUndetermined}, result.Warnings)
	require.Len(t, f.verifier.inputs, 1)
	require.Equal(t, "app://custom", f.verifier.inputs[0].RedirectURL)
}

func TestReferralProvision_DisplayNameFallsBackToIdentityMetadata(t *testing.T) {
	f := newProvisionFixture()
	identity := f.directory.add(types.Identity{
		Email:    "meta@example.com",
		Metadata: map[string]any{"name": "Meta Name"},
	})

	result, err := f.provision(t, ReferralProvisionInput{Email: "meta@example.com", LastName: "Ignored"})

	require.NoError(t, err)
	require.Equal(t, identity.ID, result.UserID)
	require.Equal(t, "Meta Name", f.profiles.rows[identity.ID].Name)
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "Ada Lovelace", displayName(" Ada ", "Lovelace"))
	require.Equal(t, "Ada", displayName("Ada", ""))
	require.Equal(t, "", displayName("", "Lovelace"))
	require.Equal(t, "", displayName("", ""))
}
