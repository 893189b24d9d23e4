package command

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	gocommand "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-referrals/activity"
	"github.com/goliatone/go-referrals/affiliation"
	"github.com/goliatone/go-referrals/identity"
	"github.com/goliatone/go-referrals/pkg/types"
	"github.com/google/uuid"
)

// Warning messages surfaced in ReferralProvisionResult.Warnings.
const (
	WarningChurchUndetermined = "unable to determine church for referral"
	WarningMembershipDisabled = "group membership creation is disabled"
	WarningMembershipPending  = "a pending membership for this group already exists"
)

// Saga step names.
const (
	StepValidate = "validate"
	StepGate     = "gate"
	StepGroup    = "group"
	StepIdentity = "identity"
	// StepProfileLookup reads the existing and referrer profiles. A failure
	// is fatal but leaves a freshly created identity in place.
	StepProfileLookup = "profile_lookup"
	StepProfile       = "profile"
	StepReferral      = "referral"
	StepMembership    = "membership"
	StepVerification  = "verification"
)

// IdentityResolver finds existing identities by email, or by phone when the
// email is blank.
type IdentityResolver interface {
	Resolve(ctx context.Context, email, phone string) (*types.Identity, error)
}

// ReferralProvisionInput carries a single referral request. Nil ids mean the
// optional field was not supplied.
type ReferralProvisionInput struct {
	Email       string
	Phone       string
	FirstName   string
	LastName    string
	Note        string
	ReferrerID  uuid.UUID
	GroupID     uuid.UUID
	RedirectURL string
	Actor       types.ActorRef
	Result      *ReferralProvisionResult
}

// Type implements gocommand.Message.
func (ReferralProvisionInput) Type() string {
	return "command.referral.provision"
}

// Validate implements gocommand.Message.
func (input ReferralProvisionInput) Validate() error {
	if strings.TrimSpace(input.Email) == "" {
		return ErrReferralEmailRequired
	}
	return nil
}

// ReferralProvisionResult is the outcome of a provisioning run. It is filled
// for partial successes as well as fatal failures.
type ReferralProvisionResult struct {
	OK                 bool
	UserID             uuid.UUID
	ReferralID         *uuid.UUID
	MembershipID       *uuid.UUID
	ReferralCreated    bool
	MembershipCreated  bool
	ReusedExistingUser bool
	Warnings           []string
	Error              string
	FailedStep         string
}

// ReferralProvisionCommandConfig wires the provisioning saga.
type ReferralProvisionCommandConfig struct {
	Directory    types.IdentityDirectory
	Resolver     IdentityResolver
	Profiles     types.ProfileRepository
	Groups       types.GroupRepository
	Referrals    types.ReferralRepository
	Memberships  types.MembershipRepository
	Affiliations *affiliation.Resolver
	// Verification sends the sign-up verification email for new identities.
	Verification gocommand.Commander[VerificationResendInput]
	// VerificationRedirectURL is the deep link embedded in verification emails.
	VerificationRedirectURL string
	// DedupePendingMemberships skips membership creation when the user already
	// has a pending membership for the group.
	DedupePendingMemberships bool
	// SecretHasher produces the password hash stored for new identities.
	SecretHasher func() (string, error)
	FeatureGate  featuregate.FeatureGate
	Activity     types.ActivitySink
	Hooks        types.Hooks
	Clock        types.Clock
	Logger       types.Logger
}

// ReferralProvisionCommand provisions identity, profile, referral and pending
// membership for a referred person.
type ReferralProvisionCommand struct {
	directory    types.IdentityDirectory
	resolver     IdentityResolver
	profiles     types.ProfileRepository
	groups       types.GroupRepository
	referrals    types.ReferralRepository
	memberships  types.MembershipRepository
	affiliations *affiliation.Resolver
	verification gocommand.Commander[VerificationResendInput]
	redirectURL  string
	dedupe       bool
	hasher       func() (string, error)
	gate         featuregate.FeatureGate
	sink         types.ActivitySink
	hooks        types.Hooks
	clock        types.Clock
	logger       types.Logger
	saga         *saga[provisionState]
}

// NewReferralProvisionCommand constructs the provisioning handler.
func NewReferralProvisionCommand(cfg ReferralProvisionCommandConfig) *ReferralProvisionCommand {
	resolver := cfg.Resolver
	if resolver == nil && cfg.Directory != nil {
		resolver = identity.NewResolver(identity.ResolverConfig{
			Directory: cfg.Directory,
			Logger:    cfg.Logger,
		})
	}
	affiliations := cfg.Affiliations
	if affiliations == nil {
		affiliations = affiliation.NewResolver()
	}
	hasher := cfg.SecretHasher
	if hasher == nil {
		hasher = identity.NewTemporaryPasswordHash
	}
	cmd := &ReferralProvisionCommand{
		directory:    cfg.Directory,
		resolver:     resolver,
		profiles:     cfg.Profiles,
		groups:       cfg.Groups,
		referrals:    cfg.Referrals,
		memberships:  cfg.Memberships,
		affiliations: affiliations,
		verification: cfg.Verification,
		redirectURL:  strings.TrimSpace(cfg.VerificationRedirectURL),
		dedupe:       cfg.DedupePendingMemberships,
		hasher:       hasher,
		gate:         cfg.FeatureGate,
		sink:         cfg.Activity,
		hooks:        cfg.Hooks,
		clock:        safeClock(cfg.Clock),
		logger:       safeLogger(cfg.Logger),
	}
	cmd.saga = newSaga[provisionState]("referral provision", cmd.logger).
		step(StepValidate, cmd.validate).
		step(StepGate, cmd.checkGate).
		step(StepGroup, cmd.loadGroup).
		step(StepIdentity, cmd.resolveIdentity).
		step(StepProfileLookup, cmd.loadProfiles).
		step(StepProfile, cmd.reconcileProfile).
		softStep(StepReferral, cmd.createReferral).
		softStep(StepMembership, cmd.createMembership).
		softStep(StepVerification, cmd.sendVerification).
		compensate(StepIdentity, cmd.deleteCreatedIdentity, StepProfile)
	return cmd
}

var _ gocommand.Commander[ReferralProvisionInput] = (*ReferralProvisionCommand)(nil)

type provisionState struct {
	input       ReferralProvisionInput
	email       string
	phone       string
	name        string
	identity    *types.Identity
	created     bool
	reused      bool
	group       *types.Group
	existing    *types.Profile
	profile     *types.Profile
	affiliation affiliation.Affiliation
	referral    *types.Referral
	membership  *types.Membership
}

// Execute runs the provisioning saga. A non-nil error is always a
// *goerrors.Error carrying the failed step in its metadata; Result is filled
// either way.
func (c *ReferralProvisionCommand) Execute(ctx context.Context, input ReferralProvisionInput) error {
	state := &provisionState{
		input: input,
		email: identity.NormalizeEmail(input.Email),
		phone: identity.NormalizePhone(input.Phone),
		name:  displayName(input.FirstName, input.LastName),
	}
	outcome := c.saga.run(ctx, state)

	result := ReferralProvisionResult{
		OK:                 outcome.OK(),
		ReusedExistingUser: state.reused,
		Warnings:           outcome.Warnings,
	}
	if state.identity != nil && !slices.Contains(outcome.Compensated, StepIdentity) {
		result.UserID = state.identity.ID
	}
	if state.referral != nil {
		result.ReferralID = idPtr(state.referral.ID)
		result.ReferralCreated = true
	}
	if state.membership != nil {
		result.MembershipID = idPtr(state.membership.ID)
		result.MembershipCreated = true
	}

	var err error
	if !outcome.OK() {
		err = provisionFailure(outcome.FatalStep, outcome.Err)
		result.FailedStep = outcome.FatalStep
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			result.Error = richErr.Message
		} else {
			result.Error = err.Error()
		}
	}
	if input.Result != nil {
		*input.Result = result
	}

	if outcome.OK() {
		emitReferralHook(ctx, c.hooks, types.ReferralEvent{
			ReferralID:         idValue(result.ReferralID),
			UserID:             result.UserID,
			ReferrerID:         input.ReferrerID,
			GroupID:            input.GroupID,
			ReusedExistingUser: result.ReusedExistingUser,
			MembershipCreated:  result.MembershipCreated,
			Warnings:           append([]string(nil), result.Warnings...),
			OccurredAt:         now(c.clock),
		})
	}
	return err
}

func (c *ReferralProvisionCommand) validate(_ context.Context, state *provisionState) StepResult {
	if err := state.input.Validate(); err != nil {
		return stepFatal(err)
	}
	if state.email == "" {
		return stepFatal(ErrReferralEmailRequired)
	}
	switch {
	case c.directory == nil || c.resolver == nil:
		return stepFatal(types.ErrMissingIdentityDirectory)
	case c.profiles == nil:
		return stepFatal(types.ErrMissingProfileRepository)
	case c.referrals == nil:
		return stepFatal(types.ErrMissingReferralRepository)
	}
	return stepOK()
}

func (c *ReferralProvisionCommand) checkGate(ctx context.Context, state *provisionState) StepResult {
	enabled, err := featureEnabled(ctx, c.gate, FeatureReferralsProvision, c.gateSubject(state))
	if err != nil {
		return stepFatal(err)
	}
	if !enabled {
		return stepFatal(ErrProvisionDisabled)
	}
	return stepOK()
}

func (c *ReferralProvisionCommand) gateSubject(state *provisionState) uuid.UUID {
	if state.input.ReferrerID != uuid.Nil {
		return state.input.ReferrerID
	}
	return state.input.Actor.ID
}

func (c *ReferralProvisionCommand) loadGroup(ctx context.Context, state *provisionState) StepResult {
	if state.input.GroupID == uuid.Nil {
		return stepSkip()
	}
	if c.groups == nil {
		return stepFatal(types.ErrMissingGroupRepository)
	}
	group, err := c.groups.GetGroup(ctx, state.input.GroupID)
	if err != nil {
		return stepFatal(err)
	}
	if group == nil {
		return stepFatal(types.ErrGroupNotFound)
	}
	state.group = group
	return stepOK()
}

func (c *ReferralProvisionCommand) resolveIdentity(ctx context.Context, state *provisionState) StepResult {
	existing, err := c.resolver.Resolve(ctx, state.email, state.phone)
	if err != nil {
		return stepFatal(err)
	}
	if existing != nil && existing.ID != uuid.Nil {
		state.identity = existing
		state.reused = true
		return stepOK()
	}

	hash, err := c.hasher()
	if err != nil {
		return stepFatal(err)
	}
	created, err := c.directory.CreateIdentity(ctx, types.NewIdentity{
		Email:        state.email,
		Phone:        state.phone,
		PasswordHash: hash,
		Metadata:     c.identityMetadata(state),
	})
	if err != nil {
		if !errors.Is(err, types.ErrIdentityAlreadyRegistered) {
			return stepFatal(err)
		}
		c.logger.Debug("referral identity already registered, resolving again", "email", state.email)
		recovered, rerr := c.resolver.Resolve(ctx, state.email, state.phone)
		if rerr != nil {
			return stepFatal(rerr)
		}
		if recovered == nil || recovered.ID == uuid.Nil {
			return stepFatal(ErrReferredAccountUnresolved)
		}
		state.identity = recovered
		state.reused = true
		return stepOK()
	}
	if created == nil || created.ID == uuid.Nil {
		return stepFatal(ErrReferredAccountUnresolved)
	}
	state.identity = created
	state.created = true

	c.record(ctx, state, activity.VerbIdentityCreated, activity.ObjectIdentity, created.ID.String(), map[string]any{
		"email": created.Email,
		"phone": created.Phone,
	})
	return stepOK()
}

func (c *ReferralProvisionCommand) identityMetadata(state *provisionState) map[string]any {
	meta := map[string]any{
		"name":     state.name,
		"referred": true,
	}
	if state.phone != "" {
		meta["phone"] = state.phone
	}
	if state.input.ReferrerID != uuid.Nil {
		meta["referrer_id"] = state.input.ReferrerID.String()
	}
	return meta
}

func (c *ReferralProvisionCommand) deleteCreatedIdentity(ctx context.Context, state *provisionState) error {
	if !state.created || state.identity == nil {
		return nil
	}
	if err := c.directory.DeleteIdentity(ctx, state.identity.ID); err != nil {
		return err
	}
	c.record(ctx, state, activity.VerbIdentityCompensated, activity.ObjectIdentity, state.identity.ID.String(), map[string]any{
		"reason": "profile_insert_failed",
	})
	return nil
}

// loadProfiles reads the referred person's profile and resolves the church
// and service the referral inherits.
func (c *ReferralProvisionCommand) loadProfiles(ctx context.Context, state *provisionState) StepResult {
	existing, err := c.profiles.GetProfile(ctx, state.identity.ID)
	if err != nil {
		return stepFatal(err)
	}
	state.existing = existing

	var warnings []string
	candidates := make([]affiliation.Candidate, 0, 3)
	if existing != nil {
		candidates = append(candidates, affiliation.Candidate{
			Source:    affiliation.SourceProfile,
			ChurchID:  existing.ChurchID,
			ServiceID: existing.ServiceID,
		})
	}
	if state.group != nil {
		candidates = append(candidates, affiliation.Candidate{
			Source:    affiliation.SourceGroup,
			ChurchID:  state.group.ChurchID,
			ServiceID: state.group.ServiceID,
		})
	}
	if !affiliationComplete(candidates) && state.input.ReferrerID != uuid.Nil {
		referrer, err := c.profiles.GetProfile(ctx, state.input.ReferrerID)
		switch {
		case err != nil:
			c.logger.Error("referrer profile lookup failed", err, "referrer_id", state.input.ReferrerID.String())
			warnings = append(warnings, fmt.Sprintf("unable to load referrer profile: %v", err))
		case referrer != nil:
			candidates = append(candidates, affiliation.Candidate{
				Source:    affiliation.SourceReferrer,
				ChurchID:  referrer.ChurchID,
				ServiceID: referrer.ServiceID,
			})
		}
	}
	aff, err := c.affiliations.Resolve(candidates...)
	if err != nil {
		return stepFatal(err)
	}
	state.affiliation = aff
	return stepOKWithWarnings(warnings...)
}

// reconcileProfile inserts the profile or backfills the existing one. An
// insert failure is the only trigger for identity compensation.
func (c *ReferralProvisionCommand) reconcileProfile(ctx context.Context, state *provisionState) StepResult {
	userID := state.identity.ID
	existing := state.existing
	aff := state.affiliation
	var warnings []string

	name := state.name
	if name == "" {
		name = strings.TrimSpace(state.identity.MetadataString("name"))
	}

	if existing == nil {
		created, err := c.profiles.CreateProfile(ctx, types.Profile{
			ID:                 userID,
			Name:               name,
			ChurchID:           aff.ChurchID,
			ServiceID:          aff.ServiceID,
			OnboardingComplete: false,
			Newcomer:           true,
			Roles:              []string{types.DefaultProfileRole},
		})
		if err != nil {
			return stepFatal(err)
		}
		state.profile = created
	} else {
		state.profile = existing
		patch := backfillPatch(existing, name, aff)
		if !patch.Empty() {
			updated, err := c.profiles.PatchProfile(ctx, userID, patch)
			if err != nil {
				c.logger.Error("referral profile patch failed", err, "user_id", userID.String())
				warnings = append(warnings, fmt.Sprintf("failed to update existing profile: %v", err))
			} else if updated != nil {
				state.profile = updated
			}
		}
	}

	if !aff.HasChurch() {
		warnings = append(warnings, WarningChurchUndetermined)
	}
	return stepOKWithWarnings(warnings...)
}

// backfillPatch only sets fields that are empty on the existing profile.
func backfillPatch(existing *types.Profile, name string, aff affiliation.Affiliation) types.ProfilePatch {
	var patch types.ProfilePatch
	if strings.TrimSpace(existing.Name) == "" && name != "" {
		patch.Name = &name
	}
	if existing.ChurchID == nil && aff.ChurchID != nil {
		patch.ChurchID = aff.ChurchID
	}
	if existing.ServiceID == nil && aff.ServiceID != nil {
		patch.ServiceID = aff.ServiceID
	}
	return patch
}

func affiliationComplete(candidates []affiliation.Candidate) bool {
	church, service := false, false
	for _, candidate := range candidates {
		if candidate.ChurchID != nil && *candidate.ChurchID != uuid.Nil {
			church = true
		}
		if candidate.ServiceID != nil && *candidate.ServiceID != uuid.Nil {
			service = true
		}
	}
	return church && service
}

func (c *ReferralProvisionCommand) createReferral(ctx context.Context, state *provisionState) StepResult {
	created, err := c.referrals.CreateReferral(ctx, types.Referral{
		GroupID:        idPtr(state.input.GroupID),
		ReferrerID:     idPtr(state.input.ReferrerID),
		ReferredUserID: state.identity.ID,
		ChurchID:       state.affiliation.ChurchID,
		Note:           strings.TrimSpace(state.input.Note),
	})
	if err != nil {
		c.logger.Error("referral insert failed", err, "user_id", state.identity.ID.String())
		return stepWarn(fmt.Sprintf("failed to record referral: %v", err), err)
	}
	if created == nil || created.ID == uuid.Nil {
		return stepWarn("failed to record referral: no referral id returned", nil)
	}
	state.referral = created

	c.record(ctx, state, activity.VerbReferralCreated, activity.ObjectReferral, created.ID.String(), map[string]any{
		"group_id":    idString(created.GroupID),
		"referrer_id": idString(created.ReferrerID),
		"church_id":   idString(created.ChurchID),
		"church_from": string(state.affiliation.ChurchSource),
	})
	return stepOK()
}

func (c *ReferralProvisionCommand) createMembership(ctx context.Context, state *provisionState) StepResult {
	if state.input.GroupID == uuid.Nil || state.referral == nil {
		return stepSkip()
	}
	if c.memberships == nil {
		return stepWarn("failed to create group membership: membership repository unavailable", types.ErrMissingMembershipRepository)
	}
	enabled, err := featureEnabled(ctx, c.gate, FeatureReferralsMembership, c.gateSubject(state))
	if err != nil {
		return stepWarn(fmt.Sprintf("failed to create group membership: %v", err), err)
	}
	if !enabled {
		return stepWarn(WarningMembershipDisabled, nil)
	}
	if c.dedupe {
		pending, err := c.memberships.FindPendingMembership(ctx, state.input.GroupID, state.identity.ID)
		if err != nil {
			return stepWarn(fmt.Sprintf("failed to create group membership: %v", err), err)
		}
		if pending != nil {
			return stepWarn(WarningMembershipPending, nil)
		}
	}

	created, err := c.memberships.CreateMembership(ctx, types.Membership{
		GroupID:       state.input.GroupID,
		UserID:        state.identity.ID,
		Role:          types.DefaultMembershipRole,
		Status:        types.MembershipStatusPending,
		ReferralID:    idPtr(state.referral.ID),
		JourneyStatus: types.DefaultJourneyStatus,
	})
	if err != nil {
		c.logger.Error("referral membership insert failed", err, "group_id", state.input.GroupID.String())
		return stepWarn(fmt.Sprintf("failed to create group membership: %v", err), err)
	}
	state.membership = created

	c.record(ctx, state, activity.VerbMembershipCreated, activity.ObjectMembership, created.ID.String(), map[string]any{
		"group_id":    created.GroupID.String(),
		"referral_id": state.referral.ID.String(),
		"status":      string(created.Status),
	})
	return stepOK()
}

// sendVerification never warns; delivery problems are logged at debug level.
func (c *ReferralProvisionCommand) sendVerification(ctx context.Context, state *provisionState) StepResult {
	if !state.created || c.verification == nil {
		return stepSkip()
	}
	redirect := strings.TrimSpace(state.input.RedirectURL)
	if redirect == "" {
		redirect = c.redirectURL
	}
	err := c.verification.Execute(ctx, VerificationResendInput{
		UserID:      state.identity.ID,
		Email:       state.email,
		RedirectURL: redirect,
		Actor:       state.input.Actor,
	})
	if err != nil {
		c.logger.Debug("referral verification email failed", "user_id", state.identity.ID.String(), "error", err.Error())
		return stepSkip()
	}
	return stepOK()
}

func (c *ReferralProvisionCommand) record(ctx context.Context, state *provisionState, verb, objectType, objectID string, meta map[string]any) {
	actor := state.input.Actor
	if actor.ID == uuid.Nil && state.input.ReferrerID != uuid.Nil {
		actor = types.ActorRef{ID: state.input.ReferrerID, Type: "referrer"}
	}
	record := activity.BuildRecord(actor, verb, objectType, objectID, meta,
		activity.WithUser(state.identity.ID),
		activity.WithGroup(state.input.GroupID))
	record.OccurredAt = now(c.clock)
	logActivity(ctx, c.sink, record)
	emitActivityHook(ctx, c.hooks, record)
}

// provisionFailure converts a fatal step error into a categorized
// *goerrors.Error whose Message is safe to return to callers.
func provisionFailure(step string, err error) error {
	if err == nil {
		return nil
	}
	meta := map[string]any{"step": step}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.WithMetadata(meta)
	}
	switch {
	case errors.Is(err, ErrReferralEmailRequired):
		return goerrors.Wrap(err, goerrors.CategoryValidation, "Email is required").
			WithCode(goerrors.CodeBadRequest).WithMetadata(meta)
	case errors.Is(err, ErrProvisionDisabled):
		return goerrors.Wrap(err, goerrors.CategoryAuthz, "referral provisioning is disabled").
			WithCode(goerrors.CodeForbidden).WithMetadata(meta)
	case errors.Is(err, types.ErrGroupNotFound):
		return goerrors.Wrap(err, goerrors.CategoryNotFound, "group not found").
			WithCode(goerrors.CodeNotFound).WithMetadata(meta)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return goerrors.Wrap(err, goerrors.CategoryInternal, "request cancelled").
			WithCode(goerrors.CodeInternal).WithMetadata(meta)
	default:
		return goerrors.Wrap(err, goerrors.CategoryInternal, err.Error()).
			WithCode(goerrors.CodeInternal).WithMetadata(meta)
	}
}
