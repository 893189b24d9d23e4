package service

import (
	"context"

	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-referrals/affiliation"
	"github.com/goliatone/go-referrals/command"
	"github.com/goliatone/go-referrals/identity"
	"github.com/goliatone/go-referrals/pkg/types"
	"github.com/goliatone/go-referrals/query"
)

// Service is the entry point for go-referrals. It wires repositories, hooks,
// and command/query facades supplied by the host application.
type Service struct {
	cfg          Config
	resolver     *identity.Resolver
	activityRepo types.ActivityRepository
	commands     Commands
	queries      Queries
}

// Commands exposes the service command handlers. Verification commands are
// nil when no securelink manager, token store or notifier was configured.
type Commands struct {
	ReferralProvision  *command.ReferralProvisionCommand
	VerificationResend *command.VerificationResendCommand
	VerificationVerify *command.VerificationConfirmCommand
	MembershipDecision *command.MembershipDecisionCommand
	LogActivity        *command.ActivityLogCommand
}

// Queries exposes read-model helpers.
type Queries struct {
	Referrals      *query.ReferralListQuery
	Memberships    *query.MembershipListQuery
	ActivityFeed   *query.ActivityFeedQuery
	ActivityStats  *query.ActivityStatsQuery
	IdentityLookup *query.IdentityLookupQuery
}

// Config captures all required dependencies so callers can provide their own
// instances (bun.DB backed repositories, caches, hooks, etc.).
type Config struct {
	IdentityDirectory    types.IdentityDirectory
	ProfileRepository    types.ProfileRepository
	GroupRepository      types.GroupRepository
	ReferralRepository   types.ReferralRepository
	MembershipRepository types.MembershipRepository
	TokenRepository      types.VerificationTokenRepository
	SecureLinks          types.SecureLinkManager
	Notifier             types.Notifier
	ActivitySink         types.ActivitySink
	ActivityRepository   types.ActivityRepository
	FeatureGate          featuregate.FeatureGate
	TransitionPolicy     types.TransitionPolicy
	Hooks                types.Hooks
	Clock                types.Clock
	IDGenerator          types.IDGenerator
	Logger               types.Logger

	// VerificationRedirectURL is embedded in verification links when the
	// request does not carry its own.
	VerificationRedirectURL string
	// DedupePendingMemberships skips creating a second pending membership for
	// the same group and user.
	DedupePendingMemberships bool
	// PhoneScanLimit bounds the fallback scan for directories without a phone
	// index. Zero uses the resolver default.
	PhoneScanLimit int
	// SecretHasher overrides the temporary password hash used for new
	// identities.
	SecretHasher func() (string, error)
}

// New constructs a Service from the supplied configuration.
func New(cfg Config) *Service {
	norm := normalizeConfig(cfg)
	actRepo := norm.ActivityRepository
	if actRepo == nil {
		if sinkRepo, ok := norm.ActivitySink.(types.ActivityRepository); ok {
			actRepo = sinkRepo
		}
	}
	var resolver *identity.Resolver
	if norm.IdentityDirectory != nil {
		resolver = identity.NewResolver(identity.ResolverConfig{
			Directory: norm.IdentityDirectory,
			MaxScan:   norm.PhoneScanLimit,
			Logger:    norm.Logger,
		})
	}

	s := &Service{
		cfg:          norm,
		resolver:     resolver,
		activityRepo: actRepo,
	}
	s.commands = s.buildCommands()
	s.queries = s.buildQueries()
	return s
}

func normalizeConfig(cfg Config) Config {
	if cfg.Clock == nil {
		cfg.Clock = types.SystemClock{}
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = types.UUIDGenerator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = types.NopLogger{}
	}
	if cfg.TransitionPolicy == nil {
		cfg.TransitionPolicy = types.DefaultTransitionPolicy()
	}
	return cfg
}

// Commands returns the command facade.
func (s *Service) Commands() Commands {
	return s.commands
}

// Queries returns the query facade.
func (s *Service) Queries() Queries {
	return s.queries
}

// ActivitySink returns the configured sink so transports can emit activity
// records for auxiliary workflows.
func (s *Service) ActivitySink() types.ActivitySink {
	if s == nil {
		return nil
	}
	return s.cfg.ActivitySink
}

// Ready reports whether the provisioning workflow has its required
// collaborators.
func (s *Service) Ready() bool {
	return s.HealthCheck(context.Background()) == nil
}

// HealthCheck surfaces the first missing dependency.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s == nil {
		return types.ErrServiceNotReady
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	switch {
	case s.cfg.IdentityDirectory == nil:
		return types.ErrMissingIdentityDirectory
	case s.cfg.ProfileRepository == nil:
		return types.ErrMissingProfileRepository
	case s.cfg.GroupRepository == nil:
		return types.ErrMissingGroupRepository
	case s.cfg.ReferralRepository == nil:
		return types.ErrMissingReferralRepository
	case s.cfg.MembershipRepository == nil:
		return types.ErrMissingMembershipRepository
	case s.cfg.ActivitySink == nil:
		return types.ErrMissingActivitySink
	}
	return nil
}

func (s *Service) verificationEnabled() bool {
	return s.cfg.SecureLinks != nil && s.cfg.TokenRepository != nil && s.cfg.Notifier != nil
}

func (s *Service) buildCommands() Commands {
	cmds := Commands{
		MembershipDecision: command.NewMembershipDecisionCommand(command.MembershipDecisionCommandConfig{
			Memberships: s.cfg.MembershipRepository,
			Policy:      s.cfg.TransitionPolicy,
			Clock:       s.cfg.Clock,
			Logger:      s.cfg.Logger,
			Hooks:       s.cfg.Hooks,
			Activity:    s.cfg.ActivitySink,
		}),
		LogActivity: command.NewActivityLogCommand(command.ActivityLogConfig{
			Sink:  s.cfg.ActivitySink,
			Hooks: s.cfg.Hooks,
			Clock: s.cfg.Clock,
		}),
	}
	if s.verificationEnabled() {
		cmds.VerificationResend = command.NewVerificationResendCommand(command.VerificationResendCommandConfig{
			SecureLinks:        s.cfg.SecureLinks,
			Tokens:             s.cfg.TokenRepository,
			Notifier:           s.cfg.Notifier,
			DefaultRedirectURL: s.cfg.VerificationRedirectURL,
			Activity:           s.cfg.ActivitySink,
			Hooks:              s.cfg.Hooks,
			Clock:              s.cfg.Clock,
			IDGen:              s.cfg.IDGenerator,
			Logger:             s.cfg.Logger,
		})
		confirmer, _ := s.cfg.IdentityDirectory.(types.EmailConfirmer)
		cmds.VerificationVerify = command.NewVerificationConfirmCommand(command.VerificationConfirmCommandConfig{
			SecureLinks: s.cfg.SecureLinks,
			Tokens:      s.cfg.TokenRepository,
			Confirmer:   confirmer,
			Activity:    s.cfg.ActivitySink,
			Hooks:       s.cfg.Hooks,
			Clock:       s.cfg.Clock,
		})
	}

	provisionCfg := command.ReferralProvisionCommandConfig{
		Directory:                s.cfg.IdentityDirectory,
		Profiles:                 s.cfg.ProfileRepository,
		Groups:                   s.cfg.GroupRepository,
		Referrals:                s.cfg.ReferralRepository,
		Memberships:              s.cfg.MembershipRepository,
		Affiliations:             affiliation.NewResolver(),
		VerificationRedirectURL:  s.cfg.VerificationRedirectURL,
		DedupePendingMemberships: s.cfg.DedupePendingMemberships,
		SecretHasher:             s.cfg.SecretHasher,
		FeatureGate:              s.cfg.FeatureGate,
		Activity:                 s.cfg.ActivitySink,
		Hooks:                    s.cfg.Hooks,
		Clock:                    s.cfg.Clock,
		Logger:                   s.cfg.Logger,
	}
	if s.resolver != nil {
		provisionCfg.Resolver = s.resolver
	}
	if cmds.VerificationResend != nil {
		provisionCfg.Verification = cmds.VerificationResend
	}
	cmds.ReferralProvision = command.NewReferralProvisionCommand(provisionCfg)
	return cmds
}

func (s *Service) buildQueries() Queries {
	q := Queries{
		Referrals:    query.NewReferralListQuery(s.cfg.ReferralRepository),
		Memberships:  query.NewMembershipListQuery(s.cfg.MembershipRepository),
		ActivityFeed: query.NewActivityFeedQuery(s.activityRepo),
	}
	if stats, ok := s.activityRepo.(types.ActivityStatsRepository); ok {
		q.ActivityStats = query.NewActivityStatsQuery(stats)
	}
	if s.resolver != nil {
		q.IdentityLookup = query.NewIdentityLookupQuery(s.resolver)
	}
	return q
}
