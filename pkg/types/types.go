package types

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who or what initiated a workflow (member, admin, system).
type ActorRef struct {
	ID   uuid.UUID
	Type string
}

// Pagination supports list queries powering dashboards.
type Pagination struct {
	Limit  int
	Offset int
}

// NormalizePagination clamps the pagination window to sane bounds.
func NormalizePagination(p Pagination, def, max int) Pagination {
	if p.Limit <= 0 {
		p.Limit = def
	}
	if max > 0 && p.Limit > max {
		p.Limit = max
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ReferralEvent is emitted once a provisioning run completes (ok or not).
type ReferralEvent struct {
	ReferralID         uuid.UUID
	UserID             uuid.UUID
	ReferrerID         uuid.UUID
	GroupID            uuid.UUID
	ReusedExistingUser bool
	MembershipCreated  bool
	Warnings           []string
	OccurredAt         time.Time
}

// MembershipEvent signals a membership status change.
type MembershipEvent struct {
	MembershipID uuid.UUID
	GroupID      uuid.UUID
	UserID       uuid.UUID
	ActorID      uuid.UUID
	FromStatus   MembershipStatus
	ToStatus     MembershipStatus
	OccurredAt   time.Time
}

// Hooks groups optional callbacks invoked after key workflows complete.
type Hooks struct {
	AfterReferral         func(context.Context, ReferralEvent)
	AfterMembershipChange func(context.Context, MembershipEvent)
	AfterActivity         func(context.Context, ActivityRecord)
}

// ActivityRecord describes audit entries emitted by commands.
type ActivityRecord struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	ActorID    uuid.UUID
	GroupID    uuid.UUID
	Verb       string
	ObjectType string
	ObjectID   string
	Channel    string
	Data       map[string]any
	OccurredAt time.Time
}

// ActivitySink is the minimal DI contract for emitting activity.
type ActivitySink interface {
	Log(context.Context, ActivityRecord) error
}

// ActivityRepository serves the activity feed.
type ActivityRepository interface {
	ListActivity(context.Context, ActivityFilter) (ActivityPage, error)
}

// ActivityFilter narrows activity feed queries.
type ActivityFilter struct {
	UserID     uuid.UUID
	ActorID    uuid.UUID
	GroupID    uuid.UUID
	Channel    string
	Verbs      []string
	ObjectType string
	ObjectID   string
	Since      *time.Time
	Pagination Pagination
}

// ActivityPage represents a paginated feed response.
type ActivityPage struct {
	Records    []ActivityRecord
	Total      int
	NextOffset int
	HasMore    bool
}

// ActivityStatsRepository counts activity by verb. It backs the referral
// funnel numbers shown to group admins.
type ActivityStatsRepository interface {
	ActivityStats(context.Context, ActivityStatsFilter) (ActivityStats, error)
}

// ActivityStatsFilter narrows the counted records.
type ActivityStatsFilter struct {
	GroupID uuid.UUID
	ActorID uuid.UUID
	Channel string
	Verbs   []string
	Since   *time.Time
	Until   *time.Time
}

// ActivityStats holds per-verb counts.
type ActivityStats struct {
	ByVerb map[string]int
	Total  int
}

// Clock abstracts time retrieval for deterministic testing.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts UUID creation.
type IDGenerator interface {
	UUID() uuid.UUID
}

// Logger captures basic logging hooks used by the service.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Error(msg string, err error, fields ...any)
}

// SystemClock defers to time.Now for production usage.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// UUIDGenerator produces UUIDv4 identifiers.
type UUIDGenerator struct{}

// UUID returns a randomly generated UUID.
func (UUIDGenerator) UUID() uuid.UUID { return uuid.New() }

// NopLogger discards all log lines.
type NopLogger struct{}

// Debug implements Logger.
func (NopLogger) Debug(string, ...any) {}

// Info implements Logger.
func (NopLogger) Info(string, ...any) {}

// Error implements Logger.
func (NopLogger) Error(string, error, ...any) {}

var (
	// ErrUserIDRequired indicates a user identifier was omitted.
	ErrUserIDRequired = errors.New("go-referrals: user id required")
	// ErrEmailRequired indicates an email address was omitted.
	ErrEmailRequired = errors.New("go-referrals: email required")
	// ErrIdentityAlreadyRegistered is reported by directories when the email is taken.
	ErrIdentityAlreadyRegistered = errors.New("go-referrals: identity already registered")
	// ErrIdentityNotFound indicates the identity lookup missed.
	ErrIdentityNotFound = errors.New("go-referrals: identity not found")
	// ErrGroupNotFound indicates the referenced group does not exist.
	ErrGroupNotFound = errors.New("go-referrals: group not found")
	// ErrMembershipNotFound indicates the referenced membership does not exist.
	ErrMembershipNotFound = errors.New("go-referrals: membership not found")
	// ErrServiceNotReady indicates the service has not been properly configured.
	ErrServiceNotReady = errors.New("go-referrals: service not ready")
	// ErrMissingIdentityDirectory occurs when no identity directory was supplied.
	ErrMissingIdentityDirectory = errors.New("go-referrals: missing identity directory")
	// ErrMissingProfileRepository occurs when no profile store was supplied.
	ErrMissingProfileRepository = errors.New("go-referrals: missing profile repository")
	// ErrMissingGroupRepository occurs when no group store was supplied.
	ErrMissingGroupRepository = errors.New("go-referrals: missing group repository")
	// ErrMissingReferralRepository occurs when no referral store was supplied.
	ErrMissingReferralRepository = errors.New("go-referrals: missing referral repository")
	// ErrMissingMembershipRepository occurs when no membership store was supplied.
	ErrMissingMembershipRepository = errors.New("go-referrals: missing membership repository")
	// ErrMissingSecureLinkManager occurs when securelink manager is not configured.
	ErrMissingSecureLinkManager = errors.New("go-referrals: missing securelink manager")
	// ErrMissingTokenRepository occurs when token persistence is unavailable.
	ErrMissingTokenRepository = errors.New("go-referrals: missing token repository")
	// ErrMissingNotifier occurs when no notification channel was supplied.
	ErrMissingNotifier = errors.New("go-referrals: missing notifier")
	// ErrMissingActivityRepository occurs when activity queries lack a repository.
	ErrMissingActivityRepository = errors.New("go-referrals: missing activity repository")
	// ErrMissingActivitySink occurs when activity logging is requested without a sink.
	ErrMissingActivitySink = errors.New("go-referrals: missing activity sink")
)
