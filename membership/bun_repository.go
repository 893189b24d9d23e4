package membership

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-referrals/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// RepositoryConfig wires the Bun-backed membership repository.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
	IDGen      types.IDGenerator
}

// Repository implements types.MembershipRepository.
type Repository struct {
	store repository.Repository[*Record]
	clock types.Clock
	idGen types.IDGenerator
	db    *bun.DB
}

// NewRepository constructs the default membership repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("membership: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = repository.NewRepository(cfg.DB, repository.ModelHandlers[*Record]{
			NewRecord: func() *Record { return &Record{} },
			GetID: func(rec *Record) uuid.UUID {
				if rec == nil {
					return uuid.Nil
				}
				return rec.ID
			},
			SetID: func(rec *Record, id uuid.UUID) {
				if rec != nil {
					rec.ID = id
				}
			},
		})
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	idGen := cfg.IDGen
	if idGen == nil {
		idGen = types.UUIDGenerator{}
	}
	db := cfg.DB
	if db == nil {
		if withDB, ok := repo.(interface{ DB() *bun.DB }); ok {
			db = withDB.DB()
		}
	}
	return &Repository{store: repo, clock: clock, idGen: idGen, db: db}, nil
}

var _ types.MembershipRepository = (*Repository)(nil)

// CreateMembership inserts a membership, defaulting role, status and
// journey status for referral-driven joins.
func (r *Repository) CreateMembership(ctx context.Context, membership types.Membership) (*types.Membership, error) {
	if membership.GroupID == uuid.Nil {
		return nil, types.ErrGroupNotFound
	}
	if membership.UserID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	rec := fromDomain(membership)
	if rec.ID == uuid.Nil {
		rec.ID = r.idGen.UUID()
	}
	if strings.TrimSpace(rec.Role) == "" {
		rec.Role = types.DefaultMembershipRole
	}
	if strings.TrimSpace(rec.Status) == "" {
		rec.Status = string(types.MembershipStatusPending)
	}
	if rec.JourneyStatus == 0 {
		rec.JourneyStatus = types.DefaultJourneyStatus
	}
	now := r.clock.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	created, err := r.store.Create(ctx, rec)
	if err != nil {
		return nil, err
	}
	return toDomain(created), nil
}

// GetMembership loads a membership by id.
func (r *Repository) GetMembership(ctx context.Context, id uuid.UUID) (*types.Membership, error) {
	if id == uuid.Nil {
		return nil, types.ErrMembershipNotFound
	}
	rec, err := r.store.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, types.ErrMembershipNotFound
		}
		return nil, err
	}
	return toDomain(rec), nil
}

// FindPendingMembership returns the pending membership for the pair or (nil, nil).
func (r *Repository) FindPendingMembership(ctx context.Context, groupID, userID uuid.UUID) (*types.Membership, error) {
	rec, err := r.store.Get(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("group_id = ?", groupID.String()).
			Where("user_id = ?", userID.String()).
			Where("status = ?", string(types.MembershipStatusPending))
	})
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toDomain(rec), nil
}

// ListMemberships returns memberships matching filter, oldest first so
// approval queues are worked in arrival order.
func (r *Repository) ListMemberships(ctx context.Context, filter types.MembershipFilter) (types.MembershipPage, error) {
	page := types.NormalizePagination(filter.Pagination, defaultListLimit, maxListLimit)
	rows, total, err := r.store.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		if filter.GroupID != uuid.Nil {
			q = q.Where("group_id = ?", filter.GroupID.String())
		}
		if filter.UserID != uuid.Nil {
			q = q.Where("user_id = ?", filter.UserID.String())
		}
		if len(filter.Statuses) > 0 {
			statuses := make([]string, 0, len(filter.Statuses))
			for _, status := range filter.Statuses {
				statuses = append(statuses, string(status))
			}
			q = q.Where("status IN (?)", bun.In(statuses))
		}
		return q.OrderExpr("created_at ASC").
			OrderExpr("id ASC").
			Limit(page.Limit).
			Offset(page.Offset)
	})
	if err != nil {
		return types.MembershipPage{}, err
	}
	out := types.MembershipPage{
		Memberships: make([]types.Membership, 0, len(rows)),
		Total:       total,
	}
	for _, row := range rows {
		out.Memberships = append(out.Memberships, *toDomain(row))
	}
	next := page.Offset + len(rows)
	if next < total {
		out.HasMore = true
		out.NextOffset = next
	}
	return out, nil
}

// UpdateMembershipStatus moves a membership from one status to another. The
// update only applies while the row still holds the expected status.
func (r *Repository) UpdateMembershipStatus(ctx context.Context, id uuid.UUID, from, to types.MembershipStatus) (*types.Membership, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("membership: db required for updates")
	}
	if id == uuid.Nil {
		return nil, types.ErrMembershipNotFound
	}
	rec := &Record{
		Status:    string(to),
		UpdatedAt: r.clock.Now(),
	}
	res, err := r.db.NewUpdate().Model(rec).
		Column("status", "updated_at").
		Where("id = ?", id.String()).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return nil, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	if err := repository.SQLExpectedCount(res, 1); err != nil {
		return nil, err
	}
	return r.GetMembership(ctx, id)
}

func fromDomain(membership types.Membership) *Record {
	return &Record{
		ID:            membership.ID,
		GroupID:       membership.GroupID,
		UserID:        membership.UserID,
		Role:          strings.TrimSpace(membership.Role),
		Status:        string(membership.Status),
		ReferralID:    cloneID(membership.ReferralID),
		JourneyStatus: membership.JourneyStatus,
		CreatedAt:     membership.CreatedAt,
		UpdatedAt:     membership.UpdatedAt,
	}
}

func toDomain(rec *Record) *types.Membership {
	if rec == nil {
		return nil
	}
	return &types.Membership{
		ID:            rec.ID,
		GroupID:       rec.GroupID,
		UserID:        rec.UserID,
		Role:          rec.Role,
		Status:        types.MembershipStatus(rec.Status),
		ReferralID:    cloneID(rec.ReferralID),
		JourneyStatus: rec.JourneyStatus,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	out := *id
	return &out
}
