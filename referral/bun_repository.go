package referral

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

// RepositoryConfig wires the Bun-backed referral repository.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
	IDGen      types.IDGenerator
}

type referralStore interface {
	repository.Repository[*Record]
}

// Repository implements types.ReferralRepository.
type Repository struct {
	referralStore
	clock types.Clock
	idGen types.IDGenerator
}

// NewRepository constructs the default referral repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("referral: db or repository required")
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
	return &Repository{
		referralStore: repo,
		clock:         clock,
		idGen:         idGen,
	}, nil
}

var (
	_ repository.Repository[*Record] = (*Repository)(nil)
	_ types.ReferralRepository       = (*Repository)(nil)
)

// CreateReferral inserts a referral row with a generated id.
func (r *Repository) CreateReferral(ctx context.Context, referral types.Referral) (*types.Referral, error) {
	if referral.ReferredUserID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	rec := fromDomain(referral)
	if rec.ID == uuid.Nil {
		rec.ID = r.idGen.UUID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.clock.Now()
	}
	created, err := r.Create(ctx, rec)
	if err != nil {
		return nil, err
	}
	return toDomain(created), nil
}

// ListReferrals returns referrals matching filter, newest first.
func (r *Repository) ListReferrals(ctx context.Context, filter types.ReferralFilter) (types.ReferralPage, error) {
	page := types.NormalizePagination(filter.Pagination, defaultListLimit, maxListLimit)
	rows, total, err := r.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		if filter.ReferrerID != uuid.Nil {
			q = q.Where("referrer_id = ?", filter.ReferrerID.String())
		}
		if filter.ReferredUserID != uuid.Nil {
			q = q.Where("referred_user_id = ?", filter.ReferredUserID.String())
		}
		if filter.GroupID != uuid.Nil {
			q = q.Where("group_id = ?", filter.GroupID.String())
		}
		return q.OrderExpr("created_at DESC").
			OrderExpr("id DESC").
			Limit(page.Limit).
			Offset(page.Offset)
	})
	if err != nil {
		return types.ReferralPage{}, err
	}
	out := types.ReferralPage{
		Referrals: make([]types.Referral, 0, len(rows)),
		Total:     total,
	}
	for _, row := range rows {
		out.Referrals = append(out.Referrals, *toDomain(row))
	}
	next := page.Offset + len(rows)
	if next < total {
		out.HasMore = true
		out.NextOffset = next
	}
	return out, nil
}

func fromDomain(referral types.Referral) *Record {
	return &Record{
		ID:             referral.ID,
		GroupID:        cloneID(referral.GroupID),
		ReferrerID:     cloneID(referral.ReferrerID),
		ReferredUserID: referral.ReferredUserID,
		ChurchID:       cloneID(referral.ChurchID),
		Note:           strings.TrimSpace(referral.Note),
		CreatedAt:      referral.CreatedAt,
	}
}

func toDomain(rec *Record) *types.Referral {
	if rec == nil {
		return nil
	}
	return &types.Referral{
		ID:             rec.ID,
		GroupID:        cloneID(rec.GroupID),
		ReferrerID:     cloneID(rec.ReferrerID),
		ReferredUserID: rec.ReferredUserID,
		ChurchID:       cloneID(rec.ChurchID),
		Note:           rec.Note,
		CreatedAt:      rec.CreatedAt,
	}
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	out := *id
	return &out
}
