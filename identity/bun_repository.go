package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-referrals/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryConfig wires the Bun-backed identity directory.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
	IDGen      types.IDGenerator
}

type identityStore interface {
	repository.Repository[*Record]
}

// Repository implements types.IdentityDirectory and types.PhoneIndex using Bun.
type Repository struct {
	identityStore
	clock types.Clock
	idGen types.IDGenerator

	// metadataPhone extracts metadata.phone for the detected driver; empty
	// when the dialect has no JSON operator we support.
	metadataPhone string
}

// NewRepository constructs the default identity directory.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("identity: db or repository required")
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
	if provider, ok := repo.(repository.DBProvider); ok && db == nil {
		db = provider.DB()
	}
	return &Repository{
		identityStore: repo,
		clock:         clock,
		idGen:         idGen,
		metadataPhone: metadataPhoneExpr(repository.DetectDriver(db)),
	}, nil
}

func metadataPhoneExpr(driver string) string {
	switch driver {
	case "sqlite":
		return "json_extract(metadata, '$.phone')"
	case "postgres":
		return "metadata->>'phone'"
	default:
		return ""
	}
}

var (
	_ repository.Repository[*Record] = (*Repository)(nil)
	_ types.IdentityDirectory        = (*Repository)(nil)
	_ types.PhoneIndex               = (*Repository)(nil)
	_ types.EmailConfirmer           = (*Repository)(nil)
)

// GetByEmail returns the identity registered under email or (nil, nil).
func (r *Repository) GetByEmail(ctx context.Context, email string) (*types.Identity, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return nil, types.ErrEmailRequired
	}
	rec, err := r.Get(ctx, repository.SelectBy("email", "=", normalized))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toDomain(rec), nil
}

// FindByPhone returns the oldest identity whose phone matches the indexed
// column or metadata.phone, the same rule the resolver scan applies.
func (r *Repository) FindByPhone(ctx context.Context, phone string) (*types.Identity, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, nil
	}
	rows, _, err := r.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			q = q.Where("phone = ?", normalized)
			if r.metadataPhone != "" {
				q = q.WhereOr(r.metadataPhone+" = ?", normalized)
			}
			return q
		})
		return q.OrderExpr("created_at ASC").Limit(1)
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return toDomain(rows[0]), nil
}

// ListIdentities pages through identities ordered by creation time.
func (r *Repository) ListIdentities(ctx context.Context, page types.Pagination) (types.IdentityPage, error) {
	page = types.NormalizePagination(page, DefaultScanPageSize, DefaultMaxScan)
	rows, total, err := r.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.OrderExpr("created_at ASC").
			OrderExpr("id ASC").
			Limit(page.Limit).
			Offset(page.Offset)
	})
	if err != nil {
		return types.IdentityPage{}, err
	}
	out := types.IdentityPage{
		Identities: make([]types.Identity, 0, len(rows)),
		Total:      total,
	}
	for _, row := range rows {
		out.Identities = append(out.Identities, *toDomain(row))
	}
	out.HasMore = page.Offset+len(rows) < total
	return out, nil
}

// CreateIdentity inserts an identity. A taken email reports
// types.ErrIdentityAlreadyRegistered.
func (r *Repository) CreateIdentity(ctx context.Context, input types.NewIdentity) (*types.Identity, error) {
	email := NormalizeEmail(input.Email)
	if email == "" {
		return nil, types.ErrEmailRequired
	}
	existing, err := r.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, types.ErrIdentityAlreadyRegistered
	}

	now := r.clock.Now()
	rec := &Record{
		ID:           r.idGen.UUID(),
		Email:        email,
		Phone:        NormalizePhone(input.Phone),
		PasswordHash: input.PasswordHash,
		Metadata:     cloneMap(input.Metadata),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if input.EmailConfirmed {
		confirmed := now
		rec.EmailConfirmedAt = &confirmed
	}
	created, err := r.Create(ctx, rec)
	if err != nil {
		if repository.IsDuplicatedKey(err) {
			return nil, types.ErrIdentityAlreadyRegistered
		}
		return nil, err
	}
	return toDomain(created), nil
}

// DeleteIdentity removes the identity row.
func (r *Repository) DeleteIdentity(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return types.ErrUserIDRequired
	}
	return r.Delete(ctx, &Record{ID: id})
}

// ConfirmEmail stamps email_confirmed_at. Already confirmed identities keep
// their original timestamp.
func (r *Repository) ConfirmEmail(ctx context.Context, id uuid.UUID) (*types.Identity, error) {
	if id == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	rec, err := r.Get(ctx, repository.SelectBy("id", "=", id.String()))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, types.ErrIdentityNotFound
		}
		return nil, err
	}
	if rec.EmailConfirmedAt != nil {
		return toDomain(rec), nil
	}
	confirmed := r.clock.Now()
	rec.EmailConfirmedAt = &confirmed
	rec.UpdatedAt = confirmed
	updated, err := r.Update(ctx, rec)
	if err != nil {
		return nil, err
	}
	return toDomain(updated), nil
}

func toDomain(rec *Record) *types.Identity {
	if rec == nil {
		return nil
	}
	return &types.Identity{
		ID:               rec.ID,
		Email:            strings.ToLower(rec.Email),
		Phone:            rec.Phone,
		Metadata:         cloneMap(rec.Metadata),
		EmailConfirmedAt: rec.EmailConfirmedAt,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
}

func cloneMap(origin map[string]any) map[string]any {
	if len(origin) == 0 {
		return nil
	}
	out := make(map[string]any, len(origin))
	for k, v := range origin {
		out[k] = v
	}
	return out
}
