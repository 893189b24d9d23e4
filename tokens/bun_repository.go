package tokens

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-referrals/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryConfig wires the Bun-backed token repository.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
}

// Repository implements types.VerificationTokenRepository using Bun. Tokens back the
// signup verification links sent to referred users.
type Repository struct {
	store repository.Repository[*Record]
	clock types.Clock
	db    *bun.DB
}

// NewRepository constructs the default token repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("tokens: db or repository required")
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
	db := cfg.DB
	if db == nil {
		if withDB, ok := repo.(interface{ DB() *bun.DB }); ok {
			db = withDB.DB()
		}
	}
	return &Repository{store: repo, clock: clock, db: db}, nil
}

var _ types.VerificationTokenRepository = (*Repository)(nil)

// CreateToken persists a token record. The type defaults to signup
// verification.
func (r *Repository) CreateToken(ctx context.Context, token types.VerificationToken) (*types.VerificationToken, error) {
	if token.UserID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	rec := fromDomain(token)
	if strings.TrimSpace(rec.TokenType) == "" {
		rec.TokenType = string(types.TokenPurposeSignupVerification)
	}
	rec.JTI = strings.TrimSpace(rec.JTI)
	if rec.JTI == "" {
		return nil, errors.New("tokens: jti required")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := r.clock.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.IssuedAt == nil {
		rec.IssuedAt = timePtr(now)
	}
	if strings.TrimSpace(rec.Status) == "" {
		rec.Status = string(types.TokenStatusIssued)
	}
	created, err := r.store.Create(ctx, rec)
	if err != nil {
		return nil, err
	}
	return toDomain(created), nil
}

// GetTokenByJTI returns the token record matching the JTI and type.
func (r *Repository) GetTokenByJTI(ctx context.Context, purpose types.TokenPurpose, jti string) (*types.VerificationToken, error) {
	rec, err := r.store.Get(ctx, selectToken(purpose, jti))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toDomain(rec), nil
}

// UpdateTokenStatus updates the token status and usage timestamp.
func (r *Repository) UpdateTokenStatus(ctx context.Context, purpose types.TokenPurpose, jti string, status types.TokenStatus, usedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("tokens: db required for updates")
	}
	normalized := strings.TrimSpace(jti)
	if normalized == "" {
		return errors.New("tokens: jti required")
	}
	now := r.clock.Now()
	rec := &Record{
		Status:    string(status),
		UsedAt:    timePtr(usedAt),
		UpdatedAt: now,
	}
	q := r.db.NewUpdate().Model(rec).
		Column("status", "used_at", "updated_at").
		Where("jti = ?", normalized)
	if purpose != "" {
		q = q.Where("token_type = ?", string(purpose))
	}
	q = q.Where("status = ?", string(types.TokenStatusIssued)).
		Where("used_at IS NULL")
	if status == types.TokenStatusUsed {
		q = q.Where("expires_at IS NULL OR expires_at > ?", now)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return repository.SQLExpectedCount(res, 1)
}

// SupersedeIssued expires every still-issued token with the same purpose for the user,
// so only the most recent verification link stays valid.
func (r *Repository) SupersedeIssued(ctx context.Context, userID uuid.UUID, purpose types.TokenPurpose) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("tokens: db required for updates")
	}
	if userID == uuid.Nil {
		return 0, types.ErrUserIDRequired
	}
	rec := &Record{
		Status:    string(types.TokenStatusExpired),
		UpdatedAt: r.clock.Now(),
	}
	res, err := r.db.NewUpdate().Model(rec).
		Column("status", "updated_at").
		Where("user_id = ?", userID.String()).
		Where("token_type = ?", string(purpose)).
		Where("status = ?", string(types.TokenStatusIssued)).
		Exec(ctx)
	if err != nil {
		return 0, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return res.RowsAffected()
}

func selectToken(purpose types.TokenPurpose, jti string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.Where("jti = ?", strings.TrimSpace(jti))
		if purpose != "" {
			q = q.Where("token_type = ?", string(purpose))
		}
		return q
	}
}

func fromDomain(token types.VerificationToken) *Record {
	return &Record{
		ID:        token.ID,
		UserID:    token.UserID,
		TokenType: string(token.Purpose),
		JTI:       token.JTI,
		Email:     strings.ToLower(strings.TrimSpace(token.Email)),
		Status:    string(token.Status),
		IssuedAt:  timePtr(token.IssuedAt),
		ExpiresAt: timePtr(token.ExpiresAt),
		UsedAt:    timePtr(token.UsedAt),
		CreatedAt: token.CreatedAt,
		UpdatedAt: token.UpdatedAt,
	}
}

func toDomain(rec *Record) *types.VerificationToken {
	if rec == nil {
		return nil
	}
	return &types.VerificationToken{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Purpose:   types.TokenPurpose(rec.TokenType),
		JTI:       rec.JTI,
		Email:     rec.Email,
		Status:    types.TokenStatus(rec.Status),
		IssuedAt:  timeFromPtr(rec.IssuedAt),
		ExpiresAt: timeFromPtr(rec.ExpiresAt),
		UsedAt:    timeFromPtr(rec.UsedAt),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func timePtr(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	copy := value
	return &copy
}

func timeFromPtr(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return *value
}
