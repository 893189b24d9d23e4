package profile

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-referrals/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrProfileNotFound is returned when patching a profile that does not exist.
var ErrProfileNotFound = errors.New("profile: not found")

// RepositoryConfig wires the Bun-backed profile repository.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
}

type profileStore interface {
	repository.Repository[*Record]
}

// Repository implements types.ProfileRepository using Bun.
type Repository struct {
	profileStore
	clock types.Clock
}

// NewRepository constructs the default profile repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("profile: db or repository required")
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

	return &Repository{
		profileStore: repo,
		clock:        clock,
	}, nil
}

var (
	_ repository.Repository[*Record] = (*Repository)(nil)
	_ types.ProfileRepository        = (*Repository)(nil)
)

// GetProfile returns the profile for the supplied identity or (nil, nil).
func (r *Repository) GetProfile(ctx context.Context, id uuid.UUID) (*types.Profile, error) {
	if id == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	rec, err := r.Get(ctx, selectID(id))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toDomain(rec), nil
}

// CreateProfile inserts a profile row applying referral defaults for roles
// and timestamps.
func (r *Repository) CreateProfile(ctx context.Context, profile types.Profile) (*types.Profile, error) {
	if profile.ID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	now := r.clock.Now()
	rec := fromDomain(profile)
	if len(rec.Roles) == 0 {
		rec.Roles = []string{types.DefaultProfileRole}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	created, err := r.Create(ctx, rec)
	if err != nil {
		return nil, err
	}
	return toDomain(created), nil
}

// PatchProfile applies the non-nil fields of patch to an existing profile.
func (r *Repository) PatchProfile(ctx context.Context, id uuid.UUID, patch types.ProfilePatch) (*types.Profile, error) {
	if id == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	rec, err := r.Get(ctx, selectID(id))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	if patch.Empty() {
		return toDomain(rec), nil
	}
	if patch.Name != nil {
		rec.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.ChurchID != nil {
		rec.ChurchID = cloneID(patch.ChurchID)
	}
	if patch.ServiceID != nil {
		rec.ServiceID = cloneID(patch.ServiceID)
	}
	rec.UpdatedAt = r.clock.Now()
	updated, err := r.Update(ctx, rec)
	if err != nil {
		return nil, err
	}
	return toDomain(updated), nil
}

func selectID(id uuid.UUID) repository.SelectCriteria {
	return repository.SelectBy("id", "=", id.String())
}

func fromDomain(profile types.Profile) *Record {
	return &Record{
		ID:                 profile.ID,
		Name:               strings.TrimSpace(profile.Name),
		ChurchID:           cloneID(profile.ChurchID),
		ServiceID:          cloneID(profile.ServiceID),
		OnboardingComplete: profile.OnboardingComplete,
		Newcomer:           profile.Newcomer,
		Roles:              cloneRoles(profile.Roles),
		CreatedAt:          profile.CreatedAt,
		UpdatedAt:          profile.UpdatedAt,
	}
}

func toDomain(rec *Record) *types.Profile {
	if rec == nil {
		return nil
	}
	return &types.Profile{
		ID:                 rec.ID,
		Name:               rec.Name,
		ChurchID:           cloneID(rec.ChurchID),
		ServiceID:          cloneID(rec.ServiceID),
		OnboardingComplete: rec.OnboardingComplete,
		Newcomer:           rec.Newcomer,
		Roles:              cloneRoles(rec.Roles),
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
	}
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	out := *id
	return &out
}

func cloneRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	out := make([]string, len(roles))
	copy(out, roles)
	return out
}
