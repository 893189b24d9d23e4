package groups

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-referrals/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-repository-cache/repositorycache"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryConfig wires dependencies for the Bun-backed group store.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
	IDGen      types.IDGenerator
}

type groupStore interface {
	repository.Repository[*Record]
}

// Repository implements types.GroupRepository.
type Repository struct {
	groupStore
	clock types.Clock
	idGen types.IDGenerator
}

// NewRepository constructs the default group repository. WithCache wraps the
// store with the go-repository-cache decorator.
func NewRepository(cfg RepositoryConfig, options ...RepositoryOption) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("groups: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = NewBaseRepository(cfg.DB)
	}
	opts := applyRepositoryOptions(options)
	if opts.CacheEnabled {
		cached, err := wrapWithCache(repo, opts.CacheConfig)
		if err != nil {
			return nil, err
		}
		repo = cached
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
		groupStore: repo,
		clock:      clock,
		idGen:      idGen,
	}, nil
}

// NewBaseRepository returns the undecorated go-repository-bun store for groups.
func NewBaseRepository(db *bun.DB) repository.Repository[*Record] {
	return repository.NewRepository(db, repository.ModelHandlers[*Record]{
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

func wrapWithCache(base repository.Repository[*Record], cfg *cache.Config) (repository.Repository[*Record], error) {
	if cached, ok := base.(*repositorycache.CachedRepository[*Record]); ok {
		return cached, nil
	}
	config := cache.DefaultConfig()
	if cfg != nil {
		config = *cfg
	}
	service, err := cache.NewCacheService(config)
	if err != nil {
		return nil, fmt.Errorf("groups: cache service: %w", err)
	}
	return repositorycache.New(base, service, cache.NewDefaultKeySerializer()), nil
}

var (
	_ repository.Repository[*Record] = (*Repository)(nil)
	_ types.GroupRepository          = (*Repository)(nil)
)

// GetGroup loads a group by id, returning types.ErrGroupNotFound on miss.
func (r *Repository) GetGroup(ctx context.Context, id uuid.UUID) (*types.Group, error) {
	if id == uuid.Nil {
		return nil, types.ErrGroupNotFound
	}
	rec, err := r.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, types.ErrGroupNotFound
		}
		return nil, err
	}
	return toDomain(rec), nil
}

// CreateGroup inserts a group, used by seeding and admin tooling.
func (r *Repository) CreateGroup(ctx context.Context, group types.Group) (*types.Group, error) {
	rec := fromDomain(group)
	if rec.ID == uuid.Nil {
		rec.ID = r.idGen.UUID()
	}
	if strings.TrimSpace(rec.Name) == "" {
		return nil, errors.New("groups: name required")
	}
	now := r.clock.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	created, err := r.Create(ctx, rec)
	if err != nil {
		return nil, err
	}
	return toDomain(created), nil
}

func fromDomain(group types.Group) *Record {
	return &Record{
		ID:        group.ID,
		Name:      strings.TrimSpace(group.Name),
		ChurchID:  cloneID(group.ChurchID),
		ServiceID: cloneID(group.ServiceID),
		CreatedAt: group.CreatedAt,
		UpdatedAt: group.UpdatedAt,
	}
}

func toDomain(rec *Record) *types.Group {
	if rec == nil {
		return nil
	}
	return &types.Group{
		ID:        rec.ID,
		Name:      rec.Name,
		ChurchID:  cloneID(rec.ChurchID),
		ServiceID: cloneID(rec.ServiceID),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	out := *id
	return &out
}
