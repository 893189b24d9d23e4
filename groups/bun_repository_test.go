package groups

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"

	"github.com/goliatone/go-referrals/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-repository-cache/repositorycache"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func TestRepository_CreateAndGetGroup(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	churchID := uuid.New()
	created, err := repo.CreateGroup(ctx, types.Group{Name: "Young Adults", ChurchID: &churchID})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)

	fetched, err := repo.GetGroup(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Young Adults", fetched.Name)
	require.Equal(t, churchID, *fetched.ChurchID)
	require.Nil(t, fetched.ServiceID)
}

func TestRepository_GetGroupMissing(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	_, err = repo.GetGroup(ctx, uuid.New())
	require.ErrorIs(t, err, types.ErrGroupNotFound)

	_, err = repo.GetGroup(ctx, uuid.Nil)
	require.ErrorIs(t, err, types.ErrGroupNotFound)
}

func TestRepository_CacheWrapsRepository(t *testing.T) {
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{Repository: NewBaseRepository(db)}, WithCache(true))
	require.NoError(t, err)

	_, ok := repo.groupStore.(*repositorycache.CachedRepository[*Record])
	require.True(t, ok)
}

func TestRepository_CacheDoesNotDoubleWrap(t *testing.T) {
	db := newTestDB(t)
	applyDDL(t, db)

	cacheService, err := cache.NewCacheService(cache.DefaultConfig())
	require.NoError(t, err)
	cached := repositorycache.New(NewBaseRepository(db), cacheService, cache.NewDefaultKeySerializer())

	repo, err := NewRepository(RepositoryConfig{Repository: cached}, WithCache(true), WithCacheConfig(cache.DefaultConfig()))
	require.NoError(t, err)

	stored, ok := repo.groupStore.(*repositorycache.CachedRepository[*Record])
	require.True(t, ok)
	require.Same(t, cached, stored)
}

func TestRepository_GetGroupUsesCache(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	spy := &spyRecordRepository{Repository: NewBaseRepository(db)}
	repo, err := NewRepository(RepositoryConfig{Repository: spy}, WithCache(true))
	require.NoError(t, err)

	created, err := repo.CreateGroup(ctx, types.Group{Name: "Choir"})
	require.NoError(t, err)

	spy.getCalls = 0
	_, err = repo.GetGroup(ctx, created.ID)
	require.NoError(t, err)
	_, err = repo.GetGroup(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 1, spy.getCalls)
}

type spyRecordRepository struct {
	repository.Repository[*Record]
	getCalls int
}

func (s *spyRecordRepository) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*Record, error) {
	s.getCalls++
	return s.Repository.GetByID(ctx, id, criteria...)
}

func newTestDB(t *testing.T) *bun.DB {
	sqldb, err := sql.Open("sqlite3", ":memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
		_ = sqldb.Close()
	})
	return db
}

func applyDDL(t *testing.T, db *bun.DB) {
	content, err := os.ReadFile("../data/sql/migrations/sqlite/00002_users_groups.up.sql")
	require.NoError(t, err)
	for _, stmt := range splitStatements(string(content)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func splitStatements(sql string) []string {
	lines := strings.Split(sql, "\n")
	var builder strings.Builder
	var statements []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		builder.WriteString(line)
		if strings.HasSuffix(line, ";") {
			statements = append(statements, strings.TrimSuffix(builder.String(), ";"))
			builder.Reset()
		} else {
			builder.WriteString(" ")
		}
	}
	if builder.Len() > 0 {
		statements = append(statements, builder.String())
	}
	return statements
}
