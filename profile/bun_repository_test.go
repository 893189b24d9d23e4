package profile

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-referrals/pkg/types"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func TestRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo, err := NewRepository(RepositoryConfig{DB: db, Clock: fixedClock{t: now}})
	require.NoError(t, err)

	userID := uuid.New()
	churchID := uuid.New()
	created, err := repo.CreateProfile(ctx, types.Profile{
		ID:       userID,
		Name:     "  Grace Hopper ",
		ChurchID: &churchID,
		Newcomer: true,
	})
	require.NoError(t, err)
	require.Equal(t, "Grace Hopper", created.Name)
	require.Equal(t, []string{"user"}, created.Roles)
	require.True(t, created.Newcomer)
	require.False(t, created.OnboardingComplete)
	require.Nil(t, created.ServiceID)
	require.True(t, now.Equal(created.CreatedAt))

	fetched, err := repo.GetProfile(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	require.NotNil(t, fetched.ChurchID)
	require.Equal(t, churchID, *fetched.ChurchID)
	require.Equal(t, []string{"user"}, fetched.Roles)

	missing, err := repo.GetProfile(ctx, uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRepository_PatchOnlyTouchesProvidedFields(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	userID := uuid.New()
	churchID := uuid.New()
	_, err = repo.CreateProfile(ctx, types.Profile{ID: userID, Name: "Existing", ChurchID: &churchID, Newcomer: true})
	require.NoError(t, err)

	serviceID := uuid.New()
	patched, err := repo.PatchProfile(ctx, userID, types.ProfilePatch{ServiceID: &serviceID})
	require.NoError(t, err)
	require.Equal(t, "Existing", patched.Name)
	require.Equal(t, churchID, *patched.ChurchID)
	require.Equal(t, serviceID, *patched.ServiceID)

	_, err = repo.PatchProfile(ctx, uuid.New(), types.ProfilePatch{ServiceID: &serviceID})
	require.ErrorIs(t, err, ErrProfileNotFound)
}

func TestRepository_CreateDuplicateFails(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	userID := uuid.New()
	_, err = repo.CreateProfile(ctx, types.Profile{ID: userID})
	require.NoError(t, err)
	_, err = repo.CreateProfile(ctx, types.Profile{ID: userID})
	require.Error(t, err)
}

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

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
	for _, file := range []string{
		"../data/sql/migrations/sqlite/00001_identities.up.sql",
		"../data/sql/migrations/sqlite/00002_users_groups.up.sql",
	} {
		content, err := os.ReadFile(file)
		require.NoError(t, err)
		for _, stmt := range splitStatements(string(content)) {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			_, err := db.Exec(stmt)
			require.NoError(t, err)
		}
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
