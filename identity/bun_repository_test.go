package identity

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

func TestRepository_CreateAndGetByEmail(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	created, err := repo.CreateIdentity(ctx, types.NewIdentity{
		Email:        "  Ada@Example.com ",
		Phone:        "(555) 123-4567",
		PasswordHash: "hash",
		Metadata: map[string]any{
			"name":     "Ada Lovelace",
			"referred": true,
		},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	require.Equal(t, "ada@example.com", created.Email)
	require.Equal(t, "+5551234567", created.Phone)
	require.Nil(t, created.EmailConfirmedAt)

	fetched, err := repo.GetByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	require.Equal(t, created.ID, fetched.ID)
	require.Equal(t, "Ada Lovelace", fetched.MetadataString("name"))

	missing, err := repo.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRepository_CreateDuplicateEmailReportsAlreadyRegistered(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	_, err = repo.CreateIdentity(ctx, types.NewIdentity{Email: "dup@example.com"})
	require.NoError(t, err)

	_, err = repo.CreateIdentity(ctx, types.NewIdentity{Email: "DUP@example.com"})
	require.ErrorIs(t, err, types.ErrIdentityAlreadyRegistered)
}

func TestRepository_FindByPhoneAndDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	created, err := repo.CreateIdentity(ctx, types.NewIdentity{Email: "phone@example.com", Phone: "+1 555 000 1111"})
	require.NoError(t, err)

	found, err := repo.FindByPhone(ctx, "1-555-000-1111")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, created.ID, found.ID)

	require.NoError(t, repo.DeleteIdentity(ctx, created.ID))

	found, err = repo.FindByPhone(ctx, "+15550001111")
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestRepository_FindByPhoneFallsBackToMetadata(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	legacy, err := repo.CreateIdentity(ctx, types.NewIdentity{
		Email:    "legacy@example.com",
		Metadata: map[string]any{"phone": "+15550002222"},
	})
	require.NoError(t, err)
	require.Empty(t, legacy.Phone)

	indexed, err := repo.CreateIdentity(ctx, types.NewIdentity{
		Email: "indexed@example.com",
		Phone: "+1 555 000 3333",
	})
	require.NoError(t, err)

	found, err := repo.FindByPhone(ctx, "+1 (555) 000-2222")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, legacy.ID, found.ID)

	found, err = repo.FindByPhone(ctx, "15550003333")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, indexed.ID, found.ID)

	found, err = repo.FindByPhone(ctx, "+1 555 000 4444")
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestRepository_ListIdentitiesPages(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := repo.CreateIdentity(ctx, types.NewIdentity{Email: email})
		require.NoError(t, err)
	}

	page, err := repo.ListIdentities(ctx, types.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Identities, 2)
	require.Equal(t, 3, page.Total)
	require.True(t, page.HasMore)

	page, err = repo.ListIdentities(ctx, types.Pagination{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page.Identities, 1)
	require.False(t, page.HasMore)
}

func TestRepository_ConfirmEmailIsStable(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	first := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := &movingClock{now: first}
	repo, err := NewRepository(RepositoryConfig{DB: db, Clock: clock})
	require.NoError(t, err)

	created, err := repo.CreateIdentity(ctx, types.NewIdentity{Email: "confirm@example.com"})
	require.NoError(t, err)

	confirmed, err := repo.ConfirmEmail(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, confirmed.EmailConfirmedAt)
	require.True(t, confirmed.EmailConfirmedAt.Equal(first))

	clock.now = first.Add(time.Hour)
	again, err := repo.ConfirmEmail(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, again.EmailConfirmedAt.Equal(first))

	_, err = repo.ConfirmEmail(ctx, uuid.New())
	require.ErrorIs(t, err, types.ErrIdentityNotFound)
}

type movingClock struct {
	now time.Time
}

func (c *movingClock) Now() time.Time { return c.now }

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
	content, err := os.ReadFile("../data/sql/migrations/sqlite/00001_identities.up.sql")
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
