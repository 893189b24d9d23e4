package membership

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"

	"github.com/goliatone/go-referrals/pkg/types"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

var ddlFiles = []string{
	"../data/sql/migrations/sqlite/00002_users_groups.up.sql",
	"../data/sql/migrations/sqlite/00003_referrals_memberships.up.sql",
}

func TestRepository_CreateMembershipDefaults(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	groupID := uuid.New()
	userID := uuid.New()
	referralID := uuid.New()
	created, err := repo.CreateMembership(ctx, types.Membership{
		GroupID:    groupID,
		UserID:     userID,
		ReferralID: &referralID,
	})
	require.NoError(t, err)
	require.Equal(t, "member", created.Role)
	require.Equal(t, types.MembershipStatusPending, created.Status)
	require.Equal(t, 1, created.JourneyStatus)
	require.Equal(t, referralID, *created.ReferralID)

	pending, err := repo.FindPendingMembership(ctx, groupID, userID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	require.Equal(t, created.ID, pending.ID)

	none, err := repo.FindPendingMembership(ctx, groupID, uuid.New())
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestRepository_UpdateMembershipStatus(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	created, err := repo.CreateMembership(ctx, types.Membership{GroupID: uuid.New(), UserID: uuid.New()})
	require.NoError(t, err)

	updated, err := repo.UpdateMembershipStatus(ctx, created.ID, types.MembershipStatusPending, types.MembershipStatusApproved)
	require.NoError(t, err)
	require.Equal(t, types.MembershipStatusApproved, updated.Status)

	_, err = repo.UpdateMembershipStatus(ctx, created.ID, types.MembershipStatusPending, types.MembershipStatusDeclined)
	require.Error(t, err)

	_, err = repo.GetMembership(ctx, uuid.New())
	require.ErrorIs(t, err, types.ErrMembershipNotFound)
}

func TestRepository_ListMembershipsFiltersStatus(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	groupID := uuid.New()
	first, err := repo.CreateMembership(ctx, types.Membership{GroupID: groupID, UserID: uuid.New()})
	require.NoError(t, err)
	_, err = repo.CreateMembership(ctx, types.Membership{GroupID: groupID, UserID: uuid.New()})
	require.NoError(t, err)
	_, err = repo.CreateMembership(ctx, types.Membership{GroupID: uuid.New(), UserID: uuid.New()})
	require.NoError(t, err)

	_, err = repo.UpdateMembershipStatus(ctx, first.ID, types.MembershipStatusPending, types.MembershipStatusApproved)
	require.NoError(t, err)

	page, err := repo.ListMemberships(ctx, types.MembershipFilter{
		GroupID:  groupID,
		Statuses: []types.MembershipStatus{types.MembershipStatusPending},
	})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Len(t, page.Memberships, 1)
	require.False(t, page.HasMore)
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
	for _, file := range ddlFiles {
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
