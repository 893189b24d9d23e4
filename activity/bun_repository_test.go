package activity

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

func TestRepository_LogAndList(t *testing.T) {
	ctx := context.Background()
	db := newTestActivityDB(t)
	applyActivityDDL(t, db)

	store, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	userID := uuid.New()
	event := types.ActivityRecord{
		UserID:     userID,
		ActorID:    uuid.New(),
		Verb:       "referral.created",
		ObjectType: "referral",
		ObjectID:   "abc",
		Channel:    "referrals",
		Data: map[string]any{
			"group_id": "g-1",
			"phone":    "+15551234567",
		},
	}
	require.NoError(t, store.Log(ctx, event))
	require.NoError(t, store.Log(ctx, types.ActivityRecord{UserID: uuid.New(), Verb: "referral.membership.created"}))

	page, err := store.ListActivity(ctx, types.ActivityFilter{
		UserID:     userID,
		Verbs:      []string{"referral.created"},
		Pagination: types.Pagination{Limit: 10},
	})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.Equal(t, "referral.created", page.Records[0].Verb)
	require.Equal(t, "g-1", page.Records[0].Data["group_id"])
	require.NotEqual(t, "+15551234567", page.Records[0].Data["phone"])
	require.False(t, page.HasMore)
}

func TestRepository_ListActivityByGroup(t *testing.T) {
	ctx := context.Background()
	db := newTestActivityDB(t)
	applyActivityDDL(t, db)

	store, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	groupID := uuid.New()
	require.NoError(t, store.Log(ctx, BuildRecord(types.ActorRef{}, VerbReferralCreated, ObjectReferral, "r-1", nil,
		WithUser(uuid.New()), WithGroup(groupID))))
	require.NoError(t, store.Log(ctx, BuildRecord(types.ActorRef{}, VerbMembershipCreated, ObjectMembership, "m-1", nil,
		WithUser(uuid.New()), WithGroup(groupID))))
	require.NoError(t, store.Log(ctx, BuildRecord(types.ActorRef{}, VerbReferralCreated, ObjectReferral, "r-2", nil,
		WithUser(uuid.New()), WithGroup(uuid.New()))))

	page, err := store.ListActivity(ctx, types.ActivityFilter{
		GroupID:    groupID,
		Channel:    ChannelReferrals,
		Pagination: types.Pagination{Limit: 10},
	})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	for _, record := range page.Records {
		require.Equal(t, groupID, record.GroupID)
	}
}

func TestRepository_ActivityStatsByGroup(t *testing.T) {
	ctx := context.Background()
	db := newTestActivityDB(t)
	applyActivityDDL(t, db)

	store, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	groupID := uuid.New()
	for _, verb := range []string{VerbReferralCreated, VerbReferralCreated, VerbMembershipCreated} {
		require.NoError(t, store.Log(ctx, BuildRecord(types.ActorRef{}, verb, ObjectReferral, "", nil, WithGroup(groupID))))
	}
	require.NoError(t, store.Log(ctx, BuildRecord(types.ActorRef{}, VerbReferralCreated, ObjectReferral, "", nil, WithGroup(uuid.New()))))

	stats, err := store.ActivityStats(ctx, types.ActivityStatsFilter{GroupID: groupID})
	require.NoError(t, err)
	require.Equal(t, 3, stats.Total)
	require.Equal(t, 2, stats.ByVerb[VerbReferralCreated])
	require.Equal(t, 1, stats.ByVerb[VerbMembershipCreated])

	stats, err = store.ActivityStats(ctx, types.ActivityStatsFilter{Verbs: []string{VerbMembershipCreated}})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Total)
}

func TestNewRepository_RequiresDBOrRepository(t *testing.T) {
	_, err := NewRepository(RepositoryConfig{})
	require.Error(t, err)
}

func TestSanitizeRecordMasksDefaultFields(t *testing.T) {
	record := types.ActivityRecord{
		Data: map[string]any{
			"secret": "shh",
			"phone":  "+15551234567",
			"email":  "jane@example.com",
			"group":  "choir",
		},
	}
	out := SanitizeRecord(DefaultMasker(), record)
	require.NotEqual(t, "jane@example.com", out.Data["email"])
	require.NotEqual(t, "shh", out.Data["secret"])
	require.NotEqual(t, "+15551234567", out.Data["phone"])
	require.Equal(t, "choir", out.Data["group"])
	require.Equal(t, "+15551234567", record.Data["phone"])
}

func TestBuildRecord(t *testing.T) {
	actor := types.ActorRef{ID: uuid.New(), Type: "member"}
	userID := uuid.New()
	meta := map[string]any{"note": "hi"}

	record := BuildRecord(actor, " referral.created ", "referral", "r-1", meta, WithChannel(" referrals "), WithUser(userID))
	require.Equal(t, actor.ID, record.ActorID)
	require.Equal(t, userID, record.UserID)
	require.Equal(t, "referral.created", record.Verb)
	require.Equal(t, "referrals", record.Channel)
	require.Equal(t, "member", record.Data["actor_type"])
	require.Equal(t, ChannelReferrals, BuildRecord(actor, "x", "", "", nil).Channel)

	record.Data["note"] = "changed"
	require.Equal(t, "hi", meta["note"])
}

func newTestActivityDB(t *testing.T) *bun.DB {
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

func applyActivityDDL(t *testing.T, db *bun.DB) {
	content, err := os.ReadFile("../data/sql/migrations/sqlite/00006_referral_activity.up.sql")
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
