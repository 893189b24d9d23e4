package activity

import (
	"context"
	"errors"

	"github.com/goliatone/go-masker"
	"github.com/goliatone/go-referrals/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	feedDefaultLimit = 50
	feedMaxLimit     = 200
)

// RepositoryConfig wires the Bun-backed activity repository. DB is required
// for ActivityStats.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*LogEntry]
	Clock      types.Clock
	IDGen      types.IDGenerator
	Masker     *masker.Masker
}

// Repository stores the referral timeline. Payloads are masked before they
// reach the referral_activity table.
type Repository struct {
	entries repository.Repository[*LogEntry]
	db      *bun.DB
	clock   types.Clock
	idGen   types.IDGenerator
	mask    *masker.Masker
}

// NewRepository builds the activity store.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	entries := cfg.Repository
	if entries == nil {
		if cfg.DB == nil {
			return nil, errors.New("activity: db or repository required")
		}
		entries = repository.NewRepository(cfg.DB, repository.ModelHandlers[*LogEntry]{
			NewRecord: func() *LogEntry { return &LogEntry{} },
			GetID: func(entry *LogEntry) uuid.UUID {
				if entry == nil {
					return uuid.Nil
				}
				return entry.ID
			},
			SetID: func(entry *LogEntry, id uuid.UUID) {
				if entry != nil {
					entry.ID = id
				}
			},
		})
	}
	repo := &Repository{
		entries: entries,
		db:      cfg.DB,
		clock:   cfg.Clock,
		idGen:   cfg.IDGen,
		mask:    cfg.Masker,
	}
	if repo.clock == nil {
		repo.clock = types.SystemClock{}
	}
	if repo.idGen == nil {
		repo.idGen = types.UUIDGenerator{}
	}
	if repo.mask == nil {
		repo.mask = DefaultMasker()
	}
	return repo, nil
}

// Entries exposes the underlying go-repository-bun store for admin CRUD.
func (r *Repository) Entries() repository.Repository[*LogEntry] {
	return r.entries
}

var (
	_ types.ActivitySink            = (*Repository)(nil)
	_ types.ActivityRepository      = (*Repository)(nil)
	_ types.ActivityStatsRepository = (*Repository)(nil)
)

// Log masks and stores record.
func (r *Repository) Log(ctx context.Context, record types.ActivityRecord) error {
	entry := entryFromRecord(SanitizeRecord(r.mask, record))
	if entry.ID == uuid.Nil {
		entry.ID = r.idGen.UUID()
	}
	if entry.Channel == "" {
		entry.Channel = ChannelReferrals
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.clock.Now()
	}
	_, err := r.entries.Create(ctx, entry)
	return err
}

// ListActivity returns the newest records first.
func (r *Repository) ListActivity(ctx context.Context, filter types.ActivityFilter) (types.ActivityPage, error) {
	page := types.NormalizePagination(filter.Pagination, feedDefaultLimit, feedMaxLimit)
	rows, total, err := r.entries.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return feedWhere(q, filter).
			OrderExpr("created_at DESC").
			Limit(page.Limit).
			Offset(page.Offset)
	})
	if err != nil {
		return types.ActivityPage{}, err
	}
	out := types.ActivityPage{
		Records:    make([]types.ActivityRecord, 0, len(rows)),
		Total:      total,
		NextOffset: page.Offset + page.Limit,
	}
	out.HasMore = out.NextOffset < total
	for _, row := range rows {
		out.Records = append(out.Records, recordFromEntry(row))
	}
	return out, nil
}

// ActivityStats counts records per verb, which gives a group or a referrer
// their referral funnel: people referred, memberships opened and decided,
// verification emails confirmed.
func (r *Repository) ActivityStats(ctx context.Context, filter types.ActivityStatsFilter) (types.ActivityStats, error) {
	stats := types.ActivityStats{ByVerb: map[string]int{}}
	if r.db == nil {
		return stats, errors.New("activity: stats requires bun DB")
	}
	var rows []struct {
		Verb  string `bun:"verb"`
		Total int    `bun:"total"`
	}
	q := r.db.NewSelect().
		Table("referral_activity").
		ColumnExpr("verb").
		ColumnExpr("COUNT(*) AS total").
		Group("verb")
	if err := statsWhere(q, filter).Scan(ctx, &rows); err != nil {
		return stats, err
	}
	for _, row := range rows {
		stats.ByVerb[row.Verb] = row.Total
		stats.Total += row.Total
	}
	return stats, nil
}

func feedWhere(q *bun.SelectQuery, filter types.ActivityFilter) *bun.SelectQuery {
	switch {
	case filter.UserID != uuid.Nil && filter.ActorID != uuid.Nil:
		// a referrer's feed shows what they did and what happened to them
		q = q.Where("(user_id = ? OR actor_id = ?)", filter.UserID.String(), filter.ActorID.String())
	case filter.UserID != uuid.Nil:
		q = q.Where("user_id = ?", filter.UserID.String())
	case filter.ActorID != uuid.Nil:
		q = q.Where("actor_id = ?", filter.ActorID.String())
	}
	q = whereGroupAndChannel(q, filter.GroupID, filter.Channel)
	if len(filter.Verbs) > 0 {
		q = q.Where("verb IN (?)", bun.In(filter.Verbs))
	}
	if filter.ObjectType != "" {
		q = q.Where("object_type = ?", filter.ObjectType)
	}
	if filter.ObjectID != "" {
		q = q.Where("object_id = ?", filter.ObjectID)
	}
	if filter.Since != nil && !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	return q
}

func statsWhere(q *bun.SelectQuery, filter types.ActivityStatsFilter) *bun.SelectQuery {
	q = whereGroupAndChannel(q, filter.GroupID, filter.Channel)
	if filter.ActorID != uuid.Nil {
		q = q.Where("actor_id = ?", filter.ActorID.String())
	}
	if len(filter.Verbs) > 0 {
		q = q.Where("verb IN (?)", bun.In(filter.Verbs))
	}
	if filter.Since != nil && !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if filter.Until != nil && !filter.Until.IsZero() {
		q = q.Where("created_at <= ?", filter.Until)
	}
	return q
}

func whereGroupAndChannel(q *bun.SelectQuery, groupID uuid.UUID, channel string) *bun.SelectQuery {
	if groupID != uuid.Nil {
		q = q.Where("group_id = ?", groupID.String())
	}
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}
	return q
}

func entryFromRecord(record types.ActivityRecord) *LogEntry {
	return &LogEntry{
		ID:         record.ID,
		UserID:     record.UserID,
		ActorID:    record.ActorID,
		GroupID:    record.GroupID,
		Verb:       record.Verb,
		ObjectType: record.ObjectType,
		ObjectID:   record.ObjectID,
		Channel:    record.Channel,
		Data:       cloneMap(record.Data),
		CreatedAt:  record.OccurredAt,
	}
}

func recordFromEntry(entry *LogEntry) types.ActivityRecord {
	if entry == nil {
		return types.ActivityRecord{}
	}
	return types.ActivityRecord{
		ID:         entry.ID,
		UserID:     entry.UserID,
		ActorID:    entry.ActorID,
		GroupID:    entry.GroupID,
		Verb:       entry.Verb,
		ObjectType: entry.ObjectType,
		ObjectID:   entry.ObjectID,
		Channel:    entry.Channel,
		Data:       cloneMap(entry.Data),
		OccurredAt: entry.CreatedAt,
	}
}

func cloneMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
