package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-referrals/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// ChannelEmail is the default delivery channel.
	ChannelEmail = "email"
	// TemplateSignupVerification asks a referred user to confirm their email.
	TemplateSignupVerification = "signup_verification"

	defaultPendingLimit = 50
)

// OutboxConfig wires the Bun-backed outbox.
type OutboxConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
	IDGen      types.IDGenerator
}

// Outbox implements types.Notifier by queueing rows for a downstream
// dispatcher. Delivery itself happens elsewhere.
type Outbox struct {
	store repository.Repository[*Record]
	clock types.Clock
	idGen types.IDGenerator
	db    *bun.DB
}

// NewOutbox constructs the notification outbox.
func NewOutbox(cfg OutboxConfig) (*Outbox, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("notify: db or repository required")
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
	if db == nil {
		if withDB, ok := repo.(interface{ DB() *bun.DB }); ok {
			db = withDB.DB()
		}
	}
	return &Outbox{store: repo, clock: clock, idGen: idGen, db: db}, nil
}

var _ types.Notifier = (*Outbox)(nil)

// Notify enqueues the notification with status queued.
func (o *Outbox) Notify(ctx context.Context, notification types.Notification) error {
	recipient := strings.TrimSpace(notification.Recipient)
	if recipient == "" {
		return errors.New("notify: recipient required")
	}
	template := strings.TrimSpace(notification.Template)
	if template == "" {
		return errors.New("notify: template required")
	}
	channel := strings.TrimSpace(notification.Channel)
	if channel == "" {
		channel = ChannelEmail
	}
	id := notification.ID
	if id == uuid.Nil {
		id = o.idGen.UUID()
	}
	_, err := o.store.Create(ctx, &Record{
		ID:        id,
		Channel:   channel,
		Template:  template,
		Recipient: recipient,
		Payload:   cloneMap(notification.Payload),
		Status:    string(types.NotificationStatusQueued),
		CreatedAt: o.clock.Now(),
	})
	return err
}

// Pending returns queued notifications, oldest first.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]types.Notification, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	rows, _, err := o.store.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("status = ?", string(types.NotificationStatusQueued)).
			OrderExpr("created_at ASC").
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	out := make([]types.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomain(row))
	}
	return out, nil
}

// MarkSent flags a queued notification as delivered.
func (o *Outbox) MarkSent(ctx context.Context, id uuid.UUID) error {
	if o == nil || o.db == nil {
		return errors.New("notify: db required for updates")
	}
	now := o.clock.Now()
	rec := &Record{
		Status: string(types.NotificationStatusSent),
		SentAt: &now,
	}
	res, err := o.db.NewUpdate().Model(rec).
		Column("status", "sent_at").
		Where("id = ?", id.String()).
		Where("status = ?", string(types.NotificationStatusQueued)).
		Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(o.db))
	}
	return repository.SQLExpectedCount(res, 1)
}

func toDomain(rec *Record) types.Notification {
	return types.Notification{
		ID:        rec.ID,
		Channel:   rec.Channel,
		Template:  rec.Template,
		Recipient: rec.Recipient,
		Payload:   cloneMap(rec.Payload),
		Status:    types.NotificationStatus(rec.Status),
		CreatedAt: rec.CreatedAt,
		SentAt:    rec.SentAt,
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
