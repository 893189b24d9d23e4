package types

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NotificationStatus tracks delivery state of queued notifications.
type NotificationStatus string

const (
	NotificationStatusQueued NotificationStatus = "queued"
	NotificationStatusSent   NotificationStatus = "sent"
)

// Notification is a message handed off to a delivery channel.
type Notification struct {
	ID        uuid.UUID
	Channel   string
	Template  string
	Recipient string
	Payload   map[string]any
	Status    NotificationStatus
	CreatedAt time.Time
	SentAt    *time.Time
}

// Notifier delivers (or enqueues) notifications. Implementations should not
// block on remote delivery.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}
