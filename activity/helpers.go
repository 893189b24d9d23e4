package activity

import (
	"strings"

	"github.com/goliatone/go-referrals/pkg/types"
	"github.com/google/uuid"
)

// RecordOption adjusts a record produced by BuildRecord.
type RecordOption func(*types.ActivityRecord)

// WithChannel overrides the default referrals channel.
func WithChannel(channel string) RecordOption {
	return func(record *types.ActivityRecord) {
		if channel = strings.TrimSpace(channel); channel != "" {
			record.Channel = channel
		}
	}
}

// WithUser sets the referred person the record is about.
func WithUser(userID uuid.UUID) RecordOption {
	return func(record *types.ActivityRecord) {
		record.UserID = userID
	}
}

// WithGroup scopes the record to a group so group admins can follow the
// referrals landing in their group.
func WithGroup(groupID uuid.UUID) RecordOption {
	return func(record *types.ActivityRecord) {
		record.GroupID = groupID
	}
}

// BuildRecord creates a referrals-channel record. Metadata is copied and the
// actor type, when known, is kept under "actor_type".
func BuildRecord(actor types.ActorRef, verb, objectType, objectID string, metadata map[string]any, opts ...RecordOption) types.ActivityRecord {
	record := types.ActivityRecord{
		ActorID:    actor.ID,
		Verb:       strings.TrimSpace(verb),
		ObjectType: strings.TrimSpace(objectType),
		ObjectID:   strings.TrimSpace(objectID),
		Channel:    ChannelReferrals,
		Data:       cloneMap(metadata),
	}
	if actor.Type != "" {
		record.Data["actor_type"] = actor.Type
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&record)
		}
	}
	return record
}
