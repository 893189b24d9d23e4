package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-referrals/pkg/types"
	"github.com/google/uuid"
)

// SecureLinkActionVerify marks links that confirm a referred user's email.
const SecureLinkActionVerify = "verify_email"

// SecureLinkRouteVerify is the securelink route key for verification links.
const SecureLinkRouteVerify = "verify"

const secureLinkSourceDefault = "go-referrals"

func buildVerificationPayload(userID uuid.UUID, email, redirectURL, jti string, issuedAt, expiresAt time.Time) types.SecureLinkPayload {
	payload := types.SecureLinkPayload{
		types.LinkKeyAction: SecureLinkActionVerify,
		types.LinkKeyJTI:    strings.TrimSpace(jti),
		types.LinkKeySource: secureLinkSourceDefault,
	}
	if userID != uuid.Nil {
		payload[types.LinkKeyUserID] = userID.String()
	}
	if email = strings.TrimSpace(email); email != "" {
		payload[types.LinkKeyEmail] = email
	}
	if redirectURL = strings.TrimSpace(redirectURL); redirectURL != "" {
		payload[types.LinkKeyRedirectURL] = redirectURL
	}
	if !issuedAt.IsZero() {
		payload[types.LinkKeyIssuedAt] = issuedAt.Format(time.RFC3339Nano)
	}
	if !expiresAt.IsZero() {
		payload[types.LinkKeyExpiresAt] = expiresAt.Format(time.RFC3339Nano)
	}
	return payload
}

func tokenMetadata(jti string, issuedAt, expiresAt time.Time, actor types.ActorRef) map[string]any {
	meta := map[string]any{
		"jti":        strings.TrimSpace(jti),
		"issued_at":  issuedAt.Format(time.RFC3339Nano),
		"expires_at": expiresAt.Format(time.RFC3339Nano),
	}
	if actor.ID != uuid.Nil {
		meta["actor_id"] = actor.ID.String()
	}
	return meta
}

func payloadString(payload types.SecureLinkPayload, key string) string {
	if payload == nil {
		return ""
	}
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func payloadUUID(payload types.SecureLinkPayload, key string) uuid.UUID {
	value := payloadString(payload, key)
	if value == "" {
		return uuid.Nil
	}
	id, _ := uuid.Parse(value)
	return id
}

func payloadTime(payload types.SecureLinkPayload, key string) time.Time {
	if payload == nil {
		return time.Time{}
	}
	value, ok := payload[key]
	if !ok {
		return time.Time{}
	}
	return parseTimeValue(value)
}

func parseTimeValue(value any) time.Time {
	switch v := value.(type) {
	case time.Time:
		return v
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v)); err == nil {
			return parsed
		}
		if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
