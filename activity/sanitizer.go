package activity

import (
	"sync"

	"github.com/goliatone/go-masker"
	"github.com/goliatone/go-referrals/pkg/types"
)

const maskStrategy = "filled4"

// maskedFields lists payload keys holding contact details of referred people
// or credentials.
var maskedFields = []string{"email", "phone", "secret", "password_hash", "token"}

var defaultMaskerOnce sync.Once

// DefaultMasker returns masker.Default with the referral fields registered.
func DefaultMasker() *masker.Masker {
	defaultMaskerOnce.Do(func() {
		if masker.Default == nil {
			return
		}
		for _, field := range maskedFields {
			masker.Default.RegisterMaskField(field, maskStrategy)
		}
	})
	return masker.Default
}

// SanitizeRecord returns a copy of record with sensitive payload values
// masked. A payload that cannot be masked is dropped rather than stored raw.
func SanitizeRecord(mask *masker.Masker, record types.ActivityRecord) types.ActivityRecord {
	if len(record.Data) == 0 {
		return record
	}
	if mask == nil {
		mask = DefaultMasker()
	}
	record.Data = maskPayload(mask, record.Data)
	return record
}

func maskPayload(mask *masker.Masker, data map[string]any) map[string]any {
	if mask == nil {
		return map[string]any{}
	}
	masked, err := mask.Mask(cloneMap(data))
	if err != nil {
		return map[string]any{}
	}
	if out, ok := masked.(map[string]any); ok {
		return out
	}
	return map[string]any{}
}
