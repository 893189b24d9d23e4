package identity

import (
	"context"

	"github.com/goliatone/go-referrals/pkg/types"
)

const (
	// DefaultMaxScan bounds the phone fallback scan for directories without a
	// phone index.
	DefaultMaxScan = 1000
	// DefaultScanPageSize is the page size used while scanning.
	DefaultScanPageSize = 200
)

// ResolverConfig wires the identity resolver.
type ResolverConfig struct {
	Directory types.IdentityDirectory
	MaxScan   int
	PageSize  int
	Logger    types.Logger
}

// Resolver finds existing identities by email, or by phone when no email is
// supplied.
type Resolver struct {
	directory types.IdentityDirectory
	maxScan   int
	pageSize  int
	logger    types.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	maxScan := cfg.MaxScan
	if maxScan <= 0 {
		maxScan = DefaultMaxScan
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultScanPageSize
	}
	if pageSize > maxScan {
		pageSize = maxScan
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Resolver{
		directory: cfg.Directory,
		maxScan:   maxScan,
		pageSize:  pageSize,
		logger:    logger,
	}
}

// Resolve returns the matching identity or (nil, nil). The phone fallback
// only runs when email is blank; an email miss never falls through to phone.
func (r *Resolver) Resolve(ctx context.Context, email, phone string) (*types.Identity, error) {
	if r == nil || r.directory == nil {
		return nil, types.ErrMissingIdentityDirectory
	}
	normalizedEmail := NormalizeEmail(email)
	if normalizedEmail != "" {
		return r.directory.GetByEmail(ctx, normalizedEmail)
	}
	normalizedPhone := NormalizePhone(phone)
	if normalizedPhone == "" {
		return nil, nil
	}
	return r.ResolveByPhone(ctx, normalizedPhone)
}

// ResolveByPhone looks an identity up by normalized phone, using the
// directory's index when available and a bounded scan otherwise.
func (r *Resolver) ResolveByPhone(ctx context.Context, phone string) (*types.Identity, error) {
	if r == nil || r.directory == nil {
		return nil, types.ErrMissingIdentityDirectory
	}
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, nil
	}
	if index, ok := r.directory.(types.PhoneIndex); ok {
		return index.FindByPhone(ctx, normalized)
	}
	return r.scan(ctx, normalized)
}

func (r *Resolver) scan(ctx context.Context, phone string) (*types.Identity, error) {
	scanned := 0
	for scanned < r.maxScan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		limit := r.pageSize
		if remaining := r.maxScan - scanned; remaining < limit {
			limit = remaining
		}
		page, err := r.directory.ListIdentities(ctx, types.Pagination{Limit: limit, Offset: scanned})
		if err != nil {
			return nil, err
		}
		for i := range page.Identities {
			candidate := page.Identities[i]
			if matchesPhone(candidate, phone) {
				return &candidate, nil
			}
		}
		scanned += len(page.Identities)
		if !page.HasMore || len(page.Identities) == 0 {
			break
		}
	}
	r.logger.Debug("identity phone scan exhausted", "scanned", scanned, "max_scan", r.maxScan)
	return nil, nil
}

func matchesPhone(candidate types.Identity, phone string) bool {
	if NormalizePhone(candidate.Phone) == phone {
		return true
	}
	return NormalizePhone(candidate.MetadataString("phone")) == phone
}
