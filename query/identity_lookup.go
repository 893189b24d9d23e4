package query

import (
	"context"
	"errors"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-referrals/identity"
	"github.com/goliatone/go-referrals/pkg/types"
)

// ErrLookupCriteriaRequired indicates neither email nor phone was supplied.
var ErrLookupCriteriaRequired = errors.New("go-referrals: email or phone required")

// IdentityLookupFilter selects an identity by email, or by phone when the
// email is blank.
type IdentityLookupFilter struct {
	Email string
	Phone string
}

// IdentityLookupResult reports the match, if any.
type IdentityLookupResult struct {
	Identity  *types.Identity
	Found     bool
	MatchedBy string
}

// IdentityLookupQuery lets admins check whether a person already has an
// account before referring them.
type IdentityLookupQuery struct {
	resolver *identity.Resolver
}

// NewIdentityLookupQuery constructs the lookup query over a resolver.
func NewIdentityLookupQuery(resolver *identity.Resolver) *IdentityLookupQuery {
	return &IdentityLookupQuery{resolver: resolver}
}

var _ gocommand.Querier[IdentityLookupFilter, IdentityLookupResult] = (*IdentityLookupQuery)(nil)

// Query runs the identity resolution rules.
func (q *IdentityLookupQuery) Query(ctx context.Context, filter IdentityLookupFilter) (IdentityLookupResult, error) {
	if q.resolver == nil {
		return IdentityLookupResult{}, types.ErrMissingIdentityDirectory
	}
	email := strings.TrimSpace(filter.Email)
	phone := identity.NormalizePhone(filter.Phone)
	if email == "" && phone == "" {
		return IdentityLookupResult{}, ErrLookupCriteriaRequired
	}
	found, err := q.resolver.Resolve(ctx, email, phone)
	if err != nil {
		return IdentityLookupResult{}, err
	}
	if found == nil {
		return IdentityLookupResult{}, nil
	}
	matched := "email"
	if email == "" {
		matched = "phone"
	}
	return IdentityLookupResult{Identity: found, Found: true, MatchedBy: matched}, nil
}
