package query

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-referrals/pkg/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ReferralListQuery powers the referrer dashboard.
type ReferralListQuery struct {
	repo types.ReferralRepository
}

// NewReferralListQuery constructs the referral list query.
func NewReferralListQuery(repo types.ReferralRepository) *ReferralListQuery {
	return &ReferralListQuery{repo: repo}
}

var _ gocommand.Querier[types.ReferralFilter, types.ReferralPage] = (*ReferralListQuery)(nil)

// Query returns referrals newest first after clamping pagination.
func (q *ReferralListQuery) Query(ctx context.Context, filter types.ReferralFilter) (types.ReferralPage, error) {
	if q.repo == nil {
		return types.ReferralPage{}, types.ErrMissingReferralRepository
	}
	filter.Pagination = types.NormalizePagination(filter.Pagination, defaultListLimit, maxListLimit)
	return q.repo.ListReferrals(ctx, filter)
}

// MembershipListQuery lists memberships, typically the pending queue of a
// group admin.
type MembershipListQuery struct {
	repo types.MembershipRepository
}

// NewMembershipListQuery constructs the membership list query.
func NewMembershipListQuery(repo types.MembershipRepository) *MembershipListQuery {
	return &MembershipListQuery{repo: repo}
}

var _ gocommand.Querier[types.MembershipFilter, types.MembershipPage] = (*MembershipListQuery)(nil)

// Query returns memberships matching the filter.
func (q *MembershipListQuery) Query(ctx context.Context, filter types.MembershipFilter) (types.MembershipPage, error) {
	if q.repo == nil {
		return types.MembershipPage{}, types.ErrMissingMembershipRepository
	}
	filter.Pagination = types.NormalizePagination(filter.Pagination, defaultListLimit, maxListLimit)
	return q.repo.ListMemberships(ctx, filter)
}
