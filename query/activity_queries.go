package query

import (
	"context"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-referrals/activity"
	"github.com/goliatone/go-referrals/pkg/types"
)

// ActivityFeedQuery pages through the referral timeline of a person, a
// referrer or a group. Feeds default to the referrals channel.
type ActivityFeedQuery struct {
	repo types.ActivityRepository
}

// NewActivityFeedQuery constructs the feed query.
func NewActivityFeedQuery(repo types.ActivityRepository) *ActivityFeedQuery {
	return &ActivityFeedQuery{repo: repo}
}

var _ gocommand.Querier[types.ActivityFilter, types.ActivityPage] = (*ActivityFeedQuery)(nil)

// Query implements gocommand.Querier.
func (q *ActivityFeedQuery) Query(ctx context.Context, filter types.ActivityFilter) (types.ActivityPage, error) {
	if q.repo == nil {
		return types.ActivityPage{}, types.ErrMissingActivityRepository
	}
	filter.Channel = strings.TrimSpace(filter.Channel)
	if filter.Channel == "" {
		filter.Channel = activity.ChannelReferrals
	}
	filter.Verbs = compactVerbs(filter.Verbs)
	filter.Pagination = types.NormalizePagination(filter.Pagination, defaultListLimit, maxListLimit)
	return q.repo.ListActivity(ctx, filter)
}

func compactVerbs(verbs []string) []string {
	if len(verbs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(verbs))
	out := make([]string, 0, len(verbs))
	for _, verb := range verbs {
		verb = strings.TrimSpace(verb)
		if verb == "" {
			continue
		}
		if _, ok := seen[verb]; ok {
			continue
		}
		seen[verb] = struct{}{}
		out = append(out, verb)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ActivityStatsQuery reports the referral funnel counts for a group or a
// referrer.
type ActivityStatsQuery struct {
	repo types.ActivityStatsRepository
}

// NewActivityStatsQuery constructs the stats query.
func NewActivityStatsQuery(repo types.ActivityStatsRepository) *ActivityStatsQuery {
	return &ActivityStatsQuery{repo: repo}
}

var _ gocommand.Querier[types.ActivityStatsFilter, types.ActivityStats] = (*ActivityStatsQuery)(nil)

// Query implements gocommand.Querier.
func (q *ActivityStatsQuery) Query(ctx context.Context, filter types.ActivityStatsFilter) (types.ActivityStats, error) {
	if q.repo == nil {
		return types.ActivityStats{}, types.ErrMissingActivityRepository
	}
	filter.Channel = strings.TrimSpace(filter.Channel)
	if filter.Channel == "" {
		filter.Channel = activity.ChannelReferrals
	}
	filter.Verbs = compactVerbs(filter.Verbs)
	return q.repo.ActivityStats(ctx, filter)
}
