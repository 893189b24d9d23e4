package types

import (
	"errors"
)

// ErrTransitionNotAllowed reports that the target membership status is not
// reachable from the current status according to configured policies.
var ErrTransitionNotAllowed = errors.New("go-referrals: membership transition not allowed")

// TransitionPolicy validates membership status transitions.
type TransitionPolicy interface {
	Validate(current, target MembershipStatus) error
	AllowedTargets(current MembershipStatus) []MembershipStatus
}

// StaticTransitionPolicy enforces a fixed transition graph.
type StaticTransitionPolicy struct {
	graph map[MembershipStatus]map[MembershipStatus]struct{}
}

// NewStaticTransitionPolicy creates a policy from a transition graph.
func NewStaticTransitionPolicy(graph map[MembershipStatus][]MembershipStatus) *StaticTransitionPolicy {
	internal := make(map[MembershipStatus]map[MembershipStatus]struct{}, len(graph))
	for from, targets := range graph {
		targetSet := make(map[MembershipStatus]struct{}, len(targets))
		for _, to := range targets {
			if to == "" {
				continue
			}
			targetSet[to] = struct{}{}
		}
		internal[from] = targetSet
	}
	return &StaticTransitionPolicy{graph: internal}
}

// DefaultTransitionPolicy only lets group admins decide pending memberships;
// a declined membership may be reconsidered.
func DefaultTransitionPolicy() *StaticTransitionPolicy {
	return NewStaticTransitionPolicy(map[MembershipStatus][]MembershipStatus{
		MembershipStatusPending:  {MembershipStatusApproved, MembershipStatusDeclined},
		MembershipStatusDeclined: {MembershipStatusApproved},
	})
}

// Validate ensures the target is allowed from the current status.
func (p *StaticTransitionPolicy) Validate(current, target MembershipStatus) error {
	if current == "" || target == "" {
		return ErrTransitionNotAllowed
	}
	targets, ok := p.graph[current]
	if !ok {
		return ErrTransitionNotAllowed
	}
	if _, ok := targets[target]; !ok {
		return ErrTransitionNotAllowed
	}
	return nil
}

// AllowedTargets returns the slice of valid targets from the provided status.
func (p *StaticTransitionPolicy) AllowedTargets(current MembershipStatus) []MembershipStatus {
	targets := p.graph[current]
	if len(targets) == 0 {
		return nil
	}
	out := make([]MembershipStatus, 0, len(targets))
	for target := range targets {
		out = append(out, target)
	}
	return out
}
