package types

import "testing"

func TestStaticTransitionPolicyValidate(t *testing.T) {
	policy := DefaultTransitionPolicy()

	if err := policy.Validate(MembershipStatusPending, MembershipStatusApproved); err != nil {
		t.Fatalf("expected pending->approved to be allowed: %v", err)
	}

	if err := policy.Validate(MembershipStatusDeclined, MembershipStatusApproved); err != nil {
		t.Fatalf("expected declined->approved allowed: %v", err)
	}

	if err := policy.Validate(MembershipStatusApproved, MembershipStatusPending); err == nil {
		t.Fatalf("expected approved->pending to be rejected")
	}

	if err := policy.Validate("", MembershipStatusApproved); err == nil {
		t.Fatalf("expected empty current status to be rejected")
	}
}

func TestStaticTransitionPolicyAllowedTargets(t *testing.T) {
	policy := DefaultTransitionPolicy()
	targets := policy.AllowedTargets(MembershipStatusPending)
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets for pending, got %d", len(targets))
	}
	if got := policy.AllowedTargets(MembershipStatusApproved); got != nil {
		t.Fatalf("expected no targets for approved, got %v", got)
	}
}

func TestProfilePatchEmpty(t *testing.T) {
	if !(ProfilePatch{}).Empty() {
		t.Fatalf("expected zero patch to be empty")
	}
	name := "Ada"
	if (ProfilePatch{Name: &name}).Empty() {
		t.Fatalf("expected patch with name to be non-empty")
	}
}

func TestNormalizePagination(t *testing.T) {
	got := NormalizePagination(Pagination{Limit: 500, Offset: -3}, 25, 100)
	if got.Limit != 100 || got.Offset != 0 {
		t.Fatalf("unexpected pagination %+v", got)
	}
	got = NormalizePagination(Pagination{}, 25, 100)
	if got.Limit != 25 {
		t.Fatalf("expected default limit, got %d", got.Limit)
	}
}
