package handler

import "github.com/goliatone/go-router"

// Handlers groups the HTTP handlers mounted by RegisterRoutes. Nil handlers
// are skipped.
type Handlers struct {
	Referrals    *ReferralHandler
	Memberships  *MembershipHandler
	Verification *VerificationHandler
}

// RegisterRoutes mounts the referral endpoints on r. The provisioning handler
// is bound to every write method and answers non-POST calls itself.
func RegisterRoutes[T any](r router.Router[T], h Handlers, mw ...router.MiddlewareFunc) {
	if h.Referrals != nil {
		r.Post("/referrals", h.Referrals.Provision, mw...)
		r.Put("/referrals", h.Referrals.Provision, mw...)
		r.Patch("/referrals", h.Referrals.Provision, mw...)
		r.Delete("/referrals", h.Referrals.Provision, mw...)
		r.Get("/referrals", h.Referrals.List, mw...)
	}
	if h.Memberships != nil {
		r.Get("/groups/:id/memberships", h.Memberships.List, mw...)
		r.Post("/memberships/:id/decision", h.Memberships.Decide, mw...)
		r.Get("/groups/:id/stats", h.Memberships.Stats, mw...)
	}
	if h.Verification != nil {
		r.Get("/verify", h.Verification.Confirm)
	}
}
