// Package activity persists the audit trail emitted by the referral workflow.
// The Repository implements types.ActivitySink for writes and ListActivity for
// the admin feed. Payloads are masked with go-masker before they are stored.
package activity
