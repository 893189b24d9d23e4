// Package command exposes go-command compatible handlers implementing the
// referral workflows: provisioning a referred person, resending the
// verification email and deciding pending memberships. Commands are wired by
// the service layer and can be invoked by any transport.
package command
