// Package handler exposes the referral workflow over HTTP using go-router.
//
// The provisioning and verification endpoints always answer HTTP 200 and
// report the outcome through the `ok` field of the JSON body, because the
// mobile client treats any non-2xx status as a transport failure. Admin
// endpoints (listings and membership decisions) use regular status codes.
package handler
