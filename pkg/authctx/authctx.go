// Package authctx maps go-auth middleware payloads onto the ActorRef recorded
// with referral activity. Public sign-up traffic carries no actor, so lookups
// that find nothing fall back to an anonymous reference.
package authctx

import (
	"context"

	auth "github.com/goliatone/go-auth"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-referrals/pkg/types"
	"github.com/google/uuid"
)

// AnonymousActorType tags requests served without an authenticated actor.
const AnonymousActorType = "anonymous"

const (
	textCodeActorMissing = "ACTOR_CONTEXT_MISSING"
	textCodeActorInvalid = "ACTOR_CONTEXT_INVALID"
)

// ResolveActorContext returns the actor stored by go-auth middleware or
// rebuilds it from JWT claims.
func ResolveActorContext(ctx context.Context) (*auth.ActorContext, error) {
	if ctx == nil {
		return nil, errors.New("go-referrals: missing request context", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode(textCodeActorMissing)
	}

	if actor, ok := auth.ActorFromContext(ctx); ok && actor != nil {
		return actor, nil
	}

	if claims, ok := auth.GetClaims(ctx); ok && claims != nil {
		if actor := auth.ActorContextFromClaims(claims); actor != nil {
			return actor, nil
		}
	}

	return nil, errors.New("go-referrals: auth actor context not found on request", errors.CategoryAuth).
		WithCode(errors.CodeUnauthorized).
		WithTextCode(textCodeActorMissing)
}

// ActorRefFromActorContext converts the middleware payload into an ActorRef.
func ActorRefFromActorContext(actor *auth.ActorContext) (types.ActorRef, error) {
	if actor == nil {
		return types.ActorRef{}, errors.New("go-referrals: actor context is nil", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode(textCodeActorInvalid)
	}
	if actor.ActorID == "" {
		return types.ActorRef{}, errors.New("go-referrals: actor context missing actor_id", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode(textCodeActorInvalid)
	}

	actorID, err := uuid.Parse(actor.ActorID)
	if err != nil {
		return types.ActorRef{}, errors.Wrap(err, errors.CategoryAuth, "go-referrals: invalid actor_id on auth context").
			WithCode(errors.CodeUnauthorized).
			WithTextCode(textCodeActorInvalid)
	}

	ref := types.ActorRef{ID: actorID, Type: actor.Role}
	if ref.Type == "" && actor.Subject != "" {
		ref.Type = actor.Subject
	}
	return ref, nil
}

// ActorOrAnonymous resolves the request actor. It never fails: missing or
// malformed payloads yield an anonymous ActorRef with a nil id.
func ActorOrAnonymous(ctx context.Context) types.ActorRef {
	actor, err := ResolveActorContext(ctx)
	if err != nil {
		return types.ActorRef{Type: AnonymousActorType}
	}
	ref, err := ActorRefFromActorContext(actor)
	if err != nil {
		return types.ActorRef{Type: AnonymousActorType}
	}
	return ref
}
