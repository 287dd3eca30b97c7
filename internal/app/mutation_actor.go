package app

import (
	"context"
	"strings"
)

// ActorType identifies who issued a layout mutation.
type ActorType string

// ActorTypeUser and related constants define supported actor kinds.
const (
	ActorTypeUser   ActorType = "user"
	ActorTypeAgent  ActorType = "agent"
	ActorTypeSystem ActorType = "system"
)

// MutationActor carries normalized caller identity for layout events.
type MutationActor struct {
	ActorID   string
	ActorType ActorType
}

// WithMutationActor attaches normalized actor metadata to context.
func WithMutationActor(ctx context.Context, actor MutationActor) context.Context {
	actor = normalizeMutationActor(actor)
	return context.WithValue(ctx, mutationActorContextKey{}, actor)
}

// MutationActorFromContext returns normalized actor metadata when present.
func MutationActorFromContext(ctx context.Context) (MutationActor, bool) {
	raw := ctx.Value(mutationActorContextKey{})
	actor, ok := raw.(MutationActor)
	if !ok {
		return MutationActor{}, false
	}
	actor = normalizeMutationActor(actor)
	if actor.ActorID == "" {
		return MutationActor{}, false
	}
	return actor, true
}

type mutationActorContextKey struct{}

func normalizeMutationActor(actor MutationActor) MutationActor {
	actor.ActorID = strings.TrimSpace(actor.ActorID)
	actor.ActorType = ActorType(strings.TrimSpace(strings.ToLower(string(actor.ActorType))))
	switch actor.ActorType {
	case ActorTypeUser, ActorTypeAgent, ActorTypeSystem:
	default:
		actor.ActorType = ActorTypeUser
	}
	return actor
}

// actorMetadata stamps actor fields onto event metadata.
func actorMetadata(ctx context.Context, metadata map[string]string) map[string]string {
	if metadata == nil {
		metadata = map[string]string{}
	}
	actor, ok := MutationActorFromContext(ctx)
	if !ok {
		actor = MutationActor{ActorID: "local", ActorType: ActorTypeUser}
	}
	metadata["actor_id"] = actor.ActorID
	metadata["actor_type"] = string(actor.ActorType)
	return metadata
}
