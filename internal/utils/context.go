package utils

import (
	"context"
)

type contextKey string

const (
	ContextActorKey      contextKey = "actor"
	ContextProvenanceKey contextKey = "provenance"
)

// Provenance describes who sent a request and from where. It ends up in audit rows.
type Provenance struct {
	Actor     string
	ClientIP  string
	UserAgent string
	RequestID string
}

func WithProvenance(ctx context.Context, p Provenance) context.Context {
	ctx = context.WithValue(ctx, ContextProvenanceKey, p)
	if p.Actor != "" {
		ctx = context.WithValue(ctx, ContextActorKey, p.Actor)
	}
	return ctx
}

func GetActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(ContextActorKey).(string)
	return actor, ok && actor != ""
}

func GetProvenanceFromContext(ctx context.Context) Provenance {
	p, _ := ctx.Value(ContextProvenanceKey).(Provenance)
	return p
}
