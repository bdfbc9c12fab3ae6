package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	ctxActor    contextKey = "actor"
	actorHeader            = "X-Actor"
	maxActorLen            = 100
)

// Actor copies the free-text operator label from X-Actor into the request
// context. It is an audit label only and grants nothing.
func Actor() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := strings.TrimSpace(r.Header.Get(actorHeader))
			if len(actor) > maxActorLen {
				actor = actor[:maxActorLen]
			}
			if actor != "" {
				r = r.WithContext(WithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithActor(ctx context.Context, actor string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

// ActorFromContext returns the operator label, or "" when none was sent.
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxActor).(string); ok {
		return v
	}
	return ""
}
