// Package owner carries the authenticated owner id through request
// context. Authentication itself happens outside this service; the engine
// only consumes the id the outer layer resolved.
package owner

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const ownerContextKey ctxKey = "dayboard.owner"

// HeaderName is set by the authenticating reverse proxy in front of the
// service.
const HeaderName = "X-Dayboard-Owner"

func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerContextKey, ownerID)
}

func FromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ownerContextKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Require extracts the owner id from the request header and rejects
// requests without one.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderName))
		if id == "" {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing owner identity"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), id)))
	})
}
