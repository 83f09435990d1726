package httpx

import (
	"context"
	"net/http"
	"strings"
)

// Headers set by the gateway once a session is authenticated. Services behind
// the gateway trust them; they are stripped from inbound client requests.
const (
	HeaderUserID    = "X-User-ID"
	HeaderRequestID = "X-Request-ID"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	requestIDKey
)

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFrom returns the authenticated user id, or "" for anonymous callers.
func UserIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Identity copies the gateway identity headers into the request context.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if userID := strings.TrimSpace(r.Header.Get(HeaderUserID)); userID != "" {
			ctx = WithUserID(ctx, userID)
		}
		if reqID := r.Header.Get(HeaderRequestID); reqID != "" {
			ctx = WithRequestID(ctx, reqID)
			w.Header().Set(HeaderRequestID, reqID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFrom(r.Context()) == "" {
			Unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
