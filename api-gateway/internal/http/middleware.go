package http

import (
	"net/http"
	"strings"

	"github.com/fjod/mood_store/pkg/httpx"
	"github.com/go-chi/chi/v5/middleware"
)

// Sessions maps bearer tokens to user ids.
type Sessions map[string]string

// ParseSessions reads "token:user" pairs; malformed entries are skipped.
func ParseSessions(pairs []string) Sessions {
	s := make(Sessions, len(pairs))
	for _, p := range pairs {
		token, user, ok := strings.Cut(strings.TrimSpace(p), ":")
		if !ok || token == "" || user == "" {
			continue
		}
		s[token] = user
	}
	return s
}

func (s Sessions) lookup(r *http.Request) (string, bool, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false, true
	}
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return "", true, false
	}
	user, ok := s[strings.TrimSpace(token)]
	return user, true, ok
}

// AuthMiddleware replaces any client supplied identity header with the user
// behind the bearer token. Requests without a token continue anonymously; an
// unknown token is rejected.
func AuthMiddleware(sessions Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Del(httpx.HeaderUserID)
			user, present, ok := sessions.lookup(r)
			if present && !ok {
				httpx.Unauthorized(w)
				return
			}
			if user != "" {
				r.Header.Set(httpx.HeaderUserID, user)
				r = r.WithContext(httpx.WithUserID(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDMiddleware forwards chi's request id to upstream services.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID != "" {
			r.Header.Set(httpx.HeaderRequestID, requestID)
			w.Header().Set(httpx.HeaderRequestID, requestID)
			r = r.WithContext(httpx.WithRequestID(r.Context(), requestID))
		}
		next.ServeHTTP(w, r)
	})
}
