package server

import (
	"context"
	"net/http"
)

type contextKey string

const userIDKey contextKey = "userID"

// Authenticator requires an X-User-Id header on every API request and puts
// the caller's id on the request context. Identity verification is delegated
// to the gateway in front of this service.
func Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "X-User-Id header required"})
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}
