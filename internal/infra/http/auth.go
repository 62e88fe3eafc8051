package http

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const userIDKey contextKey = "user_id"

// TokenVerifier проверяет токен и возвращает ID читателя.
type TokenVerifier interface {
	VerifyToken(raw string) (int64, error)
}

// BearerAuthMiddleware проверяет заголовок Authorization: Bearer и кладёт
// ID читателя в контекст запроса.
func BearerAuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "токен отсутствует", http.StatusUnauthorized)
				return
			}
			userID, err := verifier.VerifyToken(token)
			if err != nil {
				http.Error(w, "токен недействителен", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthUserID возвращает ID читателя из контекста запроса.
func AuthUserID(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(userIDKey).(int64)
	return id, ok
}
