package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
)

const userIDHeader = "X-Telegram-User-Id"

type ctxKey int

const userIDKey ctxKey = iota

// requireTelegramUser rejects requests without a positive Telegram user id.
func requireTelegramUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(userIDHeader)), 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Не передан идентификатор пользователя Telegram"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, id)))
	})
}

func userIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}

func basicAuth(username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || password == "" ||
				subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 ||
				subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="contentbot"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
