package httpmw

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const (
	ctxKeyToken    ctxKey = "token"
	ctxKeyUserID   ctxKey = "user_id"
	ctxKeyUserName ctxKey = "user_name"
)

// простая авторизация: требуем Bearer + X-User-ID, токен не валидируем —
// identity непрозрачная строка, её выдаёт внешний OAuth-слой
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || len(auth) <= 7 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing bearer token"}`))
			return
		}

		uid := r.Header.Get("X-User-ID")
		if uid == "" {
			http.Error(w, `{"error":"missing X-User-ID"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyToken, strings.TrimSpace(auth[7:]))
		ctx = context.WithValue(ctx, ctxKeyUserID, uid)
		if name := r.Header.Get("X-User-Name"); name != "" {
			ctx = context.WithValue(ctx, ctxKeyUserName, name)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserIDFromCtx(ctx context.Context) string {
	if v := ctx.Value(ctxKeyUserID); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

func UserNameFromCtx(ctx context.Context) string {
	if v := ctx.Value(ctxKeyUserName); v != nil {
		if name, ok := v.(string); ok {
			return name
		}
	}
	return ""
}
