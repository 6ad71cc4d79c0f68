package httpmw

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HeartbeatMiddleware обновляет lastSeen для {roomID,userID}, если roomID есть в пути.
type HeartbeatToucher interface {
	Heartbeat(ctx context.Context, roomID, userID string) error
}

func HeartbeatMiddleware(presence HeartbeatToucher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := UserIDFromCtx(r.Context()); userID != "" {
				if roomID := chi.URLParam(r, "id"); roomID != "" {
					// best-effort: ошибки не прерывают запрос
					_ = presence.Heartbeat(r.Context(), roomID, userID)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
