package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Abhi773925/compiler-design-sub002/internal/metrics"
	httpmw "github.com/Abhi773925/compiler-design-sub002/internal/transport/http/middleware"
	"github.com/Abhi773925/compiler-design-sub002/internal/transport/ws"
)

type RouterConfig struct {
	AllowedOrigins []string
	RateRPS        float64
	RateBurst      int
}

func NewRouter(h *Handler, presence httpmw.HeartbeatToucher, wsServer *ws.Server, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID", "X-User-Name"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.RateRPS > 0 {
		rl := httpmw.NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
		r.Use(rl.Middleware)
	}

	// WS endpoint: identity приходит query-параметрами, не заголовками
	r.Get("/ws/sessions/{id}", wsServer.HandleWS)

	r.Route("/api", func(api chi.Router) {
		api.Use(httpmw.AuthMiddleware)
		api.Use(middlewareChi.Timeout(30 * time.Second))

		api.Route("/sessions", func(sr chi.Router) {
			sr.Post("/", h.CreateSession)

			sr.Route("/{id}", func(rr chi.Router) {
				rr.Use(httpmw.HeartbeatMiddleware(presence))

				rr.Get("/", h.GetSession)
				rr.Put("/", h.UpdateSession)
				rr.Delete("/", h.DeleteSession)

				rr.Get("/files", h.ListFiles)
				rr.Get("/files/{fileId}", h.GetFile)
				rr.Put("/files/{fileId}", h.UpsertFile)
				rr.Delete("/files/{fileId}", h.DeleteFile)

				rr.Post("/messages", h.AppendMessage)
			})
		})

		api.Get("/users/{userId}/sessions", h.ListUserSessions)

		api.Post("/execute", h.Execute)
		api.Post("/oauth/exchange", h.OAuthExchange)
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	return r
}
