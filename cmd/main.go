package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Abhi773925/compiler-design-sub002/config"
	"github.com/Abhi773925/compiler-design-sub002/internal/bus"
	"github.com/Abhi773925/compiler-design-sub002/internal/postgres"
	"github.com/Abhi773925/compiler-design-sub002/internal/service"
	httpx "github.com/Abhi773925/compiler-design-sub002/internal/transport/http"
	"github.com/Abhi773925/compiler-design-sub002/internal/transport/ws"
	"github.com/Abhi773925/compiler-design-sub002/internal/upstream"
	"github.com/Abhi773925/compiler-design-sub002/internal/worker"
	"github.com/Abhi773925/compiler-design-sub002/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting session-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- postgres ---
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:             cfg.Postgres.DSN,
		MaxConns:        cfg.Postgres.MaxConns,
		MinConns:        cfg.Postgres.MinConns,
		ApplicationName: cfg.Logging.Service,
	})
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	// --- repos & services ---
	sessionRepo := postgres.NewSessionRepository(pool)
	sessionSvc := service.NewSessionService(sessionRepo)
	presenceSvc := service.NewPresenceService(sessionRepo)

	// --- upstream clients ---
	execClient := upstream.NewExecClient(cfg.Exec.URL, cfg.ExecTimeout())
	oauthClient := upstream.NewOAuthClient(
		cfg.OAuth.TokenURL, cfg.OAuth.ProfileURL,
		cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, cfg.OAuth.RedirectURI)

	// --- WS Hub & Server ---
	hub := ws.NewHub()

	var publisher ws.Publisher
	runCtx, stopBus := context.WithCancel(ctx)
	defer stopBus()
	if cfg.Bus.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		rb := bus.NewRedisBus(rdb)
		publisher = rb
		go func() {
			if err := rb.Run(runCtx, hub); err != nil && runCtx.Err() == nil {
				slog.Error("bus stopped", "err", err)
			}
		}()
	}

	wsServer := ws.NewServer(hub, sessionSvc, presenceSvc, publisher)

	// --- HTTP ---
	handler := httpx.NewHandler(sessionSvc, presenceSvc, execClient, oauthClient)
	router := httpx.NewRouter(handler, presenceSvc, wsServer, httpx.RouterConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateRPS:        cfg.RateLimit.RPS,
		RateBurst:      cfg.RateLimit.Burst,
	})
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- background worker (sweep) ---
	wrk, err := worker.New(cfg.Redis.Addr, cfg.Sweep.Interval, sessionSvc)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	// --- run ---
	errCh := make(chan error, 2)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go func() {
		if err := wrk.Run(); err != nil {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopBus()
	wrk.Shutdown()
	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
