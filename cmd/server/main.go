package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/quantumnexus/journal-engine/internal/api"
	"github.com/quantumnexus/journal-engine/internal/config"
	"github.com/quantumnexus/journal-engine/internal/engine"
	"github.com/quantumnexus/journal-engine/internal/hub"
	"github.com/quantumnexus/journal-engine/internal/loghub"
	"github.com/quantumnexus/journal-engine/internal/metrics"
	"github.com/quantumnexus/journal-engine/internal/source"
	"github.com/quantumnexus/journal-engine/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	broadcast := hub.New()
	ring := loghub.NewRing(500)

	inner := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(loghub.NewHandler(inner, ring, func(e loghub.Entry) {
		broadcast.PublishLog(e.Timestamp, e.Level, e.Message)
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var st store.Store
	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			slog.Error("connect postgres", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		st = store.NewPostgresStore(pool)
		slog.Info("using postgres store")
	} else {
		st = store.NewMemoryStore()
		slog.Warn("no database configured, trades held in memory only")
	}

	var cache *store.StatsCache
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.Error("parse redis url", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		cache = store.NewStatsCache(rdb, cfg.Redis.TTL)
		slog.Info("analytics caching enabled")
	}

	var live source.Source
	if cfg.Source.BridgeURL != "" {
		live = source.NewBridge(cfg.Source.BridgeURL, cfg.Source.Timeout)
		slog.Info("terminal bridge configured", "url", cfg.Source.BridgeURL)
	} else {
		slog.Info("no terminal bridge configured, running on synthetic data")
	}

	eng, err := engine.New(cfg, st, live, broadcast, cache)
	if err != nil {
		slog.Error("create engine", "err", err)
		os.Exit(1)
	}

	go broadcast.Run(ctx)
	go eng.Run(ctx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	srv := api.NewServer(eng, broadcast, ring)
	r.Route("/api/v1", srv.Routes)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "port", cfg.Server.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
