package main

import (
	"context"
	"encoding/json"
	"fmt"
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

	"github.com/zionworld/futures-engine/internal/api"
	"github.com/zionworld/futures-engine/internal/audit"
	"github.com/zionworld/futures-engine/internal/metrics"
	"github.com/zionworld/futures-engine/internal/monopoly"
	"github.com/zionworld/futures-engine/internal/snapshot"
	"github.com/zionworld/futures-engine/internal/state"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Host state ---
	st := state.New()
	var cleanup []func()

	// Optional trade-log audit mirror in PostgreSQL.
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		sink, err := audit.NewPostgresSink(context.Background(), pool)
		if err != nil {
			slog.Error("audit schema setup failed", "err", err)
			os.Exit(1)
		}
		st.SetLogSink(sink)
		slog.Info("trade-log audit mirror enabled")
	}

	// Optional wholesale state snapshots in Redis.
	var snapStore *snapshot.RedisStore
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		snapStore = snapshot.NewRedisStore(rdb, os.Getenv("SNAPSHOT_KEY"))

		snap, ok, err := snapStore.Load(context.Background())
		if err != nil {
			slog.Error("snapshot load failed", "err", err)
			os.Exit(1)
		}
		if ok {
			st.Import(snap)
			slog.Info("state restored from snapshot", "contracts", len(snap.Contracts))
		}
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// Optional guild directory: GUILDS is a JSON object of player → guild.
	var guilds monopoly.StaticGuilds
	if raw := os.Getenv("GUILDS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &guilds); err != nil {
			slog.Error("invalid GUILDS mapping", "err", err)
			os.Exit(1)
		}
		slog.Info("guild directory loaded", "members", len(guilds))
	}

	// --- WebSocket hub ---
	hub := api.NewWSHub()
	go hub.Run()

	// --- API service ---
	svc := api.NewService(st, guilds, hub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"futures-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time market events.
		r.Get("/ws", hub.HandleWS)

		svc.Routes(r)

		// On-demand wholesale state snapshot.
		r.Post("/snapshot", func(w http.ResponseWriter, req *http.Request) {
			if snapStore == nil {
				http.Error(w, `{"error":"snapshots not configured"}`, http.StatusServiceUnavailable)
				return
			}
			if err := snapStore.Save(req.Context(), st.Export()); err != nil {
				http.Error(w, `{"error":"snapshot save failed"}`, http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"saved"}`))
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("futures-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down futures-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}

	// Final snapshot so a restart resumes where the world left off.
	if snapStore != nil {
		if err := snapStore.Save(context.Background(), st.Export()); err != nil {
			slog.Error("final snapshot failed", "err", err)
		}
	}
	fmt.Println("futures-engine stopped")
}
