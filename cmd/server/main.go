package main

import (
	"context"
	"errors"
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
	"github.com/shopspring/decimal"

	"github.com/OmChaurasia4399/carbonlink-hackathon/internal/auth"
	"github.com/OmChaurasia4399/carbonlink-hackathon/internal/catalog"
	"github.com/OmChaurasia4399/carbonlink-hackathon/internal/metrics"
	"github.com/OmChaurasia4399/carbonlink-hackathon/internal/model"
	"github.com/OmChaurasia4399/carbonlink-hackathon/internal/store"
	"github.com/OmChaurasia4399/carbonlink-hackathon/internal/trade"
)

// startingBalance is the cash every new account opens with.
var startingBalance = decimal.RequireFromString("5000.00")

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(context.Background()); err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Demo account ---
	// The API carries no auth; every request settles against this account.
	demoUser, err := ensureDemoUser(context.Background(), st)
	if err != nil {
		slog.Error("demo user provisioning failed", "err", err)
		os.Exit(1)
	}
	slog.Info("demo user ready", "id", demoUser.ID, "username", demoUser.Username)

	// --- WebSocket hub ---
	hub := trade.NewHub()
	go hub.Run()

	// --- Trade service + market catalog ---
	tradeSvc := trade.NewService(st, demoUser.ID, hub)
	market := catalog.New()

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

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"carbonlink-ledger"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// WebSocket endpoint for the real-time trade feed.
		r.Get("/ws", hub.HandleWS)

		// Ledger queries.
		r.Get("/portfolio", tradeSvc.GetPortfolio)
		r.Get("/trades", tradeSvc.GetTrades)
		r.Get("/balance", tradeSvc.GetBalance)

		// Trade execution.
		r.Post("/trade/buy", tradeSvc.BuyCredits)
		r.Post("/trade/sell", tradeSvc.SellCredits)

		// Static market content.
		r.Get("/projects", market.ListProjects)
		r.Get("/companies", market.ListCompanies)
		r.Get("/market/history", market.GetHistory)
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
		slog.Info("carbonlink ledger listening", "port", port)
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

	slog.Info("shutting down carbonlink ledger...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("carbonlink ledger stopped")
}

// ensureDemoUser looks up the demo account and creates it on first start
// with the default starting balance and a bcrypt-hashed password.
func ensureDemoUser(ctx context.Context, st store.Store) (*model.User, error) {
	username := os.Getenv("DEMO_USERNAME")
	if username == "" {
		username = "demo"
	}

	user, err := st.GetUserByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	password := os.Getenv("DEMO_PASSWORD")
	if password == "" {
		password = "demo"
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user = &model.User{
		Username: username,
		Password: hash,
		Balance:  startingBalance,
	}
	if err := st.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
