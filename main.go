package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebaseSDK "firebase.google.com/go/v4"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"habitTrackerAPI/handlers"
	"habitTrackerAPI/internal/config"
	"habitTrackerAPI/internal/firebase"
	"habitTrackerAPI/internal/logger"
	"habitTrackerAPI/internal/session"
	"habitTrackerAPI/internal/types/habit"
	"habitTrackerAPI/middleware"
	"habitTrackerAPI/services"
)

const devUserID = "dev-user"

// backend holds whatever the configured store and verifier need to be shut down.
type backend struct {
	store    services.HabitStore
	pinger   services.Pinger
	verifier session.Verifier
	closers  []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Invalid configuration:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.IsDevelopment())
	defer log.Sync()

	services.RegisterMetrics(prometheus.DefaultRegisterer)
	middleware.RegisterMetrics(prometheus.DefaultRegisterer)

	// client constructors keep ctx for their lifetime, so no deadline here
	b, err := setupBackend(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize backend", zap.Error(err))
	}
	defer func() {
		log.Info("Closing habit store connections...")
		b.Close()
	}()

	trackerHandler := handlers.NewMonthlyTrackerHandler(b.store, log, cfg.LandingPath)
	socketHandler := handlers.NewTrackerSocketHandler(b.store, b.verifier, log, cfg.LandingPath, cfg.AllowedOrigins)
	pageHandler := handlers.NewPageHandler(b.pinger, log)

	sessionMiddleware := middleware.SessionMiddleware(b.verifier, log)
	rateLimiter := middleware.NewRateLimiter(5, 10)

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go rateLimiter.Cleanup(rootCtx)

	r := mux.NewRouter()

	// hijacked connections skip the wrapping middleware below
	r.Handle(handlers.TrackerSocketPath, sessionMiddleware(http.HandlerFunc(socketHandler.Connect))).Methods("GET")

	standardRouter := r.PathPrefix("/").Subrouter()
	standardRouter.Use(rateLimiter.Middleware)
	standardRouter.Use(middleware.MonitorMiddleware)
	standardRouter.Use(sessionMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass)(promhttp.Handler()))
	standardRouter.HandleFunc("/health", pageHandler.Health).Methods("GET")
	standardRouter.HandleFunc(cfg.LandingPath, pageHandler.ServeLanding).Methods("GET")

	standardRouter.HandleFunc(handlers.TrackerPath, trackerHandler.ServePage).Methods("GET")
	standardRouter.HandleFunc(handlers.TogglePath, trackerHandler.ToggleForm).Methods("POST")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER OR SESSION COOKIE)
	// -------------------------------------------------------------------------
	protected := standardRouter.PathPrefix("/api/v1").Subrouter()
	protected.Use(middleware.RequireSession)

	protected.HandleFunc("/monthly-tracker", trackerHandler.GetGrid).Methods("GET")
	protected.HandleFunc("/monthly-tracker/toggle", trackerHandler.Toggle).Methods("POST")

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins(origins),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := ":" + cfg.Port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("Starting server", zap.String("port", port),
			zap.String("store", cfg.HabitStore), zap.String("auth", cfg.AuthProvider))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Got signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	log.Info("Server shutdown complete")
}

func setupBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backend, error) {
	b := &backend{}

	var app *firebaseSDK.App
	if cfg.NeedsFirebase() {
		var err error
		app, err = firebase.NewApp(ctx, firebase.Credentials{
			EncodedJSON: cfg.FirebaseCredentialsJSON,
			File:        cfg.FirebaseCredentialsFile,
			ProjectID:   cfg.FirebaseProjectID,
		}, log)
		if err != nil {
			return nil, err
		}
	}

	switch cfg.HabitStore {
	case config.StoreFirestore:
		client, err := firebase.NewFirestore(ctx, app)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { client.Close() })
		store := services.NewFirestoreHabitStore(client, log)
		b.store, b.pinger = store, store

	case config.StorePostgres:
		dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pool, err := newPool(dbCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		log.Info("Successfully connected to Postgres")

		store := services.NewPostgresHabitStore(pool, log)
		b.closers = append(b.closers, store.Close)
		if err := store.EnsureSchema(dbCtx); err != nil {
			b.Close()
			return nil, err
		}
		b.store, b.pinger = store, store

	case config.StoreMemory:
		store := services.NewMemoryHabitStore(log)
		b.store, b.pinger = store, store
	}

	switch cfg.AuthProvider {
	case config.AuthFirebase:
		v, err := session.NewFirebaseVerifier(ctx, app)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.verifier = v

	case config.AuthClerk:
		v, err := session.NewClerkVerifier(cfg.ClerkSecretKey)
		if err != nil {
			b.Close()
			return nil, err
		}
		log.Info("Clerk initialized successfully")
		b.verifier = v

	case config.AuthLocal:
		v, err := session.NewLocalVerifier(cfg.LocalAuthSecret)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.verifier = v
		if cfg.IsDevelopment() {
			seedDevelopment(ctx, b.store, v, log)
		}
	}

	return b, nil
}

func newPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

type habitCreator interface {
	CreateHabit(ctx context.Context, userID, name string) (habit.Habit, error)
}

// seedDevelopment gives the development user a few habits and logs a token for them.
func seedDevelopment(ctx context.Context, store services.HabitStore, v *session.LocalVerifier, log *zap.Logger) {
	token, err := v.Issue(devUserID, 24*time.Hour)
	if err != nil {
		log.Warn("Could not issue development token", zap.Error(err))
		return
	}
	log.Info("Development session", zap.String("user_id", devUserID), zap.String("token", token))

	creator, ok := store.(habitCreator)
	if !ok {
		return
	}
	existing, err := store.ListHabits(ctx, devUserID)
	if err != nil || len(existing) > 0 {
		return
	}
	for _, name := range []string{"Exercise", "Read", "Meditate"} {
		if _, err := creator.CreateHabit(ctx, devUserID, name); err != nil {
			log.Warn("Could not seed habit", zap.String("name", name), zap.Error(err))
			return
		}
	}
}
