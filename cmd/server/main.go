package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"coachdesk-backend/internal/config"
	"coachdesk-backend/internal/database"
	"coachdesk-backend/internal/handlers"
	"coachdesk-backend/internal/identity"
	"coachdesk-backend/internal/middleware"
	"coachdesk-backend/internal/repository"
	"coachdesk-backend/internal/router"
	"coachdesk-backend/internal/stopwatch"
)

func main() {
	log.Println("🚀 Starting CoachDesk stopwatch backend...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("✗ %v", err)
	}
	loc, _ := cfg.Location()
	log.Printf("✓ Environment variables loaded (reference timezone %s)", loc)

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, database.PoolOptions{})
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Step 5: Wire the Stopwatch ────
	sessionRepo := repository.NewStudySessionRepo(pool)
	profileRepo := repository.NewProfileRepo(pool)
	identityProvider := identity.NewProvider(redisClients.PubSub)

	svc := stopwatch.NewService(sessionRepo, identityProvider, stopwatch.RealClock{}, stopwatch.Options{
		Location:      loc,
		StaleAfter:    cfg.StaleAfter(),
		WarningWindow: cfg.WarningWindow(),
	})
	defer svc.Close()

	monitor := stopwatch.NewMonitor(
		svc,
		sessionRepo,
		database.NewRedisLocker(redisClients.Locks),
		cfg.DayCheckInterval(),
		cfg.WarningInterval(),
	)

	// ──── Step 6: Build HTTP Server ────
	r := router.New(
		middleware.NewJWTAuth(cfg.JWTSecret),
		router.Handlers{
			Auth:      handlers.NewAuthHandler(identityProvider),
			Stopwatch: handlers.NewStopwatchHandler(svc),
			Students:  handlers.NewStudentHandler(svc, profileRepo),
		},
		middleware.NewRateLimiter(cfg.RateLimitPerMinute),
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("✓ Stopwatch backend ready on http://localhost:%s", cfg.Port)
		log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return monitor.Run(gctx)
	})

	g.Go(func() error {
		log.Println("✓ Auth event listener started")
		return identityProvider.Listen(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		monitor.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("✗ Server error: %v", err)
	}
}
