package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/qrclaim/server/internal/auth"
	"github.com/qrclaim/server/internal/config"
	"github.com/qrclaim/server/internal/db"
	httphandler "github.com/qrclaim/server/internal/http"
	"github.com/qrclaim/server/internal/http/handlers"
	"github.com/qrclaim/server/internal/jobs"
	"github.com/qrclaim/server/internal/redeem"
	"github.com/qrclaim/server/internal/repo"
	"github.com/qrclaim/server/internal/sms"
	"github.com/qrclaim/server/internal/verify"
	_ "github.com/lib/pq"
)

func main() {
	// Load .env from CWD (env vars override)
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	// Open database connection
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Wire the two engines
	tokenRepo := repo.NewTokenRepo(database)
	ledger := redeem.NewService(tokenRepo)

	verifier := verify.NewEngine(sms.NewLogSender())
	sessions := auth.NewSessionService(cfg.JWTSecret)

	// Initialize handlers
	otpHandler := handlers.NewOTPHandler(verifier, sessions, cfg.DevMode)
	claimHandler := handlers.NewClaimHandler(ledger)
	adminHandler := handlers.NewAdminHandler(ledger, cfg.AdminToken)

	// Create router
	router := httphandler.NewRouter(otpHandler, claimHandler, adminHandler, sessions)

	// Background jobs: sweep abandoned codes, log a daily claim summary
	scheduler, err := jobs.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create job scheduler: %v", err)
	}
	registerJobs(scheduler, verifier, ledger)
	scheduler.Start()

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	if err := scheduler.Shutdown(); err != nil {
		log.Printf("Job scheduler shutdown: %v", err)
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// registerJobs wires the background jobs onto the scheduler
func registerJobs(scheduler *jobs.Scheduler, verifier *verify.Engine, ledger *redeem.Service) {
	err := scheduler.RegisterInterval(time.Minute, jobs.Job{
		Name: "sweep-expired-codes",
		Run: func(ctx context.Context) error {
			if removed := verifier.Sweep(); removed > 0 {
				log.Printf("Swept %d expired code entries", removed)
			}
			return nil
		},
	})
	if err != nil {
		log.Fatalf("Failed to register sweep job: %v", err)
	}

	err = scheduler.RegisterCron("0 0 * * *", jobs.Job{
		Name:    "claim-summary",
		Timeout: 30 * time.Second,
		Run: func(ctx context.Context) error {
			total, err := ledger.TotalClaims(ctx)
			if err != nil {
				return err
			}
			log.Printf("Claim summary: %d total claims", total)
			return nil
		},
	})
	if err != nil {
		log.Fatalf("Failed to register summary job: %v", err)
	}
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the module root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
