package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commitpact-backend/internal/config"
	"commitpact-backend/internal/database"
	"commitpact-backend/internal/handlers"
	"commitpact-backend/internal/ledger"
	"commitpact-backend/internal/middleware"
	"commitpact-backend/internal/repository"
	"commitpact-backend/internal/router"
	"commitpact-backend/internal/services"
	"commitpact-backend/internal/websocket"
	"commitpact-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting CommitPact Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	studyRepo := repository.NewStudyRepo(pool)
	participantRepo := repository.NewParticipantRepo(pool)
	sessionRepo := repository.NewSessionRepo(pool)
	attendanceRepo := repository.NewAttendanceRepo(pool)

	// ──── Step 5: Initialize Ledger Client ────
	ledgerClient := ledger.NewClient(
		cfg.LedgerBaseURL,
		cfg.LedgerAPIKey,
		time.Duration(cfg.LedgerTimeoutSeconds)*time.Second,
	)
	log.Println("✓ Ledger client initialized")

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	orchestrator := services.NewOrchestrator(
		participantRepo,
		sessionRepo,
		attendanceRepo,
		ledgerClient,
		redisClients.Queue,
		cfg.LocalUTCOffsetSeconds,
	)

	// ──── Step 6: Start Commit Worker Pool ────
	workerPool := worker.NewPool(redisClients.Queue, orchestrator, cfg.WorkerCount, cfg.EventMaxRetries)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	// ──── Step 7: Start Closure Scheduler ────
	closer := services.NewCloser(
		sessionRepo,
		attendanceRepo,
		ledgerClient,
		emailService,
		redisClients.Queue,
		cfg.AlertsTo,
		time.Duration(cfg.ClosePassIntervalMinutes)*time.Minute,
		time.Duration(cfg.AckSweepIntervalMinutes)*time.Minute,
		time.Duration(cfg.PastDueAlertHours)*time.Hour,
	)
	closer.Start()
	log.Println("✓ Closure scheduler started")

	// ──── Step 8: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, cfg.JWTSecret)
	log.Println("✓ WebSocket hub started")

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(jwtAuth, cfg.AdminPasswordHash)
	webhookHandler := handlers.NewWebhookHandler(redisClients.Queue)
	studyHandler := handlers.NewStudyHandler(studyRepo, participantRepo)
	sessionHandler := handlers.NewSessionHandler(sessionRepo, attendanceRepo, closer)

	// ──── Step 9: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		authHandler,
		webhookHandler,
		studyHandler,
		sessionHandler,
		wsHub,
		cfg.OpsOrigin,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()
		closer.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ CommitPact Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
