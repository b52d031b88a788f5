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

	"github.com/pennyflow/backend/internal/api"
	"github.com/pennyflow/backend/internal/bank"
	"github.com/pennyflow/backend/internal/config"
	"github.com/pennyflow/backend/internal/database"
	"github.com/pennyflow/backend/internal/jobs"
	"github.com/pennyflow/backend/internal/link"
	"github.com/pennyflow/backend/internal/session"
	"github.com/pennyflow/backend/internal/tokens"
	"github.com/pennyflow/backend/internal/truelayer"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
	}
	defer sqlDB.Close()

	// Run migrations
	if err := database.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Wire the open-banking core
	client := truelayer.NewClient(cfg.TrueLayer)
	store := tokens.NewStore(db)
	manager := tokens.NewManager(store, client)
	linker := link.NewHandler(client, store)
	svc := bank.NewService(client)
	sessions := session.NewStore(session.DefaultTTL)

	// Background link-session sweep
	scheduler := jobs.NewScheduler(sessions)
	scheduler.Start()
	defer scheduler.Stop()

	// Setup API router
	router := api.NewRouter(cfg, db, sessions, linker, manager, svc, client)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on port %d", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
