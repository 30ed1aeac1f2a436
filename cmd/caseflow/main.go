package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caseflowhq/caseflow/internal/activity"
	"github.com/caseflowhq/caseflow/internal/config"
	"github.com/caseflowhq/caseflow/internal/crypto"
	"github.com/caseflowhq/caseflow/internal/db"
	"github.com/caseflowhq/caseflow/internal/scheduler"
	syncengine "github.com/caseflowhq/caseflow/internal/sync"
	"github.com/caseflowhq/caseflow/internal/web"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting CaseFlow calendar sync...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	encryptor, err := crypto.NewEncryptor(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize encryptor: %v", err)
	}

	engine := syncengine.NewEngine(
		database,
		encryptor,
		syncengine.NewGoogleFactory(cfg.Google.ClientID, cfg.Google.ClientSecret),
		syncengine.Options{
			WindowDays:  cfg.Sync.WindowDays,
			PushBatch:   cfg.Sync.PushBatch,
			CallTimeout: time.Duration(cfg.Sync.CallTimeoutSecs) * time.Second,
		},
	)

	tracker := activity.NewTracker()
	runner := scheduler.NewRunner(engine, tracker)

	if cfg.Sync.IntervalSecs > 0 {
		runner.StartTicker(cfg.Sync.AccountID, time.Duration(cfg.Sync.IntervalSecs)*time.Second)
	}

	handlers := web.NewHandlers(cfg, database, runner, tracker)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(web.RequestLogger())
	router.Use(web.SecurityHeaders())

	web.SetupRoutes(router, handlers, cfg.Security.SyncSecret,
		cfg.RateLimiting.RPS, cfg.RateLimiting.Burst)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
