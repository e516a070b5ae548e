package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proledger/internal/config"
	"proledger/internal/db"
	"proledger/internal/email"
	"proledger/internal/ledger"
	"proledger/internal/logger"
	"proledger/internal/server"
	"proledger/internal/sweeper"
)

// @title ProLedger API
// @version 1.0
// @description Credit ledger for the professional lead marketplace.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger.Init()
	logger.Info("starting proledger")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()
	logger.Info("database connected")

	if err := db.RunMigrations(database, "migrations"); err != nil {
		logger.Fatal("failed to run migrations", "error", err)
	}
	logger.Info("migrations completed")

	emailService := email.New(
		cfg.EmailFrom,
		cfg.EmailFromName,
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SMTPUser,
		cfg.SMTPPass,
		cfg.RedisAddr,
	)
	defer emailService.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go emailService.Start(ctx)

	engine := ledger.NewEngine(ledger.NewStore(database))
	go sweeper.New(engine, cfg.SweepInterval).Run(ctx)

	srv := server.New(database, cfg, emailService)

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErrChan:
		logger.Error("server error", "error", err)
	}

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err)
	}

	logger.Info("server stopped")
}
