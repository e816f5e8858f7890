package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gilby125/flight-radius/api"
	"github.com/gilby125/flight-radius/app"
	"github.com/gilby125/flight-radius/config"
	"github.com/gilby125/flight-radius/pkg/buildinfo"
	"github.com/gilby125/flight-radius/pkg/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Level: "error", Format: "text"}).Fatal(err, "Failed to load configuration")
	}

	logger.Init(logger.Config{Level: cfg.LoggingConfig.Level, Format: cfg.LoggingConfig.Format})
	log := logger.Default()
	log.Info("Starting flight-radius", "version", buildinfo.Version, "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal(err, "Failed to initialize services")
	}
	defer func() {
		if err := services.Close(); err != nil {
			log.Error(err, "Failed to close services")
		}
	}()

	if err := services.Start(ctx); err != nil {
		log.Fatal(err, "Failed to start background jobs")
	}

	if !cfg.APIEnabled {
		log.Info("API disabled, running background jobs only")
		<-ctx.Done()
		return
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	api.RegisterRoutes(router, services.Deps())

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.HTTPBindAddr, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}
	log.Info("Server exited properly")
}
