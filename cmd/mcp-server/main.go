package main

import (
	"context"
	"os"

	"github.com/gilby125/flight-radius/app"
	"github.com/gilby125/flight-radius/config"
	"github.com/gilby125/flight-radius/pkg/buildinfo"
	"github.com/gilby125/flight-radius/pkg/logger"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	// stdout carries the protocol, so logs go to stderr
	boot := logger.New(logger.Config{Level: "error", Format: "text", Output: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal(err, "Failed to load configuration")
	}
	log := logger.New(logger.Config{Level: cfg.LoggingConfig.Level, Format: cfg.LoggingConfig.Format, Output: os.Stderr})

	services, err := app.New(context.Background(), cfg, log)
	if err != nil {
		log.Fatal(err, "Failed to initialize services")
	}
	defer services.Close()

	s := server.NewMCPServer(
		"flight-radius-mcp",
		buildinfo.Version,
		server.WithLogging(),
	)
	registerTools(s, services)

	if err := server.ServeStdio(s); err != nil {
		log.Error(err, "MCP server error")
	}
}
