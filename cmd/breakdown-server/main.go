package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Epistemic-Technology/production-breakdown/internal/app"
	"github.com/Epistemic-Technology/production-breakdown/internal/config"
	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
	"github.com/Epistemic-Technology/production-breakdown/server"
)

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		panic(err)
	}

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize: %v", err)
	}
	defer a.Close()

	engine := server.NewHTTPServer(a.Service, a.Uploads, a.Exporter, a.Health, server.HTTPOptions{
		MaxBodySize: cfg.Server.MaxBodySize,
		CORSOrigins: cfg.Server.CORSOrigins,
		Release:     cfg.Server.Release,
	}, log)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting breakdown server on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	// generate requests can run for minutes
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shut down: %v", err)
	}
}
