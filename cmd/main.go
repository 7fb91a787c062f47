/*
Package main is the entry point for the chatrelay server.

It loads configuration, initializes the global logging system, wires the
optional collaborators (history store, AI responder), starts the hub and the
HTTP server, and handles operating system interrupt signals for a graceful
shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatrelay/internal/app/ai"
	"chatrelay/internal/app/chat"
	"chatrelay/internal/app/history"
	"chatrelay/internal/configs"
	"chatrelay/internal/handler"
	"chatrelay/internal/pkg/logx"
)

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Bool("history_enabled", cfg.DatabaseDSN != "").
		Bool("ai_enabled", cfg.AIAPIKey != "").
		Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// History store is optional; the realtime core never blocks on it.
	var store history.Store
	if cfg.DatabaseDSN != "" {
		pool, err := history.NewPool(cfg.DatabaseDSN)
		if err != nil {
			logx.Fatal(err, "Failed to connect to history database")
		}
		defer pool.Close()
		store = history.NewPostgresStore(pool)
	} else {
		logx.Warn("DATABASE_URL not set, running without message history")
	}

	// AI relay is optional; without it ai_request envelopes get an error reply.
	var responder ai.Responder
	if cfg.AIAPIKey != "" {
		r, err := ai.NewOpenAIResponder(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel)
		if err != nil {
			logx.Fatal(err, "Failed to configure AI responder")
		}
		responder = r
	}

	hub := chat.NewHub(store, responder)
	go hub.Run()

	deps := &handler.AppDeps{
		Hub:    hub,
		Config: cfg,
	}

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Router(deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("chatrelay server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Server forced to shutdown")
	}

	hub.Shutdown()

	logx.Info("Server gracefully stopped.")
}
