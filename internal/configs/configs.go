/*
Package configs is responsible for loading and parsing the application's
configuration settings.

All values are read from environment variables, with development defaults and
production-required values for anything sensitive.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// AppConfig contains all configuration parameters required by the server.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int

	// Security Settings
	AllowedOrigins []string

	// Database Settings. An empty DSN disables the history store; the
	// realtime core never depends on it for delivery.
	DatabaseDSN string

	// AI Responder Settings. An empty API key disables the AI relay.
	AIAPIKey  string
	AIBaseURL string
	AIModel   string
}

// LoadConfig reads and parses the application configuration from environment
// variables, applying defaults and validation.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Server Settings ---
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT environment variable: %w", err)
	}
	cfg.Port = port

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the allowed range (1024-65535)", cfg.Port)
	}

	// --- Security Settings ---
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	} else {
		cfg.AllowedOrigins = []string{}
	}

	// --- Database Settings ---
	cfg.DatabaseDSN = os.Getenv("DATABASE_URL")

	// --- AI Responder Settings ---
	cfg.AIAPIKey = os.Getenv("AI_API_KEY")
	cfg.AIBaseURL = os.Getenv("AI_BASE_URL")
	cfg.AIModel = os.Getenv("AI_MODEL")
	if cfg.AIModel == "" {
		cfg.AIModel = "gpt-4o-mini"
	}

	return cfg, nil
}
