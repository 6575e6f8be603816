/*
Package configs is responsible for loading and parsing the application's configuration settings.

It configures the server by reading operating system environment variables: the running
environment, port, CORS allowed origins, identity token secret, database location, optional
object storage, and realtime connection tuning.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// EnvDevelopment is the default environment; it enables insecure defaults.
	EnvDevelopment = "development"

	defaultDevSecret   = "your_default_insecure_secret_key_change_me"
	defaultDevDatabase = "sqlite://dmchat.db"
	defaultSendBuffer  = 256
)

// AppConfig contains all configuration parameters required for the application to run.
// All configuration values are loaded from environment variables.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int

	// Security Settings
	AllowedOrigins []string
	JWTSecret      string

	// S3 Storage Settings. An empty bucket name disables image storage.
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicBaseURL   string

	// Database Settings: postgres://... or sqlite://path
	DatabaseDSN string

	// Realtime Settings: per-connection outgoing queue length.
	WSSendBuffer int
}

// IsDevelopment reports whether the server runs with development defaults.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// StorageEnabled reports whether object storage is configured.
func (c *AppConfig) StorageEnabled() bool {
	return c.S3BucketName != ""
}

// LoadConfig reads and parses the application configuration from environment variables.
// It provides default values for each configuration item and performs necessary type conversions and validation.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Server Settings ---
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = EnvDevelopment
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
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	// --- Security Settings ---
	cfg.AllowedOrigins = []string{}
	if originsStr := os.Getenv("ALLOWED_ORIGINS"); originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment for security", cfg.Environment)
		}
		cfg.JWTSecret = defaultDevSecret
	}

	// --- S3 Storage Settings ---
	cfg.S3BucketName = os.Getenv("S3_BUCKET_NAME")
	cfg.S3Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.S3AccessKeyID = os.Getenv("S3_ACCESS_KEY_ID")
	cfg.S3SecretAccessKey = os.Getenv("S3_SECRET_ACCESS_KEY")
	cfg.S3PublicBaseURL = strings.TrimRight(os.Getenv("S3_PUBLIC_BASE_URL"), "/")

	if cfg.StorageEnabled() {
		if cfg.S3Endpoint == "" {
			return nil, fmt.Errorf("S3_ENDPOINT environment variable is required when S3_BUCKET_NAME is set")
		}
		if cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "" {
			return nil, fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required when S3_BUCKET_NAME is set")
		}
		if cfg.S3PublicBaseURL == "" {
			cfg.S3PublicBaseURL = strings.TrimRight(cfg.S3Endpoint, "/") + "/" + cfg.S3BucketName
		}
	}

	// --- Database Settings ---
	cfg.DatabaseDSN = os.Getenv("DATABASE_URL")
	if cfg.DatabaseDSN == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required in %s environment", cfg.Environment)
		}
		cfg.DatabaseDSN = defaultDevDatabase
	}

	// --- Realtime Settings ---
	cfg.WSSendBuffer = defaultSendBuffer
	if bufStr := os.Getenv("WS_SEND_BUFFER"); bufStr != "" {
		n, err := strconv.Atoi(bufStr)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid WS_SEND_BUFFER environment variable %q", bufStr)
		}
		cfg.WSSendBuffer = n
	}

	return cfg, nil
}
