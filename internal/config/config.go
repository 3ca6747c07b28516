// Package config resolves runtime settings from the environment.
package config

import (
	"os"
	"strings"
)

// Defaults used when the corresponding environment variable is unset.
const (
	DefaultClassifierURL = "http://localhost:5000"
	DefaultUIAddr        = ":8080"
	DefaultGatewayAddr   = ":5000"
	DefaultModelAddr     = "model-service:50051"
	DefaultDatabaseDSN   = "host=postgres user=postgres password=postgres dbname=freshcheck port=5432 sslmode=disable"
	DefaultRedisAddr     = "redis:6379"
	DefaultCameraDevice  = "/dev/video0"
)

// Config holds the settings shared by the CLI commands.
type Config struct {
	LogLevel string

	ClassifierURL string
	UIAddr        string
	FreshLabels   []string
	CORSOrigins   []string

	CameraDevice            string
	CameraDeviceUser        string
	CameraDeviceEnvironment string

	GatewayAddr string
	ModelAddr   string
	DatabaseDSN string
	RedisAddr   string
	ClassNames  []string
}

// Load reads the configuration from environment variables.
func Load() *Config {
	return &Config{
		LogLevel:                GetEnv("LOG_LEVEL", "info"),
		ClassifierURL:           GetEnv("CLASSIFIER_URL", DefaultClassifierURL),
		UIAddr:                  GetEnv("UI_ADDR", DefaultUIAddr),
		FreshLabels:             GetList("FRESH_LABELS", []string{"Segar"}),
		CORSOrigins:             GetList("CORS_ORIGINS", []string{"*"}),
		CameraDevice:            GetEnv("CAMERA_DEVICE", DefaultCameraDevice),
		CameraDeviceUser:        os.Getenv("CAMERA_DEVICE_USER"),
		CameraDeviceEnvironment: os.Getenv("CAMERA_DEVICE_ENVIRONMENT"),
		GatewayAddr:             GetEnv("GATEWAY_ADDR", DefaultGatewayAddr),
		ModelAddr:               GetEnv("MODEL_ADDR", DefaultModelAddr),
		DatabaseDSN:             GetEnv("DATABASE_DSN", DefaultDatabaseDSN),
		RedisAddr:               GetEnv("REDIS_ADDR", DefaultRedisAddr),
		ClassNames:              GetList("CLASS_NAMES", []string{"Busuk", "Segar"}),
	}
}

// GetEnv returns the value of key or fallback when it is unset or empty.
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// GetList splits a comma separated variable, dropping blank items.
func GetList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
