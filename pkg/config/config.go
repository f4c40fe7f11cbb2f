package config

import "os"

// Config holds process configuration.
type Config struct {
	LogLevel        string
	DatabaseDriver  string
	DatabaseURL     string
	RedisAddr       string
	OTLPEndpoint    string
	PolicyBundleDir string
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	driver := os.Getenv("DATABASE_DRIVER")
	if driver == "" {
		driver = "postgres"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://integrity@localhost:5432/integrity?sslmode=disable"
	}

	return &Config{
		LogLevel:        logLevel,
		DatabaseDriver:  driver,
		DatabaseURL:     dbURL,
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		PolicyBundleDir: os.Getenv("POLICY_BUNDLE_DIR"),
	}
}
