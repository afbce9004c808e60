package config

import "os"

// Config holds server configuration.
type Config struct {
	Port          string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	ProfilesDir   string
	ProfileName   string
	OTLPEndpoint  string
	ArchiveBucket string
	EngineURL     string
	EngineAPIKey  string
	GatewaySecret string
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Default to local generic postgres
		dbURL = "postgres://trustplane@localhost:5433/trustplane?sslmode=disable"
	}

	profilesDir := os.Getenv("TRUSTPLANE_PROFILES_DIR")
	if profilesDir == "" {
		profilesDir = "profiles"
	}

	profileName := os.Getenv("TRUSTPLANE_PROFILE")
	if profileName == "" {
		profileName = "standard"
	}

	return &Config{
		Port:          port,
		LogLevel:      logLevel,
		DatabaseURL:   dbURL,
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		ProfilesDir:   profilesDir,
		ProfileName:   profileName,
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ArchiveBucket: os.Getenv("TRUSTPLANE_ARCHIVE_BUCKET"),
		EngineURL:     os.Getenv("TRUSTPLANE_ENGINE_URL"),
		EngineAPIKey:  os.Getenv("TRUSTPLANE_ENGINE_API_KEY"),
		GatewaySecret: os.Getenv("TRUSTPLANE_GATEWAY_SECRET"),
	}
}
