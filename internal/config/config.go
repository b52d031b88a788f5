package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port        int
	Database    DatabaseConfig
	JWTSecret   string
	Environment string
	CORSOrigins []string
	TrueLayer   TrueLayerConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// TrueLayerConfig holds the open-banking aggregator configuration
type TrueLayerConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthBaseURL  string
	APIBaseURL   string
	Scopes       []string
	Providers    []string
}

// Load loads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env file")
	}

	env := getEnv("ENVIRONMENT", "production")

	cfg := &Config{
		Port: getEnvInt("PORT", 8080),
		Database: DatabaseConfig{
			DSN:          getEnv("DATABASE_DSN", buildPostgresDSN()),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		JWTSecret:   loadJWTSecret(env),
		Environment: env,
		CORSOrigins: loadCORSOrigins(env),
		TrueLayer: TrueLayerConfig{
			ClientID:     os.Getenv("TL_CLIENT_ID"),
			ClientSecret: os.Getenv("TL_CLIENT_SECRET"),
			RedirectURI:  os.Getenv("TL_REDIRECT_URI"),
			AuthBaseURL:  getEnv("TL_AUTH_BASE_URL", "https://auth.truelayer-sandbox.com"),
			APIBaseURL:   getEnv("TL_API_BASE_URL", "https://api.truelayer-sandbox.com"),
			Scopes:       splitAndTrim(getEnv("TL_SCOPES", "accounts transactions balance"), " "),
			Providers:    splitAndTrim(getEnv("TL_PROVIDERS", "uk-cs-mock uk-ob-all uk-oauth-all"), " "),
		},
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	return cfg
}

func buildPostgresDSN() string {
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "pennyflow")
	password := getEnv("DB_PASS", "secret")
	dbName := getEnv("DB_NAME", "pennyflow")
	sslMode := getEnv("DB_SSLMODE", "disable")

	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(user, password),
		Host:   fmt.Sprintf("%s:%s", host, port),
		Path:   dbName,
	}

	query := u.Query()
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()

	return u.String()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Environment == "production" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}

	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be configured")
	}

	if c.TrueLayer.ClientID == "" || c.TrueLayer.ClientSecret == "" {
		return fmt.Errorf("TL_CLIENT_ID and TL_CLIENT_SECRET are required")
	}
	if c.TrueLayer.RedirectURI == "" {
		return fmt.Errorf("TL_REDIRECT_URI is required")
	}
	if len(c.TrueLayer.Scopes) == 0 {
		return fmt.Errorf("TL_SCOPES must name at least one scope")
	}

	return nil
}

func loadJWTSecret(env string) string {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("FATAL: JWT_SECRET environment variable is required")
	}
	if env == "production" && len(secret) < 32 {
		log.Fatal("FATAL: JWT_SECRET must be at least 32 characters in production")
	}
	return secret
}

func loadCORSOrigins(env string) []string {
	if appURL := strings.TrimRight(os.Getenv("APP_URL"), "/"); appURL != "" {
		return []string{appURL}
	}

	if env != "development" {
		log.Println("WARNING: APP_URL not set. Using default localhost origins.")
	}
	return []string{"http://localhost:3000", "http://localhost:8080"}
}

func splitAndTrim(s, sep string) []string {
	var parts []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}
