package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config aggregates runtime configuration for the PermitFlow shell.
type Config struct {
	Environment    string
	HTTPPort       int
	LogLevel       string
	AllowedOrigins []string

	// Hosted service the shell talks to. IdentityURL and RestURL derive
	// from ServiceURL unless overridden explicitly.
	ServiceURL  string
	ServiceKey  string
	identityURL string
	restURL     string

	// Where the hosted service should send users back after email
	// verification links.
	PublicURL string

	// RequireEmailVerification is the single flag controlling whether
	// sign-up routes users through the verification-pending view.
	RequireEmailVerification bool

	// SessionFile holds the persisted identity session between runs.
	SessionFile string

	// DataStore selects the profiles backend: rest, postgres or memory.
	DataStore   string
	DatabaseURL string

	// Optional Google sign-in.
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

// Load reads configuration from environment variables with sensible defaults for local development.
func Load() (Config, error) {
	serviceKey, err := getEnvOrFile("SERVICE_KEY", "/run/secrets/permitflow_service_key")
	if err != nil {
		return Config{}, err
	}

	databaseURL, err := getEnvOrFile("DATABASE_URL", "/run/secrets/permitflow_database_url")
	if err != nil {
		return Config{}, err
	}

	googleSecret, err := getEnvOrFile("AUTH_GOOGLE_CLIENT_SECRET", "")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment:              getEnv("APP_ENV", "development"),
		LogLevel:                 strings.ToLower(getEnv("LOG_LEVEL", "info")),
		AllowedOrigins:           parseCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8080")),
		ServiceURL:               strings.TrimRight(getEnv("SERVICE_URL", ""), "/"),
		ServiceKey:               strings.TrimSpace(serviceKey),
		identityURL:              strings.TrimRight(getEnv("IDENTITY_URL", ""), "/"),
		restURL:                  strings.TrimRight(getEnv("REST_URL", ""), "/"),
		PublicURL:                strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),
		RequireEmailVerification: parseBool(getEnv("REQUIRE_EMAIL_VERIFICATION", "false")),
		SessionFile:              getEnv("SESSION_FILE", ".permitflow/session.json"),
		DataStore:                strings.ToLower(getEnv("DATA_STORE", "memory")),
		DatabaseURL:              databaseURL,
		GoogleClientID:           strings.TrimSpace(getEnv("AUTH_GOOGLE_CLIENT_ID", "")),
		GoogleClientSecret:       strings.TrimSpace(googleSecret),
		GoogleRedirectURL:        getEnv("AUTH_GOOGLE_REDIRECT_URL", ""),
	}

	portValue := getEnv("PORT", getEnv("HTTP_PORT", "8080"))
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return Config{}, fmt.Errorf("invalid port %q: %w", portValue, err)
	}
	cfg.HTTPPort = port

	switch cfg.DataStore {
	case "memory", "postgres", "rest":
	default:
		return Config{}, fmt.Errorf("unknown DATA_STORE %q (expected rest, postgres or memory)", cfg.DataStore)
	}

	if cfg.DataStore == "postgres" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATA_STORE is postgres but DATABASE_URL is not set")
	}

	if cfg.DataStore == "rest" && cfg.RestURL() == "" {
		return Config{}, fmt.Errorf("DATA_STORE is rest but neither REST_URL nor SERVICE_URL is set")
	}

	if cfg.IdentityURL() == "" && cfg.DataStore != "memory" {
		return Config{}, fmt.Errorf("IDENTITY_URL or SERVICE_URL must be set")
	}

	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret == "" {
		return Config{}, fmt.Errorf("AUTH_GOOGLE_CLIENT_ID is set but AUTH_GOOGLE_CLIENT_SECRET is missing")
	}

	if cfg.GoogleRedirectURL == "" {
		cfg.GoogleRedirectURL = cfg.PublicURL + "/auth/google/callback"
	}

	return cfg, nil
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IdentityURL returns the base URL of the hosted identity service.
func (c Config) IdentityURL() string {
	if c.identityURL != "" {
		return c.identityURL
	}
	if c.ServiceURL != "" {
		return c.ServiceURL + "/auth/v1"
	}
	return ""
}

// RestURL returns the base URL of the hosted relational store.
func (c Config) RestURL() string {
	if c.restURL != "" {
		return c.restURL
	}
	if c.ServiceURL != "" {
		return c.ServiceURL + "/rest/v1"
	}
	return ""
}

// EmailRedirectURL is where verification emails send users back to.
func (c Config) EmailRedirectURL() string {
	return c.PublicURL + "/auth/callback"
}

// OAuthEnabled reports whether Google sign-in is configured.
func (c Config) OAuthEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// UseInMemoryStore returns true if the in-memory store should be used.
func (c Config) UseInMemoryStore() bool {
	return c.DataStore == "memory"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseBool(value string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	return parsed
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: reading %s (%s): %w", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", fmt.Errorf("config: %s (%s) is empty", name, path)
	}
	return value, nil
}
