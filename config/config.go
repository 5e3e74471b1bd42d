package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Providers     ProvidersConfig
	Routing       RoutingConfig
	Jobs          JobsConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuthConfig holds bearer token verification settings. An empty secret disables auth.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// Enabled reports whether API requests must carry a valid token
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}

// ProviderCredential holds the server default key and endpoint of one provider
type ProviderCredential struct {
	APIKey  string
	BaseURL string
}

// ProvidersConfig holds text-generation provider configuration
type ProvidersConfig struct {
	Gemini            ProviderCredential
	OpenRouter        ProviderCredential
	Groq              ProviderCredential
	Together          ProviderCredential
	RequestTimeout    time.Duration
	MinRequestSpacing time.Duration
}

// Credentials returns the configured providers keyed by provider name
func (p ProvidersConfig) Credentials() map[string]ProviderCredential {
	return map[string]ProviderCredential{
		"gemini":     p.Gemini,
		"openrouter": p.OpenRouter,
		"groq":       p.Groq,
		"together":   p.Together,
	}
}

// HasAny reports whether at least one provider has a key
func (p ProvidersConfig) HasAny() bool {
	for _, c := range p.Credentials() {
		if c.APIKey != "" {
			return true
		}
	}
	return false
}

// RoutingConfig holds model routing and availability settings
type RoutingConfig struct {
	RevalidateAfter       time.Duration
	ModelCacheTTL         time.Duration
	MaxRetries            int
	TreatUnknownAvailable bool
	CatalogFile           string
	SnapshotFlushInterval time.Duration
	SessionIdleTTL        time.Duration
}

// JobsConfig holds translation job settings
type JobsConfig struct {
	MaxConcurrent int
	DefaultMaxGap float64
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	cfg := Load(ctx)

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Load reads the configuration without validating it. The CLI uses it since
// it needs no database.
func Load(_ context.Context) *Config {
	// Load .env file if it exists (backend/.env when run from project root, .env when run from backend/)
	_ = godotenv.Load("backend/.env")
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTIssuer: getEnv("JWT_ISSUER", "lingotube"),
		},
		Providers: ProvidersConfig{
			Gemini: ProviderCredential{
				APIKey:  getEnv("GEMINI_API_KEY", ""),
				BaseURL: getEnv("GEMINI_BASE_URL", ""),
			},
			OpenRouter: ProviderCredential{
				APIKey:  getEnv("OPENROUTER_API_KEY", ""),
				BaseURL: getEnv("OPENROUTER_BASE_URL", ""),
			},
			Groq: ProviderCredential{
				APIKey:  getEnv("GROQ_API_KEY", ""),
				BaseURL: getEnv("GROQ_BASE_URL", ""),
			},
			Together: ProviderCredential{
				APIKey:  getEnv("TOGETHER_API_KEY", ""),
				BaseURL: getEnv("TOGETHER_BASE_URL", ""),
			},
			RequestTimeout:    getEnvAsDuration("PROVIDER_REQUEST_TIMEOUT", 30*time.Second),
			MinRequestSpacing: getEnvAsDuration("PROVIDER_MIN_SPACING", time.Second),
		},
		Routing: RoutingConfig{
			RevalidateAfter:       getEnvAsDuration("MODEL_REVALIDATE_AFTER", 60*time.Minute),
			ModelCacheTTL:         getEnvAsDuration("MODEL_CACHE_TTL", time.Hour),
			MaxRetries:            getEnvAsInt("MODEL_MAX_RETRIES", 3),
			TreatUnknownAvailable: getEnvAsBool("MODEL_TREAT_UNKNOWN_AVAILABLE", true),
			CatalogFile:           getEnv("MODEL_CATALOG_FILE", ""),
			SnapshotFlushInterval: getEnvAsDuration("TRACKER_SNAPSHOT_INTERVAL", 5*time.Minute),
			SessionIdleTTL:        getEnvAsDuration("SESSION_IDLE_TTL", 2*time.Hour),
		},
		Jobs: JobsConfig{
			MaxConcurrent: getEnvAsInt("JOBS_MAX_CONCURRENT", 4),
			DefaultMaxGap: getEnvAsFloat("JOBS_DEFAULT_MAX_GAP", 0),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Database validation (DATABASE_URL or DB_* vars)
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.IsProduction() {
		if !c.Auth.Enabled() {
			return fmt.Errorf("JWT secret is required in production")
		}
		if !c.Providers.HasAny() {
			return fmt.Errorf("at least one provider API key must be configured in production")
		}
	}

	if c.Routing.MaxRetries < 1 {
		return fmt.Errorf("model max retries must be at least 1")
	}
	if c.Jobs.MaxConcurrent < 1 {
		return fmt.Errorf("jobs max concurrent must be at least 1")
	}
	if c.Jobs.DefaultMaxGap < 0 {
		return fmt.Errorf("jobs default max gap cannot be negative")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "dev"),
		Password:        getEnv("DB_PASSWORD", "lingotube"),
		Database:        getEnv("DB_NAME", "lingotube"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty entries
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
