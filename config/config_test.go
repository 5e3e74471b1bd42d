package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default configuration",
			envVars: map[string]string{
				"ENVIRONMENT": "development",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.False(t, cfg.Server.TLS.Enabled)
				assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.False(t, cfg.Auth.Enabled())
				assert.Equal(t, 30*time.Second, cfg.Providers.RequestTimeout)
				assert.Equal(t, time.Second, cfg.Providers.MinRequestSpacing)
				assert.Equal(t, 60*time.Minute, cfg.Routing.RevalidateAfter)
				assert.Equal(t, time.Hour, cfg.Routing.ModelCacheTTL)
				assert.Equal(t, 3, cfg.Routing.MaxRetries)
				assert.True(t, cfg.Routing.TreatUnknownAvailable)
				assert.Equal(t, 2*time.Hour, cfg.Routing.SessionIdleTTL)
				assert.Equal(t, 4, cfg.Jobs.MaxConcurrent)
				assert.Equal(t, 0.0, cfg.Jobs.DefaultMaxGap)
				assert.False(t, cfg.Providers.HasAny())
			},
		},
		{
			name: "production configuration",
			envVars: map[string]string{
				"ENVIRONMENT":    "production",
				"SERVER_PORT":    "9000",
				"DB_HOST":        "prod-db.example.com",
				"JWT_SECRET":     "s3cret",
				"GEMINI_API_KEY": "AIza-test",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.IsProduction())
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.True(t, cfg.Auth.Enabled())
				assert.Equal(t, "AIza-test", cfg.Providers.Credentials()["gemini"].APIKey)
			},
		},
		{
			name: "provider and routing overrides",
			envVars: map[string]string{
				"GROQ_API_KEY":           "gsk-1",
				"GROQ_BASE_URL":          "http://groq.local/v1",
				"PROVIDER_MIN_SPACING":   "250ms",
				"MODEL_REVALIDATE_AFTER": "15m",
				"MODEL_CATALOG_FILE":     "/etc/lingotube/models.yaml",
				"JOBS_MAX_CONCURRENT":    "8",
				"JOBS_DEFAULT_MAX_GAP":   "0.75",
				"CORS_ALLOWED_ORIGINS":   "https://a.example, ,https://b.example",
			},
			check: func(t *testing.T, cfg *Config) {
				groq := cfg.Providers.Credentials()["groq"]
				assert.Equal(t, "gsk-1", groq.APIKey)
				assert.Equal(t, "http://groq.local/v1", groq.BaseURL)
				assert.Equal(t, 250*time.Millisecond, cfg.Providers.MinRequestSpacing)
				assert.Equal(t, 15*time.Minute, cfg.Routing.RevalidateAfter)
				assert.Equal(t, "/etc/lingotube/models.yaml", cfg.Routing.CatalogFile)
				assert.Equal(t, 8, cfg.Jobs.MaxConcurrent)
				assert.Equal(t, 0.75, cfg.Jobs.DefaultMaxGap)
				assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
			},
		},
		{
			name: "database url",
			envVars: map[string]string{
				"DATABASE_URL": "postgres://u:p@db.internal:6543/lingo?sslmode=require",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "postgres://u:p@db.internal:6543/lingo?sslmode=require", cfg.Database.DSN())
				assert.Equal(t, "host=db.internal port=6543 database=lingo", cfg.Database.LogString())
			},
		},
		{
			name: "PORT env var takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name: "production without JWT secret",
			envVars: map[string]string{
				"ENVIRONMENT":    "production",
				"GEMINI_API_KEY": "k",
			},
			wantErr: true,
		},
		{
			name: "production without any provider",
			envVars: map[string]string{
				"ENVIRONMENT": "production",
				"JWT_SECRET":  "s3cret",
			},
			wantErr: true,
		},
		{
			name: "negative max gap",
			envVars: map[string]string{
				"JOBS_DEFAULT_MAX_GAP": "-1",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := New(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Database: DatabaseConfig{
			Host:     "localhost",
			User:     "user",
			Database: "db",
		},
		Routing:       RoutingConfig{MaxRetries: 3},
		Jobs:          JobsConfig{MaxConcurrent: 1},
		Observability: ObservabilityConfig{LogLevel: "info"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{name: "valid development config", mutate: func(*Config) {}},
		{
			name:    "missing database host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: true,
			errMsg:  "database configuration required",
		},
		{
			name:    "missing database user",
			mutate:  func(c *Config) { c.Database.User = "" },
			wantErr: true,
			errMsg:  "database user is required",
		},
		{
			name:    "zero retries",
			mutate:  func(c *Config) { c.Routing.MaxRetries = 0 },
			wantErr: true,
			errMsg:  "max retries",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Jobs.MaxConcurrent = 0 },
			wantErr: true,
			errMsg:  "max concurrent",
		},
		{
			name:    "missing log level",
			mutate:  func(c *Config) { c.Observability.LogLevel = "" },
			wantErr: true,
			errMsg:  "log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Environment(t *testing.T) {
	tests := []struct {
		environment string
		production  bool
		development bool
	}{
		{"production", true, false},
		{"prod", true, false},
		{"development", false, true},
		{"dev", false, true},
		{"staging", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.environment, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.production, cfg.IsProduction())
			assert.Equal(t, tt.development, cfg.IsDevelopment())
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		Database: "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	assert.Equal(t, expected, cfg.DSN())
	assert.Equal(t, "host=localhost port=5432 database=testdb", cfg.LogString())
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "0.0.0.0", Port: 8080}
	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
}

func TestGetEnvHelpers(t *testing.T) {
	os.Clearenv()
	os.Setenv("TEST_INT", "42")
	os.Setenv("TEST_BAD_INT", "x")
	os.Setenv("TEST_BOOL", "false")
	os.Setenv("TEST_FLOAT", "3.14")
	os.Setenv("TEST_DURATION", "30s")
	os.Setenv("TEST_BAD_DURATION", "soon")

	assert.Equal(t, 42, getEnvAsInt("TEST_INT", 10))
	assert.Equal(t, 10, getEnvAsInt("TEST_BAD_INT", 10))
	assert.Equal(t, 10, getEnvAsInt("TEST_MISSING", 10))
	assert.False(t, getEnvAsBool("TEST_BOOL", true))
	assert.Equal(t, 3.14, getEnvAsFloat("TEST_FLOAT", 1))
	assert.Equal(t, 30*time.Second, getEnvAsDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvAsDuration("TEST_BAD_DURATION", time.Second))
	assert.Equal(t, []string{"a"}, getEnvAsList("TEST_MISSING", []string{"a"}))
}

func TestParseCatalog(t *testing.T) {
	data := []byte(`
gemini:
  - gemini-2.0-flash
  - gemini-2.5-pro
priority:
  conversation: [groq, gemini]
ranked:
  groq:
    practice: [llama-3.3-70b-versatile]
`)
	c, err := ParseCatalog(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"gemini-2.0-flash", "gemini-2.5-pro"}, c.Gemini)
	assert.Equal(t, []string{"groq", "gemini"}, c.Priority["conversation"])
	assert.Equal(t, []string{"llama-3.3-70b-versatile"}, c.Ranked["groq"]["practice"])

	_, err = ParseCatalog([]byte("priority:\n  chat: [groq]\n"))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("gemini: {not: [a list"))
	assert.Error(t, err)
}

func TestLoadCatalog(t *testing.T) {
	empty, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Empty(t, empty.Gemini)

	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gemini: [gemini-1.5-flash]\n"), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini-1.5-flash"}, c.Gemini)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
