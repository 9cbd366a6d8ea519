package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/bistro/internal/storage"
	"github.com/xenking/bistro/internal/storage/rediscache"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (BISTRO_ prefix), a .env file, flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage      StorageConfig
	DatabaseURL  string `usage:"PostgreSQL connection URL (BISTRO_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	SQLitePath   string `default:"bistro.db" usage:"SQLite database file when storage.driver=sqlite" env:"SQLITE_PATH" flag:"sqlite-path"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (BISTRO_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Redis        RedisConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// StorageConfig selects the database backend.
type StorageConfig struct {
	Driver string `default:"postgres" usage:"Storage backend: postgres or sqlite"`
}

// RedisConfig enables the menu lookup cache when Addr is set.
type RedisConfig struct {
	Addr string        `default:"" usage:"Redis address for the menu cache (disabled when empty)"`
	TTL  time.Duration `default:"5m" usage:"Menu cache entry lifetime"`
}

// RateLimitConfig controls the per-client token bucket rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads .env, then configuration from environment variables,
// YAML config files and the command-line args, and applies platform-specific
// defaults.
func LoadConfig(args []string) (*Config, error) {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix:          "BISTRO",
		AllowUnknownEnvs:   true,
		AllowUnknownFlags:  true,
		AllowUnknownFields: true,
		// Non-nil so the loader never falls back to os.Args.
		Args:               append([]string{}, args...),
		Files:              []string{"config.yaml", "/etc/bistro/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DSN returns the connection string for the selected storage driver.
func (c *Config) DSN() string {
	if c.Storage.Driver == storage.DriverSQLite {
		return c.SQLitePath
	}
	return c.DatabaseURL
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case storage.DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set BISTRO_DATABASE_URL or DATABASE_URL")
		}
	case storage.DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite path is required: set BISTRO_SQLITE_PATH")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = rediscache.DefaultTTL
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that
// use standard names like DATABASE_URL and PORT to the BISTRO_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
