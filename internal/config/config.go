package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the complete application configuration, loaded from the
// environment with an optional .env file for development.
type Config struct {
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	Port int    `envconfig:"PORT" default:"8080"`

	// StoreBackend selects the message store: "mongo", "postgres", "badger"
	// or "memory".
	StoreBackend string `envconfig:"STORE_BACKEND" default:"mongo"`
	MongoURI     string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDB      string `envconfig:"MONGO_DB" default:"bayou_chat"`
	PostgresURI  string `envconfig:"POSTGRES_URI" default:"postgres://localhost:5432/bayou_chat?sslmode=disable"`
	BadgerPath   string `envconfig:"BADGER_PATH" default:"data/badger"`

	MediaDir     string `envconfig:"MEDIA_DIR" default:"data/media"`
	MediaBaseURL string `envconfig:"MEDIA_BASE_URL" default:"http://localhost:8080/media"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info"`
	Debug          bool     `envconfig:"DEBUG" default:"false"`
}

// Load reads the configuration from the environment. A missing .env file is
// fine; explicit environment variables always win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	switch cfg.StoreBackend {
	case "mongo", "postgres", "badger", "memory":
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND %q", cfg.StoreBackend)
	}
	return &cfg, nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
