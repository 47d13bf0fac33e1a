// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration. Every field has an environment
// variable binding; defaults are chosen so a dev instance starts with only
// JWT_SECRET set.
type Config struct {
	// Port is the TCP port the HTTP server listens on.
	Port int `env:"PORT" envDefault:"8080"`
	// DBPath is the path to the SQLite database file. Use ":memory:" for an
	// ephemeral database.
	DBPath string `env:"DB_PATH" envDefault:"data/scripthub.db"`
	// JWTSecret signs access tokens. Required; at least 16 characters.
	JWTSecret string `env:"JWT_SECRET"`
	// JWTExpiry is the access-token lifetime.
	JWTExpiry time.Duration `env:"JWT_EXPIRE" envDefault:"24h"`
	// CacheTTL is the time-to-live for cached script snapshots.
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	// MaxScriptSize is the maximum script code length in bytes.
	MaxScriptSize int `env:"MAX_SCRIPT_SIZE" envDefault:"50000"`
	// DuplicateWindow is how long identical code from the same uploader is
	// rejected as a duplicate upload.
	DuplicateWindow time.Duration `env:"DUPLICATE_WINDOW" envDefault:"1h"`

	// APIRateLimit/APIRateWindow bound requests per IP on the public script
	// routes. 0 disables the limiter.
	APIRateLimit  int           `env:"API_RATE_LIMIT" envDefault:"100"`
	APIRateWindow time.Duration `env:"API_RATE_WINDOW" envDefault:"15m"`
	// AuthRateLimit bounds login attempts per IP within APIRateWindow.
	AuthRateLimit int `env:"AUTH_RATE_LIMIT" envDefault:"20"`
	// UploadRateLimit/UploadRateWindow bound script uploads per IP.
	UploadRateLimit  int           `env:"UPLOAD_RATE_LIMIT" envDefault:"10"`
	UploadRateWindow time.Duration `env:"UPLOAD_RATE_WINDOW" envDefault:"1h"`

	// Roblox OAuth app credentials. When unset, the browser OAuth routes are
	// not registered; the token-based /api/auth/login endpoint still works.
	RobloxClientID     string `env:"ROBLOX_CLIENT_ID"`
	RobloxClientSecret string `env:"ROBLOX_CLIENT_SECRET"`
	RobloxCallbackURL  string `env:"ROBLOX_CALLBACK_URL"`

	// ShutdownTimeout is the maximum wait for in-flight requests on shutdown.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load parses configuration from environment variables.
// Returns an error if a value cannot be parsed into the expected type.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks constraints that env parsing cannot express.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid PORT %d", c.Port)
	}
	if c.CacheTTL <= 0 {
		return errors.New("config: CACHE_TTL must be positive")
	}
	if c.MaxScriptSize <= 0 {
		return errors.New("config: MAX_SCRIPT_SIZE must be positive")
	}
	return nil
}
