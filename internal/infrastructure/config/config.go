// Package config loads the auth server configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/prontuario/proamp/pkg/logger"
)

// Storage backends.
const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

type Config struct {
	Port     string `env:"PORT,      default=8000"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`
	// Storage selects "mongo" (MongoDB users, Redis sessions) or "memory".
	Storage string `env:"STORAGE,   default=mongo"`

	CORSOrigins []string `env:"CORS_ORIGINS"`
	LoginRate   float64  `env:"LOGIN_RATE,  default=0.2"`
	LoginBurst  int      `env:"LOGIN_BURST, default=5"`

	Session SessionConfig
	Seed    SeedConfig
	Mongo   MongoConfig
	Redis   RedisConfig
}

type SessionConfig struct {
	Secret      string        `env:"SESSION_SECRET"`
	TTL         time.Duration `env:"SESSION_TTL,  default=336h"`
	RememberTTL time.Duration `env:"REMEMBER_TTL, default=720h"`
}

// SeedConfig names the bootstrap admin created on first start. It is
// created with a pending password change.
type SeedConfig struct {
	AdminEmail    string `env:"SEED_ADMIN_EMAIL"`
	AdminPassword string `env:"SEED_ADMIN_PASSWORD"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=proamp"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

// Production reports whether the server runs outside development.
func (c *Config) Production() bool { return c.Env != "development" }

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Storage != StorageMongo && c.Storage != StorageMemory {
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Production() && c.Session.Secret == "" {
		return errors.New("SESSION_SECRET is required outside development")
	}
	if (c.Seed.AdminEmail == "") != (c.Seed.AdminPassword == "") {
		return errors.New("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD must be set together")
	}
	if c.Session.TTL <= 0 || c.Session.RememberTTL <= 0 {
		return errors.New("session ttls must be positive")
	}
	return nil
}

// Load reads configuration through l, or the process environment when l is
// nil, and validates it.
func Load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
