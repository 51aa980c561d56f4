// Package config loads the session client configuration from the environment.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/prontuario/proamp/pkg/logger"
)

// Snapshot backends.
const (
	SnapshotFile   = "file"
	SnapshotRedis  = "redis"
	SnapshotMemory = "memory"
)

type Config struct {
	APIURL      string        `env:"PROAMP_API_URL,      default=http://localhost:8000/"`
	HTTPTimeout time.Duration `env:"PROAMP_HTTP_TIMEOUT, default=10s"`

	// Routes optionally points at a TOML route table replacing the built-in one.
	Routes string `env:"PROAMP_ROUTES"`
	// RevalidateInterval re-checks the session periodically; 0 disables it.
	RevalidateInterval time.Duration `env:"PROAMP_REVALIDATE_INTERVAL, default=0s"`

	LogLevel  string `env:"LOG_LEVEL,  default=warn"`
	LogPretty bool   `env:"LOG_PRETTY, default=true"`

	Snapshot SnapshotConfig
}

type SnapshotConfig struct {
	Backend string `env:"PROAMP_SNAPSHOT,      default=file"`
	// Path defaults to the user config directory for the file backend.
	Path      string `env:"PROAMP_SNAPSHOT_PATH"`
	Key       string `env:"PROAMP_SNAPSHOT_KEY,  default=proamp:session:identity"`
	RedisAddr string `env:"PROAMP_REDIS_ADDR,    default=localhost:6379"`
	RedisDB   int    `env:"PROAMP_REDIS_DB,      default=0"`
}

// Load reads configuration through l, or the process environment when l is
// nil.
func Load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	switch cfg.Snapshot.Backend {
	case SnapshotFile, SnapshotRedis, SnapshotMemory:
	default:
		return nil, fmt.Errorf("config: unknown PROAMP_SNAPSHOT %q", cfg.Snapshot.Backend)
	}
	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.RevalidateInterval < 0 {
		return nil, fmt.Errorf("config: PROAMP_REVALIDATE_INTERVAL must not be negative")
	}
	return &cfg, nil
}
