// Command authserver runs the reference session-authentication API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/prontuario/proamp/internal/api"
	"github.com/prontuario/proamp/internal/api/handler"
	"github.com/prontuario/proamp/internal/core/domain"
	"github.com/prontuario/proamp/internal/core/ports"
	"github.com/prontuario/proamp/internal/core/service"
	"github.com/prontuario/proamp/internal/infrastructure/config"
	"github.com/prontuario/proamp/internal/infrastructure/db/memory"
	"github.com/prontuario/proamp/internal/infrastructure/db/mongo"
	"github.com/prontuario/proamp/internal/infrastructure/db/redis"
	"github.com/prontuario/proamp/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "authserver:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx, nil)
	if err != nil {
		return err
	}
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: !cfg.Production()})

	secret := cfg.Session.Secret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn().Msg("SESSION_SECRET not set, sessions will not survive a restart")
	}

	repos, cleanup, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	auth := service.NewAuthService(
		repos.users,
		repos.sessions,
		secret,
		cfg.Session.TTL,
		cfg.Session.RememberTTL,
		logger.Component(log, "auth"),
	)
	if cfg.Seed.AdminEmail != "" {
		admin, err := auth.EnsureUser(ctx, cfg.Seed.AdminEmail, cfg.Seed.AdminPassword, domain.RoleAdmin, true)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		log.Info().Str("user_id", admin.ID).Str("email", admin.Email).Msg("bootstrap admin ready")
	}

	e := api.NewRouter(api.Deps{
		Auth:        auth,
		Log:         logger.Component(log, "http"),
		Cookie:      handler.CookieOptions{Secure: cfg.Production()},
		CORSOrigins: cfg.CORSOrigins,
		LoginRate:   cfg.LoginRate,
		LoginBurst:  cfg.LoginBurst,
		Readiness:   repos.readiness,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("auth server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}

type storage struct {
	users     ports.UserRepository
	sessions  ports.SessionRepository
	readiness map[string]handler.Pinger
}

// openStorage connects the configured backends. The returned cleanup closes
// them.
func openStorage(ctx context.Context, cfg *config.Config) (*storage, func(), error) {
	if cfg.Storage == config.StorageMemory {
		return &storage{
			users:     memory.NewUserRepository(),
			sessions:  memory.NewSessionRepository(),
			readiness: map[string]handler.Pinger{},
		}, func() {}, nil
	}

	mongoClient, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database, AppName: "proamp-authserver"})
	if err != nil {
		return nil, nil, err
	}
	disconnect := func() {
		dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = mongoClient.Disconnect(dctx)
	}

	rdb, err := redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err != nil {
		disconnect()
		return nil, nil, err
	}
	cleanup := func() {
		_ = rdb.Close()
		disconnect()
	}

	users := mongo.NewUserRepository(db)
	if err := users.EnsureIndexes(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}

	return &storage{
		users:    users,
		sessions: redis.NewSessionRepository(rdb),
		readiness: map[string]handler.Pinger{
			"mongodb": mongo.Ping(db),
			"redis":   redis.Ping(rdb),
		},
	}, cleanup, nil
}
