package cli

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"

	"github.com/prontuario/proamp/internal/api/metrics"
	"github.com/prontuario/proamp/internal/core/ports"
	"github.com/prontuario/proamp/internal/core/service"
	"github.com/prontuario/proamp/internal/infrastructure/db/redis"
	"github.com/prontuario/proamp/internal/infrastructure/http/backend"
	"github.com/prontuario/proamp/internal/infrastructure/storage"
	"github.com/prontuario/proamp/internal/navigation"
	"github.com/prontuario/proamp/internal/pkg/config"
	"github.com/prontuario/proamp/pkg/logger"
)

// runtime is the client stack one command runs against.
type runtime struct {
	client  *backend.Client
	store   *service.SessionStore
	nav     *navigation.Navigator
	cookies *storage.CookieFile
	closers []func() error
}

func openRuntime(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*runtime, error) {
	rt := &runtime{}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	rt.client, err = backend.NewClient(backend.Options{
		BaseURL: cfg.APIURL,
		Timeout: cfg.HTTPTimeout,
		Jar:     jar,
	}, logger.Component(log, "backend"))
	if err != nil {
		return nil, err
	}

	snapshots, cookiePath, err := openSnapshots(ctx, cfg, rt)
	if err != nil {
		rt.close()
		return nil, err
	}
	if cookiePath != "" {
		rt.cookies = storage.NewCookieFile(cookiePath)
		if err := rt.cookies.Restore(jar, rt.client.BaseURL()); err != nil {
			log.Warn().Err(err).Msg("could not restore cookies")
		}
	}

	rt.store = service.NewSessionStore(rt.client, snapshots, logger.Component(log, "session"))
	rt.client.SetUnauthorizedHandler(rt.store.HandleUnauthorized)

	table := navigation.DefaultTable()
	if cfg.Routes != "" {
		if table, err = navigation.LoadTable(cfg.Routes); err != nil {
			rt.close()
			return nil, err
		}
	}
	guard := service.NewGuardEngine(rt.store, service.NewInitGate(), logger.Component(log, "guard"), metrics.RecordGuardDecision)
	rt.nav = navigation.NewNavigator(table, guard, logger.Component(log, "navigation"))
	return rt, nil
}

// openSnapshots builds the configured snapshot store and picks where the
// session cookies live. The memory backend keeps cookies in memory too.
func openSnapshots(ctx context.Context, cfg *config.Config, rt *runtime) (ports.SnapshotStore, string, error) {
	dir := ""
	if cfg.Snapshot.Path != "" {
		dir = filepath.Dir(cfg.Snapshot.Path)
	} else if def, err := storage.DefaultPath(); err == nil {
		dir = filepath.Dir(def)
	}
	cookiePath := ""
	if dir != "" {
		cookiePath = filepath.Join(dir, "cookies.json")
	}

	switch cfg.Snapshot.Backend {
	case config.SnapshotMemory:
		return storage.NewMemoryStore(), "", nil
	case config.SnapshotRedis:
		rdb, err := redis.Connect(ctx, redis.Config{Addr: cfg.Snapshot.RedisAddr, DB: cfg.Snapshot.RedisDB})
		if err != nil {
			return nil, "", err
		}
		rt.closers = append(rt.closers, rdb.Close)
		return redis.NewSnapshotStore(rdb, cfg.Snapshot.Key, 0), cookiePath, nil
	default:
		path := cfg.Snapshot.Path
		if path == "" {
			def, err := storage.DefaultPath()
			if err != nil {
				return nil, "", err
			}
			path = def
		}
		return storage.NewFileStore(path), cookiePath, nil
	}
}

// close saves the cookies and releases connections.
func (rt *runtime) close() {
	if rt.cookies != nil && rt.client != nil {
		_ = rt.cookies.Save(rt.client.Jar(), rt.client.BaseURL())
	}
	for _, c := range rt.closers {
		_ = c()
	}
}
