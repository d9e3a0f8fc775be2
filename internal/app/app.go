// Package app wires the configured backends into one cart agent.
// Both cartd and cartctl build their agent here.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jsa498/digitalmarketing/internal/cart"
	"github.com/jsa498/digitalmarketing/internal/config"
	"github.com/jsa498/digitalmarketing/internal/identity"
	"github.com/jsa498/digitalmarketing/internal/localstore"
	"github.com/jsa498/digitalmarketing/internal/logger"
	"github.com/jsa498/digitalmarketing/internal/notify"
	"github.com/jsa498/digitalmarketing/internal/reconcile"
	"github.com/jsa498/digitalmarketing/internal/remote"
	"github.com/jsa498/digitalmarketing/internal/repository"
	"github.com/jsa498/digitalmarketing/internal/service"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// App is a fully wired cart agent.
type App struct {
	Service  *service.CartService
	Engine   *reconcile.Engine
	Repo     repository.CartRepository
	Resolver identity.Resolver
	Redis    *redis.Client

	log     logrus.FieldLogger
	closers []func() error
}

// Build opens every configured backend. On error, what was opened is closed.
func Build(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	a := &App{log: log}
	built := false
	defer func() {
		if !built {
			a.Close()
		}
	}()

	if cfg.NeedsRedis() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		perr := client.Ping(pingCtx).Err()
		cancel()
		if perr != nil {
			client.Close()
			return nil, errors.Wrap(perr, "redis connection failed")
		}
		a.Redis = client
		a.closers = append(a.closers, client.Close)
		log.WithField("addr", cfg.Cache.RedisAddress()).Info("Redis client initialized")
	}

	repo, pgDB, err := a.openRepository(cfg, log)
	if err != nil {
		return nil, err
	}
	a.Repo = repo

	notifier, err := a.openNotifier(cfg, pgDB, log)
	if err != nil {
		return nil, err
	}

	var store remote.Store = remote.NewStore(repo, notifier, logger.Component(log, "remote"))
	if cfg.Remote.BreakerEnabled {
		store = remote.NewBreakerStore(store, remote.BreakerSettings{
			MinRequests: cfg.Remote.BreakerMinRequests,
			FailRatio:   cfg.Remote.BreakerFailRatio,
			OpenTimeout: cfg.Remote.BreakerOpenTimeout,
		}, logger.Component(log, "breaker"))
	}

	local, err := a.openLocalStore(cfg)
	if err != nil {
		return nil, err
	}

	state := cart.NewState(local, logger.Component(log, "cart"))
	if err := state.Restore(ctx); err != nil {
		log.WithError(err).Warn("Ignoring unreadable local cart snapshot")
	}

	a.Engine = reconcile.NewEngine(state, store, logger.Component(log, "reconcile"), reconcile.Options{
		Timeout: cfg.Remote.Timeout,
	})
	a.Service = service.NewCartService(a.Engine, logger.Component(log, "cart_service"))

	// The engine drains its write queue before the stores underneath close.
	a.closers = append(a.closers, func() error {
		a.Service.Close()
		return nil
	})

	a.Resolver, err = a.openResolver(cfg, log)
	if err != nil {
		return nil, err
	}

	built = true
	return a, nil
}

func (a *App) openRepository(cfg *config.Config, log logrus.FieldLogger) (repository.CartRepository, *sql.DB, error) {
	rlog := logger.Component(log, "repository")

	switch cfg.Remote.Type {
	case "mongodb", "mongo":
		repo, err := repository.NewMongoDBCartRepository(cfg.Remote.MongoURI, cfg.Remote.MongoDatabase, cfg.Remote.MongoCollection, rlog)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to initialize MongoDB")
		}
		a.closers = append(a.closers, repo.Close)
		return repo, nil, nil
	case "postgres", "postgresql":
		repo, err := repository.NewPostgresCartRepository(cfg.Remote.PostgresDSN(), rlog)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to initialize PostgreSQL")
		}
		a.closers = append(a.closers, repo.Close)
		return repo, repo.DB(), nil
	case "mysql":
		sqlDB, err := sql.Open("mysql", cfg.Remote.MySQLDSN())
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to open MySQL")
		}
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
		if err := sqlDB.Ping(); err != nil {
			sqlDB.Close()
			return nil, nil, errors.Wrap(err, "MySQL ping failed")
		}
		repo, err := repository.NewMySQLCartRepository(sqlDB, rlog)
		if err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		a.closers = append(a.closers, repo.Close)
		return repo, nil, nil
	case "sqlite", "":
		repo, err := repository.NewSQLiteCartRepository(cfg.Remote.Path, rlog)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to initialize SQLite")
		}
		a.closers = append(a.closers, repo.Close)
		return repo, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown REMOTE_DB_TYPE %q", cfg.Remote.Type)
	}
}

func (a *App) openNotifier(cfg *config.Config, pgDB *sql.DB, log logrus.FieldLogger) (notify.Notifier, error) {
	nlog := logger.Component(log, "notify")

	var n notify.Notifier
	switch cfg.Notify.Type {
	case "redis":
		n = notify.NewRedisNotifier(a.Redis, nlog)
	case "postgres", "postgresql":
		if pgDB == nil {
			return nil, errors.New("NOTIFY_TYPE=postgres requires REMOTE_DB_TYPE=postgres")
		}
		pn, err := notify.NewPostgresNotifier(pgDB, cfg.Remote.PostgresDSN(), nlog)
		if err != nil {
			return nil, err
		}
		n = pn
	case "memory", "":
		n = notify.NewMemoryNotifier()
		nlog.Warn("In-process notifier: changes from other devices are not delivered")
	default:
		return nil, fmt.Errorf("unknown NOTIFY_TYPE %q", cfg.Notify.Type)
	}

	a.closers = append(a.closers, n.Close)
	return n, nil
}

func (a *App) openLocalStore(cfg *config.Config) (localstore.Store, error) {
	var (
		store localstore.Store
		err   error
	)
	switch cfg.Local.Type {
	case "sqlite":
		store, err = localstore.NewSQLiteStore(cfg.Local.Path, cfg.Local.Key)
	case "redis":
		store = localstore.NewRedisStore(a.Redis, cfg.Local.Key)
	case "memory":
		store = localstore.NewMemoryStore()
	case "file", "":
		store, err = localstore.NewFileStore(cfg.Local.Path)
	default:
		return nil, fmt.Errorf("unknown LOCAL_STORE_TYPE %q", cfg.Local.Type)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to open local cart store")
	}

	a.closers = append(a.closers, store.Close)
	return store, nil
}

func (a *App) openResolver(cfg *config.Config, log logrus.FieldLogger) (identity.Resolver, error) {
	switch cfg.Identity.Type {
	case "redis":
		return identity.NewRedisSessionResolver(a.Redis, logger.Component(log, "identity")), nil
	case "jwt", "":
		if cfg.Identity.JWTSecret == "" {
			log.Warn("JWT_SECRET is empty, sign-in over HTTP is disabled")
		}
		return identity.NewJWTResolver(cfg.Identity.JWTSecret, cfg.Identity.JWTIssuer), nil
	default:
		return nil, fmt.Errorf("unknown IDENTITY_TYPE %q", cfg.Identity.Type)
	}
}

// Close releases everything in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("close failed")
		}
	}
	a.closers = nil
}
