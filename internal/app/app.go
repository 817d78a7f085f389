// Package app wires configuration into running services.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/serviciomed/serviciomed/handlers"
	"github.com/serviciomed/serviciomed/internal/config"
	"github.com/serviciomed/serviciomed/internal/database"
	"github.com/serviciomed/serviciomed/internal/intake"
	"github.com/serviciomed/serviciomed/internal/programs"
	"github.com/serviciomed/serviciomed/internal/records"
	"github.com/serviciomed/serviciomed/internal/render"
	"github.com/serviciomed/serviciomed/internal/sessions"
	"github.com/serviciomed/serviciomed/internal/storage"
	"github.com/serviciomed/serviciomed/internal/store"
	"github.com/serviciomed/serviciomed/internal/store/mongostore"
	"github.com/serviciomed/serviciomed/internal/store/postgres"
	"github.com/serviciomed/serviciomed/internal/store/sqlite"
	"github.com/serviciomed/serviciomed/internal/users"
	"github.com/serviciomed/serviciomed/pkg/logger"
	"github.com/serviciomed/serviciomed/pkg/metrics"
	"github.com/serviciomed/serviciomed/pkg/middleware"
)

const sessionCollection = "sessions"

// App owns every long-lived connection.
type App struct {
	cfg      *config.Config
	Store    store.Store
	Blobs    storage.Store
	Catalog  *programs.Catalog
	Users    *users.Service
	Sessions *sessions.Service
	Intake   *intake.Service
	Router   *gin.Engine

	redis   *redis.Client
	mongo   *mongo.Database
	closers []func() error
}

// OpenStore connects the identity and intake store selected by
// DATABASE_DRIVER and applies SQL migrations.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		s, err := postgres.Open(ctx, cfg.Database.URL, postgres.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case "sqlite":
		if dir := filepath.Dir(cfg.Database.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		s, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case "mongodb":
		return mongostore.Open(ctx, cfg.MongoDB)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// New connects every backend and builds the router.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg

	catalog, err := programs.NewCatalog(cfg.Programs)
	if err != nil {
		return err
	}
	a.Catalog = catalog

	a.Store, err = OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, a.Store.Close)
	logger.Infof("store ready: driver=%s", cfg.Database.Driver)

	a.Blobs, err = storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	logger.Infof("document storage ready: backend=%s", cfg.Storage.Backend)

	if addr := cfg.Redis.Addr(); addr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		a.closers = append(a.closers, a.redis.Close)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			if cfg.Session.Backend == "redis" {
				return fmt.Errorf("redis ping: %w", err)
			}
			logger.Warnf("redis at %s unavailable, continuing without it: %v", addr, err)
			a.redis = nil
		}
	}

	repo, err := a.sessionRepository(ctx)
	if err != nil {
		return err
	}
	a.Sessions = sessions.NewService(repo)
	a.Users = users.NewService(a.Store, records.NewAllocator(catalog))

	renderer := render.NewExamRenderer(cfg.Intake.ExamTitle)
	a.Intake = intake.NewService(a.Store, a.Blobs, renderer, intake.Options{
		MaxUploadBytes: cfg.Intake.MaxUploadBytes,
		PresignTTL:     cfg.Intake.PresignTTL,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterCollectors(reg)

	ready := map[string]handlers.Pinger{"store": a.Store, "sessions": a.Sessions}
	if a.redis != nil {
		ready["redis"] = redisPinger{a.redis}
	}

	var limit gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		limit = middleware.RedisRateLimitMiddleware(a.redis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.Window)
	}

	a.Router, err = handlers.NewRouter(handlers.Deps{
		Users:     a.Users,
		Sessions:  a.Sessions,
		Intake:    a.Intake,
		Catalog:   catalog,
		Flash:     handlers.NewFlasher([]byte(cfg.Session.Secret), cfg.Session.CookieSecure),
		Cookie:    handlers.CookieOptions{TTL: cfg.Session.TTL, Secure: cfg.Session.CookieSecure},
		RateLimit: limit,
		Ready:     ready,
		Gatherer:  reg,
	})
	return err
}

// sessionRepository picks redis, then mongodb, then memory unless
// SESSION_BACKEND names one.
func (a *App) sessionRepository(ctx context.Context) (sessions.Repository, error) {
	cfg := a.cfg
	backend := cfg.Session.Backend
	if backend == "" {
		switch {
		case a.redis != nil:
			backend = "redis"
		case cfg.MongoDB.URI != "":
			backend = "mongodb"
		default:
			backend = "memory"
		}
	}
	switch backend {
	case "redis":
		if a.redis == nil {
			return nil, errors.New("redis session backend selected but redis is not configured")
		}
		logger.Infof("using Redis for session storage")
		return sessions.NewRedisRepository(a.redis, "session:"), nil
	case "mongodb":
		db, err := a.mongoDatabase(ctx)
		if err != nil {
			return nil, err
		}
		repo := sessions.NewMongoRepository(db.Collection(sessionCollection))
		if err := repo.EnsureTTLIndex(ctx); err != nil {
			return nil, err
		}
		logger.Infof("using MongoDB for session storage")
		return repo, nil
	default:
		logger.Warnf("using in-process session storage; sessions are lost on restart")
		return sessions.NewMemoryRepository(), nil
	}
}

// mongoDatabase reuses the store's connection when the store is Mongo.
func (a *App) mongoDatabase(ctx context.Context) (*mongo.Database, error) {
	if ms, ok := a.Store.(*mongostore.Store); ok {
		return ms.Database(), nil
	}
	if a.mongo == nil {
		db, err := database.Connect(ctx, a.cfg.MongoDB, database.DefaultRetry)
		if err != nil {
			return nil, fmt.Errorf("connect mongodb: %w", err)
		}
		a.mongo = db
		a.closers = append(a.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return db.Client().Disconnect(ctx)
		})
	}
	return a.mongo, nil
}

type redisPinger struct{ c *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.c.Ping(ctx).Err() }

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           a.Router,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s (%s)", srv.Addr, a.cfg.Server.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
