// Package app wires the beacon server runtime: config, logging, metrics,
// HTTP routes, session storage, and the presence gateway.
//
// It is intentionally small and deterministic to keep behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	authapi "beacon/cmd/internal/auth/api"
	"beacon/cmd/internal/auth/session"
	"beacon/cmd/internal/presence"
)

// App is the beacon server runtime: it owns HTTP server wiring, the session
// service, and the presence registry.
type App struct {
	cfg     Config
	log     Logger
	metrics *Metrics

	storeKind string
	dbPool    *pgxpool.Pool
	rdb       *redis.Client

	sessStore session.Store
	sessions  *session.Service
	auth      *authapi.Handler

	registry *presence.Registry
	ws       *presence.WSGateway
}

// Option configures optional App dependencies.
type Option func(*options)

type options struct {
	verifier authapi.IdentityVerifier
}

// WithIdentityVerifier enables the login endpoint with the given credential
// checker. User storage lives outside this service.
func WithIdentityVerifier(v authapi.IdentityVerifier) Option {
	return func(o *options) { o.verifier = v }
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		metrics:   NewMetrics(),
		storeKind: cfg.ResolvedSessionStore(),
	}

	if err := a.initSessionStore(context.Background()); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		a.closeResources()
		return nil, err
	}
	codec, err := session.NewPasetoV4Codec(sessCfg)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.sessions = session.NewService(sessCfg, codec, a.sessStore)

	authOpts := []authapi.HandlerOption{authapi.WithMetrics(a.metrics)}
	if o.verifier != nil {
		authOpts = append(authOpts, authapi.WithIdentityVerifier(o.verifier))
	}
	a.auth, err = authapi.NewHandler(log, authapi.LoadConfigFromEnv(), a.sessions, authOpts...)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	a.registry = presence.NewRegistry(log)
	a.registry.Subscribe(presence.NewBroadcaster(log))
	a.registry.Subscribe(a.metrics)
	a.ws = presence.NewWSGateway(log, a.registry, a.sessions)

	return a, nil
}

// initSessionStore selects and connects the configured session backend.
func (a *App) initSessionStore(ctx context.Context) error {
	switch a.storeKind {
	case StorePostgres:
		pool, err := NewDBPool(ctx, a.cfg)
		if err != nil {
			return err
		}
		st, err := session.NewPostgresStore(pool, session.WithSchema(a.cfg.DBSchema))
		if err != nil {
			pool.Close()
			return err
		}
		a.dbPool = pool
		a.sessStore = st
		a.log.Info("store.postgres", "schema", a.cfg.DBSchema)

	case StoreRedis:
		rdb, err := NewRedisClient(ctx, a.cfg)
		if err != nil {
			return err
		}
		st, err := session.NewRedisStore(rdb, "beacon:sess")
		if err != nil {
			_ = rdb.Close()
			return err
		}
		a.rdb = rdb
		a.sessStore = st
		a.log.Info("store.redis")

	default:
		a.sessStore = session.NewMemoryStore()
		a.log.Info("store.memory")
	}
	return nil
}

// Run starts the HTTP server and the expiry sweeper, and blocks until
// context cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a)

	var handler http.Handler = mux
	handler = a.metrics.WithHTTPMetrics(handler)
	handler = WithCORS(handler, a.cfg, a.log)
	handler = WithSecurityHeaders(handler)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "store", a.storeKind)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return a.runSweeper(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	err := g.Wait()

	a.closeResources()
	a.log.Info("server.stopped")
	return err
}

// runSweeper purges expired session records on a fixed interval.
func (a *App) runSweeper(ctx context.Context) error {
	interval := nonZeroDuration(a.cfg.SweepInterval, 10*time.Minute)
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := a.sessions.Sweep(ctx, time.Now().UTC())
			if err != nil {
				a.log.Error("sweep.fail", "err", err)
				continue
			}
			if n > 0 {
				a.log.Info("sweep.purged", "records", n)
			}
		}
	}
}

func (a *App) closeResources() {
	if a.sessStore != nil {
		_ = a.sessStore.Close()
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
