// Package app assembles the risk acceptance process from configuration:
// storage, directories, event delivery, the expiry sweep and the HTTP router.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"riskaccept/internal/acceptance/expiry"
	"riskaccept/internal/acceptance/handler"
	acceptancemetrics "riskaccept/internal/acceptance/metrics"
	"riskaccept/internal/acceptance/service"
	memorystore "riskaccept/internal/acceptance/store/memory"
	pgstore "riskaccept/internal/acceptance/store/postgres"
	"riskaccept/internal/directory"
	"riskaccept/internal/directory/cache"
	"riskaccept/internal/directory/httpclient"
	directorymemory "riskaccept/internal/directory/memory"
	jwttoken "riskaccept/internal/jwt_token"
	"riskaccept/internal/platform/config"
	"riskaccept/internal/platform/httpserver"
	"riskaccept/internal/platform/kafka"
	"riskaccept/internal/platform/metrics"
	"riskaccept/internal/platform/middleware"
	"riskaccept/internal/platform/postgres"
	platformredis "riskaccept/internal/platform/redis"
	"riskaccept/pkg/platform/httputil"
	"riskaccept/pkg/platform/outbox"
)

// TokenAudience is the aud claim actor tokens must carry.
const TokenAudience = "riskaccept-api"

const (
	topicPartitions  = 3
	topicReplication = 1
)

// Store is what both store backends provide.
type Store interface {
	service.Store
	outbox.Store
}

// App holds the wired process. Close releases what Build opened.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Service *service.Service
	Expiry  *expiry.Evaluator
	Relay   *outbox.Relay
	Tokens  *jwttoken.JWTService

	db      *sql.DB
	redis   *platformredis.Client
	closers []func() error
}

// NewTokenService returns the actor token issuer and validator for cfg.
func NewTokenService(cfg config.Config) *jwttoken.JWTService {
	return jwttoken.NewJWTService(cfg.Server.JWTSigningKey, TokenAudience)
}

// Build wires every component named by cfg. On error, anything already
// opened is closed.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		Tokens:  NewTokenService(cfg),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	lifecycleMetrics := acceptancemetrics.New(a.Metrics.Registerer())

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	risks, users, actions, err := a.directories()
	if err != nil {
		return nil, err
	}
	if risks, users, err = a.cached(ctx, risks, users); err != nil {
		return nil, err
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(lifecycleMetrics),
	}
	if actions != nil {
		opts = append(opts, service.WithActionTracker(actions))
	}
	a.Service = service.New(store, risks, users, opts...)

	publisher, err := a.publisher(ctx)
	if err != nil {
		return nil, err
	}
	a.Relay = outbox.NewRelay(store, publisher,
		outbox.WithLogger(logger),
		outbox.WithResultHook(a.Metrics.ObserveRelay),
	)
	a.Expiry = expiry.New(a.Service,
		expiry.WithLogger(logger),
		expiry.WithMetrics(lifecycleMetrics),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (Store, error) {
	if a.Config.Database.URL == "" {
		a.Logger.WarnContext(ctx, "no database configured, using in-memory store")
		return memorystore.NewInMemory(memorystore.WithTxTimeout(a.Config.Database.TxTimeout)), nil
	}
	db, err := postgres.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	return pgstore.New(db, pgstore.WithTxTimeout(a.Config.Database.TxTimeout)), nil
}

// directories returns the fixture directory when one is configured, otherwise
// HTTP clients. actions is nil when no action tracker is configured.
func (a *App) directories() (directory.RiskDirectory, directory.UserDirectory, directory.ActionTracker, error) {
	dc := a.Config.Directories
	if dc.Fixtures != "" {
		d, err := directorymemory.LoadFixtures(dc.Fixtures)
		if err != nil {
			return nil, nil, nil, err
		}
		return d, d, d, nil
	}

	opts := []httpclient.Option{
		httpclient.WithTimeout(dc.Timeout),
		httpclient.WithLogger(a.Logger),
		httpclient.WithObserver(a.Metrics),
	}
	var actions directory.ActionTracker
	if dc.ActionURL != "" {
		actions = httpclient.NewActionClient(dc.ActionURL, opts...)
	}
	return httpclient.NewRiskClient(dc.RiskURL, opts...), httpclient.NewUserClient(dc.UserURL, opts...), actions, nil
}

func (a *App) cached(ctx context.Context, risks directory.RiskDirectory, users directory.UserDirectory) (directory.RiskDirectory, directory.UserDirectory, error) {
	rc, err := platformredis.New(ctx, a.Config.Redis)
	if err != nil {
		return nil, nil, err
	}
	if rc == nil {
		return risks, users, nil
	}
	a.redis = rc
	a.closers = append(a.closers, rc.Close)

	c := cache.New(rc, a.Config.Redis.CacheTTL,
		cache.WithLogger(a.Logger),
		cache.WithObserver(a.Metrics),
	)
	return c.Risks(risks), c.Users(users), nil
}

func (a *App) publisher(ctx context.Context) (outbox.Publisher, error) {
	if len(a.Config.Kafka.Brokers) == 0 {
		return outbox.NewLogPublisher(a.Logger), nil
	}
	if err := kafka.EnsureTopic(ctx, a.Config.Kafka, topicPartitions, topicReplication); err != nil {
		return nil, fmt.Errorf("ensure topic %s: %w", a.Config.Kafka.Topic, err)
	}
	p, err := kafka.NewPublisher(a.Config.Kafka)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		p.Close()
		return nil
	})
	return p, nil
}

// Router mounts health, metrics and the authenticated acceptance routes.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(a.Metrics.Middleware)

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", a.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireActor(a.Tokens, a.Logger))
		handler.New(a.Service, a.Logger).Register(r)
	})
	return r
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]string{}
	healthy := true
	if a.db != nil {
		checks["database"] = "ok"
		if err := a.db.PingContext(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
	}
	if a.redis != nil {
		checks["redis"] = "ok"
		if err := a.redis.Health(ctx); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}

	if !healthy {
		a.Logger.WarnContext(ctx, "health check failed", "checks", checks)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": checks})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "checks": checks})
}

// Run serves HTTP and runs the outbox relay and expiry sweep until ctx is
// cancelled or one of them fails. The server drains in-flight requests
// within the configured shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	srv := httpserver.New(a.Config.Server.Addr, a.Router())

	g.Go(func() error {
		a.Logger.InfoContext(ctx, "starting riskaccept", "addr", a.Config.Server.Addr)
		return httpserver.Run(ctx, srv, a.Config.Server.ShutdownTimeout)
	})
	g.Go(func() error {
		return ignoreCanceled(a.Relay.Run(ctx))
	})
	g.Go(func() error {
		return ignoreCanceled(a.Expiry.Run(ctx, a.Config.Expiry.Interval))
	})
	return g.Wait()
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

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
