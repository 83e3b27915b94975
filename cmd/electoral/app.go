package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/iota-electoral/modules/electoral/infrastructure/cache"
	"github.com/iota-uz/iota-electoral/modules/electoral/infrastructure/csvstore"
	"github.com/iota-uz/iota-electoral/modules/electoral/infrastructure/persistence"
	"github.com/iota-uz/iota-electoral/modules/electoral/services"
	"github.com/iota-uz/iota-electoral/pkg/composables"
	"github.com/iota-uz/iota-electoral/pkg/configuration"
	"github.com/iota-uz/iota-electoral/pkg/eventbus"
	"github.com/iota-uz/iota-electoral/pkg/metrics"
	"github.com/iota-uz/iota-electoral/pkg/tracing"
)

const (
	backendDB  = "db"
	backendCSV = "csv"
)

// app is the per-invocation wiring: store, optional cache, telemetry and the
// service on top. ctx carries the pool for the db backend.
type app struct {
	ctx     context.Context
	cfg     *configuration.Configuration
	log     *logrus.Logger
	store   services.Store
	svc     *services.ElectoralService
	closers []func()
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg := configuration.Use()
	a := &app{ctx: ctx, cfg: cfg, log: cfg.Logger()}

	if err := a.openStore(opts); err != nil {
		a.Close()
		return nil, err
	}

	shutdown, err := tracing.Setup(ctx, cfg.OpenTelemetry)
	if err != nil {
		a.Close()
		return nil, withCode(exitUsage, fmt.Errorf("tracing: %w", err))
	}
	a.closers = append(a.closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			a.log.WithError(err).Warn("tracing: shutdown failed")
		}
	})

	if cfg.Prometheus.Enabled {
		mctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := metrics.Serve(mctx, cfg.Prometheus.Addr, cfg.Prometheus.Path, a.log); err != nil {
				a.log.WithError(err).Error("metrics: server stopped")
			}
		}()
		a.closers = append(a.closers, func() {
			cancel()
			<-done
		})
	}

	svcOpts := []services.Option{services.WithWorkers(cfg.Simulation.WorkerCount())}
	if cfg.Redis.CacheEnabled {
		client, err := cache.NewClient(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, withCode(exitUsage, fmt.Errorf("redis: %w", err))
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		svcOpts = append(svcOpts, services.WithCache(cache.NewRedisCache(client, cfg.Redis.CacheTTL)))
	}

	bus := eventbus.NewEventPublisher(a.log)
	subscribeEventLog(bus, a.log)
	a.svc = services.NewElectoralService(a.store, bus, a.log, svcOpts...)
	return a, nil
}

func (a *app) openStore(opts *rootOptions) error {
	switch opts.backend {
	case backendCSV:
		if strings.TrimSpace(opts.input) == "" {
			return withCode(exitUsage, fmt.Errorf("--input is required for --backend=csv"))
		}
		store, err := csvstore.NewStore(opts.input)
		if err != nil {
			return withCode(exitValidation, err)
		}
		a.store = store
	case backendDB:
		pool, err := connectDB(a.ctx, a.cfg.Database.Opts)
		if err != nil {
			return withCode(exitDB, err)
		}
		a.closers = append(a.closers, pool.Close)
		a.ctx = composables.WithPool(a.ctx, pool)
		a.store = persistence.NewElectoralRepository()
	default:
		return withCode(exitUsage, fmt.Errorf("unsupported --backend: %s", opts.backend))
	}
	return nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// run opens the app, hands it to fn and closes it afterwards.
func run(ctx context.Context, opts *rootOptions, fn func(a *app) error) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
