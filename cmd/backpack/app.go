package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/twmb/franz-go/pkg/kgo"

	accessservice "backpack/internal/access/service"
	accessstore "backpack/internal/access/store"
	"backpack/internal/audit"
	"backpack/internal/audit/kafka"
	identityservice "backpack/internal/identity/service"
	identitystore "backpack/internal/identity/store"
	"backpack/internal/ledger/cache"
	ledgermetrics "backpack/internal/ledger/metrics"
	ledgerservice "backpack/internal/ledger/service"
	ledgerstore "backpack/internal/ledger/store"
	"backpack/internal/metadata"
	metadatastore "backpack/internal/metadata/store"
	"backpack/internal/platform/config"
	"backpack/internal/platform/database"
	"backpack/internal/platform/httpserver"
	"backpack/internal/platform/metrics"
	redisclient "backpack/internal/platform/redis"
	id "backpack/pkg/domain"
	"backpack/pkg/platform/circuit"
)

// app holds the wired services for one process.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry

	access   *accessservice.Registry
	identity *identityservice.Registry
	ledger   *ledgerservice.Service
	images   *metadata.Images
	renderer *metadata.Renderer

	publisher *audit.Publisher
	events    *audit.InMemoryStore
	sink      *kafka.Sink
	db        *sqlx.DB
	redis     *redisclient.Client

	closers []func() error
}

// newApp opens the configured backends and wires the services on top.
// On error everything opened so far is closed.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	admin, err := id.ParsePrincipal(cfg.Admin)
	if err != nil {
		return nil, fmt.Errorf("BACKPACK_ADMIN: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	shared := metrics.New(a.registry)
	ledgerMetrics := ledgermetrics.New(a.registry)
	auditMetrics := audit.NewMetrics(a.registry)

	if err := a.openPublisher(auditMetrics); err != nil {
		return nil, err
	}

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	a.access, err = accessservice.New(admin, st.agents,
		accessservice.WithLogger(logger),
		accessservice.WithAuditPublisher(a.publisher),
		accessservice.WithMetrics(shared),
	)
	if err != nil {
		return nil, err
	}

	a.identity, err = identityservice.New(st.identity, a.access,
		identityservice.WithLogger(logger),
		identityservice.WithAuditPublisher(a.publisher),
		identityservice.WithMetrics(shared),
	)
	if err != nil {
		return nil, err
	}

	ledgerOpts := []ledgerservice.Option{
		ledgerservice.WithLogger(logger),
		ledgerservice.WithAuditPublisher(a.publisher),
		ledgerservice.WithMetrics(ledgerMetrics),
		ledgerservice.WithSharedMetrics(shared),
	}
	topCache, err := a.openCache(ctx, ledgerMetrics)
	if err != nil {
		return nil, err
	}
	if topCache != nil {
		ledgerOpts = append(ledgerOpts, ledgerservice.WithCache(topCache))
	}
	a.ledger, err = ledgerservice.New(st.ledger, a.identity, a.access, ledgerOpts...)
	if err != nil {
		return nil, err
	}

	a.images = metadata.NewImages(st.settings, a.access,
		metadata.WithImagesLogger(logger),
		metadata.WithImagesAuditPublisher(a.publisher),
		metadata.WithImagesMetrics(shared),
	)
	a.renderer = metadata.NewRenderer(a.ledger, a.images, cfg.Description,
		metadata.WithLogger(logger),
		metadata.WithMetrics(ledgerMetrics),
	)
	return a, nil
}

type stores struct {
	agents   accessservice.AgentStore
	identity identityservice.Store
	ledger   ledgerservice.Store
	settings metadata.SettingsStore
}

func (a *app) openStores(ctx context.Context) (stores, error) {
	var driver, dsn string
	switch a.cfg.Store {
	case config.StoreMemory:
		return stores{
			agents:   accessstore.NewInMemory(),
			identity: identitystore.NewInMemory(),
			ledger:   ledgerstore.NewInMemory(),
			settings: metadatastore.NewInMemory(a.cfg.ImageURI),
		}, nil
	case config.StoreSQLite:
		driver, dsn = database.DriverSQLite, a.cfg.SQLitePath
	case config.StorePostgres:
		driver, dsn = database.DriverPostgres, a.cfg.DatabaseURL
	default:
		return stores{}, fmt.Errorf("unknown store %q", a.cfg.Store)
	}

	db, err := database.Open(ctx, database.Config{Driver: driver, DSN: dsn, MaxOpenConns: 10})
	if err != nil {
		return stores{}, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	agents := accessstore.NewSQL(db)
	identity := identitystore.NewSQL(db)
	ledger := ledgerstore.NewSQL(db)
	settings := metadatastore.NewSQL(db)
	if err := agents.Migrate(ctx); err != nil {
		return stores{}, err
	}
	if err := identity.Migrate(ctx); err != nil {
		return stores{}, err
	}
	if err := ledger.Migrate(ctx); err != nil {
		return stores{}, err
	}
	if err := settings.Migrate(ctx, a.cfg.ImageURI); err != nil {
		return stores{}, err
	}
	return stores{agents: agents, identity: identity, ledger: ledger, settings: settings}, nil
}

// openPublisher sends events to Kafka when brokers are configured and keeps
// them in memory otherwise.
func (a *app) openPublisher(m *audit.Metrics) error {
	opts := []audit.Option{audit.WithLogger(a.logger), audit.WithMetrics(m)}
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.events = audit.NewInMemoryStore()
		a.publisher = audit.NewPublisher(a.events, opts...)
		a.closers = append(a.closers, a.publisher.Close)
		return nil
	}

	sink, err := kafka.NewSink(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic, kgo.ClientID("backpack"))
	if err != nil {
		return err
	}
	a.sink = sink
	a.closers = append(a.closers, func() error {
		sink.Close()
		return nil
	})
	a.publisher = audit.NewPublisher(sink, append(opts, audit.WithAsyncBuffer(256))...)
	// Registered after the sink so Close drains the queue before the
	// client goes away.
	a.closers = append(a.closers, a.publisher.Close)
	return nil
}

func (a *app) openCache(ctx context.Context, m *ledgermetrics.Metrics) (cache.Cache, error) {
	client, err := redisclient.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, nil
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	backend, err := cache.NewRedis(client.Client, a.cfg.Redis.TTL, cacheNamespace(a.cfg))
	if err != nil {
		return nil, err
	}
	breaker := circuit.New("top-category-cache")
	return cache.NewGuarded(backend, breaker,
		cache.WithLogger(a.logger),
		cache.WithMetrics(m),
	), nil
}

// cacheNamespace scopes cache keys to this ledger. A memory ledger restarts
// its ids at 1 with every process, so it also gets a per-process suffix.
func cacheNamespace(cfg config.Config) string {
	ns := cfg.CacheNamespace()
	if cfg.Store != config.StoreMemory {
		return ns
	}
	if ns == "" {
		ns = config.StoreMemory
	}
	return ns + "-" + uuid.NewString()
}

// healthChecks lists a probe for every remote backend in use.
func (a *app) healthChecks() map[string]httpserver.HealthCheck {
	checks := map[string]httpserver.HealthCheck{}
	if a.db != nil {
		checks["database"] = a.db.PingContext
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Health
	}
	if a.sink != nil {
		checks["kafka"] = a.sink.Health
	}
	return checks
}

// Close releases backends in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
