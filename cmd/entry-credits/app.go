package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-command"
	entrycredits "github.com/goliatone/go-entry-credits"
	"github.com/goliatone/go-entry-credits/adapters/gocommand"
	"github.com/goliatone/go-entry-credits/adapters/gojob"
	"github.com/goliatone/go-entry-credits/adapters/gologger"
	"github.com/goliatone/go-entry-credits/adapters/metrics"
	"github.com/goliatone/go-entry-credits/config"
	"github.com/goliatone/go-entry-credits/core"
	creditmigrations "github.com/goliatone/go-entry-credits/migrations"
	sqlstore "github.com/goliatone/go-entry-credits/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type globalOptions struct {
	configFile string
	logLevel   string
	logFormat  string
	dsn        string
	driver     string
}

type persistenceConfig struct {
	driver string
	server string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "entry-credits" }

// app holds every wired component for one CLI invocation.
type app struct {
	cfg        core.Config
	logger     *gologger.SlogLogger
	provider   *gologger.SlogProvider
	client     *persistence.Client
	factory    *sqlstore.RepositoryFactory
	registry   *prometheus.Registry
	service    *core.Service
	dispatcher *core.OutboxDispatcher
	facade     *entrycredits.Facade
	subs       gocommand.Subscriptions
	jobs       *gojob.Runtime
}

type appOptions struct {
	jobs *gojob.RuntimeConfig
}

type appOption func(*appOptions)

// withJobQueue backs post-commit outbox dispatch with a go-job queue in the
// service database. The worker is started by the caller.
func withJobQueue(cfg gojob.RuntimeConfig) appOption {
	return func(o *appOptions) {
		o.jobs = &cfg
	}
}

func dialectFor(driver string) (string, schema.Dialect, error) {
	switch strings.TrimSpace(driver) {
	case "", "sqlite3":
		return creditmigrations.DialectSQLite, sqlitedialect.New(), nil
	case "postgres":
		return creditmigrations.DialectPostgres, pgdialect.New(), nil
	default:
		return "", nil, fmt.Errorf("entry-credits: unsupported database driver %q", driver)
	}
}

func loadConfig(ctx context.Context, opts globalOptions) (core.Config, error) {
	runtime := core.Config{
		Database: core.DatabaseConfig{
			Driver: strings.TrimSpace(opts.driver),
			DSN:    strings.TrimSpace(opts.dsn),
		},
	}
	return config.Load(ctx, runtime, config.WithFile(opts.configFile))
}

// openDatabase connects, registers the embedded migrations for the dialect
// and builds the repository factory.
func openDatabase(ctx context.Context, cfg core.DatabaseConfig, debug bool) (*persistence.Client, *sqlstore.RepositoryFactory, error) {
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = "sqlite3"
	}
	dialectName, dialect, err := dialectFor(driver)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("entry-credits: open database: %w", err)
	}
	if dialectName == creditmigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{driver: driver, server: cfg.DSN, debug: debug}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("entry-credits: persistence client: %w", err)
	}
	_, err = creditmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != dialectName {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, creditmigrations.WithValidationTargets(dialectName))
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("entry-credits: register migrations: %w", err)
	}

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = 5 * time.Minute
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("entry-credits: cache service: %w", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithCacheService(cacheService))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return client, factory, nil
}

func newApp(ctx context.Context, opts globalOptions, out io.Writer, appOpts ...appOption) (*app, error) {
	var options appOptions
	for _, opt := range appOpts {
		if opt != nil {
			opt(&options)
		}
	}
	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	logger := gologger.NewSlogLogger(out, opts.logFormat, gologger.ParseLevel(opts.logLevel))
	provider := gologger.NewSlogProvider(logger)

	client, factory, err := openDatabase(ctx, cfg.Database, gologger.ParseLevel(opts.logLevel) <= gologger.LevelTrace)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(metrics.WithRegisterer(registry))

	projectors := core.NewEventProjectorRegistry()
	projectors.Register("notification-log", core.NewNotificationLogProjector(provider.GetLogger("entry-credits.notifications")))
	dispatcher, err := core.NewOutboxDispatcher(factory.OutboxStore(), projectors,
		core.OutboxDispatcherConfigFrom(cfg.Outbox),
		core.WithDispatcherLogger(provider.GetLogger("entry-credits.outbox")),
	)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	serviceOpts := []core.Option{
		core.WithUnitOfWork(factory.UnitOfWork()),
		core.WithLogger(provider.GetLogger("entry-credits")),
		core.WithLoggerProvider(provider),
		core.WithMetricsRecorder(recorder),
	}
	var jobs *gojob.Runtime
	if options.jobs != nil {
		jobs, err = newJobRuntime(ctx, factory, cfg.Database, dispatcher, provider, recorder, *options.jobs)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		serviceOpts = append(serviceOpts, core.WithJobEnqueuer(jobs.Enqueuer()))
	}

	service, err := core.NewService(cfg, serviceOpts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	facade, err := entrycredits.NewFacade(service, entrycredits.WithOutboxDispatcher(dispatcher))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	subs, err := gocommand.RegisterFacade(gocommand.NewRegistryAdapter(command.NewRegistry()), facade)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		provider:   provider,
		client:     client,
		factory:    factory,
		registry:   registry,
		service:    service,
		dispatcher: dispatcher,
		facade:     facade,
		subs:       subs,
		jobs:       jobs,
	}, nil
}

func newJobRuntime(
	ctx context.Context,
	factory *sqlstore.RepositoryFactory,
	dbCfg core.DatabaseConfig,
	dispatcher *core.OutboxDispatcher,
	provider *gologger.SlogProvider,
	recorder core.MetricsRecorder,
	cfg gojob.RuntimeConfig,
) (*gojob.Runtime, error) {
	dialectName, _, err := dialectFor(dbCfg.Driver)
	if err != nil {
		return nil, err
	}
	handler, err := gojob.NewOutboxDispatchHandler(dispatcher,
		gojob.WithHandlerLogger(provider.GetLogger("entry-credits.jobs")),
	)
	if err != nil {
		return nil, err
	}
	cfg.Dialect = dialectName
	if cfg.Logger == nil {
		cfg.Logger = provider.GetLogger("entry-credits.jobs")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = recorder
	}
	return gojob.NewRuntime(ctx, factory.DB().DB, handler, cfg)
}

func (a *app) Close() error {
	if a == nil {
		return nil
	}
	a.subs.Unsubscribe()
	if a.jobs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = a.jobs.Stop(ctx)
		cancel()
	}
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}
