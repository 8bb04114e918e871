package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/appointment"
	"github.com/Ramsey-B/clover/internal/repositories/availability"
	"github.com/Ramsey-B/clover/internal/repositories/conflictresolution"
	"github.com/Ramsey-B/clover/internal/repositories/customer"
	"github.com/Ramsey-B/clover/internal/repositories/ledger"
	"github.com/Ramsey-B/clover/internal/repositories/servicecatalog"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/routes/conflicts"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/sync"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/status"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

// set via ldflags at build time
var version = "dev"

// bootDependency adapts closures to the startup dependency interface
type bootDependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *bootDependency) GetName() string                 { return d.name }
func (d *bootDependency) DependsOn() []string             { return d.dependsOn }
func (d *bootDependency) Start(ctx context.Context) error { return d.start(ctx) }
func (d *bootDependency) Stop(ctx context.Context) error  { return d.stop(ctx) }

func main() {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind config: %v\n", err)
		os.Exit(1)
	}

	logger, flush := logging.New(logging.Config{
		AppName: cfg.AppName,
		Level:   cfg.LogLevel,
		Pretty:  cfg.PrettyLogs,
	})
	defer func() { _ = flush() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := initTracing(ctx, cfg)
		if err != nil {
			logger.WithContext(ctx).WithError(err).Error("Failed to initialize tracing")
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	var db database.DB
	boot.AddDependency(&bootDependency{
		name: "database",
		start: func(ctx context.Context) error {
			conn, err := database.Connect(ctx, database.ConnectConfig{
				Driver:          cfg.DatabaseDriver,
				Host:            cfg.DatabaseHost,
				Port:            cfg.DatabasePort,
				UserName:        cfg.DatabaseUserName,
				Password:        cfg.DatabasePassword,
				Name:            cfg.DatabaseName,
				SSLMode:         cfg.DatabaseSSLMode,
				MaxOpenConns:    cfg.DatabaseMaxOpenConns,
				MaxIdleConns:    cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
			}, logger)
			if err != nil {
				return err
			}
			db = conn
			return runMigrations(cfg, logger, db)
		},
		stop: func(ctx context.Context) error {
			if db != nil {
				return db.Close()
			}
			return nil
		},
	})

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, logger)
	boot.AddDependency(&bootDependency{
		name:  "kafka-producer",
		start: func(ctx context.Context) error { return nil },
		stop:  func(ctx context.Context) error { return producer.Close() },
	})

	var redisClient *redis.Client
	if cfg.RedisEnabled {
		boot.AddDependency(&bootDependency{
			name: "redis",
			start: func(ctx context.Context) error {
				redisClient = redis.NewClient(&redis.Options{
					Addr:     cfg.RedisAddress,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				})
				return redisClient.Ping(ctx).Err()
			},
			stop: func(ctx context.Context) error {
				if redisClient != nil {
					return redisClient.Close()
				}
				return nil
			},
		})
	}

	if err := boot.Start(ctx); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Startup failed")
		os.Exit(1)
	}

	matcher := matching.NewMatcher(matching.Config{
		FuzzyEnabled:  cfg.MatchFuzzyEnabled,
		FuzzyMinScore: cfg.MatchFuzzyMinScore,
	})

	ledgerRepo := ledger.NewRepository(db, logger)
	resolutionRepo := conflictresolution.NewRepository(db, logger)
	appointmentRepo := appointment.NewRepository(db, logger)
	customerRepo := customer.NewRepository(db, logger)
	serviceRepo := servicecatalog.NewRepository(db, logger)
	availabilityRepo := availability.NewRepository(db, logger)

	emitter := events.NewEmitter(producer, logger)

	var cache *status.Cache
	var invalidator reconcile.StatusInvalidator
	if redisClient != nil {
		cache = status.NewCache(redisClient, cfg.StatusCacheTTL, logger)
		invalidator = cache
	}

	registry := reconcile.Registry{
		models.EntityAppointment:  reconcile.NewAppointmentReconciler(appointmentRepo, matcher, logger),
		models.EntityCustomer:     reconcile.NewCustomerReconciler(customerRepo, matcher, logger),
		models.EntityService:      reconcile.NewServiceReconciler(serviceRepo, matcher, logger),
		models.EntityAvailability: reconcile.NewAvailabilityReconciler(availabilityRepo, matcher, logger),
	}

	dispatcher := reconcile.NewDispatcher(db, ledgerRepo, registry, emitter, invalidator, logger, cfg.ReconcileTimeout)
	resolver := reconcile.NewResolver(db, ledgerRepo, resolutionRepo, registry, emitter, invalidator, logger)
	reporter := status.NewReporter(ledgerRepo, cache, logger)

	var consumer *kafka.Consumer
	if cfg.KafkaIntakeEnabled {
		consumer = kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaIntakeTopic,
			ConsumerGroup: cfg.KafkaIntakeConsumerGroup,
		}, logger, func(ctx context.Context, batch *kafka.IntakeBatch) error {
			dispatcher.ReconcileBatch(ctx, batch.UserID, batch.DeviceID, batch.Mutations)
			return nil
		})
		if err := consumer.Start(ctx); err != nil {
			logger.WithContext(ctx).WithError(err).Error("Failed to start intake consumer")
			os.Exit(1)
		}
	}

	if err := registerDependencies(ledgerRepo, dispatcher, resolver, reporter); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Failed to register dependencies")
		os.Exit(1)
	}

	e := buildServer(cfg, logger)

	checker := health.NewChecker(db.Unsafe(), redisClient, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	sync.Register(api.Group("/sync"))
	conflicts.Register(api.Group("/sync/conflicts"))

	go func() {
		checker.SetReady(true)
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("Failed to stop intake consumer cleanly")
		}
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to shut down server cleanly")
	}
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to stop dependencies cleanly")
	}
}

func runMigrations(cfg *config.Config, logger ectologger.Logger, db database.DB) error {
	driver, err := migratepg.WithInstance(db.Unsafe().DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return migrations.Migrate(cfg.DatabaseName, driver)
}

func registerDependencies(
	ledgerRepo *ledger.Repository,
	dispatcher *reconcile.Dispatcher,
	resolver *reconcile.Resolver,
	reporter *status.Reporter,
) error {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return err
	}

	if err := ectoinject.RegisterInstance[*ledger.Repository](container, ledgerRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*reconcile.Dispatcher](container, dispatcher); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*reconcile.Resolver](container, resolver); err != nil {
		return err
	}
	return ectoinject.RegisterInstance[*status.Reporter](container, reporter)
}

func buildServer(cfg *config.Config, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomiddleware.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	return e
}

func initTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter = exporters.NewNoopExporter()
	if cfg.TracingOTLPEndpoint != "" {
		otlp, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.TracingOTLPEndpoint,
			Protocol: cfg.TracingOTLPProtocol,
			Insecure: true,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		exporter = otlp
	}

	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.AppName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return provider.Shutdown, nil
}
