package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/DanielNoblero/consultorios-app/internal/app/application"
	"github.com/DanielNoblero/consultorios-app/internal/app/batch"
	"github.com/DanielNoblero/consultorios-app/internal/app/changes"
	"github.com/DanielNoblero/consultorios-app/internal/app/closing"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/support"
	"github.com/DanielNoblero/consultorios-app/internal/app/middleware"
	appoutbox "github.com/DanielNoblero/consultorios-app/internal/app/outbox"
	"github.com/DanielNoblero/consultorios-app/internal/app/pricing"
	"github.com/DanielNoblero/consultorios-app/internal/app/uow"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	domainpricing "github.com/DanielNoblero/consultorios-app/internal/domain/pricing"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/money"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
	"github.com/DanielNoblero/consultorios-app/internal/infra/broker/kafka"
	"github.com/DanielNoblero/consultorios-app/internal/infra/config"
	mongostore "github.com/DanielNoblero/consultorios-app/internal/infra/db/mongo"
	ginserver "github.com/DanielNoblero/consultorios-app/internal/infra/http/gin"
	"github.com/DanielNoblero/consultorios-app/internal/infra/inbox"
	"github.com/DanielNoblero/consultorios-app/internal/infra/obs"
	infraoutbox "github.com/DanielNoblero/consultorios-app/internal/infra/outbox"
	"github.com/DanielNoblero/consultorios-app/internal/infra/report/xlsx"
	"github.com/DanielNoblero/consultorios-app/internal/infra/schedule"
	"github.com/DanielNoblero/consultorios-app/internal/infra/storage/memory"
	"github.com/DanielNoblero/consultorios-app/internal/infra/storage/s3"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "reading .env: %v\n", err)
	}
	cfg, err := config.Load()
	if err != nil {
		obs.NewLogger(os.Getenv("APP_ENV"), "info").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("consultorio stopped", "error", err)
		os.Exit(1)
	}
}

// backends is what a storage mode provides to the rest of the wiring.
type backends struct {
	factory     uow.UoWFactory
	idempotency middleware.IdempotencyStore
	claims      domainuser.ClaimsSyncer
	checks      []obs.Check
	mongo       *mongostore.Client
	close       func()
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	var metrics *obs.Metrics
	var recorder batch.Recorder
	if cfg.MetricsEnabled {
		metrics = obs.NewMetrics(nil)
		recorder = metrics
	}
	shutdownTracing, err := obs.InitTracing(ctx, "consultorios", cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("trace exporter shutdown failed", "error", err)
		}
	}()

	loc := cfg.Location()
	clock := calendar.SystemClock{Location: loc}

	be, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	if err := seedPricing(ctx, be.factory, cfg); err != nil {
		return fmt.Errorf("seed pricing config: %w", err)
	}

	engine := &pricing.Engine{
		UoWFactory: be.factory,
		Threshold:  cfg.DiscountThreshold,
		BatchSize:  cfg.BatchSize,
		Clock:      clock,
		Recorder:   recorder,
		Logger:     logger,
	}
	dispatcher := &changes.Dispatcher{Handlers: changes.Handlers{Engine: engine, Logger: logger}, Logger: logger}

	var workers []func(context.Context) error
	var box appoutbox.Outbox
	switch cfg.TriggerMode {
	case config.TriggerKafka:
		db := be.mongo.DB
		store := infraoutbox.NewStore(db, infraoutbox.StoreOptions{})
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		defer producer.Close()
		dispatcher.Inbox = inbox.NewStore(db, cfg.KafkaGroupID, cfg.IdempotencyTTL)
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, nil, kafka.EventHandler{Target: dispatcher}, logger)
		if err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		defer consumer.Close()
		relay := &infraoutbox.Worker{
			Store:       store,
			Producer:    producer,
			Interval:    cfg.OutboxPollInterval,
			TopicPrefix: cfg.KafkaTopicPrefix,
			Backoff:     cfg.RetryBackoff,
			Logger:      logger,
		}
		topics := kafka.Topics(cfg.KafkaTopicPrefix)
		workers = append(workers, relay.Run, func(ctx context.Context) error { return consumer.Run(ctx, topics) })
		box = store
	case config.TriggerChangeStream:
		watcher := &mongostore.Watcher{DB: be.mongo.DB, Handlers: dispatcher.Handlers, Backoff: firstOr(cfg.RetryBackoff, 2*time.Second), Logger: logger}
		workers = append(workers, watcher.Run)
		// the stream observes the writes themselves; events have no consumer
		box = memory.NewOutbox(nil)
	default:
		box = memory.NewOutbox(dispatcher.Relay)
	}

	app, err := application.New(application.Deps{
		UoWFactory:  be.factory,
		Engine:      engine,
		Outbox:      box,
		Idempotency: be.idempotency,
		Claims:      be.claims,
		Clock:       clock,
		BatchSize:   cfg.BatchSize,
		Recorder:    recorder,
		Timeout:     cfg.RequestTimeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	closer := &closing.Service{
		UoWFactory: be.factory,
		Renderer:   xlsx.Renderer{},
		Clock:      clock,
		Location:   loc,
		BatchSize:  cfg.BatchSize,
		Recorder:   recorder,
		Logger:     logger,
	}
	if cfg.S3Endpoint != "" {
		archiver, err := s3.NewArchiver(s3.Options{
			Endpoint:  cfg.S3Endpoint,
			UseSSL:    cfg.S3UseSSL,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("report archive: %w", err)
		}
		closer.Archiver = archiver
	}
	var reporter schedule.Reporter
	if metrics != nil {
		reporter = metrics
	}
	scheduler := &schedule.MonthlyCloser{
		Closer:   closer,
		Clock:    clock,
		Location: loc,
		Interval: cfg.ReportInterval,
		Timeout:  10 * time.Minute,
		Reporter: reporter,
		Logger:   logger,
	}
	workers = append(workers, scheduler.Run)

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, every authenticated route will answer 401")
	}
	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Checks: be.checks}, ginserver.Handlers{
		Reservations: ginserver.ReservationHandler{Commands: app.Commands, Queries: app.Queries},
		Pricing:      ginserver.PricingHandler{Commands: app.Commands, Queries: app.Queries},
		Roles:        ginserver.RoleHandler{Commands: app.Commands},
		Me:           ginserver.MeHandler{Queries: app.Queries},
		Reports: &ginserver.ReportHandler{
			Closer:        closer,
			Clock:         clock,
			Location:      loc,
			SettleTimeout: 10 * time.Minute,
			Reporter:      reporter,
			Logger:        logger,
		},
		AuthMiddleware: ginserver.AuthMiddleware{Verifier: ginserver.TokenVerifier{Secret: []byte(cfg.JWTSecret)}, Logger: logger}.Handle,
		Metrics:        metrics,
	})

	var wg sync.WaitGroup
	for _, work := range workers {
		wg.Add(1)
		go func(work func(context.Context) error) {
			defer wg.Done()
			if err := work(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("background worker stopped", "error", err)
			}
		}(work)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", cfg.StorageMode, "trigger", cfg.TriggerMode)
	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	wg.Wait()
	logger.Info("HTTP server stopped")
	return nil
}

func openBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (backends, error) {
	if cfg.StorageMode != config.StorageMongo {
		store := memory.NewStore()
		logger.Warn("using in-memory storage, data is lost on restart")
		return backends{
			factory:     store.Factory(),
			idempotency: memory.NewIdempotencyStore(cfg.IdempotencyTTL),
			claims:      &memory.ClaimsSyncer{Store: store},
			close:       func() {},
		}, nil
	}
	client, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return backends{}, fmt.Errorf("mongo connect: %w", err)
	}
	closeClient := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.Error("mongo disconnect failed", "error", err)
		}
	}
	if err := client.EnsureIndexes(ctx); err != nil {
		closeClient()
		return backends{}, fmt.Errorf("mongo indexes: %w", err)
	}
	return backends{
		factory:     mongostore.Factory{DB: client.DB},
		idempotency: mongostore.NewIdempotencyStore(client.DB, cfg.IdempotencyTTL),
		claims:      mongostore.NewClaimsSyncer(client.DB),
		mongo:       client,
		checks:      []obs.Check{{Name: "mongo", Probe: client.Ping}},
		close:       closeClient,
	}, nil
}

// seedPricing stores the configured default rates when no table was ever
// saved. A stored table always wins over the environment.
func seedPricing(ctx context.Context, factory uow.UoWFactory, cfg config.Config) error {
	return support.InNewUnit(ctx, factory, func(ctx context.Context, unit uow.UnitOfWork) error {
		current, err := unit.PricingConfig().Get(ctx)
		if err != nil {
			return err
		}
		if !current.ChangedAt.IsZero() || current.EffectiveDate != "" {
			return nil
		}
		seed := domainpricing.Config{
			BaseRate:     money.Amount(cfg.DefaultBaseRate),
			DiscountRate: money.Amount(cfg.DefaultDiscountRate),
		}
		if seed.SameRates(current) {
			return nil
		}
		if err := seed.Validate(); err != nil {
			return err
		}
		return unit.PricingConfig().Save(ctx, seed)
	})
}

func firstOr(ds []time.Duration, def time.Duration) time.Duration {
	if len(ds) > 0 {
		return ds[0]
	}
	return def
}
