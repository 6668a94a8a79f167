package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/vaidashi/service-desk-api/internal/api"
	"github.com/vaidashi/service-desk-api/internal/catalog"
	"github.com/vaidashi/service-desk-api/internal/config"
	"github.com/vaidashi/service-desk-api/internal/database"
	"github.com/vaidashi/service-desk-api/internal/handlers"
	"github.com/vaidashi/service-desk-api/internal/memstore"
	"github.com/vaidashi/service-desk-api/internal/models"
	"github.com/vaidashi/service-desk-api/internal/numbering"
	"github.com/vaidashi/service-desk-api/internal/outbox"
	"github.com/vaidashi/service-desk-api/internal/repository"
	"github.com/vaidashi/service-desk-api/internal/service"
	"github.com/vaidashi/service-desk-api/pkg/circuitbreaker"
	"github.com/vaidashi/service-desk-api/pkg/kafka"
	"github.com/vaidashi/service-desk-api/pkg/logger"
	"github.com/vaidashi/service-desk-api/pkg/retry"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load()

	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	l.Info("Starting service desk API",
		"env", cfg.Env,
		"storeDriver", cfg.StoreDriver,
		"orderNumbers", cfg.OrderNumberBackend,
		"kafka", cfg.Kafka.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		l.Error("Service desk stopped with error", "error", err)
		os.Exit(1)
	}

	l.Info("Server exiting")
}

// backend is the persistence the rest of the process is wired to
type backend struct {
	store       service.Store
	directory   catalog.Directory
	outbox      outbox.Repository
	deadLetters outbox.DeadLetterRepository
	pinger      api.Pinger
	closers     []func() error
}

func (b *backend) close(l logger.Logger) {
	for _, c := range b.closers {
		if err := c(); err != nil {
			l.Error("Error during shutdown", "error", err)
		}
	}
}

func run(ctx context.Context, cfg *config.Config, l logger.Logger) error {
	b, err := openBackend(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer b.close(l)

	opts, err := sequencerOptions(ctx, cfg, b, l)
	if err != nil {
		return err
	}

	orders := service.NewOrderService(b.store, b.directory, l, opts...)

	publisherBreaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
		Name:             "kafka",
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	})

	publish, consumer, err := eventHandler(cfg, b, publisherBreaker, l)
	if err != nil {
		return err
	}

	processor := outbox.NewProcessor(b.outbox, b.deadLetters, outbox.ProcessorConfig{
		PollingInterval: cfg.Outbox.PollInterval,
		BatchSize:       cfg.Outbox.BatchSize,
		MaxRetries:      cfg.Outbox.MaxRetries,
	}, l)
	processor.RegisterHandler(publish, models.OrderEventTypes...)

	deadLetterProcessor := outbox.NewDeadLetterProcessor(b.deadLetters, outbox.DeadLetterProcessorConfig{
		PollingInterval: 6 * cfg.Outbox.PollInterval,
		BatchSize:       5,
		MaxRetries:      5,
		BackoffStrategy: &retry.ExponentialBackoff{
			InitialInterval: time.Second,
			MaxInterval:     2 * time.Minute,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		},
	}, l)
	deadLetterProcessor.RegisterHandler(publish, models.OrderEventTypes...)

	server := api.NewServer(cfg, api.Dependencies{
		Orders:      orders,
		DeadLetters: b.deadLetters,
		Breakers:    []*circuitbreaker.CircuitBreaker{publisherBreaker},
		Store:       b.pinger,
	}, l)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)
	g.Go(func() error { return processor.Run(gctx) })
	g.Go(func() error { return deadLetterProcessor.Run(gctx) })
	if consumer != nil {
		g.Go(func() error { return consumer.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		l.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openBackend(ctx context.Context, cfg *config.Config, l logger.Logger) (*backend, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		store := memstore.New()

		if err := loadFixture(ctx, cfg.CatalogFixture, store, l); err != nil {
			return nil, err
		}

		return &backend{
			store:       store,
			directory:   store,
			outbox:      store.Outbox(),
			deadLetters: store.DeadLetters(),
		}, nil
	}

	db, err := database.New(cfg, l)
	if err != nil {
		return nil, err
	}

	if err := db.RunMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &backend{
		store:       repository.NewOrderRepository(db, l),
		directory:   repository.NewCatalogRepository(db, l),
		outbox:      repository.NewOutboxRepository(db, l),
		deadLetters: repository.NewDeadLetterRepository(db, l),
		pinger:      db,
		closers:     []func() error{db.Close},
	}, nil
}

// loadFixture seeds the memory store; a missing file leaves the catalog empty
func loadFixture(ctx context.Context, path string, w catalog.Writer, l logger.Logger) error {
	if path == "" {
		return nil
	}

	fx, err := catalog.LoadFixtureFile(path)
	if errors.Is(err, os.ErrNotExist) {
		l.Warn("Catalog fixture not found, starting with an empty catalog", "path", path)
		return nil
	}
	if err != nil {
		return err
	}

	if err := fx.Apply(ctx, w); err != nil {
		return fmt.Errorf("apply catalog fixture: %w", err)
	}

	l.Info("Catalog fixture loaded",
		"path", path,
		"clients", len(fx.Clients),
		"technicians", len(fx.Technicians),
		"products", len(fx.Products),
		"services", len(fx.Services))
	return nil
}

func sequencerOptions(ctx context.Context, cfg *config.Config, b *backend, l logger.Logger) ([]service.Option, error) {
	if cfg.OrderNumberBackend != config.OrderNumberRedis {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	b.closers = append(b.closers, client.Close)
	l.Info("Order numbers drawn from Redis", "addr", cfg.RedisAddr)

	return []service.Option{service.WithSequencer(numbering.NewRedisSequencer(client, "orderno"))}, nil
}

// eventHandler publishes to Kafka when it is enabled and the store is
// durable; otherwise events are only logged. The consumer is nil when Kafka
// is off.
func eventHandler(cfg *config.Config, b *backend, breaker *circuitbreaker.CircuitBreaker, l logger.Logger) (outbox.MessageHandler, *kafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.StoreDriver == config.StoreDriverMemory {
		l.Info("Kafka disabled, order events are logged only")
		return outbox.NewLoggingHandler(l), nil, nil
	}

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, l)
	if err != nil {
		return nil, nil, err
	}
	b.closers = append(b.closers, producer.Close)

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		Group:   cfg.Kafka.ConsumerGroup,
	}, l)
	if err != nil {
		return nil, nil, err
	}

	consumer.Handle(cfg.Kafka.OrdersTopic,
		handlers.NewOrderEventsHandler(handlers.NewLogNotifier(l), l))

	return outbox.NewKafkaHandler(producer, cfg.Kafka.OrdersTopic, breaker, l), consumer, nil
}
