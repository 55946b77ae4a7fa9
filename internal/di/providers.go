package di

import (
	"context"
	"fmt"
	"time"

	"MarketPull/internal/domain/models"
	"MarketPull/internal/domain/repository"
	dsvc "MarketPull/internal/domain/service"
	"MarketPull/internal/handler/api"
	mid "MarketPull/internal/middleware"
	internalrepo "MarketPull/internal/repository"
	"MarketPull/internal/service/listingcache"
	"MarketPull/internal/service/marketplace/bigmarket"
	"MarketPull/internal/service/marketplace/smallmarket"
	"MarketPull/internal/service/notifier"
	"MarketPull/internal/service/ratelimit"
	"MarketPull/internal/service/timer"
	"MarketPull/internal/usecase"
	"MarketPull/pkg/cache"
	pkgch "MarketPull/pkg/clickhouse"
	"MarketPull/pkg/config"
	xhttp "MarketPull/pkg/http"
	pkgkafka "MarketPull/pkg/kafka"
	"MarketPull/pkg/logger"
	"MarketPull/pkg/metrics"
	"MarketPull/pkg/postgres"
	"MarketPull/pkg/server"
	"MarketPull/pkg/sqlite"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const initTimeout = 10 * time.Second

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		TimeFormat: cfg.Logger.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New()
}

// ProvideStateStore opens the backend holding queries and targets.
func ProvideStateStore(cfg *config.Config, log *logger.Logger) (repository.StateStore, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	var (
		store repository.StateStore
		err   error
	)
	switch cfg.Storage.Type {
	case "sqlite":
		client, cerr := sqlite.NewClient(
			sqlite.WithPath(cfg.Storage.Path),
			sqlite.WithMkdirAll(),
		)
		if cerr != nil {
			return nil, nil, fmt.Errorf("sqlite client: %w", cerr)
		}
		store, err = internalrepo.NewSQLiteStore(ctx, client, log)
		if err != nil {
			_ = client.Close()
		}
	case "redis":
		rc, cerr := cache.NewRedisCache(
			cache.WithRedisHost(cfg.Redis.Host),
			cache.WithRedisPort(cfg.Redis.Port),
			cache.WithRedisPassword(cfg.Redis.Password),
			cache.WithRedisDB(cfg.Redis.DB),
			cache.WithRedisPrefix(cfg.Redis.Prefix),
		)
		if cerr != nil {
			return nil, nil, fmt.Errorf("redis client: %w", cerr)
		}
		store, err = internalrepo.NewRedisStore(ctx, rc, log)
		if err != nil {
			_ = rc.Close()
		}
	default:
		store, err = internalrepo.NewFileStore(cfg.Storage.Path, log)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("state store: %w", err)
	}
	log.Info("state store ready", logger.String("type", cfg.Storage.Type))

	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Warn("state store close error", logger.Error(err))
		}
	}
	return store, cleanup, nil
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideListingArchive selects the archive backend. The schema is created
// when the app starts.
func ProvideListingArchive(cfg *config.Config, log *logger.Logger) (repository.ListingArchive, func(), error) {
	var archive repository.ListingArchive
	switch cfg.Archive.Type {
	case "clickhouse":
		client, err := ProvideClickHouseClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		archive = internalrepo.NewClickHouseArchive(client, cfg.ClickHouse.Database+".listings")
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		client, err := postgres.NewClient(ctx,
			postgres.WithDSN(cfg.Postgres.DSN),
			postgres.WithMaxConns(cfg.Postgres.MaxConns),
			postgres.WithBouncer(cfg.Postgres.ViaBouncer),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres client: %w", err)
		}
		archive = internalrepo.NewPostgresArchive(client, cfg.Postgres.Schema)
	default:
		return internalrepo.NoopArchive{}, func() {}, nil
	}
	log.Info("listing archive ready", logger.String("type", cfg.Archive.Type))

	cleanup := func() {
		if err := archive.Close(); err != nil {
			log.Warn("archive close error", logger.Error(err))
		}
	}
	return archive, cleanup, nil
}

// ProvideEventPublisher creates the Kafka event publisher, or a no-op one
// when Kafka or the events topic is disabled.
func ProvideEventPublisher(cfg *config.Config, log *logger.Logger) (repository.EventPublisher, func(), error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.EventsTopic == "" {
		return internalrepo.NoopPublisher{}, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithLogger(log),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := internalrepo.NewKafkaPublisher(producer, cfg.Kafka.EventsTopic)
	cleanup := func() {
		if err := pub.Close(); err != nil {
			log.Warn("kafka producer close error", logger.Error(err))
		}
	}
	return pub, cleanup, nil
}

// ProvideKafkaConsumer creates the commands consumer, or nil when Kafka or
// the commands topic is disabled.
func ProvideKafkaConsumer(cfg *config.Config, m repository.Metrics, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.CommandsTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.StartOffset),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(commandHook(m))
	return consumer, nil
}

func commandHook(m repository.Metrics) pkgkafka.HookFuncs {
	return pkgkafka.HookFuncs{
		Before: pkgkafka.RejectEmpty,
		Err: func(_ context.Context, topic string, _ kafkago.Message, _ []byte, err error) {
			if pkgkafka.IsPermanent(err) {
				m.RecordError("command_rejected")
				return
			}
			m.RecordError("command_failed")
		},
	}
}

// ProvideMarketplaces builds a client for every configured marketplace.
func ProvideMarketplaces(cfg *config.Config, log *logger.Logger) dsvc.Marketplaces {
	mk := dsvc.Marketplaces{}
	if b := cfg.Marketplaces.Big; b.BaseURL != "" {
		mk[models.SourceBig] = bigmarket.New(bigmarket.Config{
			BaseURL:       b.BaseURL,
			ItemURL:       b.ItemURL,
			UserURL:       b.UserURL,
			AuthToken:     b.AuthToken,
			AppID:         b.AppID,
			MarketplaceID: b.MarketplaceID,
			Currency:      b.Currency,
			Timeout:       b.Timeout,
		}, log.With(logger.String("source", string(models.SourceBig))))
	}
	if s := cfg.Marketplaces.Small; s.BaseURL != "" {
		mk[models.SourceSmall] = smallmarket.New(smallmarket.Config{
			BaseURL:  s.BaseURL,
			AppKey:   s.AppKey,
			BasicKey: s.BasicKey,
			Currency: s.Currency,
			Timeout:  s.Timeout,
		}, log.With(logger.String("source", string(models.SourceSmall))))
	}
	return mk
}

// ProvideHub creates the websocket notification gateway.
func ProvideHub(cfg *config.Config, log *logger.Logger) *notifier.Hub {
	return notifier.NewHub(notifier.Config{
		WriteTimeout: cfg.Notifier.WriteTimeout,
		PingInterval: cfg.Notifier.PingInterval,
		BufferSize:   cfg.Notifier.BufferSize,
	}, log.With(logger.String("component", "notifier")))
}

// ProvideQueryRegistry creates the registry and lets gateway clients drop
// queries by deleting their thread.
func ProvideQueryRegistry(store repository.StateStore, hub *notifier.Hub, log *logger.Logger) *usecase.QueryRegistry {
	reg := usecase.NewQueryRegistry(store, hub, log.With(logger.String("component", "registry")))
	hub.OnThreadDeleted(reg.Forget)
	return reg
}

func ProvideScheduler(
	cfg *config.Config,
	markets dsvc.Marketplaces,
	hub *notifier.Hub,
	store repository.StateStore,
	pub repository.EventPublisher,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.Scheduler {
	ob := cfg.Scheduler.Overbid
	return usecase.NewScheduler(markets, hub, store, log,
		usecase.WithClock(timer.Real()),
		usecase.WithBidTimeout(cfg.Scheduler.BidTimeout),
		usecase.WithOverbid(usecase.OverbidPolicy{
			Enabled:   ob.Enabled,
			Increment: decimal.NewFromFloat(ob.Increment).Round(2),
			MaxOver:   decimal.NewFromFloat(ob.MaxOver).Round(2),
		}),
		usecase.WithEventPublisher(pub),
		usecase.WithSchedulerMetrics(m),
	)
}

// ProvideTargetingService also routes cancel clicks from the gateway.
func ProvideTargetingService(
	cfg *config.Config,
	markets dsvc.Marketplaces,
	hub *notifier.Hub,
	scheduler *usecase.Scheduler,
	log *logger.Logger,
) *usecase.TargetingService {
	ts := usecase.NewTargetingService(markets, hub, scheduler, timer.Real(), cfg.Scheduler.DefaultLead, log)
	hub.OnCancel(func(ctx context.Context, messageID string) error {
		_, err := ts.CancelByAffordance(ctx, messageID)
		return err
	})
	return ts
}

// ProvidePollLoops creates a runner and announce pipeline per enabled source.
func ProvidePollLoops(
	cfg *config.Config,
	markets dsvc.Marketplaces,
	registry *usecase.QueryRegistry,
	hub *notifier.Hub,
	archive repository.ListingArchive,
	pub repository.EventPublisher,
	m repository.Metrics,
	log *logger.Logger,
) []server.PollLoop {
	settings := []struct {
		src models.Source
		ps  config.PollerSettings
	}{
		{models.SourceBig, cfg.Poller.Big},
		{models.SourceSmall, cfg.Poller.Small},
	}

	var loops []server.PollLoop
	for _, s := range settings {
		if !s.ps.Enabled {
			continue
		}
		client, err := markets.Get(s.src)
		if err != nil {
			log.Warn("poller enabled without marketplace client", logger.String("source", string(s.src)))
			continue
		}
		l := log.With(logger.String("source", string(s.src)))
		pipe := mid.NewAnnouncePipeline(hub, m, l,
			mid.WithPostInterval(s.ps.PostDelay),
			mid.WithThreadGone(func(threadID string) {
				ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
				defer cancel()
				if err := registry.Forget(ctx, threadID); err != nil {
					l.Warn("failed to forget deleted thread", logger.String("thread_id", threadID), logger.Error(err))
				}
			}),
		)
		poller := usecase.NewPoller(client, listingcache.New(), s.ps.DetailDelay, m, l)
		runner := usecase.NewPollRunner(poller, registry, pipe, usecase.PollRunnerConfig{
			Interval:   s.ps.Interval,
			Jitter:     s.ps.Jitter,
			QueryDelay: s.ps.QueryDelay,
		}, m, l,
			usecase.WithArchive(archive),
			usecase.WithListingEvents(pub),
		)
		loops = append(loops, server.PollLoop{Runner: runner, Pipeline: pipe})
	}
	return loops
}

func ProvideCommandsHandler(cfg *config.Config, ts *usecase.TargetingService, m repository.Metrics, log *logger.Logger) *usecase.KafkaCommandsHandler {
	return usecase.NewKafkaCommandsHandler(cfg.Kafka.CommandsTopic, ts, m, log)
}

func ProvideLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideHTTPServer mounts the gateway and the API on one echo server.
func ProvideHTTPServer(
	cfg *config.Config,
	hub *notifier.Hub,
	markets dsvc.Marketplaces,
	registry *usecase.QueryRegistry,
	ts *usecase.TargetingService,
	limiter *ratelimit.Limiter,
	log *logger.Logger,
) *xhttp.Server {
	var qopts []api.QueriesOption
	for src, c := range markets {
		if s, ok := c.(dsvc.CategorySuggester); ok {
			qopts = append(qopts, api.WithCategorySuggester(src, s))
		}
	}
	handlers := xhttp.Handlers{
		hub,
		api.NewQueriesEchoHandler(log, registry, qopts...),
		api.NewTargetsEchoHandler(log, ts),
	}
	return xhttp.NewServer(handlers,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(cfg.Metrics.Enabled),
		xhttp.WithRateLimit(limiter, cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillPerSec),
		xhttp.WithLogger(log.With(logger.String("component", "http"))),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	httpServer *xhttp.Server,
	registry *usecase.QueryRegistry,
	scheduler *usecase.Scheduler,
	loops []server.PollLoop,
	archive repository.ListingArchive,
	consumer *pkgkafka.Consumer,
	commands *usecase.KafkaCommandsHandler,
	limiter *ratelimit.Limiter,
) *server.App {
	return server.New(cfg, log, server.Components{
		HTTPServer: httpServer,
		Registry:   registry,
		Scheduler:  scheduler,
		Loops:      loops,
		Archive:    archive,
		Consumer:   consumer,
		Commands:   commands,
		Limiter:    limiter,
	})
}
