package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	httpadapter "github.com/kirillkom/property-desk/internal/adapters/http"
	"github.com/kirillkom/property-desk/internal/config"
	"github.com/kirillkom/property-desk/internal/core/ports"
	"github.com/kirillkom/property-desk/internal/core/usecase"
	"github.com/kirillkom/property-desk/internal/infrastructure/catalog/mongo"
	"github.com/kirillkom/property-desk/internal/infrastructure/delivery/kafka"
	"github.com/kirillkom/property-desk/internal/infrastructure/delivery/logsink"
	"github.com/kirillkom/property-desk/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/property-desk/internal/infrastructure/lock/memory"
	redislock "github.com/kirillkom/property-desk/internal/infrastructure/lock/redis"
	"github.com/kirillkom/property-desk/internal/infrastructure/pdf/pdfcpu"
	"github.com/kirillkom/property-desk/internal/infrastructure/pdf/textreader"
	"github.com/kirillkom/property-desk/internal/infrastructure/relay/nats"
	"github.com/kirillkom/property-desk/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/property-desk/internal/infrastructure/resilience"
	"github.com/kirillkom/property-desk/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/property-desk/internal/infrastructure/storage/minio"
)

// Hooks receive resilience events, usually from a metrics registry.
type Hooks struct {
	OnBreaker resilience.StateObserver
	OnRetry   resilience.RetryObserver
}

type App struct {
	Config config.Config

	Storage   ports.ObjectStorage
	Templates *usecase.TemplateCatalogUseCase
	Locator   *usecase.LocatorIndexUseCase
	Documents *usecase.DocumentLifecycleUseCase
	Chat      *usecase.ChatRelayUseCase
	Tokens    *httpadapter.TokenVerifier

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, hooks Hooks) (*App, error) {
	var closers []func()
	fail := func(err error) (*App, error) {
		runClosers(closers)
		return nil, err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	closers = append(closers, func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return fail(fmt.Errorf("ensure schema: %w", err))
	}
	documents := postgres.NewDocumentRepository(db)
	conversations := postgres.NewConversationRepository(db)

	catalog, closeCatalog, err := openCatalog(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeCatalog)

	storage, err := openStorage(cfg)
	if err != nil {
		return fail(err)
	}

	executor := resilience.NewExecutor(resilienceConfig(cfg)).Observe(hooks.OnBreaker, hooks.OnRetry)

	relay, err := nats.NewWithOptions(cfg.NATSURL, nats.Options{ResilienceExecutor: executor})
	if err != nil {
		return fail(fmt.Errorf("init chat relay: %w", err))
	}
	closers = append(closers, relay.Close)

	notifier, closeNotifier, err := openNotifier(cfg, executor)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeNotifier)

	var (
		locker    ports.KeyLocker = memory.New()
		blacklist httpadapter.TokenBlacklist
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fail(fmt.Errorf("redis ping: %w", err))
		}
		closers = append(closers, func() { _ = client.Close() })
		locker = redislock.New(client, redislock.Options{TTL: cfg.LockTTL})
		blacklist = httpadapter.NewRedisBlacklist(client, cfg.JWTBlacklistKey)
	} else {
		slog.Info("redis_disabled", "locks", "memory", "token_blacklist", false)
	}
	locker = boundedLocker{inner: locker, wait: cfg.LockWait}

	inspector := textreader.New()
	renderer := usecase.NewOverlayRenderer(storage, inspector, pdfcpu.New())

	return &App{
		Config:    cfg,
		Storage:   storage,
		Templates: usecase.NewTemplateCatalogUseCase(catalog, storage, inspector),
		Locator:   usecase.NewLocatorIndexUseCase(catalog),
		Documents: usecase.NewDocumentLifecycleUseCase(catalog, documents, storage, renderer, notifier, locker, xlsx.New()),
		Chat:      usecase.NewChatRelayUseCase(conversations, storage, relay),
		Tokens:    httpadapter.NewTokenVerifier(cfg.JWTSecret, blacklist),
		closeFn:   func() { runClosers(closers) },
	}, nil
}

// NewCatalog wires only what template onboarding needs: the catalog store,
// object storage and the PDF inspector.
func NewCatalog(ctx context.Context, cfg config.Config) (*App, error) {
	catalog, closeCatalog, err := openCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}
	storage, err := openStorage(cfg)
	if err != nil {
		closeCatalog()
		return nil, err
	}
	return &App{
		Config:    cfg,
		Storage:   storage,
		Templates: usecase.NewTemplateCatalogUseCase(catalog, storage, textreader.New()),
		Locator:   usecase.NewLocatorIndexUseCase(catalog),
		closeFn:   closeCatalog,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func openCatalog(ctx context.Context, cfg config.Config) (*mongo.TemplateRepository, func(), error) {
	client, err := mongo.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, nil, fmt.Errorf("init template catalog: %w", err)
	}
	closeFn := func() { disconnect(client) }

	repo := mongo.NewTemplateRepository(client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection))
	if err := repo.EnsureIndexes(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("ensure catalog indexes: %w", err)
	}
	return repo, closeFn, nil
}

func disconnect(client *mongodriver.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		slog.Warn("mongo_disconnect_failed", "error", err)
	}
}

func openStorage(cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "minio":
		storage, err := minio.New(minio.Config{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			UseSSL:        cfg.MinioUseSSL,
			Bucket:        cfg.MinioBucket,
			PublicBaseURL: cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		return storage, nil
	case "", "local":
		storage, err := localfs.New(cfg.StoragePath, cfg.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		return storage, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// openNotifier uses Kafka when brokers are configured and the log sink
// otherwise.
func openNotifier(cfg config.Config, executor *resilience.Executor) (ports.DeliveryNotifier, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		slog.Info("kafka_disabled", "delivery", "logsink")
		return logsink.New(slog.Default()), func() {}, nil
	}
	notifier, err := kafka.New(cfg.KafkaBrokers, cfg.KafkaTopic, kafka.Options{ResilienceExecutor: executor})
	if err != nil {
		return nil, nil, fmt.Errorf("init delivery notifier: %w", err)
	}
	return notifier, func() {
		if err := notifier.Close(); err != nil {
			slog.Warn("kafka_close_failed", "error", err)
		}
	}, nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	rc.RetryInitialBackoff = cfg.ResilienceRetryInitialBackoff
	rc.RetryMaxBackoff = cfg.ResilienceRetryMaxBackoff
	rc.BreakerEnabled = cfg.ResilienceBreakerEnabled
	rc.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout
	// Chat relay sends bypass retries entirely. Signed-document delivery is
	// keyed by document id and may be repeated.
	rc.Operations = map[string]resilience.RetryPolicy{
		"kafka.delivery": {MaxAttempts: cfg.ResilienceDeliveryMaxAttempts},
	}
	return rc
}

// Closers run in reverse order of acquisition.
func runClosers(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// boundedLocker caps how long a caller waits for a busy key.
type boundedLocker struct {
	inner ports.KeyLocker
	wait  time.Duration
}

func (l boundedLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.wait <= 0 {
		return l.inner.Lock(ctx, key)
	}
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	return l.inner.Lock(waitCtx, key)
}
