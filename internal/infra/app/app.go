package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/213020aumc/matcha/internal/core/port"
	"github.com/213020aumc/matcha/internal/infra/config"
	"github.com/213020aumc/matcha/internal/infra/database"
	kafkainfra "github.com/213020aumc/matcha/internal/infra/kafka"
	"github.com/213020aumc/matcha/internal/infra/logger"
	"github.com/213020aumc/matcha/internal/infra/mail"
	redisinfra "github.com/213020aumc/matcha/internal/infra/redis"
	"github.com/213020aumc/matcha/internal/infra/security"
	"github.com/213020aumc/matcha/internal/infra/storage"
	"github.com/213020aumc/matcha/internal/infra/telemetry"
	postgresrepo "github.com/213020aumc/matcha/internal/repository/postgres"
	redisrepo "github.com/213020aumc/matcha/internal/repository/redis"
	"github.com/213020aumc/matcha/internal/transport/http/middleware"
	"github.com/213020aumc/matcha/internal/transport/http/routes"
	"github.com/213020aumc/matcha/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	tracer   *telemetry.TracerProvider
	notifier *mail.AsyncNotifier
	producer *kafkainfra.Producer
}

// services is the fully wired core, shared by the API and the seed command.
type services struct {
	auth     *usecase.AuthService
	profiles *usecase.ProfileService
	review   *usecase.ReviewService
	rbac     *usecase.RBACService
	settings *usecase.SettingsService
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	ok := false
	defer func() {
		if !ok {
			a.close(context.Background())
		}
	}()

	if a.tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if cfg.Postgres.AutoMigrate {
		if err := database.RunMigrations(cfg.Postgres.DSN(), log); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	if a.pool, err = database.NewPostgresPool(ctx, cfg.Postgres, log); err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	if a.redis, err = redisinfra.NewClient(ctx, cfg.Redis, log); err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	objects, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	events := a.eventPublisher(log)

	svc, err := a.buildServices(ctx, cfg, log, objects, events)
	if err != nil {
		return nil, err
	}

	if err := svc.rbac.SyncCatalog(ctx, cfg.RBAC.BootstrapAdminEmail); err != nil {
		return nil, fmt.Errorf("sync rbac catalog: %w", err)
	}
	if err := svc.settings.SeedDefaults(ctx); err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	rateLimitStore := redisrepo.NewRateLimitRepository(a.redis.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.KeyPrefix + ":rate-limit",
	})

	var uploadDir string
	if local, isLocal := objects.(*storage.LocalStore); isLocal {
		uploadDir = local.Dir()
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:        cfg,
		Logger:        log,
		RateLimiter:   middleware.NewRateLimiter(rateLimitStore, log),
		GlobalLimiter: middleware.NewIPLimiter(cfg.RateLimit.GlobalMaxRequests, cfg.RateLimit.GlobalWindow),
		Metrics:       httpMetrics,
		Database:      a.pool,
		Cache:         a.redis,
		UploadDir:     uploadDir,
		Services: routes.ServiceSet{
			Auth:     svc.auth,
			Sessions: svc.auth,
			Profiles: svc.profiles,
			Review:   svc.review,
			RBAC:     svc.rbac,
			Settings: svc.settings,
		},
	})

	ok = true
	return a, nil
}

func (a *Application) eventPublisher(log *zap.Logger) port.EventPublisher {
	if len(a.cfg.Kafka.Brokers) == 0 {
		log.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(log)
	}

	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log)
	}
	a.producer = producer
	log.Info("kafka event publisher initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, a.cfg.App, log)
}

func (a *Application) buildServices(ctx context.Context, cfg *config.AppConfig, log *zap.Logger, objects port.ObjectStore, events port.EventPublisher) (*services, error) {
	store := postgresrepo.NewStore(a.pool, log)
	repos := store.Repositories().Ports()

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("init argon2: %w", err)
	}

	tokens, err := security.NewSessionTokenManager(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		return nil, fmt.Errorf("init session tokens: %w", err)
	}

	domainMetrics, err := telemetry.NewDomainMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("init domain metrics: %w", err)
	}

	sanitizer := security.NewTextSanitizer()
	authorizer := usecase.NewAuthorizer(repos.Users, repos.Roles)
	settings := usecase.NewSettingsService(store, repos, authorizer, log)

	renderer, err := mail.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("init mail templates: %w", err)
	}
	sender, err := mail.NewSender(cfg.Mail, log)
	if err != nil {
		return nil, fmt.Errorf("init mail sender: %w", err)
	}
	a.notifier = mail.NewAsyncNotifier(
		mail.NewTemplateNotifier(renderer, sender, settings, sanitizer, cfg.Mail),
		cfg.Mail.QueueSize,
		cfg.Mail.Timeout,
		log,
	)

	return &services{
		auth: usecase.NewAuthService(store, repos, authorizer, hasher, security.NumericCodeGenerator{}, tokens, a.notifier, events, domainMetrics,
			usecase.OTPPolicy{
				TTL:        cfg.OTP.TTL,
				CodeLength: cfg.OTP.CodeLength,
				LogCodes:   cfg.App.IsDevelopment(),
			}, log),
		profiles: usecase.NewProfileService(store, repos, sanitizer, objects, events, domainMetrics, cfg.Storage.MaxUploadBytes, log),
		review:   usecase.NewReviewService(store, repos, authorizer, a.notifier, events, domainMetrics, log),
		rbac:     usecase.NewRBACService(store, repos, authorizer, events, cfg.RBAC.StrictPermissionSlugs, log),
		settings: settings,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer a.close(context.Background())

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	a.logger.Info("starting matcha API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// close releases resources in reverse dependency order. Queued mail is drained before the
// database goes away since templates read settings.
func (a *Application) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if a.notifier != nil {
		if err := a.notifier.Close(ctx); err != nil {
			a.logger.Warn("mail queue not drained", zap.Error(err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("kafka producer close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
