package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/lensmarket/api/internal/handlers"
	"github.com/lensmarket/api/internal/payments"
	"github.com/lensmarket/api/internal/platform/auth"
	"github.com/lensmarket/api/internal/platform/config"
	pfirestore "github.com/lensmarket/api/internal/platform/firestore"
	"github.com/lensmarket/api/internal/platform/notify"
	"github.com/lensmarket/api/internal/platform/observability"
	ppostgres "github.com/lensmarket/api/internal/platform/postgres"
	"github.com/lensmarket/api/internal/platform/secrets"
	pstorage "github.com/lensmarket/api/internal/platform/storage"
	"github.com/lensmarket/api/internal/reconciler"
	"github.com/lensmarket/api/internal/repositories"
	firestoreRepo "github.com/lensmarket/api/internal/repositories/firestore"
	"github.com/lensmarket/api/internal/repositories/memory"
	postgresRepo "github.com/lensmarket/api/internal/repositories/postgres"
	"github.com/lensmarket/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Ledger      services.OrderLedger
	Payments    services.PaymentGateway
	Assets      services.AssetStore
	Coordinator services.ConsistencyCoordinator
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Logger       *zap.Logger

	closers []func(context.Context) error
}

type containerOptions struct {
	registry repositories.Registry
	notifier services.Notifier
	objects  services.ObjectRemover
}

// Option customises NewContainer.
type Option func(*containerOptions)

// WithRegistry supplies a ready registry instead of opening the configured backend.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *containerOptions) { o.registry = reg }
}

// WithNotifier overrides the Pub/Sub notifier.
func WithNotifier(n services.Notifier) Option {
	return func(o *containerOptions) { o.notifier = n }
}

// WithObjectRemover overrides the Cloud Storage remover.
func WithObjectRemover(r services.ObjectRemover) Option {
	return func(o *containerOptions) { o.objects = r }
}

// NewContainer constructs the runtime dependencies. Production wiring opens the configured
// backends, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var options containerOptions
	for _, opt := range opts {
		opt(&options)
	}

	c := &Container{Config: cfg, Logger: logger}

	reg := options.registry
	if reg == nil {
		opened, err := c.openRegistry(ctx)
		if err != nil {
			return nil, err
		}
		reg = opened
	}
	c.Repositories = reg
	c.closers = append(c.closers, reg.Close)

	notifier := options.notifier
	if notifier == nil && cfg.Notifications.Topic != "" {
		n, err := c.openNotifier(ctx)
		if err != nil {
			_ = c.Close(ctx)
			return nil, err
		}
		notifier = n
	}

	objects := options.objects
	if objects == nil && cfg.Storage.AssetsBucket != "" {
		r, err := c.openRemover(ctx)
		if err != nil {
			_ = c.Close(ctx)
			return nil, err
		}
		objects = r
	}

	svc, err := buildServices(reg, cfg, logger, notifier, objects)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.Services = svc
	return c, nil
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) openRegistry(ctx context.Context) (repositories.Registry, error) {
	switch c.Config.Store.Backend {
	case config.BackendMemory:
		c.Logger.Warn("using in-memory store; data is lost on restart")
		return memory.NewStore(), nil
	case config.BackendFirestore:
		var providerOpts []pfirestore.ProviderOption
		if file := c.Config.Firebase.CredentialsFile; file != "" {
			providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(file)))
		}
		reg, err := firestoreRepo.NewRegistry(pfirestore.NewProvider(c.Config.Firestore, providerOpts...))
		if err != nil {
			return nil, fmt.Errorf("build firestore registry: %w", err)
		}
		return reg, nil
	case config.BackendPostgres:
		pool, err := ppostgres.Connect(ctx, c.Config.Postgres)
		if err != nil {
			return nil, err
		}
		reg, err := postgresRepo.NewRegistry(pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("build postgres registry: %w", err)
		}
		return reg, nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", c.Config.Store.Backend)
	}
}

func (c *Container) openNotifier(ctx context.Context) (*notify.PubSubNotifier, error) {
	client, err := pubsub.NewClient(ctx, c.Config.Notifications.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("initialise pubsub client: %w", err)
	}
	notifier, err := notify.NewPubSubNotifier(client.Topic(c.Config.Notifications.Topic))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	c.closers = append(c.closers, func(context.Context) error {
		notifier.Stop()
		return client.Close()
	})
	return notifier, nil
}

func (c *Container) openRemover(ctx context.Context) (*pstorage.Remover, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise storage client: %w", err)
	}
	remover, err := pstorage.NewRemover(client, c.Config.Storage.AssetsBucket)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })
	return remover, nil
}

func buildServices(reg repositories.Registry, cfg config.Config, logger *zap.Logger, notifier services.Notifier, objects services.ObjectRemover) (Services, error) {
	var svc Services
	retry := services.RetryPolicy{
		MaxAttempts: cfg.Coordinator.MaxAttempts,
		Backoff:     cfg.Coordinator.RetryBackoff,
	}

	ledger, err := services.NewOrderLedger(services.OrderLedgerDeps{
		Bookings:        reg.Bookings(),
		RetouchOrders:   reg.RetouchOrders(),
		Photos:          reg.Photos(),
		Payments:        reg.Payments(),
		Notifier:        notifier,
		DefaultCurrency: cfg.Payments.DefaultCurrency,
		Clock:           time.Now,
		Logger:          observability.ServiceLogger(logger.Named("ledger")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order ledger: %w", err)
	}
	svc.Ledger = ledger

	gateway, err := services.NewPaymentGateway(services.PaymentGatewayDeps{
		Payments: reg.Payments(),
		Ledger:   ledger,
		Notifier: notifier,
		Retry:    retry,
		Clock:    time.Now,
		Logger:   observability.ServiceLogger(logger.Named("payments")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment gateway: %w", err)
	}
	svc.Payments = gateway

	paths := pstorage.NewPathBuilder()
	assets, err := services.NewAssetStore(services.AssetStoreDeps{
		Photos:        reg.Photos(),
		Portfolios:    reg.Portfolios(),
		RetouchOrders: reg.RetouchOrders(),
		Objects:       objects,
		PathBuilder:   paths.Build,
		Clock:         time.Now,
		Logger:        observability.ServiceLogger(logger.Named("assets")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build asset store: %w", err)
	}
	svc.Assets = assets

	coordinator, err := services.NewConsistencyCoordinator(services.CoordinatorDeps{
		Ledger:              ledger,
		Payments:            gateway,
		Assets:              assets,
		Notifier:            notifier,
		Retry:               retry,
		CompensationTimeout: cfg.Coordinator.CompensationTimeout,
		Clock:               time.Now,
		Logger:              observability.ServiceLogger(logger.Named("coordinator")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build consistency coordinator: %w", err)
	}
	svc.Coordinator = coordinator

	return svc, nil
}

type routerOptions struct {
	verifier auth.TokenVerifier
	build    handlers.BuildInfo
}

// RouterOption customises Container.Router.
type RouterOption func(*routerOptions)

// WithTokenVerifier replaces the Firebase verifier.
func WithTokenVerifier(v auth.TokenVerifier) RouterOption {
	return func(o *routerOptions) { o.verifier = v }
}

// WithBuildInfo sets the metadata echoed by the health probes.
func WithBuildInfo(info handlers.BuildInfo) RouterOption {
	return func(o *routerOptions) { o.build = info }
}

// Router assembles the HTTP surface. The Stripe webhook is only mounted when a signing
// secret is configured.
func (c *Container) Router(ctx context.Context, opts ...RouterOption) (http.Handler, error) {
	options := routerOptions{
		build: handlers.BuildInfo{
			Version:     "dev",
			CommitSHA:   "unknown",
			Environment: c.Config.Environment,
			StartedAt:   time.Now().UTC(),
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	verifier := options.verifier
	if verifier == nil {
		fv, err := auth.NewFirebaseVerifier(ctx, c.Config.Firebase)
		if err != nil {
			return nil, fmt.Errorf("build firebase verifier: %w", err)
		}
		verifier = fv
	}
	authenticator := auth.NewAuthenticator(verifier)

	svc := c.Services
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Ledger, svc.Payments, svc.Coordinator)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, svc.Payments, svc.Coordinator)
	assetHandlers := handlers.NewAssetHandlers(authenticator, svc.Assets, svc.Ledger)

	health := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(options.build),
		handlers.WithHealthCheck("store", c.Repositories.Ping),
	)

	projectID := traceProjectID(c.Config)
	routerOpts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(c.Logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithPortfolioRoutes(assetHandlers.PortfolioRoutes),
		handlers.WithPhotoRoutes(assetHandlers.PhotoRoutes),
	}

	if secret := strings.TrimSpace(c.Config.Payments.StripeWebhookSecret); secret != "" {
		stripe, err := payments.NewStripeWebhook(secret)
		if err != nil {
			return nil, fmt.Errorf("build stripe webhook: %w", err)
		}
		webhookHandlers := handlers.NewWebhookHandlers(stripe, svc.Coordinator)
		routerOpts = append(routerOpts, handlers.WithWebhookRoutes(webhookHandlers.Routes))
	} else {
		c.Logger.Warn("stripe webhook secret not configured; webhook routes disabled")
	}

	return handlers.NewRouter(routerOpts...), nil
}

// Reconciler builds the unlinked photo sweep over the container's asset store.
func (c *Container) Reconciler() (*reconciler.Service, error) {
	return reconciler.New(c.Services.Assets, reconciler.Config{
		Interval:    c.Config.Reconciler.Interval,
		GracePeriod: c.Config.Reconciler.GracePeriod,
		BatchSize:   c.Config.Reconciler.BatchSize,
		Concurrency: c.Config.Reconciler.Concurrency,
	}, reconciler.WithLogger(c.Logger.Named("reconciler")))
}

// NewSecretFetcher returns a Secret Manager resolver for config.Load, or nil when no
// project is configured for secrets.
func NewSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	project := strings.TrimSpace(os.Getenv("API_SECRET_PROJECT_ID"))
	if project == "" {
		project = strings.TrimSpace(os.Getenv("API_FIREBASE_PROJECT_ID"))
	}
	if project == "" {
		return nil, nil
	}
	return secrets.NewFetcher(ctx, project, secrets.WithLogger(logger.Named("secrets")))
}

// LoadConfig loads configuration, resolving secret:// references when a fetcher is available.
// The returned release func closes the fetcher.
func LoadConfig(ctx context.Context, logger *zap.Logger) (config.Config, func(), error) {
	fetcher, err := NewSecretFetcher(ctx, logger)
	if err != nil {
		return config.Config{}, func() {}, fmt.Errorf("initialise secret fetcher: %w", err)
	}
	release := func() {
		if fetcher == nil {
			return
		}
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}
	var opts []config.Option
	if fetcher != nil {
		opts = append(opts, config.WithSecretResolver(fetcher))
	}
	cfg, err := config.Load(ctx, opts...)
	if err != nil {
		release()
		return config.Config{}, func() {}, err
	}
	return cfg, release, nil
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
