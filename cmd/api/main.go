package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tomisteven/cliente-natural-pets/internal/backend"
	"github.com/tomisteven/cliente-natural-pets/internal/handlers"
	"github.com/tomisteven/cliente-natural-pets/internal/platform/auth"
	"github.com/tomisteven/cliente-natural-pets/internal/platform/config"
	pfirestore "github.com/tomisteven/cliente-natural-pets/internal/platform/firestore"
	"github.com/tomisteven/cliente-natural-pets/internal/platform/idempotency"
	"github.com/tomisteven/cliente-natural-pets/internal/platform/jobs"
	"github.com/tomisteven/cliente-natural-pets/internal/platform/observability"
	"github.com/tomisteven/cliente-natural-pets/internal/platform/secrets"
	platformstorage "github.com/tomisteven/cliente-natural-pets/internal/platform/storage"
	"github.com/tomisteven/cliente-natural-pets/internal/repositories"
	firestoreRepo "github.com/tomisteven/cliente-natural-pets/internal/repositories/firestore"
	"github.com/tomisteven/cliente-natural-pets/internal/repositories/memory"
	"github.com/tomisteven/cliente-natural-pets/internal/services"
)

const (
	shutdownTimeout  = 10 * time.Second
	ticketLinkExpiry = 15 * time.Minute
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	clientOpts := googleClientOptions(cfg)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithClientOptions(clientOpts...))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()
	usesFirestore := cfg.Cart.Storage == config.CartStorageFirestore

	backendClient, err := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		APIKey:  cfg.Backend.APIKey,
		Timeout: cfg.Backend.Timeout,
	})
	if err != nil {
		logger.Fatal("failed to initialise backend client", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	var cartStorage repositories.CartStorage = memory.NewCartStorage()
	if usesFirestore {
		firestoreStorage, err := firestoreRepo.NewCartStorage(firestoreProvider)
		if err != nil {
			logger.Fatal("failed to initialise cart storage", zap.Error(err))
		}
		cartStorage = firestoreStorage
	}

	cartSessions, err := services.NewCartSessions(services.CartSessionsDeps{
		Storage:              cartStorage,
		Discounts:            backendClient,
		Clock:                time.Now,
		IdleTTL:              cfg.Cart.SessionIdleTTL,
		MinimumLoosePurchase: decimal.NewNullDecimal(cfg.Cart.MinimumLoosePurchase),
		StatusTTL:            cfg.Discounts.StatusTTL,
		Logger:               observability.EventLogger(logger.Named("cart")),
	})
	if err != nil {
		logger.Fatal("failed to initialise cart sessions", zap.Error(err))
	}

	currencyService, err := services.NewCurrencyService(services.CurrencyServiceDeps{
		Settings:                backendClient,
		Clock:                   time.Now,
		TTL:                     cfg.Currency.SettingsTTL,
		DefaultMarkupPercentage: cfg.Currency.DefaultMarkupPercentage,
		Logger:                  observability.EventLogger(logger.Named("settings")),
	})
	if err != nil {
		logger.Fatal("failed to initialise currency service", zap.Error(err))
	}

	var orderEvents services.OrderEventPublisher
	if topicName := strings.TrimSpace(cfg.Events.OrderTopic); topicName != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Firestore.ProjectID, clientOpts...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(topicName)
		defer topic.Stop()
		publisher, err := jobs.NewPubSubOrderEvents(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		orderEvents = publisher
	}

	var ticketArchive services.TicketArchive
	if bucket := strings.TrimSpace(cfg.Storage.TicketsBucket); bucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx, clientOpts...)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		var archiveOpts []platformstorage.TicketArchiveOption
		if credentials := strings.TrimSpace(cfg.Firebase.CredentialsFile); credentials != "" {
			signer, err := platformstorage.LoadServiceAccountSigner(credentials)
			if err != nil {
				logger.Fatal("failed to load ticket link signer", zap.Error(err))
			}
			archiveOpts = append(archiveOpts, platformstorage.WithSignedLinks(signer, ticketLinkExpiry))
		}
		archive, err := platformstorage.NewTicketArchive(storageClient, bucket, archiveOpts...)
		if err != nil {
			logger.Fatal("failed to initialise ticket archive", zap.Error(err))
		}
		ticketArchive = archive
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:  backendClient,
		Archive: ticketArchive,
		Logger:  observability.EventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:              backendClient,
		Currency:            currencyService,
		Events:              orderEvents,
		Clock:               time.Now,
		Logger:              observability.EventLogger(logger.Named("checkout")),
		StoreName:           cfg.Checkout.StoreName,
		ChatBaseURL:         cfg.Checkout.ChatBaseURL,
		ChatPhone:           cfg.Checkout.ChatPhone,
		EnforceLooseMinimum: cfg.Checkout.EnforceLooseMinimum,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	var idempotencyStore idempotency.Store = idempotency.NewMemoryStore()
	if usesFirestore {
		firestoreClient, err := firestoreProvider.Client(ctx)
		if err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}
		idempotencyStore = idempotency.NewFirestoreStore(firestoreClient)
	}
	idempotencyLogger := observability.EventLogger(logger.Named("idempotency"))
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(idempotencyLogger),
	)

	systemService, err := newSystemService(backendClient, firestoreProvider, usesFirestore, fetcher, buildInfo)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	cartHandlers := handlers.NewCartHandlers(handlers.CartHandlersDeps{
		Sessions:          cartSessions,
		Catalog:           backendClient,
		Currency:          currencyService,
		DiscountPerMinute: cfg.RateLimits.DiscountPerMinute,
		Clock:             time.Now,
	})
	checkoutHandlers := handlers.NewCheckoutHandlers(handlers.CheckoutHandlersDeps{
		Sessions:    cartSessions,
		Checkout:    checkoutService,
		Currency:    currencyService,
		Idempotency: idempotencyMiddleware,
	})
	settingsHandlers := handlers.NewSettingsHandlers(currencyService)
	orderHandlers := handlers.NewOrderHandlers(orderService)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}
	cartMiddlewares := []func(http.Handler) http.Handler{
		authenticator.OptionalFirebaseAuth(),
		handlers.CartSessionMiddleware(handlers.SessionCookieConfig{
			Name:   cfg.Cart.SessionCookie,
			MaxAge: cfg.Cart.SessionIdleTTL,
			Secure: cfg.Security.Environment != "local",
			NewID:  cartSessions.NewSessionID,
		}),
		handlers.RateLimitMiddleware(cfg.RateLimits.DefaultPerMinute, time.Now),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPublicRoutes(settingsHandlers.PublicRoutes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithCartMiddlewares(cartMiddlewares...),
		handlers.WithMeRoutes(orderHandlers.MeRoutes),
		handlers.WithMeMiddlewares(authenticator.RequireFirebaseAuth()),
		handlers.WithAdminRoutes(func(r chi.Router) {
			settingsHandlers.AdminRoutes(r)
			orderHandlers.AdminRoutes(r)
		}),
		handlers.WithAdminMiddlewares(authenticator.RequireFirebaseAuth(cfg.Security.AdminRole)),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, groupCtx := errgroup.WithContext(runCtx)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	group.Go(func() error {
		serverLogger.Info("storefront api listening",
			zap.String("cartStorage", cfg.Cart.Storage),
			zap.Bool("orderEvents", orderEvents != nil),
			zap.Bool("ticketArchive", ticketArchive != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return runSessionSweeper(groupCtx, cartSessions, cfg.Cart.SweepInterval, logger.Named("cart"))
	})
	group.Go(func() error {
		return idempotency.RunCleanup(groupCtx, idempotencyStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, idempotencyLogger)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received; draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("api stopped with error", zap.Error(err))
	}
}

// runSessionSweeper evicts idle carts from memory every interval until ctx ends.
func runSessionSweeper(ctx context.Context, sessions *services.CartSessions, interval time.Duration, logger *zap.Logger) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := sessions.Sweep(ctx); removed > 0 {
				logger.Info("cart sessions evicted", zap.Int("count", removed), zap.Int("live", sessions.Len()))
			}
		}
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["STORE_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["STORE_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSystemService(settings services.SettingsStore, provider *pfirestore.Provider, withFirestore bool, fetcher *secrets.Fetcher, build services.BuildInfo) (services.SystemService, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if settings != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "backend",
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				_, err := settings.GetSettings(ctx)
				return err
			},
		})
	}
	if withFirestore && provider != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check:   provider.Ping,
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
		Build:            build,
	})
}

func googleClientOptions(cfg config.Config) []option.ClientOption {
	if credentials := strings.TrimSpace(cfg.Firebase.CredentialsFile); credentials != "" {
		return []option.ClientOption{option.WithCredentialsFile(credentials)}
	}
	return nil
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("STORE_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("STORE_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("STORE_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("STORE_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("STORE_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the config fields that must resolve outside local development.
func requiredSecretNames(env map[string]string) []string {
	environment := ""
	if env != nil {
		environment = strings.ToLower(strings.TrimSpace(env["STORE_SECURITY_ENVIRONMENT"]))
	}
	if environment == "" || environment == "local" {
		return nil
	}
	return []string{"Backend.APIKey"}
}
