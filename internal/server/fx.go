// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/rayin-translation/internal/activity"
	"github.com/JakeFAU/rayin-translation/internal/activity/sinks"
	"github.com/JakeFAU/rayin-translation/internal/admin"
	"github.com/JakeFAU/rayin-translation/internal/api"
	"github.com/JakeFAU/rayin-translation/internal/auth"
	"github.com/JakeFAU/rayin-translation/internal/clock/system"
	"github.com/JakeFAU/rayin-translation/internal/config"
	"github.com/JakeFAU/rayin-translation/internal/hash/sha256"
	"github.com/JakeFAU/rayin-translation/internal/home"
	"github.com/JakeFAU/rayin-translation/internal/library"
	"github.com/JakeFAU/rayin-translation/internal/logging"
	"github.com/JakeFAU/rayin-translation/internal/metrics"
	"github.com/JakeFAU/rayin-translation/internal/novelcache"
	"github.com/JakeFAU/rayin-translation/internal/policy/ratelimit"
	"github.com/JakeFAU/rayin-translation/internal/presets"
	"github.com/JakeFAU/rayin-translation/internal/preview"
	memorypublisher "github.com/JakeFAU/rayin-translation/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/rayin-translation/internal/publisher/pubsub"
	"github.com/JakeFAU/rayin-translation/internal/retry"
	"github.com/JakeFAU/rayin-translation/internal/source"
	"github.com/JakeFAU/rayin-translation/internal/spa"
	gcsstorage "github.com/JakeFAU/rayin-translation/internal/storage/gcs"
	localstorage "github.com/JakeFAU/rayin-translation/internal/storage/local"
	memorystorage "github.com/JakeFAU/rayin-translation/internal/storage/memory"
	pgstore "github.com/JakeFAU/rayin-translation/internal/storage/postgres"
	"github.com/JakeFAU/rayin-translation/internal/telemetry"
	"github.com/JakeFAU/rayin-translation/internal/translate"
)

// Repository is every persistence port the service needs. Both the Postgres
// and in-memory stores implement it.
type Repository interface {
	library.NovelRepository
	library.HomeRepository
	library.AdminRepository
	library.ProfileRepository
	library.PresetRepository
}

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	clock  library.Clock

	repo         Repository
	pgStore      *pgstore.Store
	blobs        library.BlobStore
	publisher    library.Publisher
	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher
	storage      *storage.Client
	hub          *activity.Hub
	tracer       *sdktrace.TracerProvider
	registerer   prometheus.Registerer

	authClient *auth.Client
	authStore  *auth.Store
	novels     *novelcache.Cache
	home       *home.Store
	presets    *presets.Service
	admin      *admin.Service
	translator *translate.Translator
	importer   *source.Importer
	apiServer  *api.Server
	handler    http.Handler

	closeOnce sync.Once
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	type SanitizedConfig struct {
		ServerPort     int    `json:"server_port"`
		StorageBackend string `json:"storage_backend"`
		Provider       string `json:"translator_provider"`
		Database       bool   `json:"database"`
		Auth           bool   `json:"auth"`
	}
	safeCfg := SanitizedConfig{
		ServerPort:     cfg.Server.Port,
		StorageBackend: cfg.Storage.Backend,
		Provider:       cfg.Translator.Provider,
		Database:       cfg.Database.DSN != "",
		Auth:           cfg.Supabase.URL != "",
	}
	logger.Info("Creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
	}, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Translator returns the streaming translator.
func (a *App) Translator() *translate.Translator { return a.translator }

// Presets returns the preset service.
func (a *App) Presets() *presets.Service { return a.presets }

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := a.home.Fetch(ctx, false); err != nil {
			a.logger.Warn("home warmup failed", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := time.Duration(a.cfg.Server.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application. Later calls are no-ops.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if a.novels != nil {
			a.novels.Close()
		}
		a.closeInfrastructure(ctx)
		if err := a.logger.Sync(); err != nil {
			a.logger.Debug("logger sync failed", zap.Error(err))
		}
		a.logger.Info("shutdown complete")
	})
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("activity hub close failed", zap.Error(err))
		}
	}
	if a.gcpPublisher != nil {
		a.gcpPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}

// Ready checks that the database and its profiles table are reachable, and
// that the auth provider is healthy.
func (a *App) Ready(ctx context.Context) error {
	var errs []error
	if a.pgStore != nil {
		if err := a.pgStore.Ping(ctx); err != nil {
			errs = append(errs, err)
		} else if _, err := a.pgStore.CountProfiles(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.authClient != nil {
		errs = append(errs, a.authClient.Health(ctx))
	}
	return errors.Join(errs...)
}

// BuildOption customizes Build.
type BuildOption func(*App)

// WithRegisterer registers the activity collectors on reg instead of the
// default Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) BuildOption {
	return func(app *App) {
		app.registerer = reg
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config, opts ...BuildOption) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Debug)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	for _, opt := range opts {
		opt(app)
	}
	app.logger.Info("building application dependencies")

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio)
		if err != nil {
			return nil, fmt.Errorf("tracing init failed: %w", err)
		}
		app.tracer = tp
	}

	if err := setupDatabase(ctx, app); err != nil {
		return nil, err
	}
	if err := setupStorage(ctx, app); err != nil {
		return nil, err
	}
	if err := setupPublisher(ctx, app); err != nil {
		return nil, err
	}
	if err := setupActivity(ctx, app); err != nil {
		return nil, err
	}
	if err := setupReader(app); err != nil {
		return nil, err
	}
	if err := setupAuth(app); err != nil {
		return nil, err
	}
	if err := setupAdmin(app); err != nil {
		return nil, err
	}
	return app, setupHTTP(app)
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.Database.DSN == "" {
		app.logger.Warn("No DSN specified for database, using in-memory library store")
		app.repo = memorystorage.NewLibraryStore(nil)
		return nil
	}
	store, err := pgstore.New(ctx, pgstore.Config{
		DSN:             app.cfg.Database.DSN,
		Schema:          app.cfg.Database.Schema,
		MaxConns:        app.cfg.Database.MaxConns,
		MinConns:        app.cfg.Database.MinConns,
		MaxConnLifetime: app.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("library store init failed: %w", err)
	}
	app.pgStore = store
	app.repo = store
	app.logger.Info("library store initialized", zap.String("schema", app.cfg.Database.Schema))
	return nil
}

func setupStorage(ctx context.Context, app *App) error {
	var err error
	switch app.cfg.Storage.Backend {
	case "gcs":
		app.logger.Info("using GCS storage backend")
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		app.blobs, err = gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket:        app.cfg.Storage.Bucket,
			PublicBaseURL: app.cfg.Storage.PublicBaseURL,
			CacheControl:  "public, max-age=31536000, immutable",
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Debug("GCS storage backend", zap.String("bucket", app.cfg.Storage.Bucket))
	case "local":
		app.logger.Info("using local storage backend")
		app.blobs, err = localstorage.New(localstorage.Config{
			BaseDir:       app.cfg.Storage.BaseDir,
			PublicBaseURL: app.cfg.Storage.PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Debug("local storage backend", zap.String("path", app.cfg.Storage.BaseDir))
	default:
		app.logger.Info("using in-memory storage backend")
		app.blobs = memorystorage.NewBlobStore(app.cfg.Storage.PublicBaseURL)
	}
	return nil
}

func setupPublisher(ctx context.Context, app *App) error {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		app.publisher = memorypublisher.New()
		return nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.gcpPublisher = gcppublisher.New(app.pubsubClient.Topic(app.cfg.PubSub.TopicName))
	app.publisher = app.gcpPublisher
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return nil
}

func setupActivity(ctx context.Context, app *App) error {
	reg := app.registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("activity metrics init failed: %w", err)
	}
	sinkList := []activity.Sink{
		sinks.NewViewSink(app.repo, app.logger.Named("activity_views")),
		promSink,
	}
	if app.cfg.Activity.LogEnabled {
		sinkList = append(sinkList, sinks.NewLogSink(app.logger.Named("activity_log")))
		app.logger.Debug("Added activity log sink")
	}
	hubCfg := activity.Config{
		BufferSize:     app.cfg.Activity.BufferSize,
		MaxBatchEvents: app.cfg.Activity.MaxEvents,
		MaxBatchWait:   time.Duration(app.cfg.Activity.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(app.cfg.Activity.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    ctx,
		Logger:         app.logger.Named("activity_hub"),
	}
	app.hub = activity.NewHub(hubCfg, sinkList...)
	app.logger.Info("activity hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return nil
}

func setupReader(app *App) error {
	var err error
	app.novels, err = novelcache.New(app.repo, app.clock, app.hub, app.logger, novelcache.Config{
		NovelTTL:         app.cfg.Cache.NovelTTL,
		ChapterTTL:       app.cfg.Cache.ChapterTTL,
		PrefetchCooldown: app.cfg.Cache.PrefetchCooldown,
		NovelCapacity:    app.cfg.Cache.NovelCapacity,
		ChapterCapacity:  app.cfg.Cache.ChapterCapacity,
	})
	if err != nil {
		return fmt.Errorf("novel cache init failed: %w", err)
	}
	app.home = home.New(app.repo, app.novels, app.clock, app.hub, app.logger, home.Config{TTL: app.cfg.Cache.HomeTTL})
	return nil
}

func setupAuth(app *App) error {
	if app.cfg.Supabase.URL == "" {
		app.logger.Warn("No auth provider configured, auth routes disabled")
		return nil
	}
	policy := retry.DefaultPolicy()
	if app.cfg.Supabase.MaxRetries > 0 {
		policy.MaxAttempts = app.cfg.Supabase.MaxRetries + 1
	}
	var err error
	app.authClient, err = auth.NewClient(auth.ClientConfig{
		URL:     app.cfg.Supabase.URL,
		AnonKey: app.cfg.Supabase.AnonKey,
		Retry:   policy,
	})
	if err != nil {
		return fmt.Errorf("auth client init failed: %w", err)
	}
	app.authStore = auth.NewStore(app.authClient, app.repo, app.clock, app.hub, app.logger, auth.StoreConfig{
		PrincipalTTL: app.cfg.Cache.PrincipalTTL,
	})
	app.authStore.OnAuthStateChange(func(evt auth.Event) {
		app.logger.Debug("auth state changed", zap.String("kind", string(evt.Kind)))
	})
	return nil
}

func setupAdmin(app *App) error {
	app.presets = presets.NewService(app.repo, app.clock, app.hub, app.logger)
	var err error
	app.admin, err = admin.New(admin.Deps{
		Repo:      app.repo,
		Blobs:     app.blobs,
		Hasher:    sha256.New(),
		Publisher: app.publisher,
		Cache:     app.novels,
		Clock:     app.clock,
		Emitter:   app.hub,
		Logger:    app.logger,
	}, admin.Config{CoverPrefix: app.cfg.Storage.Prefix})
	if err != nil {
		return fmt.Errorf("admin service init failed: %w", err)
	}
	app.translator, err = translate.New(translate.Config{
		Provider:     translate.Provider(app.cfg.Translator.Provider),
		BaseURL:      app.cfg.Translator.BaseURL,
		APIKey:       app.cfg.Translator.APIKey,
		Referer:      app.cfg.Translator.Referer,
		Title:        app.cfg.Translator.Title,
		DefaultModel: app.cfg.Translator.DefaultModel,
	}, app.clock, app.hub, app.logger)
	if err != nil {
		return fmt.Errorf("translator init failed: %w", err)
	}
	if app.cfg.Translator.APIKey == "" {
		app.logger.Warn("No translator API key configured, translations will fail")
	}
	app.importer = source.New(source.Config{
		UserAgent:    app.cfg.Source.UserAgent,
		Timeout:      time.Duration(app.cfg.Source.TimeoutSeconds) * time.Second,
		MaxBodyBytes: app.cfg.Source.MaxBodyBytes,
	}, app.logger)
	return nil
}

func setupHTTP(app *App) error {
	limiter, err := ratelimit.New(ratelimit.Config{
		PerMinute: app.cfg.Translator.RatePerMin,
		Burst:     app.cfg.Translator.Burst,
	})
	if err != nil {
		return fmt.Errorf("rate limiter init failed: %w", err)
	}

	var frontend http.Handler
	if app.cfg.SPA.Dir != "" {
		site, err := spa.New(app.cfg.SPA.Dir)
		if err != nil {
			app.logger.Warn("frontend disabled", zap.String("dir", app.cfg.SPA.Dir), zap.Error(err))
		} else {
			frontend = site
		}
	}
	if frontend == nil {
		frontend = http.NotFoundHandler()
	}
	bots := preview.New(app.repo, preview.Config{
		SiteName:   app.cfg.Preview.SiteName,
		LogoPath:   app.cfg.Preview.LogoPath,
		Origin:     app.cfg.Preview.Origin,
		TrustProxy: app.cfg.Preview.TrustProxy,
	}, app.clock, app.hub, app.logger)

	app.apiServer = api.NewServer(api.Deps{
		Novels:     app.novels,
		Home:       app.home,
		Auth:       app.authStore,
		Presets:    app.presets,
		Admin:      app.admin,
		Translator: app.translator,
		Importer:   app.importer,
		Limiter:    limiter,
		Ready:      app.Ready,
		Frontend:   bots.Middleware(frontend),
		Logger:     app.logger.Named("api"),
	}, api.Options{
		AllowedOrigins: app.cfg.Server.AllowedOrigins,
		RequestTimeout: app.cfg.RequestTimeout(),
		AuthTimeout:    time.Duration(app.cfg.Supabase.SessionTimeoutSeconds) * time.Second,
	})
	app.handler = app.apiServer.Handler()
	if app.tracer != nil {
		app.handler = telemetry.Middleware(app.cfg.Tracing.ServiceName)(app.handler)
	}
	return nil
}
