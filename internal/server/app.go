// Package server is the composition root: it builds every dependency from
// config, runs the HTTP server, and tears everything down on shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/task-priority-api/internal/api"
	"github.com/JakeFAU/task-priority-api/internal/clock/system"
	"github.com/JakeFAU/task-priority-api/internal/config"
	"github.com/JakeFAU/task-priority-api/internal/embedding"
	"github.com/JakeFAU/task-priority-api/internal/hash/sha256"
	"github.com/JakeFAU/task-priority-api/internal/id/uuid"
	"github.com/JakeFAU/task-priority-api/internal/logging"
	"github.com/JakeFAU/task-priority-api/internal/metrics"
	"github.com/JakeFAU/task-priority-api/internal/model"
	"github.com/JakeFAU/task-priority-api/internal/policy/ratelimit"
	"github.com/JakeFAU/task-priority-api/internal/priority"
	gcppublisher "github.com/JakeFAU/task-priority-api/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/task-priority-api/internal/storage/gcs"
	localstorage "github.com/JakeFAU/task-priority-api/internal/storage/local"
	memorystorage "github.com/JakeFAU/task-priority-api/internal/storage/memory"
	pgstore "github.com/JakeFAU/task-priority-api/internal/storage/postgres"
	"github.com/JakeFAU/task-priority-api/internal/telemetry"
)

// Options override pieces of the build, mainly for tests and the CLI.
type Options struct {
	// Logger replaces the logger built from config.
	Logger *zap.Logger
	// ModelSource replaces the source selected by model.source.
	ModelSource model.ObjectReader
}

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	ownsLogger      bool
	apiServer       *api.Server
	predictor       *priority.Predictor
	loadErr         error
	storage         *storage.Client
	pubsubClient    *pubsub.Client
	publisher       *gcppublisher.Publisher
	predictionStore *pgstore.PredictionStore
	redisCache      *embedding.RedisCache
	tracerProvider  *sdktrace.TracerProvider
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	app := &App{cfg: cfg, logger: opts.Logger}
	if app.logger == nil {
		app.logger, err = logging.New(cfg.Logging.Development)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		app.ownsLogger = true
		zap.ReplaceGlobals(app.logger)
	}
	defer func() {
		if err != nil {
			_ = app.Close(ctx)
		}
	}()

	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("model_source", cfg.Model.Source),
		zap.String("model_path", cfg.Model.Path),
		zap.String("embedder", cfg.Embedder.Provider),
	)
	metrics.Init()
	if cfg.Telemetry.TracingEnabled {
		app.tracerProvider, err = telemetry.InitTracerProvider(ctx, cfg.Telemetry)
		if err != nil {
			return nil, fmt.Errorf("tracing init failed: %w", err)
		}
		app.logger.Info("tracing enabled", zap.Float64("sample_ratio", cfg.Telemetry.SampleRatio))
	}

	loc, err := cfg.Server.Location()
	if err != nil {
		return nil, err
	}

	embedder, err := app.setupEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	recorder, err := app.setupRecorder(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	app.predictor, app.loadErr = app.setupPredictor(ctx, opts, embedder, recorder, publisher, loc)
	if app.loadErr != nil {
		metrics.SetModelLoaded(false)
		if cfg.Model.FailFast {
			return nil, fmt.Errorf("model load failed: %w", app.loadErr)
		}
		app.logger.Error("model load failed; serving liveness only", zap.Error(app.loadErr))
	} else {
		metrics.SetModelLoaded(true)
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.RateLimit.RPS,
		DefaultBurst: cfg.RateLimit.Burst,
		MaxClients:   cfg.RateLimit.MaxClients,
	})
	if limiter.Enabled() {
		app.logger.Info("rate limiter enabled",
			zap.Float64("rps", cfg.RateLimit.RPS),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
	}

	// A nil *priority.Predictor must reach the API as a nil interface.
	var predictor api.Predictor
	if app.predictor != nil {
		predictor = app.predictor
	}
	app.apiServer = api.NewServer(predictor, limiter, *cfg, app.logger.Named("api"))
	return app, nil
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Predictor returns the wired predictor, or the load error when the model
// could not be loaded.
func (a *App) Predictor() (*priority.Predictor, error) {
	if a.predictor == nil {
		if a.loadErr != nil {
			return nil, a.loadErr
		}
		return nil, errors.New("model not loaded")
	}
	return a.predictor, nil
}

// Run starts the HTTP server and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close releases every external resource. It is safe to call on a partially
// built App.
func (a *App) Close(ctx context.Context) error {
	// Pending audit rows and events go out before their sinks close.
	if a.predictor != nil {
		if err := a.predictor.Drain(ctx); err != nil {
			a.logger.Warn("prediction side effects not drained", zap.Error(err))
		}
	}
	if a.publisher != nil {
		a.publisher.Stop()
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
	if a.predictionStore != nil {
		a.predictionStore.Close()
	}
	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer provider shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	if a.ownsLogger {
		// Sync on stderr-backed loggers returns EINVAL on some platforms.
		_ = a.logger.Sync()
	}
	return nil
}

func (a *App) setupEmbedder(ctx context.Context) (priority.Embedder, error) {
	cfg := a.cfg
	inner, err := embedding.New(ctx, embedding.Config{
		Provider:   cfg.Embedder.Provider,
		Model:      cfg.Embedder.Model,
		Dimensions: cfg.Embedder.Dimensions,
		APIKey:     cfg.Embedder.APIKey,
		BaseURL:    cfg.Embedder.BaseURL,
		Bigrams:    cfg.Embedder.Bigrams,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder init failed: %w", err)
	}
	cache, err := embedding.NewCache(ctx, embedding.CacheConfig{
		Backend: cfg.Cache.Backend,
		Size:    cfg.Cache.Size,
		Redis: embedding.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Username: cfg.Cache.RedisUsername,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			Prefix:   cfg.Cache.Prefix,
			TTL:      cfg.Cache.TTL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache init failed: %w", err)
	}
	if rc, ok := cache.(*embedding.RedisCache); ok {
		a.redisCache = rc
	}
	embedder, err := embedding.Wrap(inner, cache, a.logger.Named("embedding"))
	if err != nil {
		return nil, fmt.Errorf("embedding cache init failed: %w", err)
	}
	a.logger.Info("embedder initialized",
		zap.String("name", embedder.Name()),
		zap.Int("dimensions", embedder.Dimensions()),
		zap.String("cache", cfg.Cache.Backend),
	)
	return embedder, nil
}

func (a *App) setupRecorder(ctx context.Context) (priority.Recorder, error) {
	if !a.cfg.DB.Enabled {
		return nil, nil
	}
	store, err := pgstore.NewPredictionStore(ctx, pgstore.PredictionStoreConfig{
		DSN:             a.cfg.DB.DSN,
		Table:           a.cfg.DB.Table,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("prediction store init failed: %w", err)
	}
	a.predictionStore = store
	if a.cfg.DB.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("prediction store migrate failed: %w", err)
		}
	}
	a.logger.Info("prediction audit enabled", zap.String("table", a.cfg.DB.Table))
	return store, nil
}

func (a *App) setupPublisher(ctx context.Context) (priority.Publisher, error) {
	if !a.cfg.PubSub.Enabled {
		return nil, nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.publisher = gcppublisher.New(a.pubsubClient.Topic(a.cfg.PubSub.TopicName))
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.publisher, nil
}

func (a *App) setupPredictor(
	ctx context.Context,
	opts Options,
	embedder priority.Embedder,
	recorder priority.Recorder,
	publisher priority.Publisher,
	loc *time.Location,
) (*priority.Predictor, error) {
	source, err := a.modelSource(ctx, opts)
	if err != nil {
		return nil, err
	}
	loader := model.NewLoader(source, sha256.New(), a.logger.Named("model"))
	bundle, err := loader.Load(ctx, model.Spec{
		Path:               a.cfg.Model.Path,
		LabelEncoderPath:   a.cfg.Model.LabelEncoderPath,
		SHA256:             a.cfg.Model.SHA256,
		LabelEncoderSHA256: a.cfg.Model.LabelEncoderSHA256,
	})
	if err != nil {
		return nil, err
	}
	if err := embedding.CheckCompatible(
		embedder, bundle.Embedding.Provider, bundle.Embedding.Model, bundle.Embedding.Dimensions,
	); err != nil {
		return nil, err
	}
	return priority.NewPredictor(
		bundle.Classifier,
		bundle.Labels,
		embedder,
		system.New(loc),
		uuid.New(),
		recorder,
		publisher,
		priority.Config{
			Topic:             a.cfg.PubSub.TopicName,
			Location:          loc,
			ModelChecksum:     bundle.Checksum,
			SideEffectTimeout: a.cfg.Server.SideEffectTimeout,
		},
		a.logger.Named("predictor"),
	)
}

func (a *App) modelSource(ctx context.Context, opts Options) (model.ObjectReader, error) {
	if opts.ModelSource != nil {
		return opts.ModelSource, nil
	}
	switch a.cfg.Model.Source {
	case "gcs":
		var err error
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcsstorage.New(a.storage, gcsstorage.Config{Bucket: a.cfg.Model.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Debug("GCS model source", zap.String("bucket", a.cfg.Model.GCSBucket))
		return store, nil
	case "memory":
		a.logger.Warn("in-memory model source has no artifacts unless one is injected")
		return memorystorage.NewBlobStore(), nil
	default:
		baseDir := a.cfg.Model.BaseDir
		if baseDir == "" {
			var err error
			baseDir, err = model.ExecutableDir()
			if err != nil {
				return nil, err
			}
		}
		store, err := localstorage.New(localstorage.Config{BaseDir: baseDir, ReadOnly: true})
		if err != nil {
			return nil, fmt.Errorf("local model source init failed: %w", err)
		}
		a.logger.Debug("local model source", zap.String("base_dir", baseDir))
		return store, nil
	}
}
