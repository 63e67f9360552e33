package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/phrazzld/scry-hook/internal/admission"
	"github.com/phrazzld/scry-hook/internal/api"
	"github.com/phrazzld/scry-hook/internal/config"
	"github.com/phrazzld/scry-hook/internal/events"
	"github.com/phrazzld/scry-hook/internal/generation"
	"github.com/phrazzld/scry-hook/internal/pipeline"
	"github.com/phrazzld/scry-hook/internal/platform/amqp"
	"github.com/phrazzld/scry-hook/internal/platform/gcsblob"
	"github.com/phrazzld/scry-hook/internal/platform/gemini"
	"github.com/phrazzld/scry-hook/internal/platform/openai"
	"github.com/phrazzld/scry-hook/internal/platform/postgres"
	"github.com/phrazzld/scry-hook/internal/platform/redisblob"
	"github.com/phrazzld/scry-hook/internal/platform/sqlite"
	"github.com/phrazzld/scry-hook/internal/platform/sqlstore"
	"github.com/phrazzld/scry-hook/internal/platform/web"
	"github.com/phrazzld/scry-hook/internal/service"
	"github.com/phrazzld/scry-hook/internal/service/auth"
	"github.com/phrazzld/scry-hook/internal/store"
	"github.com/phrazzld/scry-hook/internal/task"
	"github.com/phrazzld/scry-hook/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// overrides replace externally backed collaborators, mainly in tests.
type overrides struct {
	model   generation.Model
	fetcher generation.DocumentFetcher
}

// application holds the wired dependencies and what must be closed on
// shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	contentItems *sqlstore.ContentItemStore
	containers   *sqlstore.QuizContainerStore
	questionSets *sqlstore.QuestionSetStore
	sessions     *sqlstore.SessionStore
	blobs        store.BlobStore

	emitter     *events.InMemoryEventEmitter
	admission   *admission.Queue
	worker      *worker.Worker
	coordinator *pipeline.Coordinator
	runner      *task.Runner
	service     *service.SessionService
	jwt         auth.JWTService
	registry    *prometheus.Registry

	closers []io.Closer
}

// openDatabase opens the configured database and returns the matching
// dialect.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, sqlstore.Dialect, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return db, postgres.Dialect{}, nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		return db, sqlite.Dialect{}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// newApplication wires every component on top of an open, migrated
// database. The caller owns db; everything else is released by cleanup.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
	dialect sqlstore.Dialect,
	ov overrides,
) (app *application, err error) {
	app = &application{
		config:       cfg,
		logger:       logger,
		db:           db,
		contentItems: sqlstore.NewContentItemStore(db, dialect, logger),
		containers:   sqlstore.NewQuizContainerStore(db, dialect, logger),
		questionSets: sqlstore.NewQuestionSetStore(db, dialect, logger),
		sessions:     sqlstore.NewSessionStore(db, dialect, logger),
		registry:     prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			app.cleanup()
		}
	}()

	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if app.blobs, err = app.openBlobStore(ctx, dialect); err != nil {
		return nil, err
	}

	model := ov.model
	if model == nil {
		if model, err = newModel(ctx, cfg.LLM, logger); err != nil {
			return nil, err
		}
	}
	logger.Info("LLM model initialized", slog.String("provider", cfg.LLM.Provider), slog.String("model", model.Name()))

	policy := generation.RetryPolicy{MaxAttempts: cfg.LLM.MaxAttempts, Delay: cfg.LLM.RetryDelay}
	analyzer, err := generation.NewModelAnalyzer(model, policy, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %w", err)
	}
	synthesizer, err := generation.NewModelSynthesizer(model, policy, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}

	fetcher := ov.fetcher
	if fetcher == nil {
		if fetcher, err = web.NewFetcher(cfg.Content, app.blobs, logger); err != nil {
			return nil, fmt.Errorf("failed to create document fetcher: %w", err)
		}
	}

	app.worker, err = worker.New(app.contentItems, app.blobs, app.questionSets, fetcher, analyzer, synthesizer, worker.Config{
		Concurrency:           cfg.Pipeline.GenerationConcurrency,
		MaxFetchAttempts:      cfg.Pipeline.MaxFetchAttempts,
		MaxQuestionSetRetries: cfg.Pipeline.MaxQuestionSetRetries,
		FreshnessWindow:       cfg.Pipeline.FreshnessWindow,
		FetchWaitInterval:     cfg.Pipeline.FetchWaitInterval,
		FetchWaitTimeout:      cfg.Pipeline.FetchWaitTimeout,
		FetchRetry:            policy,
		ErrorSummaryLength:    cfg.Pipeline.ErrorSummaryLength,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}

	// Handlers are registered once the task runner exists; the admission
	// queue only needs somewhere to emit.
	app.emitter = events.NewInMemoryEventEmitter(logger)

	app.admission, err = admission.NewQueue(db, app.sessions,
		sqlstore.NewAdmissionStore(db, dialect, logger),
		app.emitter, cfg.Pipeline.AdmissionCap, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create admission queue: %w", err)
	}

	app.coordinator, err = pipeline.NewCoordinator(pipeline.Stores{
		ContentItems: app.contentItems,
		Containers:   app.containers,
		QuestionSets: app.questionSets,
		Sessions:     app.sessions,
	}, app.admission, app.worker, pipeline.NewMetrics(app.registry), pipeline.Config{
		ErrorSummaryLength: cfg.Pipeline.ErrorSummaryLength,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	if err := app.setupTasks(); err != nil {
		return nil, err
	}
	if err := app.setupPublisher(); err != nil {
		return nil, err
	}

	app.service, err = service.NewSessionService(service.Stores{
		ContentItems: app.contentItems,
		Containers:   app.containers,
		QuestionSets: app.questionSets,
		Sessions:     app.sessions,
		Blobs:        app.blobs,
	}, app.admission, app.coordinator, app.emitter, service.Config{
		Prefetch:           cfg.Pipeline.Prefetch,
		FreshnessWindow:    cfg.Pipeline.FreshnessWindow,
		MaxUploadBytes:     cfg.Content.MaxBytes,
		ErrorSummaryLength: cfg.Pipeline.ErrorSummaryLength,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create session service: %w", err)
	}

	app.jwt, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	logger.Info("application initialized",
		slog.Int("admission_cap", app.admission.Cap()),
		slog.Bool("prefetch", cfg.Pipeline.Prefetch),
		slog.String("blob_backend", cfg.Content.BlobBackend))
	return app, nil
}

func (app *application) openBlobStore(ctx context.Context, dialect sqlstore.Dialect) (store.BlobStore, error) {
	cfg := app.config.Content
	switch cfg.BlobBackend {
	case "sql":
		return sqlstore.NewBlobStore(app.db, dialect, app.logger), nil
	case "redis":
		s, err := redisblob.New(ctx, cfg.RedisURL, app.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis blob store: %w", err)
		}
		app.closers = append(app.closers, s)
		return s, nil
	case "gcs":
		s, err := gcsblob.New(ctx, cfg.GCSBucket, cfg.GCSEndpoint, app.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open gcs blob store: %w", err)
		}
		app.closers = append(app.closers, s)
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported blob backend %q", cfg.BlobBackend)
	}
}

func newModel(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (generation.Model, error) {
	switch cfg.Provider {
	case "gemini":
		m, err := gemini.New(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini model: %w", err)
		}
		return m, nil
	case "openai":
		m, err := openai.New(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai model: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}

// setupTasks builds the runner and sweeper and routes trigger events to
// them.
func (app *application) setupTasks() error {
	cfg := app.config
	factory, err := task.NewFactory(app.coordinator, app.worker)
	if err != nil {
		return fmt.Errorf("failed to create task factory: %w", err)
	}

	app.runner = task.NewRunner(task.RunnerConfig{
		WorkerCount:   cfg.Task.WorkerCount,
		QueueSize:     cfg.Task.QueueSize,
		SweepInterval: cfg.Task.SweepInterval,
		RunTimeout:    cfg.Task.RunTimeout,
	}, app.logger)

	sweeper, err := task.NewSweeper(app.contentItems, app.questionSets, app.sessions, factory, app.runner, task.SweeperConfig{
		StuckClaimAge:         cfg.Task.StuckClaimAge,
		MaxQuestionSetRetries: cfg.Pipeline.MaxQuestionSetRetries,
		MaxFetchAttempts:      cfg.Pipeline.MaxFetchAttempts,
	}, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create sweeper: %w", err)
	}
	app.runner.SetSweeper(sweeper)

	app.emitter.RegisterHandler(task.NewEventHandler(factory, app.runner, app.logger))
	return nil
}

// setupPublisher forwards lifecycle events to the broker when one is
// configured.
func (app *application) setupPublisher() error {
	cfg := app.config.Events
	if cfg.AMQPURL == "" {
		app.logger.Debug("lifecycle event publishing disabled")
		return nil
	}
	publisher, err := amqp.Dial(cfg.AMQPURL, cfg.Exchange, app.logger)
	if err != nil {
		return fmt.Errorf("failed to set up event publisher: %w", err)
	}
	app.closers = append(app.closers, publisher)
	app.emitter.RegisterHandler(publisher)
	app.logger.Info("publishing lifecycle events", slog.String("exchange", cfg.Exchange))
	return nil
}

// router builds the HTTP handler of the API.
func (app *application) router() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Sessions: api.NewSessionHandler(app.service, app.config.Content.MaxBytes, app.logger),
		JWT:      app.jwt,
		Metrics:  promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}),
		Health: func(r *http.Request) error {
			return app.db.PingContext(r.Context())
		},
		Logger: app.logger,
	})
}

// cleanup releases everything newApplication opened, in reverse order.
func (app *application) cleanup() {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	if err := errors.Join(errs...); err != nil {
		app.logger.Error("error releasing resources", slog.String("error", err.Error()))
	}
}
