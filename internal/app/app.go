package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"PriceScanner/internal/config"
	deliveryhttp "PriceScanner/internal/delivery/http"
	"PriceScanner/internal/domain"
	"PriceScanner/internal/fetcher"
	"PriceScanner/internal/infrastructure/fetch"
	"PriceScanner/internal/infrastructure/metrics"
	"PriceScanner/internal/infrastructure/parser"
	"PriceScanner/internal/infrastructure/scheduler"
	"PriceScanner/internal/infrastructure/storage"
	"PriceScanner/internal/logging"
	"PriceScanner/internal/ports"
	"PriceScanner/internal/retailer"
	"PriceScanner/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg          config.Config
	logger       *slog.Logger
	db           *sql.DB
	store        ports.Store
	orchestrator *usecase.Orchestrator
	coordinator  *usecase.Coordinator
	trigger      *scheduler.CronTrigger
	server       *http.Server
}

// New opens the store and builds every component.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	registry, err := retailer.Load(cfg.Registry.Path)
	if err != nil {
		return nil, fmt.Errorf("load retailers: %w", err)
	}

	app := &Application{cfg: cfg, logger: baseLogger}
	if err := app.openStore(ctx); err != nil {
		return nil, err
	}

	m := metrics.New()

	fetchers := fetcher.NewRegistry()
	fetchers.Register(fetch.NewStaticFetcher(fetch.StaticOptions{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.Fetch.RequestTimeout,
	}, baseLogger.With("component", "fetch.static")))
	fetchers.Register(fetch.NewRenderedFetcher(fetch.RenderedOptions{
		UserAgent:         cfg.Fetch.UserAgent,
		NavigationTimeout: cfg.Fetch.NavigationTimeout,
		WaitTimeout:       cfg.Fetch.WaitTimeout,
		ShowBrowser:       cfg.Fetch.ShowBrowser,
		ExecPath:          cfg.Fetch.ExecPath,
	}, baseLogger.With("component", "fetch.rendered")))

	app.orchestrator = usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Registry:   registry,
		Fetchers:   fetchers,
		Normalizer: parser.NewNormalizer(registry.Brands()),
		Metrics:    m,
		Logger:     baseLogger.With("component", "orchestrator"),
	})

	reconciler, err := usecase.NewReconciler(usecase.ReconcilerDeps{
		Store:     app.store,
		CacheSize: cfg.Reconcile.CacheSize,
		Metrics:   m,
		Logger:    baseLogger.With("component", "reconciler"),
	})
	if err != nil {
		app.closeStore()
		return nil, err
	}

	coordinatorDeps := usecase.CoordinatorDeps{
		Registry:     registry,
		Orchestrator: app.orchestrator,
		Reconciler:   reconciler,
		Logs:         app.store,
		MaxErrors:    cfg.Status.MaxErrors,
		Metrics:      m,
		Logger:       baseLogger.With("component", "coordinator"),
	}
	if cfg.Scheduler.IsEnabled() {
		app.trigger = scheduler.NewCronTrigger(cfg.Scheduler.Location(), baseLogger.With("component", "scheduler"))
		coordinatorDeps.Trigger = app.trigger
	}
	app.coordinator = usecase.NewCoordinator(coordinatorDeps)

	handler := deliveryhttp.NewHandler(app.coordinator, m.Handler())
	app.server = &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: deliveryhttp.SetupRouter(cfg.Server, handler, baseLogger.With("component", "http")),
	}

	return app, nil
}

// Run serves the HTTP API and the recurring triggers until ctx is done, then
// shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer a.closeStore()

	if a.trigger != nil {
		if err := a.coordinator.Schedule(context.WithoutCancel(ctx), a.cfg.Scheduler.Interval, a.cfg.Scheduler.Stagger); err != nil {
			return err
		}
		a.trigger.Start()
	} else {
		a.logger.Info("recurring scrapes disabled, manual triggers only")
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.cfg.Server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	return errors.Join(runErr, a.shutdown())
}

// RunOnce scrapes one retailer, or all when retailerID is empty, and returns
// the run summary.
func (a *Application) RunOnce(ctx context.Context, retailerID string) (domain.RunSummary, error) {
	defer a.closeStore()
	return a.coordinator.Run(ctx, retailerID, usecase.SourceManual)
}

func (a *Application) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.trigger != nil {
		if err := a.trigger.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	done := make(chan struct{})
	go func() {
		a.coordinator.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("scrape run still active at shutdown")
	}

	a.orchestrator.Release()
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *Application) openStore(ctx context.Context) error {
	if a.cfg.Database.Driver == storage.DriverMemory {
		a.store = storage.NewMemoryStore()
		a.logger.Warn("using in-memory store, data is lost on exit")
		return nil
	}

	db, err := storage.Open(ctx, a.cfg.Database.Driver, a.cfg.Database.DSN, a.cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	store := storage.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return err
	}
	a.db = db
	a.store = store
	return nil
}

func (a *Application) closeStore() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
	a.db = nil
}
