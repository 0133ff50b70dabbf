package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"PriceScanner/internal/domain"
	"PriceScanner/internal/infrastructure/metrics"
	"PriceScanner/internal/ports"
	"PriceScanner/internal/retailer"
)

// Run sources, used as the metrics trigger label.
const (
	SourceManual    = "manual"
	SourceScheduled = "scheduled"
)

const (
	defaultMaxErrors = 10
	summaryCategory  = "*"
)

// CoordinatorDeps wires the run coordinator.
type CoordinatorDeps struct {
	Registry     *retailer.Registry
	Orchestrator *Orchestrator
	Reconciler   *Reconciler
	Logs         ports.ScrapeLogStore
	Trigger      ports.Trigger
	MaxErrors    int
	Clock        func() time.Time
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Coordinator owns the single-flight guard and the job status. Every run,
// manual or scheduled, passes through it.
type Coordinator struct {
	registry     *retailer.Registry
	orchestrator *Orchestrator
	reconciler   *Reconciler
	logs         ports.ScrapeLogStore
	trigger      ports.Trigger
	maxErrors    int
	now          func() time.Time
	metrics      *metrics.Metrics
	logger       *slog.Logger

	mu         sync.Mutex
	running    bool
	lastRun    *time.Time
	lastResult *domain.RunSummary

	wg sync.WaitGroup
}

// NewCoordinator builds an idle coordinator.
func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	maxErrors := deps.MaxErrors
	if maxErrors <= 0 {
		maxErrors = defaultMaxErrors
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Coordinator{
		registry:     deps.Registry,
		orchestrator: deps.Orchestrator,
		reconciler:   deps.Reconciler,
		logs:         deps.Logs,
		trigger:      deps.Trigger,
		maxErrors:    maxErrors,
		now:          clock,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
	}
}

// Trigger validates retailerID (empty means all retailers) and starts a run in
// the background. It returns domain.ErrRunInProgress when a run is active.
// The run outlives ctx.
func (c *Coordinator) Trigger(ctx context.Context, retailerID string) error {
	if err := c.validate(retailerID); err != nil {
		return err
	}
	if !c.begin() {
		c.info("scrape trigger ignored, run in progress", "retailer", retailerID)
		return domain.ErrRunInProgress
	}

	runCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.execute(runCtx, retailerID, SourceManual)
	}()
	return nil
}

// Run executes a scrape synchronously and returns its summary.
func (c *Coordinator) Run(ctx context.Context, retailerID, source string) (domain.RunSummary, error) {
	if err := c.validate(retailerID); err != nil {
		return domain.RunSummary{}, err
	}
	if !c.begin() {
		c.info("scrape skipped, run in progress", "retailer", retailerID, "source", source)
		return domain.RunSummary{}, domain.ErrRunInProgress
	}

	c.wg.Add(1)
	defer c.wg.Done()
	return c.execute(ctx, retailerID, source), nil
}

// Schedule registers one recurring trigger per retailer; retailer k fires at
// offset k*stagger (mod interval) inside every interval.
func (c *Coordinator) Schedule(ctx context.Context, interval, stagger time.Duration) error {
	if c.trigger == nil {
		return fmt.Errorf("no recurring trigger configured")
	}
	if interval <= 0 {
		return fmt.Errorf("schedule interval must be positive, got %s", interval)
	}

	for k, id := range c.registry.IDs() {
		retailerID := id
		offset := StaggerOffset(k, interval, stagger)
		err := c.trigger.Register(retailerID, interval, offset, func(time.Time) {
			if _, err := c.Run(ctx, retailerID, SourceScheduled); err != nil {
				c.debug("scheduled run not started", "retailer", retailerID, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", retailerID, err)
		}
		c.info("retailer scheduled", "retailer", retailerID, "interval", interval.String(), "offset", offset.String())
	}
	return nil
}

// StaggerOffset places the k-th retailer inside a recurring interval.
func StaggerOffset(k int, interval, stagger time.Duration) time.Duration {
	if interval <= 0 || stagger <= 0 {
		return 0
	}
	return (time.Duration(k) * stagger) % interval
}

// Status returns a snapshot of the job status.
func (c *Coordinator) Status() domain.ScrapeJobStatus {
	c.mu.Lock()
	status := domain.ScrapeJobStatus{IsRunning: c.running}
	if c.lastRun != nil {
		t := *c.lastRun
		status.LastRun = &t
	}
	if c.lastResult != nil {
		res := *c.lastResult
		res.Errors = append([]string(nil), c.lastResult.Errors...)
		status.LastResult = &res
	}
	c.mu.Unlock()

	if c.trigger != nil {
		if next, ok := c.trigger.NextRun(); ok {
			status.NextRun = &next
		}
	}
	return status
}

// Wait blocks until in-flight runs finish.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) validate(retailerID string) error {
	if c.registry == nil {
		return fmt.Errorf("coordinator has no retailer registry")
	}
	if retailerID == "" {
		return nil
	}
	_, err := c.registry.Get(retailerID)
	return err
}

func (c *Coordinator) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return false
	}
	c.running = true
	return true
}

func (c *Coordinator) finish(summary domain.RunSummary, completedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.lastRun = &completedAt
	c.lastResult = &summary
}

func (c *Coordinator) execute(ctx context.Context, retailerID, source string) (summary domain.RunSummary) {
	started := c.now()
	c.metrics.RunStarted()

	summary = domain.RunSummary{RunID: uuid.NewString(), Retailer: retailerID}
	var errs []string

	defer func() {
		if r := recover(); r != nil {
			errs = append(errs, fmt.Sprintf("run panicked: %v", r))
			c.warn("scrape run panicked", "run", summary.RunID, "panic", r)
			c.complete(&summary, errs, started, source)
		}
	}()

	c.info("scrape run started", "run", summary.RunID, "source", source, "retailer", retailerID)
	results, ids := c.scrape(ctx, retailerID, &errs)
	for _, id := range ids {
		res, ok := results[id]
		if !ok {
			continue
		}
		stats := c.persist(ctx, res)

		summary.ProductsFound += len(res.Products)
		summary.Inserted += stats.Inserted
		summary.Updated += stats.Updated
		for _, e := range append(res.Errors, stats.Errors...) {
			errs = append(errs, id+": "+e)
		}
	}

	c.complete(&summary, errs, started, source)
	return summary
}

// scrape runs the orchestrator for one retailer, or for all of them through
// ScrapeAll, and returns the results with the retailer ids in run order.
func (c *Coordinator) scrape(ctx context.Context, retailerID string, errs *[]string) (map[string]domain.ScrapeResult, []string) {
	if retailerID == "" {
		return c.orchestrator.ScrapeAll(ctx), c.registry.IDs()
	}

	defer c.orchestrator.Release()
	res, err := c.orchestrator.ScrapeRetailer(ctx, retailerID)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", retailerID, err))
		return nil, nil
	}
	return map[string]domain.ScrapeResult{retailerID: res}, []string{retailerID}
}

func (c *Coordinator) complete(summary *domain.RunSummary, errs []string, started time.Time, source string) {
	summary.ErrorCount = len(errs)
	summary.Success = len(errs) == 0
	summary.Errors = truncateErrors(errs, c.maxErrors)

	completedAt := c.now().UTC()
	c.finish(*summary, completedAt)
	c.metrics.RunFinished(source, summary.Success, completedAt.Sub(started))
	c.info("scrape run finished",
		"run", summary.RunID,
		"success", summary.Success,
		"products", summary.ProductsFound,
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"errors", summary.ErrorCount,
	)
}

// persist reconciles each category and appends its audit row, then one
// summary row for the retailer.
func (c *Coordinator) persist(ctx context.Context, res domain.ScrapeResult) domain.ReconcileStats {
	total := domain.ReconcileStats{}
	for _, cat := range res.Categories {
		stats := c.reconciler.Reconcile(ctx, cat.Products)
		total.Add(stats)

		c.appendLog(ctx, domain.ScrapeLog{
			Retailer:        res.RetailerID,
			Category:        cat.Name,
			ProductsFound:   len(cat.Products),
			ProductsUpdated: stats.Inserted + stats.Updated,
			Errors:          append(append([]string(nil), cat.Errors...), stats.Errors...),
			StartedAt:       cat.StartedAt,
			CompletedAt:     cat.CompletedAt,
		})
	}

	c.appendLog(ctx, domain.ScrapeLog{
		Retailer:        res.RetailerID,
		Category:        summaryCategory,
		ProductsFound:   len(res.Products),
		ProductsUpdated: total.Inserted + total.Updated,
		Errors:          append(append([]string(nil), res.Errors...), total.Errors...),
		StartedAt:       res.ScrapedAt,
		CompletedAt:     c.now().UTC(),
	})
	return total
}

func (c *Coordinator) appendLog(ctx context.Context, entry domain.ScrapeLog) {
	if c.logs == nil {
		return
	}
	if err := c.logs.AppendScrapeLog(ctx, entry); err != nil {
		c.warn("append scrape log", "retailer", entry.Retailer, "category", entry.Category, "error", err)
	}
}

func truncateErrors(errs []string, limit int) []string {
	if len(errs) > limit {
		errs = errs[:limit]
	}
	return append([]string{}, errs...)
}

func (c *Coordinator) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Coordinator) info(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Coordinator) warn(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
