package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"PriceScanner/internal/domain"
	"PriceScanner/internal/fetcher"
	"PriceScanner/internal/infrastructure/metrics"
	"PriceScanner/internal/infrastructure/parser"
	"PriceScanner/internal/ports"
	"PriceScanner/internal/retailer"
)

// PacerFactory builds the request gate for one retailer run.
type PacerFactory func(delay time.Duration) ports.Pacer

// NewRatePacer spaces requests at least delay apart. The initial token is
// spent on creation, so the first Wait already blocks for delay.
func NewRatePacer(delay time.Duration) ports.Pacer {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	lim := rate.NewLimiter(rate.Every(delay), 1)
	lim.Allow()
	return lim
}

// OrchestratorDeps wires all driven adapters into the scrape orchestrator.
type OrchestratorDeps struct {
	Registry   *retailer.Registry
	Fetchers   *fetcher.Registry
	Normalizer *parser.Normalizer
	Pacers     PacerFactory
	Clock      func() time.Time
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Orchestrator scrapes retailers strictly sequentially: retailers, categories
// and pages one at a time.
type Orchestrator struct {
	registry   *retailer.Registry
	fetchers   *fetcher.Registry
	normalizer *parser.Normalizer
	pacers     PacerFactory
	now        func() time.Time
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewOrchestrator constructs the orchestration component.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	pacers := deps.Pacers
	if pacers == nil {
		pacers = NewRatePacer
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	normalizer := deps.Normalizer
	if normalizer == nil && deps.Registry != nil {
		normalizer = parser.NewNormalizer(deps.Registry.Brands())
	}

	return &Orchestrator{
		registry:   deps.Registry,
		fetchers:   deps.Fetchers,
		normalizer: normalizer,
		pacers:     pacers,
		now:        clock,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
}

// ScrapeRetailer scrapes every category of one retailer. Category failures
// are collected into the result; only an unknown retailer or strategy is an error.
func (o *Orchestrator) ScrapeRetailer(ctx context.Context, id string) (domain.ScrapeResult, error) {
	if o.registry == nil || o.fetchers == nil {
		return domain.ScrapeResult{}, fmt.Errorf("orchestrator is not configured")
	}

	r, err := o.registry.Get(id)
	if err != nil {
		return domain.ScrapeResult{}, err
	}
	strategy, err := o.fetchers.Resolve(r.Fetch.Kind())
	if err != nil {
		return domain.ScrapeResult{}, fmt.Errorf("retailer %s: %w", r.ID, err)
	}

	return o.scrapeRetailer(ctx, r, strategy), nil
}

// ScrapeAll scrapes every retailer in registry order and releases the shared
// browser afterwards, whatever the outcome.
func (o *Orchestrator) ScrapeAll(ctx context.Context) map[string]domain.ScrapeResult {
	defer o.Release()

	results := make(map[string]domain.ScrapeResult)
	if o.registry == nil {
		return results
	}

	for _, id := range o.registry.IDs() {
		res, err := o.ScrapeRetailer(ctx, id)
		if err != nil {
			res = domain.ScrapeResult{
				RetailerID: id,
				Errors:     []string{err.Error()},
				ScrapedAt:  o.now().UTC(),
			}
		}
		results[id] = res
	}
	return results
}

// Release frees long-lived fetch resources such as the shared browser.
func (o *Orchestrator) Release() {
	if o.fetchers == nil {
		return
	}
	if err := o.fetchers.Release(); err != nil && o.logger != nil {
		o.logger.Warn("release fetchers", "error", err)
	}
}

func (o *Orchestrator) scrapeRetailer(ctx context.Context, r retailer.Retailer, strategy fetcher.Strategy) domain.ScrapeResult {
	result := domain.ScrapeResult{
		RetailerID: r.ID,
		ScrapedAt:  o.now().UTC(),
	}

	gate := newFetchGate(o.pacers(r.Delay))
	o.debug("scrape retailer", "retailer", r.ID, "strategy", strategy.Kind(), "categories", len(r.Categories))

	for _, cat := range r.Categories {
		cr := o.scrapeCategory(ctx, r, strategy, cat, gate)
		result.Categories = append(result.Categories, cr)
		result.Products = append(result.Products, cr.Products...)
		result.Errors = append(result.Errors, cr.Errors...)
	}

	result.Success = len(result.Errors) == 0
	o.metrics.AddProducts(r.ID, len(result.Products))
	o.info("retailer scraped", "retailer", r.ID, "products", len(result.Products), "errors", len(result.Errors))
	return result
}

func (o *Orchestrator) scrapeCategory(ctx context.Context, r retailer.Retailer, strategy fetcher.Strategy, cat retailer.Category, gate *fetchGate) domain.CategoryResult {
	cr := domain.CategoryResult{Name: cat.Name, StartedAt: o.now().UTC()}
	defer func() { cr.CompletedAt = o.now().UTC() }()

	req := fetcher.Request{RetailerID: r.ID}
	pageParam := ""
	if spec, ok := r.Fetch.(retailer.RenderedSpec); ok {
		req.WaitFor = spec.WaitFor
		req.Timeout = spec.Timeout
		pageParam = spec.PageParam
	}

	skipped := 0
	for page := 1; page <= r.Fetch.Pages(); page++ {
		pageURL, err := cat.PageURL(r.BaseURL, pageParam, page)
		if err != nil {
			cr.Errors = append(cr.Errors, fmt.Sprintf("%s: %v", cat.Name, err))
			break
		}

		if err := gate.wait(ctx); err != nil {
			cr.Errors = append(cr.Errors, fmt.Sprintf("%s: %v", cat.Name, err))
			break
		}

		req.URL = pageURL
		started := time.Now()
		markup, err := strategy.Fetch(ctx, req)
		o.metrics.ObserveFetch(r.ID, strategy.Kind(), fetcher.Label(err), time.Since(started))
		if err != nil {
			o.warn("fetch failed", "retailer", r.ID, "category", cat.Name, "page", page, "error", err)
			cr.Errors = append(cr.Errors, fmt.Sprintf("%s: %v", cat.Name, err))
			break
		}

		drafts, err := parser.Extract(markup, cat.Rules, r.BaseURL)
		if err != nil {
			cr.Errors = append(cr.Errors, fmt.Sprintf("%s: %v", cat.Name, err))
			break
		}
		if len(drafts) == 0 {
			o.debug("empty listing page", "retailer", r.ID, "category", cat.Name, "page", page)
			break
		}

		for _, draft := range drafts {
			product, ok := o.normalizer.Normalize(draft, r)
			if !ok {
				skipped++
				continue
			}
			cr.Products = append(cr.Products, product)
		}
	}

	o.metrics.AddSkipped(r.ID, skipped)
	o.debug("category scraped", "retailer", r.ID, "category", cat.Name, "products", len(cr.Products), "skipped", skipped, "errors", len(cr.Errors))
	return cr
}

// fetchGate lets the first fetch of a retailer run through and paces every
// later one, so consecutive fetches are at least the retailer delay apart.
type fetchGate struct {
	pacer   ports.Pacer
	started bool
}

func newFetchGate(p ports.Pacer) *fetchGate {
	return &fetchGate{pacer: p}
}

func (g *fetchGate) wait(ctx context.Context) error {
	if !g.started {
		g.started = true
		return nil
	}
	if err := g.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (o *Orchestrator) debug(msg string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}

func (o *Orchestrator) info(msg string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o *Orchestrator) warn(msg string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}
