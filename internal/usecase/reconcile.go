package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"

	"PriceScanner/internal/domain"
	"PriceScanner/internal/infrastructure/metrics"
	"PriceScanner/internal/ports"
)

// PriceEpsilon is the smallest price delta treated as a real movement.
var PriceEpsilon = decimal.New(1, -2)

const defaultCatalogCacheSize = 4096

type catalogKey struct {
	name  string
	brand string
}

type reconcileOutcome int

const (
	outcomeUnchanged reconcileOutcome = iota
	outcomeInserted
	outcomeUpdated
)

func (o reconcileOutcome) String() string {
	switch o {
	case outcomeInserted:
		return "inserted"
	case outcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// itemResult is the explicit per-product result folded into ReconcileStats.
type itemResult struct {
	name    string
	outcome reconcileOutcome
	err     error
}

// ReconcilerDeps wires the store and ambient collaborators.
type ReconcilerDeps struct {
	Store     ports.CatalogStore
	CacheSize int
	Clock     func() time.Time
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Reconciler matches scraped products to the catalog and maintains prices.
type Reconciler struct {
	store   ports.CatalogStore
	ids     *lru.Cache[catalogKey, int64]
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewReconciler builds the engine with a bounded (name, brand) → id cache.
func NewReconciler(deps ReconcilerDeps) (*Reconciler, error) {
	size := deps.CacheSize
	if size <= 0 {
		size = defaultCatalogCacheSize
	}
	cache, err := lru.New[catalogKey, int64](size)
	if err != nil {
		return nil, fmt.Errorf("catalog cache: %w", err)
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Reconciler{
		store:   deps.Store,
		ids:     cache,
		now:     clock,
		metrics: deps.Metrics,
		logger:  deps.Logger,
	}, nil
}

// Reconcile applies insert/update semantics to every product. A failing
// product is reported in Errors and never stops the batch.
func (r *Reconciler) Reconcile(ctx context.Context, products []domain.ScrapedProduct) domain.ReconcileStats {
	stats := domain.ReconcileStats{}
	for _, product := range products {
		res := r.reconcileOne(ctx, product)
		if res.err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", res.name, res.err))
			r.metrics.IncReconcile("error")
			r.warn("reconcile failed", "product", res.name, "retailer", product.RetailerID, "error", res.err)
			continue
		}

		switch res.outcome {
		case outcomeInserted:
			stats.Inserted++
		case outcomeUpdated:
			stats.Updated++
		}
		r.metrics.IncReconcile(res.outcome.String())
	}

	r.debug("reconcile done", "products", len(products), "inserted", stats.Inserted, "updated", stats.Updated, "errors", len(stats.Errors))
	return stats
}

func (r *Reconciler) reconcileOne(ctx context.Context, p domain.ScrapedProduct) itemResult {
	res := itemResult{name: p.Name}
	now := r.now().UTC()

	productID, created, err := r.resolveProduct(ctx, p, now)
	if err != nil {
		res.err = err
		return res
	}
	if created {
		res.outcome = outcomeInserted
	}

	stored, err := r.store.FindPrice(ctx, productID, p.RetailerID)
	if errors.Is(err, domain.ErrNotFound) {
		_, err = r.store.InsertPrice(ctx, domain.PriceRecord{
			ProductID:     productID,
			Retailer:      p.RetailerID,
			Price:         p.Price,
			OriginalPrice: p.OriginalPrice,
			Currency:      p.Currency,
			URL:           p.ProductURL,
			InStock:       p.InStock,
			LastChecked:   now,
		})
		if err != nil {
			res.err = err
			return res
		}
		res.outcome = outcomeInserted
		return res
	}
	if err != nil {
		res.err = err
		return res
	}

	if !priceMoved(stored.Price, p.Price) {
		if err := r.store.TouchPrice(ctx, stored.ID, p.InStock, now); err != nil {
			res.err = err
		}
		return res
	}

	next := stored
	next.Price = p.Price
	next.OriginalPrice = p.OriginalPrice
	next.Currency = p.Currency
	next.URL = p.ProductURL
	next.InStock = p.InStock
	next.LastChecked = now
	if err := r.store.ApplyPriceChange(ctx, stored, next); err != nil {
		res.err = err
		return res
	}

	r.metrics.IncPriceChange()
	r.debug("price changed", "product", p.Name, "retailer", p.RetailerID, "from", stored.Price.String(), "to", p.Price.String())
	if res.outcome != outcomeInserted {
		res.outcome = outcomeUpdated
	}
	return res
}

// resolveProduct returns the catalog id for p, inserting the product when absent.
func (r *Reconciler) resolveProduct(ctx context.Context, p domain.ScrapedProduct, now time.Time) (int64, bool, error) {
	key := catalogKey{name: p.Name, brand: p.Brand}
	if id, ok := r.ids.Get(key); ok {
		return id, false, nil
	}

	existing, err := r.store.FindProduct(ctx, p.Name, p.Brand)
	if err == nil {
		r.ids.Add(key, existing.ID)
		return existing.ID, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return 0, false, err
	}

	id, err := r.store.InsertProduct(ctx, domain.CatalogProduct{
		Name:      p.Name,
		Brand:     p.Brand,
		Model:     p.Model,
		Category:  p.Category,
		ImageURL:  p.ImageURL,
		Specs:     p.Specs,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return 0, false, err
	}
	r.ids.Add(key, id)
	return id, true, nil
}

func priceMoved(stored, scraped decimal.Decimal) bool {
	return stored.Sub(scraped).Abs().GreaterThan(PriceEpsilon)
}

func (r *Reconciler) debug(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func (r *Reconciler) warn(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
