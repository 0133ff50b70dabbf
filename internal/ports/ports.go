package ports

import (
	"context"
	"time"

	"PriceScanner/internal/domain"
)

// CatalogStore is the narrow query/upsert surface reconciliation needs.
// Lookups return domain.ErrNotFound when the row is absent.
type CatalogStore interface {
	FindProduct(ctx context.Context, name, brand string) (domain.CatalogProduct, error)
	InsertProduct(ctx context.Context, product domain.CatalogProduct) (int64, error)
	FindPrice(ctx context.Context, productID int64, retailer string) (domain.PriceRecord, error)
	InsertPrice(ctx context.Context, record domain.PriceRecord) (int64, error)
	// ApplyPriceChange appends a history entry holding previous.Price and
	// overwrites the price row with next, atomically.
	ApplyPriceChange(ctx context.Context, previous, next domain.PriceRecord) error
	TouchPrice(ctx context.Context, priceID int64, inStock bool, checkedAt time.Time) error
}

// ScrapeLogStore keeps the append-only scrape audit trail.
type ScrapeLogStore interface {
	AppendScrapeLog(ctx context.Context, log domain.ScrapeLog) error
}

// Store is everything the scrape job persists.
type Store interface {
	CatalogStore
	ScrapeLogStore
	EnsureSchema(ctx context.Context) error
}

// Pacer gates consecutive requests against one retailer.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Trigger fires callbacks on a recurring schedule, each shifted by its own offset.
type Trigger interface {
	Register(id string, interval, offset time.Duration, callback func(time.Time)) error
	Start()
	Stop(ctx context.Context) error
	NextRun() (time.Time, bool)
}
