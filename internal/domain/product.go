package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DraftRecord is a raw listing item as extracted from markup, before normalization.
type DraftRecord struct {
	Name              string
	PriceText         string
	OriginalPriceText string
	StockText         string
	ImageURL          string
	ProductURL        string
}

// ScrapedProduct is a normalized listing item ready for reconciliation.
type ScrapedProduct struct {
	Name          string
	Brand         string
	Model         string
	Category      string
	ImageURL      string
	Price         decimal.Decimal
	Currency      string
	OriginalPrice decimal.NullDecimal
	ProductURL    string
	RetailerID    string
	InStock       bool
	Specs         map[string]string
	ScrapedAt     time.Time
}

// CatalogProduct is the canonical product row, identified by (Name, Brand).
type CatalogProduct struct {
	ID        int64
	Name      string
	Brand     string
	Model     string
	Category  string
	ImageURL  string
	Specs     map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PriceRecord is the current offer of one retailer for one catalog product.
type PriceRecord struct {
	ID            int64
	ProductID     int64
	Retailer      string
	Price         decimal.Decimal
	OriginalPrice decimal.NullDecimal
	Currency      string
	URL           string
	InStock       bool
	LastChecked   time.Time
}

// PriceHistoryEntry records a price a PriceRecord held before it moved.
type PriceHistoryEntry struct {
	ID         int64
	PriceID    int64
	Price      decimal.Decimal
	InStock    bool
	RecordedAt time.Time
}

// ScrapeLog is an append-only audit row, one per category scrape plus one
// summary row per retailer run.
type ScrapeLog struct {
	Retailer        string
	Category        string
	ProductsFound   int
	ProductsUpdated int
	Errors          []string
	StartedAt       time.Time
	CompletedAt     time.Time
}
