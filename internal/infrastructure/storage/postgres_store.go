package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"PriceScanner/internal/domain"
	"PriceScanner/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	brand TEXT NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT 'other',
	image_url TEXT NOT NULL DEFAULT '',
	specs_json JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (name, brand)
);

CREATE TABLE IF NOT EXISTS prices (
	id BIGSERIAL PRIMARY KEY,
	product_id BIGINT NOT NULL REFERENCES products (id),
	retailer TEXT NOT NULL,
	price NUMERIC(12, 2) NOT NULL,
	original_price NUMERIC(12, 2),
	currency TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	in_stock BOOLEAN NOT NULL DEFAULT TRUE,
	last_checked TIMESTAMPTZ NOT NULL,
	UNIQUE (product_id, retailer)
);

CREATE TABLE IF NOT EXISTS price_history (
	id BIGSERIAL PRIMARY KEY,
	price_id BIGINT NOT NULL REFERENCES prices (id),
	price NUMERIC(12, 2) NOT NULL,
	in_stock BOOLEAN NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS price_history_price_id_idx ON price_history (price_id, recorded_at);

CREATE TABLE IF NOT EXISTS scrape_logs (
	id BIGSERIAL PRIMARY KEY,
	retailer TEXT NOT NULL,
	category TEXT NOT NULL,
	products_found INTEGER NOT NULL,
	products_updated INTEGER NOT NULL,
	errors JSONB NOT NULL DEFAULT '[]'::jsonb,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);`

var (
	productColumns = []string{"id", "name", "brand", "model", "category", "image_url", "specs_json", "created_at", "updated_at"}
	priceColumns   = []string{"id", "product_id", "retailer", "price", "original_price", "currency", "url", "in_stock", "last_checked"}
)

// PostgresStore persists the catalog, prices, history and scrape logs.
type PostgresStore struct {
	db   *sql.DB
	psql sq.StatementBuilderType
}

var _ ports.Store = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB opened with either the postgres or pgx driver.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// EnsureSchema creates missing tables.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) findProductQuery(name, brand string) sq.SelectBuilder {
	return s.psql.Select(productColumns...).
		From("products").
		Where(sq.Eq{"name": name, "brand": brand}).
		Limit(1)
}

// FindProduct looks a catalog product up by its identity key.
func (s *PostgresStore) FindProduct(ctx context.Context, name, brand string) (domain.CatalogProduct, error) {
	var (
		p     domain.CatalogProduct
		specs []byte
	)
	err := s.findProductQuery(name, brand).RunWith(s.db).QueryRowContext(ctx).Scan(
		&p.ID, &p.Name, &p.Brand, &p.Model, &p.Category, &p.ImageURL, &specs, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CatalogProduct{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CatalogProduct{}, fmt.Errorf("find product: %w", err)
	}
	if len(specs) > 0 {
		if err := json.Unmarshal(specs, &p.Specs); err != nil {
			return domain.CatalogProduct{}, fmt.Errorf("decode specs: %w", err)
		}
	}
	return p, nil
}

// InsertProduct creates a catalog product. A concurrent insert of the same
// (name, brand) resolves to the existing row.
func (s *PostgresStore) InsertProduct(ctx context.Context, p domain.CatalogProduct) (int64, error) {
	specs := p.Specs
	if specs == nil {
		specs = map[string]string{}
	}
	specsJSON, err := json.Marshal(specs)
	if err != nil {
		return 0, fmt.Errorf("encode specs: %w", err)
	}

	var id int64
	err = s.psql.Insert("products").
		Columns("name", "brand", "model", "category", "image_url", "specs_json", "created_at", "updated_at").
		Values(p.Name, p.Brand, p.Model, p.Category, p.ImageURL, string(specsJSON), p.CreatedAt, p.UpdatedAt).
		Suffix("RETURNING id").
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&id)
	if isUniqueViolation(err) {
		existing, findErr := s.FindProduct(ctx, p.Name, p.Brand)
		if findErr != nil {
			return 0, fmt.Errorf("insert product: %w", findErr)
		}
		return existing.ID, nil
	}
	if err != nil {
		return 0, fmt.Errorf("insert product: %w", err)
	}
	return id, nil
}

// FindPrice looks up the offer of retailer for a product.
func (s *PostgresStore) FindPrice(ctx context.Context, productID int64, retailer string) (domain.PriceRecord, error) {
	var rec domain.PriceRecord
	err := s.psql.Select(priceColumns...).
		From("prices").
		Where(sq.Eq{"product_id": productID, "retailer": retailer}).
		Limit(1).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&rec.ID, &rec.ProductID, &rec.Retailer, &rec.Price, &rec.OriginalPrice, &rec.Currency, &rec.URL, &rec.InStock, &rec.LastChecked)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PriceRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PriceRecord{}, fmt.Errorf("find price: %w", err)
	}
	return rec, nil
}

// InsertPrice creates the price row for (product, retailer).
func (s *PostgresStore) InsertPrice(ctx context.Context, rec domain.PriceRecord) (int64, error) {
	var id int64
	err := s.psql.Insert("prices").
		Columns("product_id", "retailer", "price", "original_price", "currency", "url", "in_stock", "last_checked").
		Values(rec.ProductID, rec.Retailer, rec.Price, rec.OriginalPrice, rec.Currency, rec.URL, rec.InStock, rec.LastChecked).
		Suffix("RETURNING id").
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert price: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) priceUpdate(next domain.PriceRecord) sq.UpdateBuilder {
	return s.psql.Update("prices").
		SetMap(map[string]interface{}{
			"price":          next.Price,
			"original_price": next.OriginalPrice,
			"currency":       next.Currency,
			"url":            next.URL,
			"in_stock":       next.InStock,
			"last_checked":   next.LastChecked,
		}).
		Where(sq.Eq{"id": next.ID})
}

// ApplyPriceChange appends the previous price to history and overwrites the
// price row in one transaction.
func (s *PostgresStore) ApplyPriceChange(ctx context.Context, previous, next domain.PriceRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = s.psql.Insert("price_history").
		Columns("price_id", "price", "in_stock", "recorded_at").
		Values(previous.ID, previous.Price, previous.InStock, next.LastChecked).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	res, err := s.priceUpdate(next).RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update price: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update price %d: %w", next.ID, domain.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit price change: %w", err)
	}
	return nil
}

// TouchPrice records a re-check that did not move the price.
func (s *PostgresStore) TouchPrice(ctx context.Context, priceID int64, inStock bool, checkedAt time.Time) error {
	_, err := s.psql.Update("prices").
		Set("in_stock", inStock).
		Set("last_checked", checkedAt).
		Where(sq.Eq{"id": priceID}).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("touch price: %w", err)
	}
	return nil
}

// AppendScrapeLog appends one audit row.
func (s *PostgresStore) AppendScrapeLog(ctx context.Context, log domain.ScrapeLog) error {
	errs := log.Errors
	if errs == nil {
		errs = []string{}
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}

	_, err = s.psql.Insert("scrape_logs").
		Columns("retailer", "category", "products_found", "products_updated", "errors", "started_at", "completed_at").
		Values(log.Retailer, log.Category, log.ProductsFound, log.ProductsUpdated, string(errsJSON), log.StartedAt, log.CompletedAt).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("append scrape log: %w", err)
	}
	return nil
}
