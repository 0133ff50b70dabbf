package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PriceScanner/internal/domain"
	"PriceScanner/internal/ports"
)

type productKey struct {
	name  string
	brand string
}

type priceKey struct {
	productID int64
	retailer  string
}

// MemoryStore is an in-process Store for local runs and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	nextID     int64
	products   map[int64]domain.CatalogProduct
	productIDs map[productKey]int64
	prices     map[int64]domain.PriceRecord
	priceIDs   map[priceKey]int64
	history    []domain.PriceHistoryEntry
	logs       []domain.ScrapeLog
}

var _ ports.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:   make(map[int64]domain.CatalogProduct),
		productIDs: make(map[productKey]int64),
		prices:     make(map[int64]domain.PriceRecord),
		priceIDs:   make(map[priceKey]int64),
	}
}

// EnsureSchema is a no-op.
func (m *MemoryStore) EnsureSchema(context.Context) error {
	return nil
}

func (m *MemoryStore) FindProduct(_ context.Context, name, brand string) (domain.CatalogProduct, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.productIDs[productKey{name, brand}]
	if !ok {
		return domain.CatalogProduct{}, domain.ErrNotFound
	}
	return m.products[id], nil
}

func (m *MemoryStore) InsertProduct(_ context.Context, p domain.CatalogProduct) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := productKey{p.Name, p.Brand}
	if id, ok := m.productIDs[key]; ok {
		return id, nil
	}
	m.nextID++
	p.ID = m.nextID
	m.products[p.ID] = p
	m.productIDs[key] = p.ID
	return p.ID, nil
}

func (m *MemoryStore) FindPrice(_ context.Context, productID int64, retailer string) (domain.PriceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.priceIDs[priceKey{productID, retailer}]
	if !ok {
		return domain.PriceRecord{}, domain.ErrNotFound
	}
	return m.prices[id], nil
}

func (m *MemoryStore) InsertPrice(_ context.Context, rec domain.PriceRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := priceKey{rec.ProductID, rec.Retailer}
	if _, ok := m.priceIDs[key]; ok {
		return 0, fmt.Errorf("insert price: product %d already priced by %s", rec.ProductID, rec.Retailer)
	}
	m.nextID++
	rec.ID = m.nextID
	m.prices[rec.ID] = rec
	m.priceIDs[key] = rec.ID
	return rec.ID, nil
}

func (m *MemoryStore) ApplyPriceChange(_ context.Context, previous, next domain.PriceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.prices[next.ID]; !ok {
		return fmt.Errorf("update price %d: %w", next.ID, domain.ErrNotFound)
	}
	m.nextID++
	m.history = append(m.history, domain.PriceHistoryEntry{
		ID:         m.nextID,
		PriceID:    previous.ID,
		Price:      previous.Price,
		InStock:    previous.InStock,
		RecordedAt: next.LastChecked,
	})
	m.prices[next.ID] = next
	return nil
}

func (m *MemoryStore) TouchPrice(_ context.Context, priceID int64, inStock bool, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.prices[priceID]
	if !ok {
		return fmt.Errorf("touch price %d: %w", priceID, domain.ErrNotFound)
	}
	rec.InStock = inStock
	rec.LastChecked = checkedAt
	m.prices[priceID] = rec
	return nil
}

func (m *MemoryStore) AppendScrapeLog(_ context.Context, log domain.ScrapeLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	log.Errors = append([]string(nil), log.Errors...)
	m.logs = append(m.logs, log)
	return nil
}

// History returns the history entries of one price row, oldest first.
func (m *MemoryStore) History(priceID int64) []domain.PriceHistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.PriceHistoryEntry
	for _, h := range m.history {
		if h.PriceID == priceID {
			out = append(out, h)
		}
	}
	return out
}

// HistoryLen counts all history entries.
func (m *MemoryStore) HistoryLen() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.history)
}

// ProductCount counts catalog products.
func (m *MemoryStore) ProductCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.products)
}

// ScrapeLogs returns a copy of the audit trail.
func (m *MemoryStore) ScrapeLogs() []domain.ScrapeLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.ScrapeLog, len(m.logs))
	copy(out, m.logs)
	return out
}
