package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Strategy kinds a retailer can select.
const (
	KindStatic   = "static"
	KindRendered = "rendered"
)

// Request carries a listing URL plus the hints a strategy may honour.
type Request struct {
	URL        string
	RetailerID string
	// WaitFor is the "list loaded" marker; rendered fetches wait for it best-effort.
	WaitFor string
	// Timeout overrides the strategy's default navigation timeout when positive.
	Timeout time.Duration
}

// Strategy turns a URL into raw markup.
type Strategy interface {
	Kind() string
	Fetch(ctx context.Context, req Request) (string, error)
}

// Releaser is implemented by strategies that hold long-lived resources.
type Releaser interface {
	Release() error
}

// Registry keeps a mapping from strategy kinds to their implementations.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: map[string]Strategy{}}
}

// Register adds or replaces a strategy implementation.
func (r *Registry) Register(strategy Strategy) {
	if r.strategies == nil {
		r.strategies = map[string]Strategy{}
	}
	r.strategies[strategy.Kind()] = strategy
}

// Resolve returns a strategy by kind or an error if it is absent.
func (r *Registry) Resolve(kind string) (Strategy, error) {
	if strategy, ok := r.strategies[kind]; ok {
		return strategy, nil
	}
	return nil, fmt.Errorf("fetch strategy %s is not registered", kind)
}

// Release frees resources held by every registered strategy.
func (r *Registry) Release() error {
	kinds := make([]string, 0, len(r.strategies))
	for kind := range r.strategies {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	var errs []error
	for _, kind := range kinds {
		releaser, ok := r.strategies[kind].(Releaser)
		if !ok {
			continue
		}
		if err := releaser.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}
