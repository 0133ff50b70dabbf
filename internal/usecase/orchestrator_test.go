package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceScanner/internal/domain"
	"PriceScanner/internal/fetcher"
	"PriceScanner/internal/ports"
	"PriceScanner/internal/retailer"
)

const gpuListing = `<html><body>
<div class="item"><a class="name" href="/p/1">ASUS ROG Strix RTX 4090</a><span class="price">SAR 7,999</span></div>
<div class="item"><a class="name" href="/p/2">MSI Gaming X RTX 4080</a><span class="price">SAR 4,999</span></div>
<div class="item"><a class="name" href="/p/3">Gigabyte Eagle RTX 4070</a><span class="price">SAR 2,599</span></div>
<div class="item"><a class="name" href="/p/4">Zotac Placeholder</a><span class="price">SAR 0</span></div>
</body></html>`

var listingRules = retailer.Rules{
	Item:  retailer.FieldRule{Selector: ".item"},
	Name:  retailer.FieldRule{Selector: ".name"},
	Price: retailer.FieldRule{Selector: ".price"},
	Link:  retailer.FieldRule{Selector: ".name", Attr: "href"},
}

// fakeStrategy serves canned markup or errors per URL and records every request.
type fakeStrategy struct {
	kind    string
	mu      sync.Mutex
	pages   map[string]string
	fail    map[string]error
	fetched []string
	stamps  []time.Time
	release int
	block   chan struct{}
}

func (f *fakeStrategy) Kind() string { return f.kind }

func (f *fakeStrategy) Fetch(ctx context.Context, req fetcher.Request) (string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, req.URL)
	f.stamps = append(f.stamps, time.Now())
	if err, ok := f.fail[req.URL]; ok {
		return "", err
	}
	if body, ok := f.pages[req.URL]; ok {
		return body, nil
	}
	return "<html><body></body></html>", nil
}

func (f *fakeStrategy) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.release++
	return nil
}

func (f *fakeStrategy) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

type countingPacer struct {
	mu    sync.Mutex
	waits int
}

func (p *countingPacer) Wait(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits++
	return nil
}

func (p *countingPacer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waits
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	static       *fakeStrategy
	rendered     *fakeStrategy
	pacer        *countingPacer
	registry     *retailer.Registry
}

func newOrchestratorFixture(t *testing.T, retailers ...retailer.Retailer) *orchestratorFixture {
	t.Helper()

	registry, err := retailer.New([]string{"ASUS", "ROG", "MSI", "Gigabyte"}, retailers...)
	require.NoError(t, err)

	static := &fakeStrategy{kind: fetcher.KindStatic, pages: map[string]string{}, fail: map[string]error{}}
	rendered := &fakeStrategy{kind: fetcher.KindRendered, pages: map[string]string{}, fail: map[string]error{}}
	fetchers := fetcher.NewRegistry()
	fetchers.Register(static)
	fetchers.Register(rendered)

	pacer := &countingPacer{}
	o := NewOrchestrator(OrchestratorDeps{
		Registry: registry,
		Fetchers: fetchers,
		Pacers:   func(time.Duration) ports.Pacer { return pacer },
		Clock:    func() time.Time { return fixedNow },
	})

	return &orchestratorFixture{orchestrator: o, static: static, rendered: rendered, pacer: pacer, registry: registry}
}

func staticRetailer(id string, categories ...string) retailer.Retailer {
	r := retailer.Retailer{
		ID:       id,
		Name:     strings.ToUpper(id),
		BaseURL:  "https://" + id + ".example/",
		Currency: "SAR",
		Delay:    2 * time.Second,
		Fetch:    retailer.StaticSpec{},
	}
	for _, name := range categories {
		r.Categories = append(r.Categories, retailer.Category{Name: name, Path: "/c/" + name, Rules: listingRules})
	}
	return r
}

func TestScrapeRetailerCollectsCategoryFailures(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, staticRetailer("a", "gpu", "cpu"))
	f.static.pages["https://a.example/c/gpu"] = gpuListing
	f.static.fail["https://a.example/c/cpu"] = &fetcher.FetchError{
		URL:  "https://a.example/c/cpu",
		Kind: fetcher.ErrConnection,
		Err:  errors.New("connection refused"),
	}

	res, err := f.orchestrator.ScrapeRetailer(context.Background(), "a")
	require.NoError(t, err)

	assert.Equal(t, "a", res.RetailerID)
	assert.False(t, res.Success)
	assert.Len(t, res.Products, 3)
	require.Len(t, res.Errors, 1)
	assert.True(t, strings.HasPrefix(res.Errors[0], "cpu: "), res.Errors[0])
	assert.Equal(t, 1, f.pacer.count())

	require.Len(t, res.Categories, 2)
	assert.Len(t, res.Categories[0].Products, 3)
	assert.Empty(t, res.Categories[0].Errors)
	assert.Len(t, res.Categories[1].Errors, 1)

	for _, p := range res.Products {
		assert.Equal(t, "a", p.RetailerID)
		assert.Equal(t, "gpu", p.Category)
		assert.True(t, p.Price.IsPositive())
	}
	assert.Equal(t, "ASUS", res.Products[0].Brand)
	assert.Equal(t, "https://a.example/p/1", res.Products[0].ProductURL)
}

func TestScrapeRetailerUnknown(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, staticRetailer("a", "gpu"))

	_, err := f.orchestrator.ScrapeRetailer(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrUnknownRetailer)
	assert.Empty(t, f.static.requests())
}

func TestScrapeRetailerPaginatesUntilEmptyPage(t *testing.T) {
	t.Parallel()

	r := retailer.Retailer{
		ID:       "r",
		Name:     "Rendered",
		BaseURL:  "https://r.example/",
		Currency: "SAR",
		Delay:    time.Second,
		Fetch:    retailer.RenderedSpec{WaitFor: ".item", MaxPages: 3, PageParam: "page"},
		Categories: []retailer.Category{
			{Name: "gpu", Path: "/gpu", Rules: listingRules},
		},
	}
	f := newOrchestratorFixture(t, r)
	f.rendered.pages["https://r.example/gpu"] = gpuListing

	res, err := f.orchestrator.ScrapeRetailer(context.Background(), "r")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Len(t, res.Products, 3)
	assert.Equal(t, []string{"https://r.example/gpu", "https://r.example/gpu?page=2"}, f.rendered.requests())
	assert.Equal(t, 1, f.pacer.count())
	assert.Empty(t, f.static.requests())
}

func TestRatePacerSpacesEveryFetch(t *testing.T) {
	t.Parallel()

	const delay = 100 * time.Millisecond
	r := staticRetailer("a", "gpu", "cpu", "ram")
	r.Delay = delay

	f := newOrchestratorFixture(t, r)
	o := NewOrchestrator(OrchestratorDeps{
		Registry: f.registry,
		Fetchers: f.orchestrator.fetchers,
		Clock:    func() time.Time { return fixedNow },
	})

	_, err := o.ScrapeRetailer(context.Background(), "a")
	require.NoError(t, err)

	f.static.mu.Lock()
	stamps := append([]time.Time(nil), f.static.stamps...)
	f.static.mu.Unlock()

	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		assert.GreaterOrEqual(t, gap, delay-5*time.Millisecond, "gap before fetch %d", i+1)
	}
}

func TestScrapeAllIsSequentialAndReleases(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, staticRetailer("a", "gpu"), staticRetailer("b", "gpu"))
	f.static.pages["https://a.example/c/gpu"] = gpuListing
	f.static.pages["https://b.example/c/gpu"] = gpuListing

	results := f.orchestrator.ScrapeAll(context.Background())
	require.Len(t, results, 2)
	assert.True(t, results["a"].Success)
	assert.True(t, results["b"].Success)
	assert.Equal(t, []string{"https://a.example/c/gpu", "https://b.example/c/gpu"}, f.static.requests())

	assert.Equal(t, 1, f.static.release)
	assert.Equal(t, 1, f.rendered.release)
}
