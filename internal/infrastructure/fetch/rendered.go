package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"PriceScanner/internal/fetcher"
)

// RenderedOptions configures the headless browser strategy.
type RenderedOptions struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// WaitTimeout bounds the best-effort wait for the list marker.
	WaitTimeout time.Duration
	ShowBrowser bool
	ExecPath    string
}

// browserSession is one running browser: the context tabs are opened from and
// the function that shuts it down.
type browserSession struct {
	ctx   context.Context
	close func() error
}

// RenderedFetcher drives a single, lazily started headless browser shared by
// every fetch until Release is called.
type RenderedFetcher struct {
	opts   RenderedOptions
	logger *slog.Logger

	mu       sync.Mutex
	session  *browserSession
	launch   func() (*browserSession, error)
	launches int
}

var (
	_ fetcher.Strategy = (*RenderedFetcher)(nil)
	_ fetcher.Releaser = (*RenderedFetcher)(nil)
)

// NewRenderedFetcher prepares the strategy; no browser is started until the first Fetch.
func NewRenderedFetcher(opts RenderedOptions, logger *slog.Logger) *RenderedFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 10 * time.Second
	}

	r := &RenderedFetcher{opts: opts, logger: logger}
	r.launch = r.launchChrome
	return r
}

// Kind identifies the strategy inside the registry.
func (r *RenderedFetcher) Kind() string {
	return fetcher.KindRendered
}

// Fetch opens a tab, navigates within the timeout, waits for req.WaitFor if
// set and returns the rendered document.
func (r *RenderedFetcher) Fetch(ctx context.Context, req fetcher.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fetcher.Classify(req.URL, err, 0)
	}

	session, err := r.acquire()
	if err != nil {
		return "", &fetcher.FetchError{URL: req.URL, Kind: fetcher.ErrNavigation, Err: fmt.Errorf("start browser: %w", err)}
	}

	tabCtx, closeTab := chromedp.NewContext(session.ctx)
	defer closeTab()

	timeout := r.opts.NavigationTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	tabCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	r.debug("rendered fetch", "url", req.URL, "retailer", req.RetailerID)
	if err := chromedp.Run(tabCtx, chromedp.Navigate(req.URL)); err != nil {
		return "", navigationError(req.URL, err)
	}

	if req.WaitFor != "" {
		waitCtx, cancelWait := context.WithTimeout(tabCtx, r.opts.WaitTimeout)
		err := chromedp.Run(waitCtx, chromedp.WaitVisible(req.WaitFor, chromedp.ByQuery))
		cancelWait()
		if err != nil {
			r.debug("list marker not found, using page as is", "url", req.URL, "marker", req.WaitFor, "error", err)
		}
	}

	var markup string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &markup, chromedp.ByQuery)); err != nil {
		return "", navigationError(req.URL, err)
	}

	r.debug("rendered fetch done", "url", req.URL, "bytes", len(markup))
	return markup, nil
}

// Release shuts the shared browser down. The next Fetch starts a new one.
func (r *RenderedFetcher) Release() error {
	r.mu.Lock()
	session := r.session
	r.session = nil
	r.mu.Unlock()

	if session == nil {
		return nil
	}
	r.debug("closing browser")
	return session.close()
}

func (r *RenderedFetcher) acquire() (*browserSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return r.session, nil
	}
	session, err := r.launch()
	if err != nil {
		return nil, err
	}
	r.session = session
	r.launches++
	return session, nil
}

func (r *RenderedFetcher) launchChrome() (*browserSession, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.UserAgent(r.opts.UserAgent),
		chromedp.WindowSize(1366, 900),
	)
	if r.opts.ShowBrowser {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if r.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.opts.ExecPath))
	}

	// The browser outlives any single request, so it hangs off Background.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, err
	}
	r.debug("browser started")

	return &browserSession{
		ctx: browserCtx,
		close: func() error {
			err := chromedp.Cancel(browserCtx)
			cancelBrowser()
			cancelAlloc()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}, nil
}

func navigationError(url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fetcher.Classify(url, err, 0)
	}
	return &fetcher.FetchError{URL: url, Kind: fetcher.ErrNavigation, Err: err}
}

func (r *RenderedFetcher) debug(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
