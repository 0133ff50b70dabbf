package fetch

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"PriceScanner/internal/fetcher"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// StaticOptions configures the plain HTTP strategy.
type StaticOptions struct {
	UserAgent string
	Timeout   time.Duration
}

// StaticFetcher performs a single GET per listing page through colly.
type StaticFetcher struct {
	base   *colly.Collector
	logger *slog.Logger
}

var _ fetcher.Strategy = (*StaticFetcher)(nil)

// NewStaticFetcher builds the base collector every fetch is cloned from.
func NewStaticFetcher(opts StaticOptions, logger *slog.Logger) *StaticFetcher {
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := colly.NewCollector(
		colly.UserAgent(ua),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		// Status handling is ours: every response reaches OnResponse.
		colly.ParseHTTPErrorResponse(),
	)
	c.SetRequestTimeout(timeout)

	return &StaticFetcher{base: c, logger: logger}
}

// WithTransport swaps the HTTP transport shared by all clones.
func (s *StaticFetcher) WithTransport(transport http.RoundTripper) {
	s.base.WithTransport(transport)
}

// Kind identifies the strategy inside the registry.
func (s *StaticFetcher) Kind() string {
	return fetcher.KindStatic
}

// Fetch issues one GET without retry; any non-2xx status is a FetchError.
func (s *StaticFetcher) Fetch(ctx context.Context, req fetcher.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fetcher.Classify(req.URL, err, 0)
	}

	c := s.base.Clone()

	var (
		status int
		body   []byte
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	s.debug("static fetch", "url", req.URL, "retailer", req.RetailerID)
	if err := c.Visit(req.URL); err != nil {
		return "", fetcher.Classify(req.URL, err, status)
	}
	if fe := fetcher.Classify(req.URL, nil, status); fe != nil {
		return "", fe
	}

	s.debug("static fetch done", "url", req.URL, "status", status, "bytes", len(body))
	return string(body), nil
}

func (s *StaticFetcher) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
