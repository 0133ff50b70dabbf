package domain

import "time"

// CategoryResult holds what a single category scrape produced.
type CategoryResult struct {
	Name        string
	Products    []ScrapedProduct
	Errors      []string
	StartedAt   time.Time
	CompletedAt time.Time
}

// ScrapeResult aggregates a retailer run across its categories.
type ScrapeResult struct {
	RetailerID string
	Success    bool
	Products   []ScrapedProduct
	Errors     []string
	ScrapedAt  time.Time
	Categories []CategoryResult
}

// ReconcileStats summarizes one reconciliation pass.
type ReconcileStats struct {
	Inserted int
	Updated  int
	Errors   []string
}

// Add folds another pass into s.
func (s *ReconcileStats) Add(other ReconcileStats) {
	s.Inserted += other.Inserted
	s.Updated += other.Updated
	s.Errors = append(s.Errors, other.Errors...)
}

// RunSummary is the outcome of the last completed scrape run.
type RunSummary struct {
	RunID         string   `json:"runId"`
	Retailer      string   `json:"retailer,omitempty"`
	Success       bool     `json:"success"`
	ProductsFound int      `json:"productsFound"`
	Inserted      int      `json:"inserted"`
	Updated       int      `json:"updated"`
	ErrorCount    int      `json:"errorCount"`
	Errors        []string `json:"errors"`
}

// ScrapeJobStatus is the process-wide view of the scrape job.
type ScrapeJobStatus struct {
	IsRunning  bool        `json:"isRunning"`
	LastRun    *time.Time  `json:"lastRun"`
	LastResult *RunSummary `json:"lastResult"`
	NextRun    *time.Time  `json:"nextRun"`
}
