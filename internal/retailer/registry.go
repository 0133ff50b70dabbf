package retailer

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"PriceScanner/internal/domain"
	"PriceScanner/internal/fetcher"
)

//go:embed default_retailers.yaml
var defaultRetailers []byte

type registryFile struct {
	Brands    []string       `yaml:"brands"`
	Retailers []retailerFile `yaml:"retailers"`
}

type retailerFile struct {
	ID         string     `yaml:"id"`
	Name       string     `yaml:"name"`
	BaseURL    string     `yaml:"baseUrl"`
	Currency   string     `yaml:"currency"`
	DelayMs    int        `yaml:"delayMs"`
	Fetch      fetchFile  `yaml:"fetch"`
	Categories []Category `yaml:"categories"`
}

type fetchFile struct {
	Strategy  string        `yaml:"strategy"`
	WaitFor   string        `yaml:"waitFor"`
	MaxPages  int           `yaml:"maxPages"`
	PageParam string        `yaml:"pageParam"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Registry is the static, validated set of retailers in configuration order.
type Registry struct {
	retailers []Retailer
	byID      map[string]int
	brands    []string
}

// Load reads a registry file; an empty path selects the built-in retailers.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Parse(defaultRetailers)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read retailers %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a registry document.
func Parse(raw []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", domain.ErrInvalidRetailerConfig, err)
	}

	retailers := make([]Retailer, 0, len(file.Retailers))
	var errs []error
	for i, rf := range file.Retailers {
		r, err := rf.toRetailer()
		if err != nil {
			errs = append(errs, fmt.Errorf("retailer #%d: %w", i, err))
			continue
		}
		retailers = append(retailers, r)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRetailerConfig, errors.Join(errs...))
	}

	return New(file.Brands, retailers...)
}

// New validates retailers and builds a registry.
func New(brands []string, retailers ...Retailer) (*Registry, error) {
	if len(retailers) == 0 {
		return nil, fmt.Errorf("%w: no retailers configured", domain.ErrInvalidRetailerConfig)
	}

	reg := &Registry{
		retailers: make([]Retailer, 0, len(retailers)),
		byID:      make(map[string]int, len(retailers)),
	}

	var errs []error
	for _, r := range retailers {
		if err := validate(r); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := reg.byID[r.ID]; dup {
			errs = append(errs, fmt.Errorf("retailer %s: duplicate id", r.ID))
			continue
		}
		reg.byID[r.ID] = len(reg.retailers)
		reg.retailers = append(reg.retailers, r)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRetailerConfig, errors.Join(errs...))
	}

	for _, b := range brands {
		if b = strings.TrimSpace(b); b != "" {
			reg.brands = append(reg.brands, b)
		}
	}
	return reg, nil
}

// Get returns a retailer by id.
func (r *Registry) Get(id string) (Retailer, error) {
	idx, ok := r.byID[id]
	if !ok {
		return Retailer{}, fmt.Errorf("%w: %s", domain.ErrUnknownRetailer, id)
	}
	return r.retailers[idx], nil
}

// All returns retailers in configuration order.
func (r *Registry) All() []Retailer {
	out := make([]Retailer, len(r.retailers))
	copy(out, r.retailers)
	return out
}

// IDs returns retailer ids in configuration order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.retailers))
	for _, ret := range r.retailers {
		ids = append(ids, ret.ID)
	}
	return ids
}

// Brands returns the known-brand list in priority order.
func (r *Registry) Brands() []string {
	out := make([]string, len(r.brands))
	copy(out, r.brands)
	return out
}

func (rf retailerFile) toRetailer() (Retailer, error) {
	if rf.DelayMs < 0 {
		return Retailer{}, fmt.Errorf("retailer %s: delayMs must not be negative", rf.ID)
	}

	var spec Spec
	switch strings.ToLower(strings.TrimSpace(rf.Fetch.Strategy)) {
	case fetcher.KindStatic, "":
		spec = StaticSpec{}
	case fetcher.KindRendered:
		maxPages := rf.Fetch.MaxPages
		if maxPages == 0 {
			maxPages = 1
		}
		spec = RenderedSpec{
			WaitFor:   rf.Fetch.WaitFor,
			MaxPages:  maxPages,
			PageParam: rf.Fetch.PageParam,
			Timeout:   rf.Fetch.Timeout,
		}
	default:
		return Retailer{}, fmt.Errorf("retailer %s: unknown fetch strategy %q", rf.ID, rf.Fetch.Strategy)
	}

	return Retailer{
		ID:         strings.TrimSpace(rf.ID),
		Name:       rf.Name,
		BaseURL:    rf.BaseURL,
		Currency:   strings.ToUpper(strings.TrimSpace(rf.Currency)),
		Delay:      time.Duration(rf.DelayMs) * time.Millisecond,
		Fetch:      spec,
		Categories: rf.Categories,
	}, nil
}

func validate(r Retailer) error {
	if r.ID == "" {
		return errors.New("retailer id is required")
	}

	base, err := url.Parse(r.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("retailer %s: base url %q must be absolute", r.ID, r.BaseURL)
	}
	if r.Delay < 0 {
		return fmt.Errorf("retailer %s: delay must not be negative", r.ID)
	}

	switch spec := r.Fetch.(type) {
	case StaticSpec:
	case RenderedSpec:
		if spec.MaxPages < 1 {
			return fmt.Errorf("retailer %s: maxPages must be at least 1", r.ID)
		}
		if spec.Timeout < 0 {
			return fmt.Errorf("retailer %s: timeout must not be negative", r.ID)
		}
	default:
		return fmt.Errorf("retailer %s: fetch strategy is required", r.ID)
	}

	if len(r.Categories) == 0 {
		return fmt.Errorf("retailer %s: at least one category is required", r.ID)
	}
	seen := map[string]struct{}{}
	for _, cat := range r.Categories {
		if cat.Name == "" {
			return fmt.Errorf("retailer %s: category name is required", r.ID)
		}
		if _, dup := seen[cat.Name]; dup {
			return fmt.Errorf("retailer %s: duplicate category %s", r.ID, cat.Name)
		}
		seen[cat.Name] = struct{}{}

		if _, err := cat.PageURL(r.BaseURL, "", 1); err != nil {
			return fmt.Errorf("retailer %s: category %s: %w", r.ID, cat.Name, err)
		}
		if cat.Rules.Item.IsZero() || cat.Rules.Name.IsZero() || cat.Rules.Price.IsZero() {
			return fmt.Errorf("retailer %s: category %s: item, name and price selectors are required", r.ID, cat.Name)
		}
	}
	return nil
}
