package retailer

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"PriceScanner/internal/fetcher"
)

// Spec is the fetch strategy a retailer requires. It is either StaticSpec or
// RenderedSpec, each carrying only the fields that strategy needs.
type Spec interface {
	Kind() string
	// Pages is the upper bound of listing pages fetched per category.
	Pages() int
}

// StaticSpec selects a plain HTTP GET.
type StaticSpec struct{}

func (StaticSpec) Kind() string { return fetcher.KindStatic }

func (StaticSpec) Pages() int { return 1 }

// RenderedSpec selects a headless browser fetch.
type RenderedSpec struct {
	WaitFor   string
	MaxPages  int
	PageParam string
	Timeout   time.Duration
}

func (RenderedSpec) Kind() string { return fetcher.KindRendered }

func (s RenderedSpec) Pages() int {
	if s.PageParam == "" || s.MaxPages < 1 {
		return 1
	}
	return s.MaxPages
}

// FieldRule locates one field inside a listing item. An empty Attr means the
// element text.
type FieldRule struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr"`
}

// UnmarshalYAML accepts either a bare selector string or a {selector, attr} mapping.
func (f *FieldRule) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		f.Selector = strings.TrimSpace(value.Value)
		f.Attr = ""
		return nil
	}
	type plain FieldRule
	var decoded plain
	if err := value.Decode(&decoded); err != nil {
		return err
	}
	*f = FieldRule(decoded)
	return nil
}

// IsZero reports whether the rule has no selector.
func (f FieldRule) IsZero() bool {
	return strings.TrimSpace(f.Selector) == ""
}

// Rules are the field-extraction rules for one listing page.
type Rules struct {
	Item          FieldRule `yaml:"item"`
	Name          FieldRule `yaml:"name"`
	Price         FieldRule `yaml:"price"`
	OriginalPrice FieldRule `yaml:"originalPrice"`
	Stock         FieldRule `yaml:"stock"`
	Image         FieldRule `yaml:"image"`
	Link          FieldRule `yaml:"link"`
}

// Category is one product vertical of a retailer.
type Category struct {
	Name  string `yaml:"name"`
	Path  string `yaml:"path"`
	Rules Rules  `yaml:"rules"`
}

// PageURL resolves the category path against baseURL and, for page > 1, sets
// the pagination parameter.
func (c Category) PageURL(baseURL, pageParam string, page int) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %s: %w", baseURL, err)
	}
	ref, err := url.Parse(c.Path)
	if err != nil {
		return "", fmt.Errorf("invalid category path %s: %w", c.Path, err)
	}

	parsed := base.ResolveReference(ref)
	if page > 1 && pageParam != "" {
		query := parsed.Query()
		query.Set(pageParam, strconv.Itoa(page))
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

// Retailer is the immutable configuration of one storefront.
type Retailer struct {
	ID         string
	Name       string
	BaseURL    string
	Currency   string
	Delay      time.Duration
	Fetch      Spec
	Categories []Category
}
