package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"PriceScanner/internal/domain"
	"PriceScanner/internal/retailer"
)

// CategoryOther is assigned when no classification rule matches.
const CategoryOther = "other"

const modelTokenLimit = 4

type categoryRule struct {
	category string
	match    *regexp.Regexp
	exclude  *regexp.Regexp
}

// Evaluated in order against the lower-cased name; the first hit wins.
var categoryRules = []categoryRule{
	{
		category: "gpu",
		match:    regexp.MustCompile(`\b(rtx|gtx|radeon|geforce|vram|rx\s?\d{4}|arc\s?a\d{3}|graphics\s+card|video\s+card)\b`),
	},
	{
		category: "cpu",
		match:    regexp.MustCompile(`\b(ryzen|core\s+i[3579]|core\s+ultra|processor|threadripper|xeon|athlon|pentium)\b`),
	},
	{
		category: "motherboard",
		match:    regexp.MustCompile(`\b(motherboard|mainboard|[abxz]\d{3}[em]?\s+(gaming|pro|plus|elite|tomahawk|aorus|steel)|lga\s?1700)\b`),
	},
	{
		category: "ram",
		match:    regexp.MustCompile(`\b(ram|ddr[345]|dimm|so-dimm|memory\s+kit)\b`),
		exclude:  regexp.MustCompile(`vram`),
	},
	{
		category: "storage",
		match:    regexp.MustCompile(`\b(ssd|nvme|hdd|hard\s+drive|solid\s+state|m\.2)\b`),
	},
	{
		category: "psu",
		match:    regexp.MustCompile(`\b(psu|power\s+supply)\b|80\s?(\+|plus)`),
	},
	{
		category: "case",
		match:    regexp.MustCompile(`\b(pc\s+case|computer\s+case|mid[\s-]tower|full[\s-]tower|chassis)\b`),
	},
	{
		category: "cooling",
		match:    regexp.MustCompile(`\b(cooler|aio|liquid\s+cooling|case\s+fan|heatsink|thermal\s+paste)\b`),
	},
	{
		category: "monitor",
		match:    regexp.MustCompile(`\b(monitor|gaming\s+display|\d{2,3}\s?hz)\b`),
	},
}

type currencyMarker struct {
	code    string
	markers []string
}

var currencyMarkers = []currencyMarker{
	{code: "SAR", markers: []string{"sar", "ر.س", "﷼"}},
	{code: "AED", markers: []string{"aed", "د.إ"}},
	{code: "EUR", markers: []string{"eur", "€"}},
	{code: "GBP", markers: []string{"gbp", "£"}},
	{code: "USD", markers: []string{"usd", "$"}},
}

var outOfStockMarkers = []string{
	"out of stock",
	"sold out",
	"unavailable",
	"notify me",
	"غير متوفر",
	"نفذت الكمية",
}

// Normalizer turns draft records into products using the known-brand order.
type Normalizer struct {
	brands      []string
	lowerBrands []string
	now         func() time.Time
}

// NewNormalizer keeps brands in the given priority order.
func NewNormalizer(brands []string) *Normalizer {
	lower := make([]string, len(brands))
	for i, b := range brands {
		lower[i] = strings.ToLower(b)
	}
	return &Normalizer{
		brands:      append([]string(nil), brands...),
		lowerBrands: lower,
		now:         time.Now,
	}
}

// Normalize derives a product from draft. It reports false when the draft has
// no usable price or name; such drafts are skipped, not treated as errors.
func (n *Normalizer) Normalize(draft domain.DraftRecord, r retailer.Retailer) (domain.ScrapedProduct, bool) {
	name := collapseSpaces(draft.Name)
	price := ParsePrice(draft.PriceText)
	if name == "" || !price.IsPositive() {
		return domain.ScrapedProduct{}, false
	}

	brand := n.Brand(name)
	product := domain.ScrapedProduct{
		Name:       name,
		Brand:      brand,
		Model:      deriveModel(name, brand),
		Category:   Classify(name),
		ImageURL:   draft.ImageURL,
		Price:      price,
		Currency:   DetectCurrency(draft.PriceText, r.Currency),
		ProductURL: draft.ProductURL,
		RetailerID: r.ID,
		InStock:    InStock(draft.StockText),
		Specs:      map[string]string{},
		ScrapedAt:  n.now().UTC(),
	}

	if original := ParsePrice(draft.OriginalPriceText); original.GreaterThan(price) {
		product.OriginalPrice = decimal.NewNullDecimal(original)
	}

	return product, true
}

// Brand returns the first known brand contained in name, else its first word.
func (n *Normalizer) Brand(name string) string {
	lower := strings.ToLower(name)
	for i, b := range n.lowerBrands {
		if b != "" && strings.Contains(lower, b) {
			return n.brands[i]
		}
	}

	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ParsePrice keeps digits and the dots that precede a digit, then parses the
// result; anything unparseable yields zero.
func ParsePrice(text string) decimal.Decimal {
	runes := []rune(text)
	var b strings.Builder
	for i, r := range runes {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && i+1 < len(runes) && runes[i+1] >= '0' && runes[i+1] <= '9':
			b.WriteRune(r)
		}
	}

	cleaned := b.String()
	if cleaned == "" {
		return decimal.Zero
	}
	if strings.HasPrefix(cleaned, ".") {
		cleaned = "0" + cleaned
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return value
}

// DetectCurrency looks for a currency marker in the price text.
func DetectCurrency(priceText, fallback string) string {
	lower := strings.ToLower(priceText)
	for _, cm := range currencyMarkers {
		for _, marker := range cm.markers {
			if strings.Contains(lower, marker) {
				return cm.code
			}
		}
	}
	return fallback
}

// Classify maps a product name to a category.
func Classify(name string) string {
	lower := strings.ToLower(name)
	for _, rule := range categoryRules {
		if !rule.match.MatchString(lower) {
			continue
		}
		if rule.exclude != nil && rule.exclude.MatchString(lower) {
			continue
		}
		return rule.category
	}
	return CategoryOther
}

// InStock reports false when the stock text carries an out-of-stock marker.
func InStock(stockText string) bool {
	lower := strings.ToLower(stockText)
	for _, marker := range outOfStockMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

func deriveModel(name, brand string) string {
	brandTokens := map[string]struct{}{}
	for _, tok := range strings.Fields(strings.ToLower(brand)) {
		brandTokens[tok] = struct{}{}
	}

	model := make([]string, 0, modelTokenLimit)
	for _, tok := range strings.Fields(name) {
		if _, isBrand := brandTokens[strings.ToLower(tok)]; isBrand {
			continue
		}
		model = append(model, tok)
		if len(model) == modelTokenLimit {
			break
		}
	}
	return strings.Join(model, " ")
}
