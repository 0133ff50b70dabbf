package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"PriceScanner/internal/domain"
	"PriceScanner/internal/retailer"
)

// Extract walks every listing item matched by rules.Item and reads its fields.
// Items without a name are dropped; price validation is left to Normalize.
func Extract(markup string, rules retailer.Rules, baseURL string) ([]domain.DraftRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %s: %w", baseURL, err)
	}

	drafts := make([]domain.DraftRecord, 0)
	doc.Find(rules.Item.Selector).Each(func(_ int, item *goquery.Selection) {
		name := collapseSpaces(readField(item, rules.Name))
		if name == "" {
			return
		}

		drafts = append(drafts, domain.DraftRecord{
			Name:              name,
			PriceText:         readField(item, rules.Price),
			OriginalPriceText: readField(item, rules.OriginalPrice),
			StockText:         readField(item, rules.Stock),
			ImageURL:          resolveURL(base, readField(item, rules.Image)),
			ProductURL:        resolveURL(base, readField(item, rules.Link)),
		})
	})

	return drafts, nil
}

func readField(item *goquery.Selection, rule retailer.FieldRule) string {
	if rule.IsZero() {
		return ""
	}

	sel := item.Find(rule.Selector).First()
	if sel.Length() == 0 {
		return ""
	}
	if rule.Attr == "" {
		return strings.TrimSpace(sel.Text())
	}
	value, _ := sel.Attr(rule.Attr)
	return strings.TrimSpace(value)
}

func resolveURL(base *url.URL, raw string) string {
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
