package parser

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"PriceScanner/internal/domain"
	"PriceScanner/internal/retailer"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
	}{
		{name: "NVIDIA GeForce RTX 4090", want: "gpu"},
		{name: "AMD Ryzen 9 7950X", want: "cpu"},
		{name: "32GB DDR5 RAM", want: "ram"},
		{name: "32GB VRAM Graphics Card", want: "gpu"},
		{name: "Sapphire Pulse AMD Radeon RX 7800 XT", want: "gpu"},
		{name: "Intel Core i7-14700K Desktop Processor", want: "cpu"},
		{name: "MSI MAG B650 Tomahawk WiFi Motherboard", want: "motherboard"},
		{name: "Corsair Vengeance 2x16GB DDR5 6000MHz", want: "ram"},
		{name: "Samsung 990 Pro 2TB NVMe SSD", want: "storage"},
		{name: "Seasonic Focus GX-850 80+ Gold Power Supply", want: "psu"},
		{name: "Lian Li Lancool 216 Mid-Tower Chassis", want: "case"},
		{name: "Noctua NH-D15 CPU Cooler", want: "cooling"},
		{name: "LG UltraGear 27 inch 165Hz Gaming Monitor", want: "monitor"},
		{name: "USB-C Docking Station", want: CategoryOther},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.name); got != tt.want {
				t.Fatalf("Classify(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
	}{
		{text: "SAR 2,299.00", want: "2299"},
		{text: "$1,234", want: "1234"},
		{text: "SAR. 89.50", want: "89.5"},
		{text: "", want: "0"},
		{text: "Out of Stock", want: "0"},
		{text: "1.2.3", want: "0"},
		{text: "$.99", want: "0.99"},
		{text: "89.50 SAR.", want: "89.5"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			want := decimal.RequireFromString(tt.want)
			if got := ParsePrice(tt.text); !got.Equal(want) {
				t.Fatalf("ParsePrice(%q) = %s, want %s", tt.text, got, want)
			}
		})
	}
}

func TestBrandPriority(t *testing.T) {
	t.Parallel()

	n := NewNormalizer([]string{"ASUS", "ROG", "MSI", "NVIDIA"})

	tests := []struct {
		name string
		want string
	}{
		{name: "ASUS ROG Strix RTX 4080", want: "ASUS"},
		{name: "ROG Swift PG27AQDM by asus", want: "ASUS"},
		{name: "MSI GeForce RTX 4070 with NVIDIA DLSS", want: "MSI"},
		{name: "Gainward Phantom RTX 4070", want: "Gainward"},
		{name: "", want: ""},
	}

	for _, tt := range tests {
		if got := n.Brand(tt.name); got != tt.want {
			t.Fatalf("Brand(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}

	reversed := NewNormalizer([]string{"ROG", "ASUS"})
	if got := reversed.Brand("ASUS ROG Strix RTX 4080"); got != "ROG" {
		t.Fatalf("list order must decide priority, got %q", got)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	n := NewNormalizer([]string{"ASUS", "ROG"})
	fixed := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	shop := retailer.Retailer{ID: "shop-a", Currency: "SAR"}

	product, ok := n.Normalize(domain.DraftRecord{
		Name:              "  ASUS ROG Strix   RTX 4080 OC ",
		PriceText:         "SAR 4,499.00",
		OriginalPriceText: "SAR 4,999.00",
		StockText:         "Only 2 left",
		ImageURL:          "https://a.example/img.jpg",
		ProductURL:        "https://a.example/p/1",
	}, shop)
	if !ok {
		t.Fatalf("expected product")
	}

	if product.Name != "ASUS ROG Strix RTX 4080 OC" {
		t.Fatalf("name = %q", product.Name)
	}
	if product.Brand != "ASUS" || product.Category != "gpu" || product.Model != "ROG Strix RTX 4080" {
		t.Fatalf("unexpected identity: brand=%q category=%q model=%q", product.Brand, product.Category, product.Model)
	}
	if !product.Price.Equal(decimal.RequireFromString("4499")) || product.Currency != "SAR" {
		t.Fatalf("unexpected price: %s %s", product.Price, product.Currency)
	}
	if !product.OriginalPrice.Valid || !product.OriginalPrice.Decimal.Equal(decimal.RequireFromString("4999")) {
		t.Fatalf("expected original price 4999, got %+v", product.OriginalPrice)
	}
	if !product.InStock || product.RetailerID != "shop-a" || !product.ScrapedAt.Equal(fixed) {
		t.Fatalf("unexpected product: %+v", product)
	}
	if product.Specs == nil {
		t.Fatalf("specs must be an empty map, not nil")
	}
}

func TestNormalizeDiscountAndStock(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)
	shop := retailer.Retailer{ID: "shop-b", Currency: "USD"}

	product, ok := n.Normalize(domain.DraftRecord{
		Name:              "Crucial 32GB DDR5 RAM",
		PriceText:         "$99.99",
		OriginalPriceText: "$89.99",
		StockText:         "Currently unavailable.",
	}, shop)
	if !ok {
		t.Fatalf("expected product")
	}
	if product.OriginalPrice.Valid {
		t.Fatalf("original price lower than price must be ignored")
	}
	if product.InStock {
		t.Fatalf("expected out of stock")
	}
	if product.Brand != "Crucial" {
		t.Fatalf("brand fallback = %q, want first word", product.Brand)
	}
}

func TestNormalizeSkipsUnusablePrices(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)
	shop := retailer.Retailer{ID: "shop-a", Currency: "SAR"}

	for _, text := range []string{"", "Out of Stock", "SAR 0.00", "Call for price"} {
		if _, ok := n.Normalize(domain.DraftRecord{Name: "Sponsored", PriceText: text}, shop); ok {
			t.Fatalf("price %q should skip the draft", text)
		}
	}
}

func TestDetectCurrency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text, fallback, want string
	}{
		{text: "SAR 2,299.00", fallback: "USD", want: "SAR"},
		{text: "$1,234", fallback: "SAR", want: "USD"},
		{text: "€ 349,00", fallback: "SAR", want: "EUR"},
		{text: "AED 1,050", fallback: "SAR", want: "AED"},
		{text: "2,299", fallback: "SAR", want: "SAR"},
	}

	for _, tt := range tests {
		if got := DetectCurrency(tt.text, tt.fallback); got != tt.want {
			t.Fatalf("DetectCurrency(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
