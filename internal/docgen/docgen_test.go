package docgen

import (
	"context"
	"strings"
	"testing"
	"time"

	"gearshop/backend/internal/domain"
)

func sampleSale() domain.Sale {
	date := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	return domain.Sale{
		ID:        "sal-doc-test",
		Reference: "245/2025",
		Kind:      domain.SaleKindStandard,
		Seller:    "admin",
		Date:      date,
		UpdatedAt: date,
		Lines: []domain.SaleLine{
			{
				Name:           "Zephyr 14 OLED",
				Brand:          "ASUS",
				Model:          "GA403",
				Qty:            1,
				UnitPriceCents: 169900,
				TotalCents:     169900,
			},
		},
		SubtotalCents: 169900,
		TotalCents:    169900,
		Payments: []domain.Payment{
			{Mode: domain.PayModeCash, AmountCents: 169900, Status: domain.PaymentStatusValidated},
		},
	}
}

func TestRenderInvoice(t *testing.T) {
	engine := NewEngine(nil, 0)

	html, err := engine.Render(context.Background(), domain.DocumentInvoice, sampleSale(), &domain.Client{Name: "Julien Dupont"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	for _, want := range []string{
		"Invoice 245/2025",
		"Julien Dupont",
		"Zephyr 14 OLED",
		"1699.00",
		"cash",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("invoice is missing %q", want)
		}
	}
}

func TestRenderWarrantyWithoutClient(t *testing.T) {
	engine := NewEngine(nil, 0)

	html, err := engine.Render(context.Background(), domain.DocumentWarranty, sampleSale(), nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(html, "Warranty Certificate") || !strings.Contains(html, "GA403") {
		t.Fatalf("unexpected warranty output:\n%s", html)
	}
	if strings.Contains(html, "Holder:") {
		t.Fatalf("warranty shows a holder line without a client")
	}
}

func TestRenderEscapesClientInput(t *testing.T) {
	engine := NewEngine(nil, 0)

	sale := sampleSale()
	sale.Lines[0].Name = `<script>alert("x")</script>`
	html, err := engine.Render(context.Background(), domain.DocumentQuote, sale, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("product name was not escaped:\n%s", html)
	}
}

func TestRenderUnknownKind(t *testing.T) {
	engine := NewEngine(nil, 0)

	if _, err := engine.Render(context.Background(), "poster", sampleSale(), nil); err == nil {
		t.Fatal("expected an error for an unknown document kind")
	}
}

type recordingCache struct {
	store map[string]string
	gets  int
	sets  int
}

func (c *recordingCache) Get(_ context.Context, key string) (string, bool, error) {
	c.gets++
	html, found := c.store[key]
	return html, found, nil
}

func (c *recordingCache) Set(_ context.Context, key string, html string, _ time.Duration) error {
	c.sets++
	c.store[key] = html
	return nil
}

func TestRenderUsesCacheByRevision(t *testing.T) {
	cacheStore := &recordingCache{store: map[string]string{}}
	engine := NewEngine(cacheStore, time.Minute)
	ctx := context.Background()
	sale := sampleSale()

	first, err := engine.Render(ctx, domain.DocumentInvoice, sale, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	second, err := engine.Render(ctx, domain.DocumentInvoice, sale, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if first != second {
		t.Fatal("cached render differs from the first")
	}
	if cacheStore.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", cacheStore.sets)
	}

	// Editing the sale bumps the revision and bypasses the stale entry.
	sale.UpdatedAt = sale.UpdatedAt.Add(time.Second)
	if _, err := engine.Render(ctx, domain.DocumentInvoice, sale, nil); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if cacheStore.sets != 2 {
		t.Fatalf("cache sets after edit = %d, want 2", cacheStore.sets)
	}
}
