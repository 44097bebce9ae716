package docgen

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"gearshop/backend/internal/cache"
	"gearshop/backend/internal/domain"
)

// Engine renders printable sale documents. Rendered HTML is cached by
// sale id, kind and revision, so a sale edit naturally produces a fresh
// document without explicit invalidation.
type Engine struct {
	cache    cache.DocumentCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.DocumentCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopDocumentCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

type documentData struct {
	Title      string
	Kind       string
	Sale       domain.Sale
	Client     *domain.Client
	ClientName string
	IssuedOn   string
}

func (e *Engine) Render(ctx context.Context, kind string, sale domain.Sale, client *domain.Client) (string, error) {
	tmpl, ok := templates[kind]
	if !ok {
		return "", fmt.Errorf("unknown document kind %q", kind)
	}

	key := cacheKey(kind, sale)
	if html, found, err := e.cache.Get(ctx, key); err == nil && found {
		return html, nil
	}

	data := documentData{
		Title:    titles[kind],
		Kind:     kind,
		Sale:     sale,
		Client:   client,
		IssuedOn: time.Now().UTC().Format("2006-01-02"),
	}
	if client != nil {
		data.ClientName = client.Name
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s for sale %s: %w", kind, sale.ID, err)
	}

	html := buf.String()
	// Cache write failures only cost a re-render next time.
	_ = e.cache.Set(ctx, key, html, e.cacheTTL)
	return html, nil
}

func cacheKey(kind string, sale domain.Sale) string {
	return fmt.Sprintf("doc:%s:%s:%d", kind, sale.ID, sale.UpdatedAt.UnixNano())
}

var titles = map[string]string{
	domain.DocumentInvoice:  "Invoice",
	domain.DocumentQuote:    "Quote",
	domain.DocumentWarranty: "Warranty Certificate",
}

func money(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

var funcs = template.FuncMap{"money": money}

// All user-controlled fields are auto-escaped by html/template to
// prevent XSS in the printable output.
var templates = map[string]*template.Template{
	domain.DocumentInvoice:  template.Must(template.New(domain.DocumentInvoice).Funcs(funcs).Parse(saleDocumentTmpl)),
	domain.DocumentQuote:    template.Must(template.New(domain.DocumentQuote).Funcs(funcs).Parse(saleDocumentTmpl)),
	domain.DocumentWarranty: template.Must(template.New(domain.DocumentWarranty).Funcs(funcs).Parse(warrantyTmpl)),
}

const saleDocumentTmpl = `<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>{{.Title}} {{.Sale.Reference}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2, h3 { margin-bottom: 4px; }
    .totals td { font-weight: bold; }
  </style>
</head>
<body>
  <h2>{{.Title}} {{.Sale.Reference}}</h2>
  <p>Date: {{.Sale.Date.Format "2006-01-02"}} | Issued: {{.IssuedOn}}</p>
  {{if .ClientName}}<p>Client: {{.ClientName}}</p>{{end}}
  {{if .Sale.Seller}}<p>Seller: {{.Sale.Seller}}</p>{{end}}

  <table>
    <thead><tr><th>Product</th><th>Brand</th><th>Qty</th><th>Unit Price</th><th>Discount</th><th>Total</th></tr></thead>
    <tbody>{{range .Sale.Lines}}<tr><td>{{.Name}}</td><td>{{.Brand}}</td><td style="text-align:right;">{{.Qty}}</td><td style="text-align:right;">{{money .UnitPriceCents}}</td><td style="text-align:right;">{{money .UnitDiscountCents}}</td><td style="text-align:right;">{{money .TotalCents}}</td></tr>{{end}}</tbody>
  </table>

  <table class="totals">
    <tbody>
      <tr><td>Subtotal</td><td style="text-align:right;">{{money .Sale.SubtotalCents}}</td></tr>
      <tr><td>Tax</td><td style="text-align:right;">{{money .Sale.TaxCents}}</td></tr>
      <tr><td>Discount</td><td style="text-align:right;">{{money .Sale.DiscountCents}}</td></tr>
      {{if .Sale.DeliveryFeeCents}}<tr><td>Delivery</td><td style="text-align:right;">{{money .Sale.DeliveryFeeCents}}</td></tr>{{end}}
      <tr><td>Total</td><td style="text-align:right;">{{money .Sale.TotalCents}}</td></tr>
    </tbody>
  </table>

  {{if .Sale.Payments}}
  <h3>Payments</h3>
  <table>
    <thead><tr><th>Mode</th><th>Amount</th><th>Status</th></tr></thead>
    <tbody>{{range .Sale.Payments}}<tr><td>{{.Mode}}</td><td style="text-align:right;">{{money .AmountCents}}</td><td>{{.Status}}</td></tr>{{end}}</tbody>
  </table>
  {{end}}

  <p><a href="/api/v1/sales/{{.Sale.ID}}">{{.Sale.Reference}}</a></p>
</body>
</html>
`

const warrantyTmpl = `<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>{{.Title}} {{.Sale.Reference}}</title>
  <style>
    body { font-family: serif; margin: 32px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #bbb; padding: 6px; font-size: 13px; }
    h2 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>{{.Title}}</h2>
  <p>Sale reference: {{.Sale.Reference}} | Date: {{.Sale.Date.Format "2006-01-02"}}</p>
  {{if .ClientName}}<p>Holder: {{.ClientName}}</p>{{end}}

  <table>
    <thead><tr><th>Product</th><th>Brand</th><th>Model</th><th>Qty</th></tr></thead>
    <tbody>{{range .Sale.Lines}}<tr><td>{{.Name}}</td><td>{{.Brand}}</td><td>{{.Model}}</td><td style="text-align:right;">{{.Qty}}</td></tr>{{end}}</tbody>
  </table>

  <p>The products listed above are covered against manufacturing defects
  for twelve months from the sale date, on presentation of this
  certificate.</p>

  <p><a href="/api/v1/sales/{{.Sale.ID}}">{{.Sale.Reference}}</a></p>
</body>
</html>
`
