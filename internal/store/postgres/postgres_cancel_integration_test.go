package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"gearshop/backend/internal/domain"
	"gearshop/backend/internal/store"
)

func TestCancelSaleRestocksInventory(t *testing.T) {
	databaseURL := os.Getenv("GEARSHOP_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set GEARSHOP_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("lap-cancel-it-%d", stamp)
	reference := fmt.Sprintf("IT-CANCEL-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE sale_id IN (SELECT id FROM sales WHERE reference = $1)`, reference)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_lines WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE reference = $1`, reference)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products_laptop WHERE id = $1`, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products_laptop (id, name, brand, model, attributes, purchase_cents, price_cents, current_stock, min_stock, status, created_at, updated_at)
		VALUES ($1, 'Cancel IT Laptop', 'TestBrand', 'X1', '', 80000, 129900, 10, 2, 'in_stock', now(), now())
	`, productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	created, err := s.CreateSale(ctx, store.SaleDraft{
		Sale: domain.Sale{
			Reference:     reference,
			Kind:          domain.SaleKindStandard,
			Date:          time.Now().UTC(),
			SubtotalCents: 259800,
			TotalCents:    259800,
			PaymentMode:   domain.PayModeCash,
			Channel:       domain.ChannelInStore,
			Status:        domain.SaleStatusPaid,
		},
		Lines: []domain.SaleLine{{
			ProductID:      productID,
			ProductType:    domain.ProductTypeLaptop,
			Name:           "Cancel IT Laptop",
			UnitPriceCents: 129900,
			Qty:            2,
			TotalCents:     259800,
		}},
		Ledger: []domain.LedgerEntry{{
			Book:        domain.LedgerBookCash,
			Direction:   domain.LedgerDirectionIn,
			AmountCents: 259800,
			Description: "sale " + reference,
			Category:    "sale",
		}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	var qty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT current_stock FROM products_laptop WHERE id = $1
	`, productID).Scan(&qty); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if qty != 8 {
		t.Fatalf("expected stock 8 after sale, got %d", qty)
	}

	if _, err := s.CancelSale(ctx, created.ID, domain.SaleStatusCancelled, "integration test cancel"); err != nil {
		t.Fatalf("cancel sale: %v", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT current_stock FROM products_laptop WHERE id = $1
	`, productID).Scan(&qty); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if qty != 10 {
		t.Fatalf("expected stock 10 after cancel restock, got %d", qty)
	}

	var status string
	if err := s.db.QueryRowContext(ctx, `
		SELECT status FROM sales WHERE id = $1
	`, created.ID).Scan(&status); err != nil {
		t.Fatalf("query sale status: %v", err)
	}
	if status != domain.SaleStatusCancelled {
		t.Fatalf("expected sale status cancelled, got %s", status)
	}

	var entries int
	if err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM ledger_entries WHERE sale_id = $1
	`, created.ID).Scan(&entries); err != nil {
		t.Fatalf("query ledger entries: %v", err)
	}
	if entries != 2 {
		t.Fatalf("expected original entry plus reversal, got %d entries", entries)
	}
}
