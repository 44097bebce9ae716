package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gearshop/backend/internal/docgen"
	"gearshop/backend/internal/domain"
	"gearshop/backend/internal/store"
	"gearshop/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), docgen.NewEngine(nil, 0))
}

func adminContext() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func cashSaleRequest(lines ...domain.SaleLineRequest) domain.SaleCreateRequest {
	return domain.SaleCreateRequest{
		Kind:        domain.SaleKindStandard,
		ClientID:    "cli-dupont",
		Status:      domain.SaleStatusPaid,
		PaymentMode: domain.PayModeCash,
		Lines:       lines,
	}
}

func currentStock(t *testing.T, svc *Service, productType, id string) int {
	t.Helper()
	product, err := svc.GetProduct(context.Background(), productType, id)
	if err != nil {
		t.Fatalf("GetProduct(%s/%s): %v", productType, id, err)
	}
	return product.CurrentStock
}

func TestCreateSalePaidCashMovesStockAndBooks(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	sale, err := svc.CreateSale(ctx, cashSaleRequest(domain.SaleLineRequest{
		ProductID:   "cmp-rtx-4070",
		ProductType: domain.ProductTypeComponent,
		Qty:         2,
	}))
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}

	wantRef := fmt.Sprintf("245/%d", time.Now().UTC().Year())
	if sale.Reference != wantRef {
		t.Fatalf("reference = %q, want %q", sale.Reference, wantRef)
	}
	if len(sale.Lines) != 1 || sale.Lines[0].TotalCents != 2*64900 {
		t.Fatalf("unexpected lines: %+v", sale.Lines)
	}
	if sale.TotalCents != 2*64900 {
		t.Fatalf("total = %d, want %d", sale.TotalCents, 2*64900)
	}
	if got := currentStock(t, svc, domain.ProductTypeComponent, "cmp-rtx-4070"); got != 10 {
		t.Fatalf("stock after sale = %d, want 10", got)
	}

	entries, err := svc.ListLedgerEntries(ctx, domain.LedgerListFilter{SaleID: sale.ID})
	if err != nil {
		t.Fatalf("ListLedgerEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Book != domain.LedgerBookCash || entry.Direction != domain.LedgerDirectionIn || entry.AmountCents != sale.TotalCents {
		t.Fatalf("unexpected ledger entry: %+v", entry)
	}
}

func TestCreateSaleInsufficientStockLeavesStockUntouched(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	// The second line exceeds the available stock, so the first line must
	// not be decremented either.
	_, err := svc.CreateSale(ctx, cashSaleRequest(
		domain.SaleLineRequest{ProductID: "per-gpro-x", ProductType: domain.ProductTypePeripheral, Qty: 5},
		domain.SaleLineRequest{ProductID: "lap-blade-16", ProductType: domain.ProductTypeLaptop, Qty: 5},
	))
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	if got := currentStock(t, svc, domain.ProductTypePeripheral, "per-gpro-x"); got != 40 {
		t.Fatalf("per-gpro-x stock = %d, want 40", got)
	}
	if got := currentStock(t, svc, domain.ProductTypeLaptop, "lap-blade-16"); got != 4 {
		t.Fatalf("lap-blade-16 stock = %d, want 4", got)
	}

	entries, err := svc.ListLedgerEntries(ctx, domain.LedgerListFilter{})
	if err != nil {
		t.Fatalf("ListLedgerEntries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("ledger entries after failed sale = %d, want 0", len(entries))
	}
}

func TestReferenceNumberingSkipsTakenNumbers(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	year := time.Now().UTC().Year()

	// The preview does not consume a number.
	first, err := svc.NextReference(ctx, domain.SaleKindStandard)
	if err != nil {
		t.Fatalf("NextReference: %v", err)
	}
	again, err := svc.NextReference(ctx, domain.SaleKindStandard)
	if err != nil {
		t.Fatalf("NextReference: %v", err)
	}
	wantFirst := fmt.Sprintf("245/%d", year)
	if first.Reference != wantFirst || again.Reference != wantFirst {
		t.Fatalf("preview = %q then %q, want %q twice", first.Reference, again.Reference, wantFirst)
	}

	line := domain.SaleLineRequest{ProductID: "per-gpro-x", ProductType: domain.ProductTypePeripheral, Qty: 1}

	auto, err := svc.CreateSale(ctx, cashSaleRequest(line))
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	if auto.Reference != wantFirst {
		t.Fatalf("first auto reference = %q, want %q", auto.Reference, wantFirst)
	}

	// Occupy the next number by hand, the counter has to step over it.
	explicit := cashSaleRequest(line)
	explicit.Reference = fmt.Sprintf("246/%d", year)
	if _, err := svc.CreateSale(ctx, explicit); err != nil {
		t.Fatalf("CreateSale explicit: %v", err)
	}

	next, err := svc.CreateSale(ctx, cashSaleRequest(line))
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	if want := fmt.Sprintf("247/%d", year); next.Reference != want {
		t.Fatalf("auto reference after gap = %q, want %q", next.Reference, want)
	}
}

func TestCreateSaleRejectsDuplicateExplicitReference(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	line := domain.SaleLineRequest{ProductID: "cmp-ryzen-7800", ProductType: domain.ProductTypeComponent, Qty: 1}
	req := cashSaleRequest(line)
	req.Reference = "CMD-TEST-7"

	if _, err := svc.CreateSale(ctx, req); err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	_, err := svc.CreateSale(ctx, req)
	if !errors.Is(err, store.ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
	if got := currentStock(t, svc, domain.ProductTypeComponent, "cmp-ryzen-7800"); got != 17 {
		t.Fatalf("stock = %d, want 17", got)
	}
}

func TestPurchaseOrderReferenceFormat(t *testing.T) {
	svc := newTestService()

	preview, err := svc.NextReference(adminContext(), domain.SaleKindPurchaseOrder)
	if err != nil {
		t.Fatalf("NextReference: %v", err)
	}
	if want := fmt.Sprintf("BA 1-%d", time.Now().UTC().Year()); preview.Reference != want {
		t.Fatalf("purchase order reference = %q, want %q", preview.Reference, want)
	}
}

func TestCancelSaleRestoresStockAndReversesLedger(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	sale, err := svc.CreateSale(ctx, cashSaleRequest(domain.SaleLineRequest{
		ProductID:   "lap-zephyr-14",
		ProductType: domain.ProductTypeLaptop,
		Qty:         2,
	}))
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	if got := currentStock(t, svc, domain.ProductTypeLaptop, "lap-zephyr-14"); got != 6 {
		t.Fatalf("stock after sale = %d, want 6", got)
	}

	cancelled, err := svc.CancelSale(ctx, sale.ID, domain.SaleCancelRequest{Reason: "client changed mind"})
	if err != nil {
		t.Fatalf("CancelSale: %v", err)
	}
	if cancelled.Status != domain.SaleStatusCancelled {
		t.Fatalf("status = %q, want cancelled", cancelled.Status)
	}
	if !strings.Contains(cancelled.Notes, "client changed mind") {
		t.Fatalf("notes do not carry the reason: %q", cancelled.Notes)
	}
	if got := currentStock(t, svc, domain.ProductTypeLaptop, "lap-zephyr-14"); got != 8 {
		t.Fatalf("stock after cancel = %d, want 8", got)
	}

	entries, err := svc.ListLedgerEntries(ctx, domain.LedgerListFilter{SaleID: sale.ID})
	if err != nil {
		t.Fatalf("ListLedgerEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ledger entries = %d, want original plus reversal", len(entries))
	}
	var reversal *domain.LedgerEntry
	for i := range entries {
		if strings.HasPrefix(entries[i].Description, "reversal: ") {
			reversal = &entries[i]
		}
	}
	if reversal == nil {
		t.Fatalf("no reversal entry in %+v", entries)
	}
	if reversal.Direction != domain.LedgerDirectionOut || reversal.AmountCents != sale.TotalCents {
		t.Fatalf("unexpected reversal: %+v", reversal)
	}

	if _, err := svc.CancelSale(ctx, sale.ID, domain.SaleCancelRequest{Reason: "again"}); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("second cancel: expected ErrInvalidSale, got %v", err)
	}
}

func TestDeleteSaleRestocksUnlessAlreadyCancelled(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	line := domain.SaleLineRequest{ProductID: "cmp-ryzen-7800", ProductType: domain.ProductTypeComponent, Qty: 3}

	open := cashSaleRequest(line)
	open.Status = domain.SaleStatusInProgress
	sale, err := svc.CreateSale(ctx, open)
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	if got := currentStock(t, svc, domain.ProductTypeComponent, "cmp-ryzen-7800"); got != 15 {
		t.Fatalf("stock after sale = %d, want 15", got)
	}
	if err := svc.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("DeleteSale: %v", err)
	}
	if got := currentStock(t, svc, domain.ProductTypeComponent, "cmp-ryzen-7800"); got != 18 {
		t.Fatalf("stock after delete = %d, want 18", got)
	}
	if _, err := svc.GetSale(ctx, sale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// A cancelled sale already put its stock back, deleting it must not
	// restock a second time.
	sale, err = svc.CreateSale(ctx, cashSaleRequest(line))
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	if _, err := svc.CancelSale(ctx, sale.ID, domain.SaleCancelRequest{Reason: "entry error"}); err != nil {
		t.Fatalf("CancelSale: %v", err)
	}
	if err := svc.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("DeleteSale: %v", err)
	}
	if got := currentStock(t, svc, domain.ProductTypeComponent, "cmp-ryzen-7800"); got != 18 {
		t.Fatalf("stock after cancel+delete = %d, want 18", got)
	}
	entries, err := svc.ListLedgerEntries(ctx, domain.LedgerListFilter{SaleID: sale.ID})
	if err != nil {
		t.Fatalf("ListLedgerEntries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("delete left %d ledger entries behind", len(entries))
	}
}

func TestUpdateSaleTerminalStatusIsImmutable(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	sale, err := svc.CreateSale(ctx, cashSaleRequest(domain.SaleLineRequest{
		ProductID:   "mon-odyssey-27",
		ProductType: domain.ProductTypeMonitor,
		Qty:         1,
	}))
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	if _, err := svc.RefundSale(ctx, sale.ID, "defective panel"); err != nil {
		t.Fatalf("RefundSale: %v", err)
	}

	paid := domain.SaleStatusPaid
	_, err = svc.UpdateSale(ctx, sale.ID, domain.SaleUpdateRequest{Status: &paid})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale, got %v", err)
	}
}

func TestCreateSalePaymentSplitValidation(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	line := domain.SaleLineRequest{ProductID: "per-huntsman", ProductType: domain.ProductTypePeripheral, Qty: 1}

	mixed := cashSaleRequest(line)
	mixed.PaymentMode = domain.PayModeMixed
	if _, err := svc.CreateSale(ctx, mixed); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("mixed without splits: expected ErrInvalidSale, got %v", err)
	}

	transfer := cashSaleRequest(line)
	transfer.PaymentMode = domain.PayModeTransfer
	if _, err := svc.CreateSale(ctx, transfer); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("transfer without splits: expected ErrInvalidSale, got %v", err)
	}

	badAccount := cashSaleRequest(line)
	badAccount.PaymentMode = domain.PayModeTransfer
	badAccount.Payments = []domain.PaymentSplit{{Mode: domain.PayModeTransfer, AmountCents: 21900, BankAccountID: "ba-missing"}}
	if _, err := svc.CreateSale(ctx, badAccount); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("unknown bank account: expected ErrInvalidSale, got %v", err)
	}

	noNumber := cashSaleRequest(line)
	noNumber.PaymentMode = domain.PayModeCheck
	noNumber.Payments = []domain.PaymentSplit{{Mode: domain.PayModeCheck, AmountCents: 21900}}
	if _, err := svc.CreateSale(ctx, noNumber); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("check without number: expected ErrInvalidSale, got %v", err)
	}

	good := cashSaleRequest(line)
	good.PaymentMode = domain.PayModeTransfer
	good.Payments = []domain.PaymentSplit{{Mode: domain.PayModeTransfer, AmountCents: 21900, BankAccountID: "ba-main"}}
	sale, err := svc.CreateSale(ctx, good)
	if err != nil {
		t.Fatalf("CreateSale transfer: %v", err)
	}
	entries, err := svc.ListLedgerEntries(ctx, domain.LedgerListFilter{SaleID: sale.ID})
	if err != nil {
		t.Fatalf("ListLedgerEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Book != domain.LedgerBookBank || entries[0].BankAccountID != "ba-main" {
		t.Fatalf("unexpected bank ledger entries: %+v", entries)
	}
}

func TestCheckSplitLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	req := cashSaleRequest(domain.SaleLineRequest{ProductID: "per-huntsman", ProductType: domain.ProductTypePeripheral, Qty: 1})
	req.PaymentMode = domain.PayModeCheck
	req.Payments = []domain.PaymentSplit{{
		Mode:         domain.PayModeCheck,
		AmountCents:  21900,
		CheckNumber:  "CHQ-1001",
		CheckDueDate: "2026-10-01",
	}}
	sale, err := svc.CreateSale(ctx, req)
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}

	// A check payment does not hit the books until it is cashed.
	entries, err := svc.ListLedgerEntries(ctx, domain.LedgerListFilter{SaleID: sale.ID})
	if err != nil {
		t.Fatalf("ListLedgerEntries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("ledger entries before cashing = %d, want 0", len(entries))
	}

	checks, err := svc.ListChecks(ctx, domain.CheckStatusPending, 0)
	if err != nil {
		t.Fatalf("ListChecks: %v", err)
	}
	if len(checks) != 1 {
		t.Fatalf("pending checks = %d, want 1", len(checks))
	}
	check := checks[0]
	if check.Number != "CHQ-1001" || check.AmountCents != 21900 || check.SaleID != sale.ID {
		t.Fatalf("unexpected check: %+v", check)
	}

	if _, err := svc.CashCheck(ctx, check.ID, domain.CheckCashRequest{Method: domain.CheckCashMethodTransfer}); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("transfer without bank account: expected ErrInvalidSale, got %v", err)
	}

	cashed, err := svc.CashCheck(ctx, check.ID, domain.CheckCashRequest{Method: domain.CheckCashMethodCash})
	if err != nil {
		t.Fatalf("CashCheck: %v", err)
	}
	if cashed.Status != domain.CheckStatusCashed || cashed.CashedAt == nil {
		t.Fatalf("unexpected cashed check: %+v", cashed)
	}

	entries, err = svc.ListLedgerEntries(ctx, domain.LedgerListFilter{SaleID: sale.ID})
	if err != nil {
		t.Fatalf("ListLedgerEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Book != domain.LedgerBookCash || entries[0].AmountCents != 21900 {
		t.Fatalf("unexpected ledger entries after cashing: %+v", entries)
	}

	if _, err := svc.CashCheck(ctx, check.ID, domain.CheckCashRequest{Method: domain.CheckCashMethodCash}); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("second cashing: expected ErrInvalidSale, got %v", err)
	}
}

func TestRejectCheckWritesNothingToTheBooks(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	req := cashSaleRequest(domain.SaleLineRequest{ProductID: "per-gpro-x", ProductType: domain.ProductTypePeripheral, Qty: 1})
	req.PaymentMode = domain.PayModeCheck
	req.Payments = []domain.PaymentSplit{{Mode: domain.PayModeCheck, AmountCents: 12900, CheckNumber: "CHQ-2002"}}
	sale, err := svc.CreateSale(ctx, req)
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}

	checks, err := svc.ListChecks(ctx, domain.CheckStatusPending, 0)
	if err != nil || len(checks) != 1 {
		t.Fatalf("ListChecks: %v (%d checks)", err, len(checks))
	}
	rejected, err := svc.RejectCheck(ctx, checks[0].ID)
	if err != nil {
		t.Fatalf("RejectCheck: %v", err)
	}
	if rejected.Status != domain.CheckStatusRejected {
		t.Fatalf("status = %q, want rejected", rejected.Status)
	}

	entries, err := svc.ListLedgerEntries(ctx, domain.LedgerListFilter{SaleID: sale.ID})
	if err != nil {
		t.Fatalf("ListLedgerEntries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected check wrote %d ledger entries", len(entries))
	}
}

func TestRepriseSettlesDeltaOnTheBooks(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	resp, err := svc.CreateReprise(ctx, domain.RepriseCreateRequest{
		ClientID: "cli-dupont",
		OldProduct: domain.RepriseProduct{
			ProductType:    domain.ProductTypeLaptop,
			Name:           "Vivobook 15 occasion",
			UnitPriceCents: 50000,
			Qty:            1,
		},
		NewProduct: &domain.RepriseProduct{
			ProductID:      "lap-zephyr-14",
			ProductType:    domain.ProductTypeLaptop,
			Name:           "Zephyr 14 OLED",
			UnitPriceCents: 80000,
			Qty:            1,
		},
		Reason:         "upgrade",
		SettlementMode: domain.PayModeCash,
	})
	if err != nil {
		t.Fatalf("CreateReprise: %v", err)
	}
	if resp.Reprise.DeltaCents != 30000 || resp.Reprise.Status != domain.RepriseStatusSettled {
		t.Fatalf("unexpected reprise: %+v", resp.Reprise)
	}
	if resp.Return.Kind != domain.ReturnKindTradeIn {
		t.Fatalf("return kind = %q, want trade_in", resp.Return.Kind)
	}

	entries, err := svc.ListLedgerEntries(ctx, domain.LedgerListFilter{Book: domain.LedgerBookCash})
	if err != nil {
		t.Fatalf("ListLedgerEntries: %v", err)
	}
	var settlement *domain.LedgerEntry
	for i := range entries {
		if entries[i].Category == "reprise" {
			settlement = &entries[i]
		}
	}
	if settlement == nil {
		t.Fatalf("no settlement entry in %+v", entries)
	}
	if settlement.Direction != domain.LedgerDirectionIn || settlement.AmountCents != 30000 {
		t.Fatalf("unexpected settlement: %+v", settlement)
	}
}

func TestRepriseNegativeDeltaPaysTheClientBack(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	resp, err := svc.CreateReprise(ctx, domain.RepriseCreateRequest{
		ClientID: "cli-dupont",
		OldProduct: domain.RepriseProduct{
			ProductType:    domain.ProductTypeMonitor,
			Name:           "Odyssey G9 occasion",
			UnitPriceCents: 90000,
			Qty:            1,
		},
		NewProduct: &domain.RepriseProduct{
			ProductID:      "mon-ultragear-32",
			ProductType:    domain.ProductTypeMonitor,
			Name:           "UltraGear 32 QHD",
			UnitPriceCents: 42900,
			Qty:            1,
		},
		SettlementMode: domain.PayModeTransfer,
		BankAccountID:  "ba-main",
	})
	if err != nil {
		t.Fatalf("CreateReprise: %v", err)
	}
	if resp.Reprise.DeltaCents != -47100 {
		t.Fatalf("delta = %d, want -47100", resp.Reprise.DeltaCents)
	}

	entries, err := svc.ListLedgerEntries(ctx, domain.LedgerListFilter{Book: domain.LedgerBookBank})
	if err != nil {
		t.Fatalf("ListLedgerEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("bank entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Direction != domain.LedgerDirectionOut || entry.AmountCents != 47100 || entry.BankAccountID != "ba-main" {
		t.Fatalf("unexpected settlement: %+v", entry)
	}
}

func TestRepriseValidation(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	old := domain.RepriseProduct{ProductType: domain.ProductTypeLaptop, Name: "Old laptop", UnitPriceCents: 50000, Qty: 1}
	same := domain.RepriseProduct{ProductType: domain.ProductTypeLaptop, Name: "New laptop", UnitPriceCents: 50000, Qty: 1}
	dearer := domain.RepriseProduct{ProductType: domain.ProductTypeLaptop, Name: "New laptop", UnitPriceCents: 80000, Qty: 1}

	cases := []struct {
		name string
		req  domain.RepriseCreateRequest
	}{
		{"missing client", domain.RepriseCreateRequest{OldProduct: old, NewProduct: &dearer, SettlementMode: domain.PayModeCash}},
		{"unknown client", domain.RepriseCreateRequest{ClientID: "cli-ghost", OldProduct: old, NewProduct: &dearer, SettlementMode: domain.PayModeCash}},
		{"missing new product", domain.RepriseCreateRequest{ClientID: "cli-dupont", OldProduct: old}},
		{"settlement on equal totals", domain.RepriseCreateRequest{ClientID: "cli-dupont", OldProduct: old, NewProduct: &same, SettlementMode: domain.PayModeCash}},
		{"delta without settlement mode", domain.RepriseCreateRequest{ClientID: "cli-dupont", OldProduct: old, NewProduct: &dearer}},
		{"transfer without bank account", domain.RepriseCreateRequest{ClientID: "cli-dupont", OldProduct: old, NewProduct: &dearer, SettlementMode: domain.PayModeTransfer}},
	}
	for _, tc := range cases {
		if _, err := svc.CreateReprise(ctx, tc.req); !errors.Is(err, store.ErrInvalidSale) {
			t.Fatalf("%s: expected ErrInvalidSale, got %v", tc.name, err)
		}
	}

	// Equal totals need no settlement and the reprise stays open.
	resp, err := svc.CreateReprise(ctx, domain.RepriseCreateRequest{ClientID: "cli-dupont", OldProduct: old, NewProduct: &same})
	if err != nil {
		t.Fatalf("CreateReprise: %v", err)
	}
	if resp.Reprise.Status != domain.RepriseStatusOpen || resp.Reprise.DeltaCents != 0 {
		t.Fatalf("unexpected reprise: %+v", resp.Reprise)
	}
}

func TestRecordReturnStaysPending(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	ret, err := svc.RecordReturn(ctx, domain.RepriseCreateRequest{
		ClientID: "cli-dupont",
		OldProduct: domain.RepriseProduct{
			ProductID:      "per-gpro-x",
			ProductType:    domain.ProductTypePeripheral,
			Name:           "G Pro X Superlight",
			UnitPriceCents: 12900,
			Qty:            2,
		},
		Reason: "double click",
	})
	if err != nil {
		t.Fatalf("RecordReturn: %v", err)
	}
	if ret.Status != domain.ReturnStatusPending || ret.Kind != domain.ReturnKindSimple {
		t.Fatalf("unexpected return: %+v", ret)
	}
	if ret.TotalCents != 2*12900 {
		t.Fatalf("total = %d, want %d", ret.TotalCents, 2*12900)
	}

	// A plain return does not move stock, restocking stays a manual call.
	if got := currentStock(t, svc, domain.ProductTypePeripheral, "per-gpro-x"); got != 40 {
		t.Fatalf("stock = %d, want 40", got)
	}

	pending, err := svc.ListReturns(ctx, domain.ReturnStatusPending, 0)
	if err != nil {
		t.Fatalf("ListReturns: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != ret.ID {
		t.Fatalf("unexpected pending returns: %+v", pending)
	}
}

func TestRenderDocument(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	sale, err := svc.CreateSale(ctx, cashSaleRequest(domain.SaleLineRequest{
		ProductID:   "chr-titan-evo",
		ProductType: domain.ProductTypeGamingChair,
		Qty:         1,
	}))
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}

	html, err := svc.RenderDocument(ctx, sale.ID, domain.DocumentInvoice)
	if err != nil {
		t.Fatalf("RenderDocument: %v", err)
	}
	if !strings.Contains(html, sale.Reference) {
		t.Fatalf("invoice does not mention reference %q", sale.Reference)
	}
	if !strings.Contains(html, "Titan Evo") {
		t.Fatalf("invoice does not list the product line")
	}

	if _, err := svc.RenderDocument(ctx, sale.ID, "poster"); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("unknown kind: expected ErrInvalidSale, got %v", err)
	}

	if _, err := svc.CancelSale(ctx, sale.ID, domain.SaleCancelRequest{Reason: "test"}); err != nil {
		t.Fatalf("CancelSale: %v", err)
	}
	if _, err := svc.RenderDocument(ctx, sale.ID, domain.DocumentInvoice); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("invoice for cancelled sale: expected ErrInvalidSale, got %v", err)
	}
	// A quote is still useful for a cancelled sale.
	if _, err := svc.RenderDocument(ctx, sale.ID, domain.DocumentQuote); err != nil {
		t.Fatalf("RenderDocument quote: %v", err)
	}
}

func TestUnsupportedProductTypeRejected(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	if _, err := svc.ListProducts(ctx, "toaster", ""); !errors.Is(err, store.ErrUnsupportedProductType) {
		t.Fatalf("ListProducts: expected ErrUnsupportedProductType, got %v", err)
	}

	_, err := svc.CreateSale(ctx, cashSaleRequest(domain.SaleLineRequest{
		ProductID:   "cmp-rtx-4070",
		ProductType: "toaster",
		Qty:         1,
	}))
	if !errors.Is(err, store.ErrUnsupportedProductType) {
		t.Fatalf("CreateSale: expected ErrUnsupportedProductType, got %v", err)
	}
}

func TestAdjustStock(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	if _, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{
		ProductID:   "dsk-meg-aegis",
		ProductType: domain.ProductTypeDesktop,
		Delta:       0,
	}); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("zero delta: expected ErrInvalidSale, got %v", err)
	}

	if _, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{
		ProductID:   "dsk-meg-aegis",
		ProductType: domain.ProductTypeDesktop,
		Delta:       -5,
	}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("overdraw: expected ErrInsufficientStock, got %v", err)
	}

	updated, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{
		ProductID:   "dsk-meg-aegis",
		ProductType: domain.ProductTypeDesktop,
		Delta:       2,
		Reason:      "delivery intake",
	})
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if updated.CurrentStock != 5 {
		t.Fatalf("stock = %d, want 5", updated.CurrentStock)
	}
}

func TestDeletedSaleReferenceIsNotReissued(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	year := time.Now().UTC().Year()

	line := domain.SaleLineRequest{ProductID: "mon-ultragear-32", ProductType: domain.ProductTypeMonitor, Qty: 1}

	sale, err := svc.CreateSale(ctx, cashSaleRequest(line))
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	if want := fmt.Sprintf("245/%d", year); sale.Reference != want {
		t.Fatalf("reference = %q, want %q", sale.Reference, want)
	}
	if err := svc.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("DeleteSale: %v", err)
	}

	// The counter only moves forward, a deleted number stays retired.
	next, err := svc.CreateSale(ctx, cashSaleRequest(line))
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	if want := fmt.Sprintf("246/%d", year); next.Reference != want {
		t.Fatalf("reference after delete = %q, want %q", next.Reference, want)
	}
	if got := currentStock(t, svc, domain.ProductTypeMonitor, "mon-ultragear-32"); got != 9 {
		t.Fatalf("stock = %d, want 9", got)
	}
}
