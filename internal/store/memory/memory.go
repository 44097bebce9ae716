package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gearshop/backend/internal/domain"
	"gearshop/backend/internal/store"
	"gearshop/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	salesByID       map[string]*domain.Sale
	checksByID      map[string]domain.Check
	ledger          []domain.LedgerEntry
	returnsByID     map[string]domain.Return
	reprisesByID    map[string]domain.Reprise
	clientsByID     map[string]domain.Client
	suppliersByID   map[string]domain.Supplier
	accountsByID    map[string]domain.BankAccount
	assignmentsByID map[string]domain.Assignment
	auditLogs       []domain.AuditLog
	counters        map[string]int
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"seller", sellerPwd, "seller"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "lap-zephyr-14", Type: domain.ProductTypeLaptop, Name: "Zephyr 14 OLED", Brand: "ASUS", Model: "GA403", PurchaseCents: 129900, PriceCents: 169900, CurrentStock: 8, MinStock: 2},
		{ID: "lap-blade-16", Type: domain.ProductTypeLaptop, Name: "Blade 16", Brand: "Razer", Model: "RZ09", PurchaseCents: 219900, PriceCents: 279900, CurrentStock: 4, MinStock: 1},
		{ID: "mon-odyssey-27", Type: domain.ProductTypeMonitor, Name: "Odyssey G7 27", Brand: "Samsung", Model: "LS27", PurchaseCents: 39900, PriceCents: 54900, CurrentStock: 15, MinStock: 3},
		{ID: "mon-ultragear-32", Type: domain.ProductTypeMonitor, Name: "UltraGear 32 QHD", Brand: "LG", Model: "32GP", PurchaseCents: 29900, PriceCents: 42900, CurrentStock: 10, MinStock: 3},
		{ID: "per-gpro-x", Type: domain.ProductTypePeripheral, Name: "G Pro X Superlight", Brand: "Logitech", Model: "910", PurchaseCents: 7900, PriceCents: 12900, CurrentStock: 40, MinStock: 10},
		{ID: "per-huntsman", Type: domain.ProductTypePeripheral, Name: "Huntsman V3 Pro", Brand: "Razer", Model: "RZ03", PurchaseCents: 14900, PriceCents: 21900, CurrentStock: 25, MinStock: 5},
		{ID: "chr-titan-evo", Type: domain.ProductTypeGamingChair, Name: "Titan Evo", Brand: "Secretlab", Model: "2022", PurchaseCents: 32900, PriceCents: 48900, CurrentStock: 6, MinStock: 2},
		{ID: "dsk-meg-aegis", Type: domain.ProductTypeDesktop, Name: "MEG Aegis Ti5", Brand: "MSI", Model: "Ti5", PurchaseCents: 299900, PriceCents: 389900, CurrentStock: 3, MinStock: 1},
		{ID: "cmp-rtx-4070", Type: domain.ProductTypeComponent, Name: "GeForce RTX 4070 Super", Brand: "NVIDIA", Model: "FE", PurchaseCents: 49900, PriceCents: 64900, CurrentStock: 12, MinStock: 4},
		{ID: "cmp-ryzen-7800", Type: domain.ProductTypeComponent, Name: "Ryzen 7 7800X3D", Brand: "AMD", Model: "AM5", PurchaseCents: 29900, PriceCents: 39900, CurrentStock: 18, MinStock: 5},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		p.Status = domain.StockStatusFor(p.CurrentStock, p.MinStock)
		p.CreatedAt = now
		p.UpdatedAt = now
		productMap[p.ID] = p
	}

	clients := map[string]domain.Client{
		"cli-dupont": {ID: "cli-dupont", Name: "Julien Dupont", Email: "j.dupont@example.com", Phone: "+33 6 11 22 33 44", CreatedAt: now, UpdatedAt: now},
		"cli-benali": {ID: "cli-benali", Name: "Sarah Benali", Email: "s.benali@example.com", Phone: "+33 7 55 66 77 88", CreatedAt: now, UpdatedAt: now},
	}

	accounts := map[string]domain.BankAccount{
		"ba-main": {ID: "ba-main", Label: "Compte principal", BankName: "BNP", Number: "FR76-0001", Active: true, CreatedAt: now},
	}

	return &Store{
		products:        productMap,
		salesByID:       make(map[string]*domain.Sale),
		checksByID:      make(map[string]domain.Check),
		ledger:          make([]domain.LedgerEntry, 0, 128),
		returnsByID:     make(map[string]domain.Return),
		reprisesByID:    make(map[string]domain.Reprise),
		clientsByID:     clients,
		suppliersByID:   make(map[string]domain.Supplier),
		accountsByID:    accounts,
		assignmentsByID: make(map[string]domain.Assignment),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		// The ordinary-sale sequence starts past the numbers issued by
		// the previous system, so the first auto reference this year is 245.
		counters:        map[string]int{counterKey(domain.SaleKindStandard, now.Year()): 244},
		usersByUsername: seedUsers(),
	}
}

func counterKey(kind string, year int) string {
	return fmt.Sprintf("%s|%d", kind, year)
}

func (s *Store) ListProducts(_ context.Context, productType string, status string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if productType != "" && p.Type != productType {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Type == b.Type {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Type, b.Type)
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !isSupportedType(product.Type) {
		return nil, store.ErrUnsupportedProductType
	}
	if product.Name == "" || product.PriceCents < 1 || product.CurrentStock < 0 {
		return nil, store.ErrInvalidSale
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidSale
	}

	now := time.Now().UTC()
	product.Status = domain.StockStatusFor(product.CurrentStock, product.MinStock)
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, productType string, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getProductLocked(productType, id)
}

func (s *Store) getProductLocked(productType string, id string) (*domain.Product, error) {
	if !isSupportedType(productType) {
		return nil, store.ErrUnsupportedProductType
	}
	product, exists := s.products[id]
	if !exists || product.Type != productType {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidSale
	}

	// The category and on-hand quantity are not editable through a plain
	// update; stock moves only through AdjustStock and the sale paths.
	product.Type = existing.Type
	product.CurrentStock = existing.CurrentStock
	product.CreatedAt = existing.CreatedAt
	product.Status = domain.StockStatusFor(product.CurrentStock, product.MinStock)
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, productType string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getProductLocked(productType, id); err != nil {
		return err
	}
	delete(s.products, id)
	return nil
}

func (s *Store) AdjustStock(_ context.Context, productType string, id string, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustStockLocked(productType, id, delta)
}

func (s *Store) adjustStockLocked(productType string, id string, delta int) (*domain.Product, error) {
	product, err := s.getProductLocked(productType, id)
	if err != nil {
		return nil, err
	}
	next := product.CurrentStock + delta
	if next < 0 {
		return nil, fmt.Errorf("%w: product %s has %d, need %d", store.ErrInsufficientStock, id, product.CurrentStock, -delta)
	}
	product.CurrentStock = next
	product.Status = domain.StockStatusFor(next, product.MinStock)
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = *product
	updated := *product
	return &updated, nil
}

func (s *Store) NextReference(_ context.Context, kind string, year int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq := s.counters[counterKey(kind, year)]
	for {
		seq++
		ref := formatReference(kind, seq, year)
		if !s.referenceTakenLocked(ref, "") {
			return ref, nil
		}
	}
}

func (s *Store) ReferenceTaken(_ context.Context, reference string, excludeSaleID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.referenceTakenLocked(reference, excludeSaleID), nil
}

func (s *Store) referenceTakenLocked(reference string, excludeSaleID string) bool {
	for _, sale := range s.salesByID {
		if sale.ID == excludeSaleID {
			continue
		}
		if sale.Reference == reference {
			return true
		}
	}
	return false
}

// allocateReferenceLocked advances the per-year counter past any
// manually issued numbers. The counter only moves forward, so a deleted
// sale's number is never handed out again.
func (s *Store) allocateReferenceLocked(kind string, year int) string {
	key := counterKey(kind, year)
	seq := s.counters[key]
	for {
		seq++
		ref := formatReference(kind, seq, year)
		if !s.referenceTakenLocked(ref, "") {
			s.counters[key] = seq
			return ref
		}
	}
}

func formatReference(kind string, seq, year int) string {
	if kind == domain.SaleKindPurchaseOrder {
		return fmt.Sprintf("BA %d-%d", seq, year)
	}
	return fmt.Sprintf("%d/%d", seq, year)
}

func (s *Store) CreateSale(_ context.Context, draft store.SaleDraft) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale := draft.Sale
	now := time.Now().UTC()
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.Date.IsZero() {
		sale.Date = now
	}
	sale.CreatedAt = now
	sale.UpdatedAt = now

	if sale.Reference == "" {
		sale.Reference = s.allocateReferenceLocked(sale.Kind, sale.Date.Year())
	} else if s.referenceTakenLocked(sale.Reference, sale.ID) {
		return nil, store.ErrDuplicateReference
	}

	// Verify sufficiency for every line before touching any stock row, so
	// a failing line leaves nothing mutated.
	needed := make(map[string]int)
	for _, line := range draft.Lines {
		product, err := s.getProductLocked(line.ProductType, line.ProductID)
		if err != nil {
			return nil, err
		}
		needed[line.ProductID] += line.Qty
		if needed[line.ProductID] > product.CurrentStock {
			return nil, fmt.Errorf("%w: product %s has %d, need %d",
				store.ErrInsufficientStock, line.ProductID, product.CurrentStock, needed[line.ProductID])
		}
	}
	for _, line := range draft.Lines {
		if _, err := s.adjustStockLocked(line.ProductType, line.ProductID, -line.Qty); err != nil {
			return nil, err
		}
	}

	lines := make([]domain.SaleLine, len(draft.Lines))
	for i, line := range draft.Lines {
		if line.ID == "" {
			line.ID = xid.New("lin")
		}
		line.SaleID = sale.ID
		lines[i] = line
	}
	payments := make([]domain.Payment, len(draft.Payments))
	for i, payment := range draft.Payments {
		if payment.ID == "" {
			payment.ID = xid.New("pay")
		}
		payment.SaleID = sale.ID
		payment.CreatedAt = now
		payments[i] = payment
	}
	for _, check := range draft.Checks {
		if check.ID == "" {
			check.ID = xid.New("chk")
		}
		check.SaleID = sale.ID
		check.CreatedAt = now
		s.checksByID[check.ID] = check
	}
	for _, entry := range draft.Ledger {
		entry.SaleID = sale.ID
		s.appendLedgerLocked(entry)
	}

	sale.Lines = lines
	sale.Payments = payments
	stored := sale
	s.salesByID[sale.ID] = &stored
	created := cloneSale(&stored)
	return created, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleListFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if filter.Kind != "" && sale.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		if filter.ClientID != "" && sale.ClientID != filter.ClientID {
			continue
		}
		if filter.Year != 0 && sale.Date.Year() != filter.Year {
			continue
		}
		sales = append(sales, *cloneSale(sale))
	}

	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.Date.Equal(b.Date) {
			return cmpString(b.ID, a.ID)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(sales) > filter.Limit {
		sales = sales[:filter.Limit]
	}
	return sales, nil
}

func (s *Store) UpdateSale(_ context.Context, sale domain.Sale, restock bool) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.salesByID[sale.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Reference != existing.Reference && s.referenceTakenLocked(sale.Reference, sale.ID) {
		return nil, store.ErrDuplicateReference
	}

	if restock {
		for _, line := range existing.Lines {
			if _, err := s.adjustStockLocked(line.ProductType, line.ProductID, line.Qty); err != nil {
				log.Printf("[memory-store] WARN: restock failed for product %s: %v", line.ProductID, err)
			}
		}
	}

	sale.Lines = existing.Lines
	sale.Payments = existing.Payments
	sale.CreatedAt = existing.CreatedAt
	sale.UpdatedAt = time.Now().UTC()
	stored := sale
	s.salesByID[sale.ID] = &stored
	return cloneSale(&stored), nil
}

func (s *Store) CancelSale(_ context.Context, id string, status string, reason string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Status == domain.SaleStatusCancelled || sale.Status == domain.SaleStatusRefunded {
		return nil, fmt.Errorf("%w: sale %s is already %s", store.ErrInvalidSale, id, sale.Status)
	}

	for _, line := range sale.Lines {
		if _, err := s.adjustStockLocked(line.ProductType, line.ProductID, line.Qty); err != nil {
			log.Printf("[memory-store] WARN: restock failed for product %s: %v", line.ProductID, err)
		}
	}

	// The books stay append-only: cancellation writes offsetting entries
	// instead of removing the originals.
	for _, entry := range s.ledger {
		if entry.SaleID != id {
			continue
		}
		reversal := entry
		reversal.ID = ""
		reversal.Direction = oppositeDirection(entry.Direction)
		reversal.Description = "reversal: " + entry.Description
		reversal.Reconciled = false
		s.appendLedgerLocked(reversal)
	}

	sale.Status = status
	if reason != "" {
		sale.Notes = strings.TrimSpace(sale.Notes + "\n" + reason)
	}
	sale.UpdatedAt = time.Now().UTC()
	return cloneSale(sale), nil
}

func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return store.ErrNotFound
	}

	// Cancelled and refunded sales already had their stock restored.
	if sale.Status != domain.SaleStatusCancelled && sale.Status != domain.SaleStatusRefunded {
		for _, line := range sale.Lines {
			if _, err := s.adjustStockLocked(line.ProductType, line.ProductID, line.Qty); err != nil {
				log.Printf("[memory-store] WARN: restock failed for product %s: %v", line.ProductID, err)
			}
		}
	}

	kept := s.ledger[:0]
	for _, entry := range s.ledger {
		if entry.SaleID != id {
			kept = append(kept, entry)
		}
	}
	s.ledger = kept

	for checkID, check := range s.checksByID {
		if check.SaleID == id {
			delete(s.checksByID, checkID)
		}
	}

	delete(s.salesByID, id)
	return nil
}

func (s *Store) CreateCheck(_ context.Context, check domain.Check) (*domain.Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if check.Number == "" || check.AmountCents < 1 {
		return nil, store.ErrInvalidSale
	}
	if check.ID == "" {
		check.ID = xid.New("chk")
	}
	if check.Status == "" {
		check.Status = domain.CheckStatusPending
	}
	check.CreatedAt = time.Now().UTC()
	s.checksByID[check.ID] = check
	created := check
	return &created, nil
}

func (s *Store) GetCheck(_ context.Context, id string) (*domain.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	check, exists := s.checksByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCheck := check
	return &copyCheck, nil
}

func (s *Store) ListChecks(_ context.Context, status string, limit int) ([]domain.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	checks := make([]domain.Check, 0, len(s.checksByID))
	for _, check := range s.checksByID {
		if status != "" && check.Status != status {
			continue
		}
		checks = append(checks, check)
	}

	slices.SortFunc(checks, func(a, b domain.Check) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(checks) > limit {
		checks = checks[:limit]
	}
	return checks, nil
}

func (s *Store) SettleCheck(_ context.Context, id string, status string, method string, bankAccountID string) (*domain.Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	check, exists := s.checksByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if check.Status != domain.CheckStatusPending {
		return nil, fmt.Errorf("%w: check %s is already %s", store.ErrInvalidSale, id, check.Status)
	}

	now := time.Now().UTC()
	check.Status = status
	if status == domain.CheckStatusCashed {
		check.CashMethod = method
		check.CashedAt = &now
		entry := domain.LedgerEntry{
			Book:        domain.LedgerBookCash,
			Direction:   domain.LedgerDirectionIn,
			AmountCents: check.AmountCents,
			Description: fmt.Sprintf("check %s cashed", check.Number),
			Category:    "check",
			SaleID:      check.SaleID,
		}
		if method == domain.CheckCashMethodTransfer {
			if _, ok := s.accountsByID[bankAccountID]; !ok {
				return nil, store.ErrNotFound
			}
			check.BankAccountID = bankAccountID
			entry.Book = domain.LedgerBookBank
			entry.BankAccountID = bankAccountID
		}
		s.appendLedgerLocked(entry)
	}
	s.checksByID[id] = check
	settled := check
	return &settled, nil
}

func (s *Store) AppendLedgerEntry(_ context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.AmountCents < 1 || (entry.Direction != domain.LedgerDirectionIn && entry.Direction != domain.LedgerDirectionOut) {
		return nil, store.ErrInvalidSale
	}
	if entry.Book == domain.LedgerBookBank && entry.BankAccountID == "" {
		return nil, store.ErrInvalidSale
	}
	stored := s.appendLedgerLocked(entry)
	return &stored, nil
}

func (s *Store) appendLedgerLocked(entry domain.LedgerEntry) domain.LedgerEntry {
	if entry.ID == "" {
		entry.ID = xid.New("led")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.ledger = append(s.ledger, entry)
	return entry
}

func (s *Store) ListLedgerEntries(_ context.Context, filter domain.LedgerListFilter) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.LedgerEntry, 0, len(s.ledger))
	for _, entry := range s.ledger {
		if filter.Book != "" && entry.Book != filter.Book {
			continue
		}
		if filter.SaleID != "" && entry.SaleID != filter.SaleID {
			continue
		}
		entries = append(entries, entry)
	}

	slices.SortFunc(entries, func(a, b domain.LedgerEntry) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries, nil
}

func (s *Store) SetLedgerReconciled(_ context.Context, id string, reconciled bool) (*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, entry := range s.ledger {
		if entry.ID == id {
			s.ledger[i].Reconciled = reconciled
			updated := s.ledger[i]
			return &updated, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateReturn(_ context.Context, ret domain.Return) (*domain.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.createReturnLocked(ret)
	return &stored, nil
}

func (s *Store) createReturnLocked(ret domain.Return) domain.Return {
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.Status == "" {
		ret.Status = domain.ReturnStatusPending
	}
	ret.CreatedAt = time.Now().UTC()
	s.returnsByID[ret.ID] = ret
	return ret
}

func (s *Store) ListReturns(_ context.Context, status string, limit int) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	returns := make([]domain.Return, 0, len(s.returnsByID))
	for _, ret := range s.returnsByID {
		if status != "" && ret.Status != status {
			continue
		}
		returns = append(returns, ret)
	}

	slices.SortFunc(returns, func(a, b domain.Return) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(returns) > limit {
		returns = returns[:limit]
	}
	return returns, nil
}

func (s *Store) CreateReprise(_ context.Context, ret domain.Return, reprise domain.Reprise, settlement *domain.LedgerEntry) (*domain.Reprise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.createReturnLocked(ret)
	if reprise.ID == "" {
		reprise.ID = xid.New("rep")
	}
	reprise.ReturnID = created.ID
	reprise.CreatedAt = time.Now().UTC()
	s.reprisesByID[reprise.ID] = reprise
	if settlement != nil {
		s.appendLedgerLocked(*settlement)
	}
	stored := reprise
	return &stored, nil
}

func (s *Store) ListReprises(_ context.Context, limit int) ([]domain.Reprise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reprises := make([]domain.Reprise, 0, len(s.reprisesByID))
	for _, reprise := range s.reprisesByID {
		reprises = append(reprises, reprise)
	}

	slices.SortFunc(reprises, func(a, b domain.Reprise) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(reprises) > limit {
		reprises = reprises[:limit]
	}
	return reprises, nil
}

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client.Name == "" {
		return nil, store.ErrInvalidSale
	}
	if client.ID == "" {
		client.ID = xid.New("cli")
	}
	now := time.Now().UTC()
	client.CreatedAt = now
	client.UpdatedAt = now
	s.clientsByID[client.ID] = client
	created := client
	return &created, nil
}

func (s *Store) GetClient(_ context.Context, id string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, exists := s.clientsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyClient := client
	return &copyClient, nil
}

func (s *Store) ListClients(_ context.Context) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]domain.Client, 0, len(s.clientsByID))
	for _, client := range s.clientsByID {
		clients = append(clients, client)
	}
	slices.SortFunc(clients, func(a, b domain.Client) int {
		return cmpString(a.Name, b.Name)
	})
	return clients, nil
}

func (s *Store) UpdateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.clientsByID[client.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if client.Name == "" {
		return nil, store.ErrInvalidSale
	}
	client.CreatedAt = existing.CreatedAt
	client.UpdatedAt = time.Now().UTC()
	s.clientsByID[client.ID] = client
	updated := client
	return &updated, nil
}

func (s *Store) DeleteClient(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clientsByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.clientsByID, id)
	return nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.Name == "" {
		return nil, store.ErrInvalidSale
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	supplier.CreatedAt = time.Now().UTC()
	s.suppliersByID[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return cmpString(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) CreateBankAccount(_ context.Context, account domain.BankAccount) (*domain.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if account.Label == "" {
		return nil, store.ErrInvalidSale
	}
	if account.ID == "" {
		account.ID = xid.New("ba")
	}
	account.Active = true
	account.CreatedAt = time.Now().UTC()
	s.accountsByID[account.ID] = account
	created := account
	return &created, nil
}

func (s *Store) GetBankAccount(_ context.Context, id string) (*domain.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, exists := s.accountsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyAccount := account
	return &copyAccount, nil
}

func (s *Store) ListBankAccounts(_ context.Context) ([]domain.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]domain.BankAccount, 0, len(s.accountsByID))
	for _, account := range s.accountsByID {
		accounts = append(accounts, account)
	}
	slices.SortFunc(accounts, func(a, b domain.BankAccount) int {
		return cmpString(a.Label, b.Label)
	})
	return accounts, nil
}

func (s *Store) CreateAssignment(_ context.Context, assignment domain.Assignment) (*domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if assignment.Title == "" || assignment.Assignee == "" {
		return nil, store.ErrInvalidSale
	}
	if assignment.ID == "" {
		assignment.ID = xid.New("tsk")
	}
	if assignment.Status == "" {
		assignment.Status = domain.AssignmentStatusOpen
	}
	now := time.Now().UTC()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now
	s.assignmentsByID[assignment.ID] = assignment
	created := assignment
	return &created, nil
}

func (s *Store) ListAssignments(_ context.Context, assignee string, status string) ([]domain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assignments := make([]domain.Assignment, 0, len(s.assignmentsByID))
	for _, assignment := range s.assignmentsByID {
		if assignee != "" && assignment.Assignee != assignee {
			continue
		}
		if status != "" && assignment.Status != status {
			continue
		}
		assignments = append(assignments, assignment)
	}
	slices.SortFunc(assignments, func(a, b domain.Assignment) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return assignments, nil
}

func (s *Store) UpdateAssignmentStatus(_ context.Context, id string, status string) (*domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignment, exists := s.assignmentsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	assignment.Status = status
	assignment.UpdatedAt = time.Now().UTC()
	s.assignmentsByID[id] = assignment
	updated := assignment
	return &updated, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, len(s.auditLogs))
	copy(logs, s.auditLogs)
	slices.SortFunc(logs, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidSale
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidSale
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneSale(sale *domain.Sale) *domain.Sale {
	clone := *sale
	clone.Lines = make([]domain.SaleLine, len(sale.Lines))
	copy(clone.Lines, sale.Lines)
	clone.Payments = make([]domain.Payment, len(sale.Payments))
	copy(clone.Payments, sale.Payments)
	return &clone
}

func oppositeDirection(direction string) string {
	if direction == domain.LedgerDirectionIn {
		return domain.LedgerDirectionOut
	}
	return domain.LedgerDirectionIn
}

func isSupportedType(productType string) bool {
	return slices.Contains(domain.ProductTypes, productType)
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
