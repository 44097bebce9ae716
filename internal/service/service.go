package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gearshop/backend/internal/docgen"
	"gearshop/backend/internal/domain"
	"gearshop/backend/internal/store"
	"gearshop/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// createSaleRetries bounds the reference-allocation retry loop when a
// concurrent creation wins the unique constraint first.
const createSaleRetries = 3

type Service struct {
	repo store.Repository
	docs *docgen.Engine
}

func New(repo store.Repository, docs *docgen.Engine) *Service {
	if docs == nil {
		docs = docgen.NewEngine(nil, 0)
	}

	return &Service{
		repo: repo,
		docs: docs,
	}
}

func (s *Service) ListProducts(ctx context.Context, productType string, status string) ([]domain.Product, error) {
	if productType != "" && !isSupportedProductType(productType) {
		return nil, store.ErrUnsupportedProductType
	}
	return s.repo.ListProducts(ctx, productType, status)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	productType := strings.TrimSpace(strings.ToLower(req.Type))
	if !isSupportedProductType(productType) {
		return nil, store.ErrUnsupportedProductType
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: product name is required", store.ErrInvalidSale)
	}
	if req.PriceCents < 1 {
		return nil, fmt.Errorf("%w: sale price must be positive", store.ErrInvalidSale)
	}
	if req.InitialStock < 0 || req.MinStock < 0 {
		return nil, fmt.Errorf("%w: stock quantities must not be negative", store.ErrInvalidSale)
	}

	actor, _ := ActorFromContext(ctx)
	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Type:          productType,
		Name:          strings.TrimSpace(req.Name),
		Brand:         strings.TrimSpace(req.Brand),
		Model:         strings.TrimSpace(req.Model),
		Attributes:    strings.TrimSpace(req.Attributes),
		PurchaseCents: req.PurchaseCents,
		PriceCents:    req.PriceCents,
		CurrentStock:  req.InitialStock,
		MinStock:      req.MinStock,
		SupplierID:    strings.TrimSpace(req.SupplierID),
		Barcode:       strings.TrimSpace(req.Barcode),
		ImageURL:      strings.TrimSpace(req.ImageURL),
		CreatedBy:     actor.Username,
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "product.create", "product", created.ID, created.Name)
	return created, nil
}

func (s *Service) GetProduct(ctx context.Context, productType string, id string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, productType, id)
}

func (s *Service) UpdateProduct(ctx context.Context, productType string, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	existing, err := s.repo.GetProduct(ctx, productType, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.Brand != nil {
		existing.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.Model != nil {
		existing.Model = strings.TrimSpace(*req.Model)
	}
	if req.Attributes != nil {
		existing.Attributes = strings.TrimSpace(*req.Attributes)
	}
	if req.PurchaseCents != nil {
		existing.PurchaseCents = *req.PurchaseCents
	}
	if req.PriceCents != nil {
		existing.PriceCents = *req.PriceCents
	}
	if req.MinStock != nil {
		existing.MinStock = *req.MinStock
	}
	if req.SupplierID != nil {
		existing.SupplierID = strings.TrimSpace(*req.SupplierID)
	}
	if req.Barcode != nil {
		existing.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.ImageURL != nil {
		existing.ImageURL = strings.TrimSpace(*req.ImageURL)
	}

	updated, err := s.repo.UpdateProduct(ctx, *existing)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "product.update", "product", updated.ID, updated.Name)
	return updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, productType string, id string) error {
	if err := s.repo.DeleteProduct(ctx, productType, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product.delete", "product", id, "")
	return nil
}

// AdjustStock is the manual correction path. Sales move stock through
// their own transactional paths.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (*domain.Product, error) {
	if req.Delta == 0 {
		return nil, fmt.Errorf("%w: delta must not be zero", store.ErrInvalidSale)
	}
	updated, err := s.repo.AdjustStock(ctx, req.ProductType, req.ProductID, req.Delta)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "stock.adjust", "product", req.ProductID,
		fmt.Sprintf("delta=%d reason=%s", req.Delta, strings.TrimSpace(req.Reason)))
	return updated, nil
}

func (s *Service) NextReference(ctx context.Context, kind string) (domain.NextReferenceResponse, error) {
	kind = normalizeSaleKind(kind)
	if kind == "" {
		return domain.NextReferenceResponse{}, fmt.Errorf("%w: unknown document kind", store.ErrInvalidSale)
	}
	year := time.Now().UTC().Year()
	ref, err := s.repo.NextReference(ctx, kind, year)
	if err != nil {
		return domain.NextReferenceResponse{}, err
	}
	return domain.NextReferenceResponse{Reference: ref, Kind: kind, Year: year}, nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (*domain.Sale, error) {
	draft, err := s.buildSaleDraft(ctx, req)
	if err != nil {
		return nil, err
	}

	var created *domain.Sale
	for attempt := 0; attempt < createSaleRetries; attempt++ {
		created, err = s.repo.CreateSale(ctx, *draft)
		if err == nil {
			break
		}
		// Only an auto-allocated reference can lose the race; an explicit
		// duplicate is the caller's error.
		if errors.Is(err, store.ErrDuplicateReference) && req.Reference == "" {
			continue
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "sale.create", "sale", created.ID, created.Reference)
	return created, nil
}

func (s *Service) buildSaleDraft(ctx context.Context, req domain.SaleCreateRequest) (*store.SaleDraft, error) {
	kind := normalizeSaleKind(req.Kind)
	if kind == "" {
		return nil, fmt.Errorf("%w: unknown document kind %q", store.ErrInvalidSale, req.Kind)
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = domain.SaleStatusInProgress
	}
	if status != domain.SaleStatusInProgress && status != domain.SaleStatusPaid && status != domain.SaleStatusPartiallyPaid {
		return nil, fmt.Errorf("%w: status %q is not allowed at creation", store.ErrInvalidSale, status)
	}
	channel := strings.TrimSpace(req.Channel)
	if channel == "" {
		channel = domain.ChannelInStore
	}
	if !isSupportedChannel(channel) {
		return nil, fmt.Errorf("%w: unsupported channel %q", store.ErrInvalidSale, channel)
	}
	if !isSupportedPayMode(req.PaymentMode) {
		return nil, fmt.Errorf("%w: unsupported payment mode %q", store.ErrInvalidSale, req.PaymentMode)
	}
	if req.PaymentMode == domain.PayModeMixed && len(req.Payments) == 0 {
		return nil, fmt.Errorf("%w: mixed payment requires detailed splits", store.ErrInvalidSale)
	}
	if req.TaxCents < 0 || req.DiscountCents < 0 || req.DeliveryFeeCents < 0 {
		return nil, fmt.Errorf("%w: amounts must not be negative", store.ErrInvalidSale)
	}

	if req.ClientID != "" {
		if _, err := s.repo.GetClient(ctx, req.ClientID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: client %s does not exist", store.ErrInvalidSale, req.ClientID)
			}
			return nil, err
		}
	}

	var deliveryDate *time.Time
	if strings.TrimSpace(req.DeliveryDate) != "" {
		parsed, err := parseDate(req.DeliveryDate)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid delivery date %q", store.ErrInvalidSale, req.DeliveryDate)
		}
		deliveryDate = parsed
	}

	// Snapshot every line from the catalog so later product edits do not
	// rewrite history.
	lines := make([]domain.SaleLine, 0, len(req.Lines))
	var subtotal int64
	for _, lineReq := range req.Lines {
		if lineReq.Qty < 1 {
			return nil, fmt.Errorf("%w: line quantity must be positive", store.ErrInvalidSale)
		}
		if lineReq.UnitDiscountCents < 0 {
			return nil, fmt.Errorf("%w: line discount must not be negative", store.ErrInvalidSale)
		}
		product, err := s.repo.GetProduct(ctx, lineReq.ProductType, lineReq.ProductID)
		if err != nil {
			return nil, err
		}
		if lineReq.UnitDiscountCents > product.PriceCents {
			return nil, fmt.Errorf("%w: line discount exceeds unit price", store.ErrInvalidSale)
		}
		lineTotal := (product.PriceCents - lineReq.UnitDiscountCents) * int64(lineReq.Qty)
		lines = append(lines, domain.SaleLine{
			ProductID:         product.ID,
			ProductType:       product.Type,
			Name:              product.Name,
			Brand:             product.Brand,
			Model:             product.Model,
			UnitPriceCents:    product.PriceCents,
			UnitPriceTTCCents: product.PriceCents,
			Qty:               lineReq.Qty,
			UnitDiscountCents: lineReq.UnitDiscountCents,
			TotalCents:        lineTotal,
			ImageURL:          product.ImageURL,
		})
		subtotal += lineTotal
	}

	total := subtotal + req.TaxCents - req.DiscountCents + req.DeliveryFeeCents
	if total < 0 {
		return nil, fmt.Errorf("%w: total must not be negative", store.ErrInvalidSale)
	}

	paymentStatus := domain.PaymentStatusPending
	if status == domain.SaleStatusPaid {
		paymentStatus = domain.PaymentStatusValidated
	}

	actor, _ := ActorFromContext(ctx)
	sale := domain.Sale{
		Reference:        strings.TrimSpace(req.Reference),
		Kind:             kind,
		ClientID:         req.ClientID,
		Seller:           actor.Username,
		SubtotalCents:    subtotal,
		TaxCents:         req.TaxCents,
		DiscountCents:    req.DiscountCents,
		DeliveryFeeCents: req.DeliveryFeeCents,
		TotalCents:       total,
		PaymentMode:      req.PaymentMode,
		Channel:          channel,
		Status:           status,
		DeliveryAddress:  strings.TrimSpace(req.DeliveryAddress),
		DeliveryDate:     deliveryDate,
		Notes:            strings.TrimSpace(req.Notes),
		CreatedBy:        actor.Username,
	}

	payments, checks, err := s.buildPayments(ctx, req, sale, paymentStatus)
	if err != nil {
		return nil, err
	}

	var ledger []domain.LedgerEntry
	if status == domain.SaleStatusPaid {
		ledger = ledgerEntriesFor(payments, actor.Username)
	}

	return &store.SaleDraft{
		Sale:     sale,
		Lines:    lines,
		Payments: payments,
		Checks:   checks,
		Ledger:   ledger,
	}, nil
}

// buildPayments validates every split before anything is written, so a
// bad bank account or check fails the whole creation up front.
func (s *Service) buildPayments(ctx context.Context, req domain.SaleCreateRequest, sale domain.Sale, paymentStatus string) ([]domain.Payment, []domain.Check, error) {
	if len(req.Payments) == 0 {
		if sale.PaymentMode == domain.PayModeCheck {
			return nil, nil, fmt.Errorf("%w: check payment requires a detailed split with the check number", store.ErrInvalidSale)
		}
		if sale.PaymentMode == domain.PayModeTransfer {
			return nil, nil, fmt.Errorf("%w: transfer payment requires a detailed split with the bank account", store.ErrInvalidSale)
		}
		payment := domain.Payment{
			AmountCents: sale.TotalCents,
			Mode:        sale.PaymentMode,
			Status:      paymentStatus,
		}
		return []domain.Payment{payment}, nil, nil
	}

	payments := make([]domain.Payment, 0, len(req.Payments))
	var checks []domain.Check
	for _, split := range req.Payments {
		mode := strings.TrimSpace(split.Mode)
		if mode != domain.PayModeCash && mode != domain.PayModeCard && mode != domain.PayModeTransfer && mode != domain.PayModeCheck {
			return nil, nil, fmt.Errorf("%w: unsupported split mode %q", store.ErrInvalidSale, split.Mode)
		}
		if split.AmountCents < 1 {
			return nil, nil, fmt.Errorf("%w: split amount must be positive", store.ErrInvalidSale)
		}

		payment := domain.Payment{
			AmountCents: split.AmountCents,
			Mode:        mode,
			Status:      paymentStatus,
		}

		if mode == domain.PayModeTransfer {
			if split.BankAccountID == "" {
				return nil, nil, fmt.Errorf("%w: transfer split requires a bank account", store.ErrInvalidSale)
			}
			if _, err := s.repo.GetBankAccount(ctx, split.BankAccountID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil, nil, fmt.Errorf("%w: bank account %s does not exist", store.ErrInvalidSale, split.BankAccountID)
				}
				return nil, nil, err
			}
			payment.BankAccountID = split.BankAccountID
		}

		if mode == domain.PayModeCheck {
			number := strings.TrimSpace(split.CheckNumber)
			if number == "" {
				return nil, nil, fmt.Errorf("%w: check split requires the check number", store.ErrInvalidSale)
			}
			payment.CheckNumber = number
			var dueDate *time.Time
			if strings.TrimSpace(split.CheckDueDate) != "" {
				parsed, err := parseDate(split.CheckDueDate)
				if err != nil {
					return nil, nil, fmt.Errorf("%w: invalid check due date %q", store.ErrInvalidSale, split.CheckDueDate)
				}
				dueDate = parsed
			}
			payment.CheckDueDate = dueDate
			now := time.Now().UTC()
			check := domain.Check{
				Number:      number,
				AmountCents: split.AmountCents,
				IssueDate:   &now,
				DueDate:     dueDate,
				Status:      domain.CheckStatusPending,
			}
			if sale.ClientID != "" {
				if client, err := s.repo.GetClient(ctx, sale.ClientID); err == nil {
					check.ClientName = client.Name
					check.ClientEmail = client.Email
				}
			}
			checks = append(checks, check)
		}

		payments = append(payments, payment)
	}
	return payments, checks, nil
}

// ledgerEntriesFor maps validated payments of a paid sale onto the
// books: cash to the register, transfers to the bank account. Card and
// check payments only hit a book later, at settlement or cashing.
func ledgerEntriesFor(payments []domain.Payment, actor string) []domain.LedgerEntry {
	var entries []domain.LedgerEntry
	for _, payment := range payments {
		switch payment.Mode {
		case domain.PayModeCash:
			entries = append(entries, domain.LedgerEntry{
				Book:        domain.LedgerBookCash,
				Direction:   domain.LedgerDirectionIn,
				AmountCents: payment.AmountCents,
				Description: "sale settlement",
				Category:    "sale",
				CreatedBy:   actor,
			})
		case domain.PayModeTransfer:
			if payment.BankAccountID == "" {
				continue
			}
			entries = append(entries, domain.LedgerEntry{
				Book:          domain.LedgerBookBank,
				Direction:     domain.LedgerDirectionIn,
				AmountCents:   payment.AmountCents,
				Description:   "sale settlement",
				Category:      "sale",
				BankAccountID: payment.BankAccountID,
				CreatedBy:     actor,
			})
		}
	}
	return entries
}

func (s *Service) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.repo.GetSale(ctx, id)
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleListFilter) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) UpdateSale(ctx context.Context, id string, req domain.SaleUpdateRequest) (*domain.Sale, error) {
	existing, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}

	restock := false
	if req.Status != nil {
		next := strings.TrimSpace(*req.Status)
		if !isKnownStatus(next) {
			return nil, fmt.Errorf("%w: unknown status %q", store.ErrInvalidSale, next)
		}
		if isTerminalStatus(existing.Status) && next != existing.Status {
			return nil, fmt.Errorf("%w: sale %s is already %s", store.ErrInvalidSale, id, existing.Status)
		}
		if isTerminalStatus(next) && !isTerminalStatus(existing.Status) {
			restock = true
		}
		existing.Status = next
	}
	if req.Reference != nil {
		ref := strings.TrimSpace(*req.Reference)
		if ref == "" {
			return nil, fmt.Errorf("%w: reference must not be empty", store.ErrInvalidSale)
		}
		existing.Reference = ref
	}
	if req.ClientID != nil {
		clientID := strings.TrimSpace(*req.ClientID)
		if clientID != "" {
			if _, err := s.repo.GetClient(ctx, clientID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil, fmt.Errorf("%w: client %s does not exist", store.ErrInvalidSale, clientID)
				}
				return nil, err
			}
		}
		existing.ClientID = clientID
	}
	if req.Notes != nil {
		existing.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.DeliveryAddress != nil {
		existing.DeliveryAddress = strings.TrimSpace(*req.DeliveryAddress)
	}
	if req.DeliveryDate != nil {
		if strings.TrimSpace(*req.DeliveryDate) == "" {
			existing.DeliveryDate = nil
		} else {
			parsed, err := parseDate(*req.DeliveryDate)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid delivery date %q", store.ErrInvalidSale, *req.DeliveryDate)
			}
			existing.DeliveryDate = parsed
		}
	}
	if req.DiscountCents != nil {
		if *req.DiscountCents < 0 {
			return nil, fmt.Errorf("%w: discount must not be negative", store.ErrInvalidSale)
		}
		existing.DiscountCents = *req.DiscountCents
		existing.TotalCents = existing.SubtotalCents + existing.TaxCents - existing.DiscountCents + existing.DeliveryFeeCents
	}

	updated, err := s.repo.UpdateSale(ctx, *existing, restock)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "sale.update", "sale", updated.ID, updated.Reference)
	return updated, nil
}

func (s *Service) CancelSale(ctx context.Context, id string, req domain.SaleCancelRequest) (*domain.Sale, error) {
	cancelled, err := s.repo.CancelSale(ctx, id, domain.SaleStatusCancelled, strings.TrimSpace(req.Reason))
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "sale.cancel", "sale", cancelled.ID, strings.TrimSpace(req.Reason))
	return cancelled, nil
}

func (s *Service) RefundSale(ctx context.Context, id string, reason string) (*domain.Sale, error) {
	refunded, err := s.repo.CancelSale(ctx, id, domain.SaleStatusRefunded, strings.TrimSpace(reason))
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "sale.refund", "sale", refunded.ID, strings.TrimSpace(reason))
	return refunded, nil
}

func (s *Service) DeleteSale(ctx context.Context, id string) error {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteSale(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "sale.delete", "sale", id, sale.Reference)
	return nil
}

func (s *Service) RenderDocument(ctx context.Context, saleID string, kind string) (string, error) {
	if kind != domain.DocumentInvoice && kind != domain.DocumentQuote && kind != domain.DocumentWarranty {
		return "", fmt.Errorf("%w: unknown document kind %q", store.ErrInvalidSale, kind)
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return "", err
	}
	if kind != domain.DocumentQuote && isTerminalStatus(sale.Status) {
		return "", fmt.Errorf("%w: no %s for a %s sale", store.ErrInvalidSale, kind, sale.Status)
	}

	var client *domain.Client
	if sale.ClientID != "" {
		found, err := s.repo.GetClient(ctx, sale.ClientID)
		if err == nil {
			client = found
		} else if !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
	}
	return s.docs.Render(ctx, kind, *sale, client)
}

// RecordReturn handles the plain hand-back flow: only a Return row is
// written, stock restoration stays wired to sale cancel/delete.
func (s *Service) RecordReturn(ctx context.Context, req domain.RepriseCreateRequest) (*domain.Return, error) {
	old, err := normalizeRepriseProduct(req.OldProduct)
	if err != nil {
		return nil, err
	}

	actor, _ := ActorFromContext(ctx)
	created, err := s.repo.CreateReturn(ctx, domain.Return{
		ProductID:      old.ProductID,
		ProductType:    old.ProductType,
		ProductName:    old.Name,
		Qty:            old.Qty,
		UnitPriceCents: old.UnitPriceCents,
		TotalCents:     old.UnitPriceCents * int64(old.Qty),
		Reason:         strings.TrimSpace(req.Reason),
		Kind:           domain.ReturnKindSimple,
		ClientID:       req.ClientID,
		Status:         domain.ReturnStatusPending,
		CreatedBy:      actor.Username,
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "return.create", "return", created.ID, old.Name)
	return created, nil
}

func (s *Service) ListReturns(ctx context.Context, status string, limit int) ([]domain.Return, error) {
	return s.repo.ListReturns(ctx, status, limit)
}

func (s *Service) CreateReprise(ctx context.Context, req domain.RepriseCreateRequest) (*domain.RepriseResponse, error) {
	if req.ClientID == "" {
		return nil, fmt.Errorf("%w: a trade-in requires a client", store.ErrInvalidSale)
	}
	if _, err := s.repo.GetClient(ctx, req.ClientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: client %s does not exist", store.ErrInvalidSale, req.ClientID)
		}
		return nil, err
	}
	old, err := normalizeRepriseProduct(req.OldProduct)
	if err != nil {
		return nil, err
	}
	if req.NewProduct == nil {
		return nil, fmt.Errorf("%w: a trade-in requires the new product", store.ErrInvalidSale)
	}
	next, err := normalizeRepriseProduct(*req.NewProduct)
	if err != nil {
		return nil, err
	}

	oldTotal := old.UnitPriceCents * int64(old.Qty)
	newTotal := next.UnitPriceCents * int64(next.Qty)
	delta := newTotal - oldTotal

	settlementMode := strings.TrimSpace(req.SettlementMode)
	if delta == 0 && settlementMode != "" {
		return nil, fmt.Errorf("%w: no settlement is needed when the totals match", store.ErrInvalidSale)
	}
	if delta != 0 {
		if settlementMode != domain.PayModeCash && settlementMode != domain.PayModeCard &&
			settlementMode != domain.PayModeTransfer && settlementMode != domain.PayModeCheck {
			return nil, fmt.Errorf("%w: a settlement mode is required when the totals differ", store.ErrInvalidSale)
		}
		if settlementMode == domain.PayModeTransfer {
			if req.BankAccountID == "" {
				return nil, fmt.Errorf("%w: a transfer settlement requires a bank account", store.ErrInvalidSale)
			}
			if _, err := s.repo.GetBankAccount(ctx, req.BankAccountID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil, fmt.Errorf("%w: bank account %s does not exist", store.ErrInvalidSale, req.BankAccountID)
				}
				return nil, err
			}
		}
	}

	actor, _ := ActorFromContext(ctx)
	ret := domain.Return{
		ProductID:      old.ProductID,
		ProductType:    old.ProductType,
		ProductName:    old.Name,
		Qty:            old.Qty,
		UnitPriceCents: old.UnitPriceCents,
		TotalCents:     oldTotal,
		Reason:         strings.TrimSpace(req.Reason),
		Kind:           domain.ReturnKindTradeIn,
		ClientID:       req.ClientID,
		Status:         domain.ReturnStatusProcessed,
		CreatedBy:      actor.Username,
	}
	reprise := domain.Reprise{
		ClientID:       req.ClientID,
		OldProduct:     old,
		NewProduct:     &next,
		DeltaCents:     delta,
		SettlementMode: settlementMode,
		BankAccountID:  req.BankAccountID,
		Status:         domain.RepriseStatusSettled,
		Notes:          strings.TrimSpace(req.Notes),
		CreatedBy:      actor.Username,
	}
	if delta == 0 {
		reprise.Status = domain.RepriseStatusOpen
	}

	settlement := repriseSettlementEntry(delta, settlementMode, req.BankAccountID, actor.Username)
	created, err := s.repo.CreateReprise(ctx, ret, reprise, settlement)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "reprise.create", "reprise", created.ID,
		fmt.Sprintf("delta=%d mode=%s", delta, settlementMode))

	ret.ID = created.ReturnID
	return &domain.RepriseResponse{Return: ret, Reprise: created}, nil
}

// repriseSettlementEntry maps a non-zero delta onto the books. A
// positive delta is money the client pays in, a negative one money the
// store hands back. Card and check settlements hit a book later, like
// sale payments.
func repriseSettlementEntry(delta int64, mode string, bankAccountID string, actor string) *domain.LedgerEntry {
	if delta == 0 || (mode != domain.PayModeCash && mode != domain.PayModeTransfer) {
		return nil
	}
	entry := domain.LedgerEntry{
		Book:        domain.LedgerBookCash,
		Direction:   domain.LedgerDirectionIn,
		AmountCents: delta,
		Description: "trade-in settlement",
		Category:    "reprise",
		CreatedBy:   actor,
	}
	if delta < 0 {
		entry.Direction = domain.LedgerDirectionOut
		entry.AmountCents = -delta
	}
	if mode == domain.PayModeTransfer {
		entry.Book = domain.LedgerBookBank
		entry.BankAccountID = bankAccountID
	}
	return &entry
}

func (s *Service) ListReprises(ctx context.Context, limit int) ([]domain.Reprise, error) {
	return s.repo.ListReprises(ctx, limit)
}

func (s *Service) ListChecks(ctx context.Context, status string, limit int) ([]domain.Check, error) {
	return s.repo.ListChecks(ctx, status, limit)
}

func (s *Service) CashCheck(ctx context.Context, id string, req domain.CheckCashRequest) (*domain.Check, error) {
	method := strings.TrimSpace(req.Method)
	if method != domain.CheckCashMethodCash && method != domain.CheckCashMethodTransfer {
		return nil, fmt.Errorf("%w: unsupported cashing method %q", store.ErrInvalidSale, req.Method)
	}
	if method == domain.CheckCashMethodTransfer && req.BankAccountID == "" {
		return nil, fmt.Errorf("%w: cashing by transfer requires a bank account", store.ErrInvalidSale)
	}

	cashed, err := s.repo.SettleCheck(ctx, id, domain.CheckStatusCashed, method, req.BankAccountID)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "check.cash", "check", cashed.ID, method)
	return cashed, nil
}

func (s *Service) RejectCheck(ctx context.Context, id string) (*domain.Check, error) {
	rejected, err := s.repo.SettleCheck(ctx, id, domain.CheckStatusRejected, "", "")
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "check.reject", "check", rejected.ID, "")
	return rejected, nil
}

func (s *Service) CancelCheck(ctx context.Context, id string) (*domain.Check, error) {
	cancelled, err := s.repo.SettleCheck(ctx, id, domain.CheckStatusCancelled, "", "")
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "check.cancel", "check", cancelled.ID, "")
	return cancelled, nil
}

func (s *Service) AppendLedgerEntry(ctx context.Context, book string, req domain.LedgerAppendRequest) (*domain.LedgerEntry, error) {
	if book != domain.LedgerBookCash && book != domain.LedgerBookBank {
		return nil, fmt.Errorf("%w: unknown ledger book %q", store.ErrInvalidSale, book)
	}
	if req.Direction != domain.LedgerDirectionIn && req.Direction != domain.LedgerDirectionOut {
		return nil, fmt.Errorf("%w: direction must be in or out", store.ErrInvalidSale)
	}
	if req.AmountCents < 1 {
		return nil, fmt.Errorf("%w: amount must be positive", store.ErrInvalidSale)
	}
	if book == domain.LedgerBookBank {
		if req.BankAccountID == "" {
			return nil, fmt.Errorf("%w: a bank entry requires a bank account", store.ErrInvalidSale)
		}
		if _, err := s.repo.GetBankAccount(ctx, req.BankAccountID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: bank account %s does not exist", store.ErrInvalidSale, req.BankAccountID)
			}
			return nil, err
		}
	}

	actor, _ := ActorFromContext(ctx)
	created, err := s.repo.AppendLedgerEntry(ctx, domain.LedgerEntry{
		Book:          book,
		Direction:     req.Direction,
		AmountCents:   req.AmountCents,
		Description:   strings.TrimSpace(req.Description),
		Category:      strings.TrimSpace(req.Category),
		BankAccountID: req.BankAccountID,
		Counterparty:  strings.TrimSpace(req.Counterparty),
		CreatedBy:     actor.Username,
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "ledger.append", "ledger", created.ID, book)
	return created, nil
}

func (s *Service) ListLedgerEntries(ctx context.Context, filter domain.LedgerListFilter) ([]domain.LedgerEntry, error) {
	return s.repo.ListLedgerEntries(ctx, filter)
}

func (s *Service) ReconcileLedgerEntry(ctx context.Context, id string, reconciled bool) (*domain.LedgerEntry, error) {
	updated, err := s.repo.SetLedgerReconciled(ctx, id, reconciled)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "ledger.reconcile", "ledger", id, fmt.Sprintf("reconciled=%t", reconciled))
	return updated, nil
}

func (s *Service) CreateClient(ctx context.Context, req domain.ClientCreateRequest) (*domain.Client, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: client name is required", store.ErrInvalidSale)
	}

	actor, _ := ActorFromContext(ctx)
	created, err := s.repo.CreateClient(ctx, domain.Client{
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		CreatedBy: actor.Username,
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "client.create", "client", created.ID, created.Name)
	return created, nil
}

func (s *Service) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	return s.repo.GetClient(ctx, id)
}

func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.repo.ListClients(ctx)
}

func (s *Service) UpdateClient(ctx context.Context, id string, req domain.ClientCreateRequest) (*domain.Client, error) {
	existing, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: client name is required", store.ErrInvalidSale)
	}

	existing.Name = strings.TrimSpace(req.Name)
	existing.Email = strings.TrimSpace(req.Email)
	existing.Phone = strings.TrimSpace(req.Phone)
	existing.Address = strings.TrimSpace(req.Address)
	updated, err := s.repo.UpdateClient(ctx, *existing)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "client.update", "client", updated.ID, updated.Name)
	return updated, nil
}

func (s *Service) DeleteClient(ctx context.Context, id string) error {
	if err := s.repo.DeleteClient(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "client.delete", "client", id, "")
	return nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (*domain.Supplier, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: supplier name is required", store.ErrInvalidSale)
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:    strings.TrimSpace(req.Name),
		Contact: strings.TrimSpace(req.Contact),
		Phone:   strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "supplier.create", "supplier", created.ID, created.Name)
	return created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreateBankAccount(ctx context.Context, req domain.BankAccountCreateRequest) (*domain.BankAccount, error) {
	if strings.TrimSpace(req.Label) == "" {
		return nil, fmt.Errorf("%w: account label is required", store.ErrInvalidSale)
	}

	created, err := s.repo.CreateBankAccount(ctx, domain.BankAccount{
		Label:    strings.TrimSpace(req.Label),
		BankName: strings.TrimSpace(req.BankName),
		Number:   strings.TrimSpace(req.Number),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "bank_account.create", "bank_account", created.ID, created.Label)
	return created, nil
}

func (s *Service) ListBankAccounts(ctx context.Context) ([]domain.BankAccount, error) {
	return s.repo.ListBankAccounts(ctx)
}

func (s *Service) CreateAssignment(ctx context.Context, req domain.AssignmentCreateRequest) (*domain.Assignment, error) {
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Assignee) == "" {
		return nil, fmt.Errorf("%w: assignment title and assignee are required", store.ErrInvalidSale)
	}
	var dueDate *time.Time
	if strings.TrimSpace(req.DueDate) != "" {
		parsed, err := parseDate(req.DueDate)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid due date %q", store.ErrInvalidSale, req.DueDate)
		}
		dueDate = parsed
	}

	actor, _ := ActorFromContext(ctx)
	created, err := s.repo.CreateAssignment(ctx, domain.Assignment{
		Title:     strings.TrimSpace(req.Title),
		Detail:    strings.TrimSpace(req.Detail),
		Assignee:  strings.TrimSpace(req.Assignee),
		Status:    domain.AssignmentStatusOpen,
		DueDate:   dueDate,
		CreatedBy: actor.Username,
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "assignment.create", "assignment", created.ID, created.Title)
	return created, nil
}

func (s *Service) ListAssignments(ctx context.Context, assignee string, status string) ([]domain.Assignment, error) {
	return s.repo.ListAssignments(ctx, assignee, status)
}

func (s *Service) CompleteAssignment(ctx context.Context, id string) (*domain.Assignment, error) {
	updated, err := s.repo.UpdateAssignmentStatus(ctx, id, domain.AssignmentStatusDone)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "assignment.complete", "assignment", id, "")
	return updated, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: audit log write failed for %s: %v", action, err)
	}
}

func normalizeRepriseProduct(product domain.RepriseProduct) (domain.RepriseProduct, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" {
		return domain.RepriseProduct{}, fmt.Errorf("%w: product name is required", store.ErrInvalidSale)
	}
	if product.Qty < 1 {
		return domain.RepriseProduct{}, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidSale)
	}
	if product.UnitPriceCents < 0 {
		return domain.RepriseProduct{}, fmt.Errorf("%w: unit price must not be negative", store.ErrInvalidSale)
	}
	// Ad-hoc products entered by hand get a synthetic id.
	if strings.TrimSpace(product.ProductID) == "" {
		product.ProductID = xid.New("adhoc")
	}
	return product, nil
}

func normalizeSaleKind(kind string) string {
	switch strings.TrimSpace(strings.ToLower(kind)) {
	case "", domain.SaleKindStandard:
		return domain.SaleKindStandard
	case domain.SaleKindPurchaseOrder, "ba":
		return domain.SaleKindPurchaseOrder
	default:
		return ""
	}
}

func isSupportedProductType(productType string) bool {
	for _, known := range domain.ProductTypes {
		if productType == known {
			return true
		}
	}
	return false
}

func isSupportedPayMode(mode string) bool {
	switch mode {
	case domain.PayModeCash, domain.PayModeCard, domain.PayModeTransfer, domain.PayModeCheck, domain.PayModeMixed:
		return true
	default:
		return false
	}
}

func isSupportedChannel(channel string) bool {
	switch channel {
	case domain.ChannelInStore, domain.ChannelOnline, domain.ChannelPhone, domain.ChannelOrder:
		return true
	default:
		return false
	}
}

func isKnownStatus(status string) bool {
	switch status {
	case domain.SaleStatusInProgress, domain.SaleStatusPaid, domain.SaleStatusPartiallyPaid,
		domain.SaleStatusCancelled, domain.SaleStatusRefunded:
		return true
	default:
		return false
	}
}

func isTerminalStatus(status string) bool {
	return status == domain.SaleStatusCancelled || status == domain.SaleStatusRefunded
}

func parseDate(raw string) (*time.Time, error) {
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	parsed = parsed.UTC()
	return &parsed, nil
}
