package store

import (
	"context"
	"errors"

	"gearshop/backend/internal/domain"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrDuplicateReference     = errors.New("duplicate reference")
	ErrInvalidSale            = errors.New("invalid sale")
	ErrUnsupportedProductType = errors.New("unsupported product type")
)

// SaleDraft carries everything CreateSale writes in one transaction:
// the header, its lines, the payment rows, the checks spawned by
// check-mode payments, and the ledger entries for a paid sale. The
// implementation allocates the reference when draft.Sale.Reference is
// empty and rejects it with ErrDuplicateReference when the explicit
// reference is already taken.
type SaleDraft struct {
	Sale     domain.Sale
	Lines    []domain.SaleLine
	Payments []domain.Payment
	Checks   []domain.Check
	Ledger   []domain.LedgerEntry
}

type Repository interface {
	ListProducts(ctx context.Context, productType string, status string) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, productType string, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, productType string, id string) error
	AdjustStock(ctx context.Context, productType string, id string, delta int) (*domain.Product, error)

	NextReference(ctx context.Context, kind string, year int) (string, error)
	ReferenceTaken(ctx context.Context, reference string, excludeSaleID string) (bool, error)
	CreateSale(ctx context.Context, draft SaleDraft) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleListFilter) ([]domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale, restock bool) (*domain.Sale, error)
	CancelSale(ctx context.Context, id string, status string, reason string) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error

	CreateCheck(ctx context.Context, check domain.Check) (*domain.Check, error)
	GetCheck(ctx context.Context, id string) (*domain.Check, error)
	ListChecks(ctx context.Context, status string, limit int) ([]domain.Check, error)
	SettleCheck(ctx context.Context, id string, status string, method string, bankAccountID string) (*domain.Check, error)

	AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error)
	ListLedgerEntries(ctx context.Context, filter domain.LedgerListFilter) ([]domain.LedgerEntry, error)
	SetLedgerReconciled(ctx context.Context, id string, reconciled bool) (*domain.LedgerEntry, error)

	CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error)
	ListReturns(ctx context.Context, status string, limit int) ([]domain.Return, error)
	CreateReprise(ctx context.Context, ret domain.Return, reprise domain.Reprise, settlement *domain.LedgerEntry) (*domain.Reprise, error)
	ListReprises(ctx context.Context, limit int) ([]domain.Reprise, error)

	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	GetClient(ctx context.Context, id string) (*domain.Client, error)
	ListClients(ctx context.Context) ([]domain.Client, error)
	UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	DeleteClient(ctx context.Context, id string) error

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)

	CreateBankAccount(ctx context.Context, account domain.BankAccount) (*domain.BankAccount, error)
	GetBankAccount(ctx context.Context, id string) (*domain.BankAccount, error)
	ListBankAccounts(ctx context.Context) ([]domain.BankAccount, error)

	CreateAssignment(ctx context.Context, assignment domain.Assignment) (*domain.Assignment, error)
	ListAssignments(ctx context.Context, assignee string, status string) ([]domain.Assignment, error)
	UpdateAssignmentStatus(ctx context.Context, id string, status string) (*domain.Assignment, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
