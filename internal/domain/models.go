package domain

import "time"

// Product is the shared shape of every catalog category. The Type field
// selects which category table the row lives in on the postgres side.
type Product struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Name          string    `json:"name"`
	Brand         string    `json:"brand"`
	Model         string    `json:"model"`
	Attributes    string    `json:"attributes,omitempty"`
	PurchaseCents int64     `json:"purchase_cents"`
	PriceCents    int64     `json:"price_cents"`
	CurrentStock  int       `json:"current_stock"`
	MinStock      int       `json:"min_stock"`
	Status        string    `json:"status"`
	SupplierID    string    `json:"supplier_id,omitempty"`
	Barcode       string    `json:"barcode,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	CreatedBy     string    `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	Brand         string `json:"brand"`
	Model         string `json:"model"`
	Attributes    string `json:"attributes"`
	PurchaseCents int64  `json:"purchase_cents"`
	PriceCents    int64  `json:"price_cents"`
	InitialStock  int    `json:"initial_stock"`
	MinStock      int    `json:"min_stock"`
	SupplierID    string `json:"supplier_id"`
	Barcode       string `json:"barcode"`
	ImageURL      string `json:"image_url"`
}

type ProductUpdateRequest struct {
	Name          *string `json:"name,omitempty"`
	Brand         *string `json:"brand,omitempty"`
	Model         *string `json:"model,omitempty"`
	Attributes    *string `json:"attributes,omitempty"`
	PurchaseCents *int64  `json:"purchase_cents,omitempty"`
	PriceCents    *int64  `json:"price_cents,omitempty"`
	MinStock      *int    `json:"min_stock,omitempty"`
	SupplierID    *string `json:"supplier_id,omitempty"`
	Barcode       *string `json:"barcode,omitempty"`
	ImageURL      *string `json:"image_url,omitempty"`
}

type StockAdjustRequest struct {
	ProductType string `json:"product_type"`
	ProductID   string `json:"product_id"`
	Delta       int    `json:"delta"`
	Reason      string `json:"reason"`
	ManagerPIN  string `json:"manager_pin"`
}

// SaleLine freezes the product at sale time; later catalog edits do not
// flow back into recorded sales.
type SaleLine struct {
	ID                string `json:"id"`
	SaleID            string `json:"sale_id"`
	ProductID         string `json:"product_id"`
	ProductType       string `json:"product_type"`
	Name              string `json:"name"`
	Brand             string `json:"brand,omitempty"`
	Model             string `json:"model,omitempty"`
	UnitPriceCents    int64  `json:"unit_price_cents"`
	UnitPriceTTCCents int64  `json:"unit_price_ttc_cents"`
	Qty               int    `json:"qty"`
	UnitDiscountCents int64  `json:"unit_discount_cents"`
	TotalCents        int64  `json:"total_cents"`
	ImageURL          string `json:"image_url,omitempty"`
}

type Payment struct {
	ID            string     `json:"id"`
	SaleID        string     `json:"sale_id"`
	AmountCents   int64      `json:"amount_cents"`
	Mode          string     `json:"mode"`
	CheckNumber   string     `json:"check_number,omitempty"`
	CheckDueDate  *time.Time `json:"check_due_date,omitempty"`
	BankAccountID string     `json:"bank_account_id,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
}

type Sale struct {
	ID               string     `json:"id"`
	Reference        string     `json:"reference"`
	Kind             string     `json:"kind"`
	Date             time.Time  `json:"date"`
	ClientID         string     `json:"client_id,omitempty"`
	Seller           string     `json:"seller,omitempty"`
	SubtotalCents    int64      `json:"subtotal_cents"`
	TaxCents         int64      `json:"tax_cents"`
	DiscountCents    int64      `json:"discount_cents"`
	DeliveryFeeCents int64      `json:"delivery_fee_cents"`
	TotalCents       int64      `json:"total_cents"`
	PaymentMode      string     `json:"payment_mode"`
	Channel          string     `json:"channel"`
	Status           string     `json:"status"`
	DeliveryAddress  string     `json:"delivery_address,omitempty"`
	DeliveryDate     *time.Time `json:"delivery_date,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	CreatedBy        string     `json:"created_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Lines            []SaleLine `json:"lines,omitempty"`
	Payments         []Payment  `json:"payments,omitempty"`
}

type SaleLineRequest struct {
	ProductID         string `json:"product_id"`
	ProductType       string `json:"product_type"`
	Qty               int    `json:"qty"`
	UnitDiscountCents int64  `json:"unit_discount_cents"`
}

type PaymentSplit struct {
	Mode          string `json:"mode"`
	AmountCents   int64  `json:"amount_cents"`
	CheckNumber   string `json:"check_number,omitempty"`
	CheckDueDate  string `json:"check_due_date,omitempty"`
	BankAccountID string `json:"bank_account_id,omitempty"`
}

type SaleCreateRequest struct {
	Reference        string            `json:"reference,omitempty"`
	Kind             string            `json:"kind"`
	ClientID         string            `json:"client_id"`
	Channel          string            `json:"channel"`
	Status           string            `json:"status"`
	PaymentMode      string            `json:"payment_mode"`
	TaxCents         int64             `json:"tax_cents"`
	DiscountCents    int64             `json:"discount_cents"`
	DeliveryFeeCents int64             `json:"delivery_fee_cents"`
	DeliveryAddress  string            `json:"delivery_address"`
	DeliveryDate     string            `json:"delivery_date"`
	Notes            string            `json:"notes"`
	Lines            []SaleLineRequest `json:"lines"`
	Payments         []PaymentSplit    `json:"payments,omitempty"`
}

type SaleUpdateRequest struct {
	Reference       *string `json:"reference,omitempty"`
	Status          *string `json:"status,omitempty"`
	ClientID        *string `json:"client_id,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	DeliveryAddress *string `json:"delivery_address,omitempty"`
	DeliveryDate    *string `json:"delivery_date,omitempty"`
	DiscountCents   *int64  `json:"discount_cents,omitempty"`
}

type SaleCancelRequest struct {
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin"`
}

type SaleDeleteRequest struct {
	ManagerPIN string `json:"manager_pin"`
}

type SaleListFilter struct {
	Kind     string
	Status   string
	ClientID string
	Year     int
	Limit    int
}

type NextReferenceResponse struct {
	Reference string `json:"reference"`
	Kind      string `json:"kind"`
	Year      int    `json:"year"`
}

// Check follows a post-dated check from receipt to cashing or rejection.
type Check struct {
	ID            string     `json:"id"`
	Number        string     `json:"number"`
	AmountCents   int64      `json:"amount_cents"`
	IssueDate     *time.Time `json:"issue_date,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	ClientName    string     `json:"client_name,omitempty"`
	ClientEmail   string     `json:"client_email,omitempty"`
	SaleID        string     `json:"sale_id,omitempty"`
	Status        string     `json:"status"`
	CashMethod    string     `json:"cash_method,omitempty"`
	BankAccountID string     `json:"bank_account_id,omitempty"`
	CashedAt      *time.Time `json:"cashed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type CheckCashRequest struct {
	Method        string `json:"method"`
	BankAccountID string `json:"bank_account_id"`
}

type LedgerEntry struct {
	ID            string    `json:"id"`
	Book          string    `json:"book"`
	Direction     string    `json:"direction"`
	AmountCents   int64     `json:"amount_cents"`
	Description   string    `json:"description"`
	Category      string    `json:"category,omitempty"`
	SaleID        string    `json:"sale_id,omitempty"`
	BankAccountID string    `json:"bank_account_id,omitempty"`
	Counterparty  string    `json:"counterparty,omitempty"`
	Reconciled    bool      `json:"reconciled"`
	CreatedBy     string    `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type LedgerAppendRequest struct {
	Direction     string `json:"direction"`
	AmountCents   int64  `json:"amount_cents"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	BankAccountID string `json:"bank_account_id,omitempty"`
	Counterparty  string `json:"counterparty,omitempty"`
}

type LedgerListFilter struct {
	Book   string
	SaleID string
	Limit  int
}

type Return struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"product_id"`
	ProductType    string    `json:"product_type"`
	ProductName    string    `json:"product_name"`
	Qty            int       `json:"qty"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	TotalCents     int64     `json:"total_cents"`
	Reason         string    `json:"reason,omitempty"`
	Kind           string    `json:"kind"`
	ClientID       string    `json:"client_id,omitempty"`
	Status         string    `json:"status"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// RepriseProduct is the snapshot of one side of a trade-in. An empty
// ProductID marks an ad-hoc product entered by hand; the service assigns
// a synthetic id in that case.
type RepriseProduct struct {
	ProductID      string `json:"product_id"`
	ProductType    string `json:"product_type"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
}

type Reprise struct {
	ID             string          `json:"id"`
	ReturnID       string          `json:"return_id"`
	ClientID       string          `json:"client_id"`
	OldProduct     RepriseProduct  `json:"old_product"`
	NewProduct     *RepriseProduct `json:"new_product,omitempty"`
	DeltaCents     int64           `json:"delta_cents"`
	SettlementMode string          `json:"settlement_mode,omitempty"`
	BankAccountID  string          `json:"bank_account_id,omitempty"`
	Status         string          `json:"status"`
	Notes          string          `json:"notes,omitempty"`
	CreatedBy      string          `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type RepriseCreateRequest struct {
	Kind           string          `json:"kind"`
	ClientID       string          `json:"client_id"`
	OldProduct     RepriseProduct  `json:"old_product"`
	NewProduct     *RepriseProduct `json:"new_product,omitempty"`
	Reason         string          `json:"reason"`
	SettlementMode string          `json:"settlement_mode"`
	BankAccountID  string          `json:"bank_account_id"`
	Notes          string          `json:"notes"`
}

type RepriseResponse struct {
	Return  Return   `json:"return"`
	Reprise *Reprise `json:"reprise,omitempty"`
}

type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ClientCreateRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Phone   string `json:"phone"`
}

type BankAccount struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	BankName  string    `json:"bank_name,omitempty"`
	Number    string    `json:"number,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type BankAccountCreateRequest struct {
	Label    string `json:"label"`
	BankName string `json:"bank_name"`
	Number   string `json:"number"`
}

type Assignment struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Detail    string     `json:"detail,omitempty"`
	Assignee  string     `json:"assignee"`
	Status    string     `json:"status"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type AssignmentCreateRequest struct {
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	Assignee string `json:"assignee"`
	DueDate  string `json:"due_date"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	ProductTypeLaptop      = "laptop"
	ProductTypeMonitor     = "monitor"
	ProductTypePeripheral  = "peripheral"
	ProductTypeGamingChair = "gaming_chair"
	ProductTypeDesktop     = "desktop"
	ProductTypeComponent   = "component"
)

// ProductTypes lists every category in the order the storefront shows
// them. Stock dispatch and the postgres table map both key off it.
var ProductTypes = []string{
	ProductTypeLaptop,
	ProductTypeMonitor,
	ProductTypePeripheral,
	ProductTypeGamingChair,
	ProductTypeDesktop,
	ProductTypeComponent,
}

const (
	StockStatusIn  = "in_stock"
	StockStatusLow = "low_stock"
	StockStatusOut = "out_of_stock"
)

// StockStatusFor derives the catalog status from the on-hand quantity
// and the low-stock threshold.
func StockStatusFor(stock, minStock int) string {
	switch {
	case stock <= 0:
		return StockStatusOut
	case stock <= minStock:
		return StockStatusLow
	default:
		return StockStatusIn
	}
}

const (
	SaleKindStandard      = "sale"
	SaleKindPurchaseOrder = "purchase_order"
)

const (
	SaleStatusInProgress    = "in_progress"
	SaleStatusPaid          = "paid"
	SaleStatusPartiallyPaid = "partially_paid"
	SaleStatusCancelled     = "cancelled"
	SaleStatusRefunded      = "refunded"
)

const (
	PayModeCash     = "cash"
	PayModeCard     = "card"
	PayModeTransfer = "transfer"
	PayModeCheck    = "check"
	PayModeMixed    = "mixed"
)

const (
	ChannelInStore = "in_store"
	ChannelOnline  = "online"
	ChannelPhone   = "phone"
	ChannelOrder   = "order"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusValidated = "validated"
	PaymentStatusRefused   = "refused"
	PaymentStatusCancelled = "cancelled"
)

const (
	CheckStatusPending   = "pending"
	CheckStatusCashed    = "cashed"
	CheckStatusRejected  = "rejected"
	CheckStatusCancelled = "cancelled"
)

const (
	CheckCashMethodCash     = "cash"
	CheckCashMethodTransfer = "transfer"
)

const (
	LedgerBookCash = "cash"
	LedgerBookBank = "bank"
)

const (
	LedgerDirectionIn  = "in"
	LedgerDirectionOut = "out"
)

const (
	ReturnKindSimple  = "simple_return"
	ReturnKindTradeIn = "trade_in"
)

const (
	ReturnStatusPending   = "pending"
	ReturnStatusProcessed = "processed"
)

const (
	RepriseStatusOpen    = "open"
	RepriseStatusSettled = "settled"
)

const (
	AssignmentStatusOpen = "open"
	AssignmentStatusDone = "done"
)

const (
	DocumentInvoice  = "invoice"
	DocumentQuote    = "quote"
	DocumentWarranty = "warranty"
)
