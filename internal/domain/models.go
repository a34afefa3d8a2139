package domain

import "time"

type Settings struct {
	StoreName         string    `json:"store_name"`
	Currency          string    `json:"currency"`
	TaxEnabled        bool      `json:"tax_enabled"`
	TaxRatePercent    float64   `json:"tax_rate_percent"`
	ReceiptFooter     string    `json:"receipt_footer"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type SettingsUpdateRequest struct {
	StoreName         *string  `json:"store_name,omitempty" validate:"omitempty,min=1,max=120"`
	Currency          *string  `json:"currency,omitempty" validate:"omitempty,len=3"`
	TaxEnabled        *bool    `json:"tax_enabled,omitempty"`
	TaxRatePercent    *float64 `json:"tax_rate_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	ReceiptFooter     *string  `json:"receipt_footer,omitempty" validate:"omitempty,max=240"`
	LowStockThreshold *int     `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
}

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type CategoryCreateRequest struct {
	Name string `json:"name" validate:"required,max=80"`
}

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CategoryID  string    `json:"category_id"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	Variants    []Variant `json:"variants"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Variant is a sellable SKU of a product with its own price and stock count.
type Variant struct {
	ID         string `json:"id"`
	ProductID  string `json:"product_id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Barcode    string `json:"barcode,omitempty"`
	PriceCents int64  `json:"price_cents"`
	CostCents  int64  `json:"cost_cents"`
	Stock      int    `json:"stock"`
}

type VariantInput struct {
	SKU        string `json:"sku" validate:"required,max=64"`
	Name       string `json:"name" validate:"required,max=120"`
	Barcode    string `json:"barcode,omitempty" validate:"omitempty,max=64"`
	PriceCents int64  `json:"price_cents" validate:"gte=1"`
	CostCents  int64  `json:"cost_cents" validate:"gte=0"`
	Stock      int    `json:"stock" validate:"gte=0"`
}

type ProductCreateRequest struct {
	Name        string         `json:"name" validate:"required,max=160"`
	CategoryID  string         `json:"category_id" validate:"required"`
	Description string         `json:"description,omitempty" validate:"max=1000"`
	Variants    []VariantInput `json:"variants" validate:"required,min=1,dive"`
}

type ProductUpdateRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=160"`
	CategoryID  *string `json:"category_id,omitempty" validate:"omitempty,min=1"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	Active      *bool   `json:"active,omitempty"`
}

type ProductFilter struct {
	Query      string
	CategoryID string
	Page       int
	PerPage    int
}

type ProductPage struct {
	Products   []Product  `json:"products"`
	Pagination Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

type ProductImportResult struct {
	Created  int      `json:"created"`
	Skipped  int      `json:"skipped"`
	Problems []string `json:"problems,omitempty"`
}

type LowStockItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	VariantID   string `json:"variant_id"`
	SKU         string `json:"sku"`
	Stock       int    `json:"stock"`
	Threshold   int    `json:"threshold"`
}

type StockCountLine struct {
	VariantID  string `json:"variant_id" validate:"required"`
	CountedQty int    `json:"counted_qty" validate:"gte=0"`
}

type StockCountRequest struct {
	Notes string           `json:"notes" validate:"max=240"`
	Lines []StockCountLine `json:"lines" validate:"required,min=1,dive"`
}

type StockAdjustment struct {
	VariantID  string `json:"variant_id"`
	SKU        string `json:"sku"`
	SystemQty  int    `json:"system_qty"`
	CountedQty int    `json:"counted_qty"`
	DeltaQty   int    `json:"delta_qty"`
}

type StockCountResponse struct {
	CountID     string            `json:"count_id"`
	Notes       string            `json:"notes"`
	Adjustments []StockAdjustment `json:"adjustments"`
	CreatedAt   time.Time         `json:"created_at"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

type CartItem struct {
	VariantID string `json:"variant_id" validate:"required"`
	Qty       int    `json:"qty" validate:"gte=1"`
}

type QuoteRequest struct {
	Items []CartItem `json:"items" validate:"required,min=1,dive"`
}

type QuoteLine struct {
	VariantID      string `json:"variant_id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type QuoteResponse struct {
	Lines          []QuoteLine `json:"lines"`
	SubtotalCents  int64       `json:"subtotal_cents"`
	TaxEnabled     bool        `json:"tax_enabled"`
	TaxRatePercent float64     `json:"tax_rate_percent"`
	TaxCents       int64       `json:"tax_cents"`
	TotalCents     int64       `json:"total_cents"`
}

type CheckoutRequest struct {
	TerminalID       string     `json:"terminal_id" validate:"required,max=64"`
	IdempotencyKey   string     `json:"idempotency_key" validate:"max=128"`
	CustomerID       string     `json:"customer_id,omitempty"`
	PaymentMethod    string     `json:"payment_method" validate:"omitempty,oneof=cash card transfer"`
	PaymentReference string     `json:"payment_reference,omitempty" validate:"max=128"`
	TenderedCents    int64      `json:"tendered_cents" validate:"gte=0"`
	Items            []CartItem `json:"items" validate:"required,min=1,dive"`
}

type SaleLine struct {
	VariantID      string `json:"variant_id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	UnitCostCents  int64  `json:"unit_cost_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type Sale struct {
	ID               string     `json:"id"`
	IdempotencyKey   string     `json:"idempotency_key"`
	TerminalID       string     `json:"terminal_id"`
	SessionID        string     `json:"session_id"`
	CustomerID       string     `json:"customer_id,omitempty"`
	Cashier          string     `json:"cashier"`
	PaymentMethod    string     `json:"payment_method"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	Lines            []SaleLine `json:"lines"`
	SubtotalCents    int64      `json:"subtotal_cents"`
	TaxRatePercent   float64    `json:"tax_rate_percent"`
	TaxCents         int64      `json:"tax_cents"`
	TotalCents       int64      `json:"total_cents"`
	TenderedCents    int64      `json:"tendered_cents"`
	ChangeCents      int64      `json:"change_cents"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
}

type CheckoutResponse struct {
	Sale      Sale `json:"sale"`
	Duplicate bool `json:"duplicate"`
}

type SaleLookupResponse struct {
	Found bool  `json:"found"`
	Sale  *Sale `json:"sale,omitempty"`
}

type SaleFilter struct {
	From      time.Time
	To        time.Time
	SessionID string
	Limit     int
}

type ReturnLineRequest struct {
	VariantID string `json:"variant_id" validate:"required"`
	Qty       int    `json:"qty" validate:"gte=1"`
}

type ReturnRequest struct {
	SaleID       string              `json:"sale_id" validate:"required"`
	TerminalID   string              `json:"terminal_id,omitempty" validate:"max=64"`
	RefundMethod string              `json:"refund_method" validate:"omitempty,oneof=cash card transfer"`
	Restock      bool                `json:"restock"`
	Reason       string              `json:"reason" validate:"required,max=240"`
	ManagerPIN   string              `json:"manager_pin,omitempty"`
	Lines        []ReturnLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type ReturnLine struct {
	VariantID      string `json:"variant_id"`
	SKU            string `json:"sku"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	AmountCents    int64  `json:"amount_cents"`
}

type Return struct {
	ID            string       `json:"id"`
	SaleID        string       `json:"sale_id"`
	SessionID     string       `json:"session_id,omitempty"`
	Lines         []ReturnLine `json:"lines"`
	SubtotalCents int64        `json:"subtotal_cents"`
	TaxCents      int64        `json:"tax_cents"`
	RefundCents   int64        `json:"refund_cents"`
	RefundMethod  string       `json:"refund_method"`
	Restock       bool         `json:"restock"`
	Reason        string       `json:"reason"`
	ProcessedBy   string       `json:"processed_by"`
	CreatedAt     time.Time    `json:"created_at"`
}

type PurchaseLine struct {
	VariantID     string `json:"variant_id" validate:"required"`
	Qty           int    `json:"qty" validate:"gte=1"`
	UnitCostCents int64  `json:"unit_cost_cents" validate:"gte=1"`
}

type PurchaseCreateRequest struct {
	SupplierID string         `json:"supplier_id" validate:"required"`
	Notes      string         `json:"notes,omitempty" validate:"max=240"`
	Lines      []PurchaseLine `json:"lines" validate:"required,min=1,dive"`
}

type Purchase struct {
	ID         string         `json:"id"`
	SupplierID string         `json:"supplier_id"`
	Status     string         `json:"status"`
	Notes      string         `json:"notes,omitempty"`
	Lines      []PurchaseLine `json:"lines"`
	TotalCents int64          `json:"total_cents"`
	CreatedBy  string         `json:"created_by"`
	CreatedAt  time.Time      `json:"created_at"`
	ReceivedBy string         `json:"received_by,omitempty"`
	ReceivedAt *time.Time     `json:"received_at,omitempty"`
}

type DrawerOpenRequest struct {
	TerminalID        string `json:"terminal_id" validate:"required,max=64"`
	OpeningFloatCents int64  `json:"opening_float_cents" validate:"gte=0"`
}

type DrawerMovementRequest struct {
	TerminalID  string `json:"terminal_id" validate:"required,max=64"`
	Kind        string `json:"kind" validate:"required,oneof=cash_in cash_out"`
	AmountCents int64  `json:"amount_cents" validate:"gte=1"`
	Note        string `json:"note" validate:"required,max=240"`
}

type DrawerCloseRequest struct {
	TerminalID       string `json:"terminal_id" validate:"required,max=64"`
	CountedCashCents int64  `json:"counted_cash_cents" validate:"gte=0"`
	Notes            string `json:"notes,omitempty" validate:"max=240"`
}

// DrawerSession tracks one interval of cash handling on a terminal.
type DrawerSession struct {
	ID                string     `json:"id"`
	TerminalID        string     `json:"terminal_id"`
	OpenedBy          string     `json:"opened_by"`
	OpeningFloatCents int64      `json:"opening_float_cents"`
	Status            string     `json:"status"`
	ExpectedCashCents int64      `json:"expected_cash_cents"`
	CountedCashCents  int64      `json:"counted_cash_cents"`
	VarianceCents     int64      `json:"variance_cents"`
	VarianceStatus    string     `json:"variance_status,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	OpenedAt          time.Time  `json:"opened_at"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
}

type CashMovement struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Kind        string    `json:"kind"`
	AmountCents int64     `json:"amount_cents"`
	Reference   string    `json:"reference,omitempty"`
	Note        string    `json:"note,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type DrawerSummary struct {
	OpeningFloatCents int64  `json:"opening_float_cents"`
	CashSalesCents    int64  `json:"cash_sales_cents"`
	CashRefundsCents  int64  `json:"cash_refunds_cents"`
	CashInCents       int64  `json:"cash_in_cents"`
	CashOutCents      int64  `json:"cash_out_cents"`
	ExpectedCashCents int64  `json:"expected_cash_cents"`
	CountedCashCents  int64  `json:"counted_cash_cents"`
	VarianceCents     int64  `json:"variance_cents"`
	VarianceStatus    string `json:"variance_status"`
}

type DrawerResponse struct {
	Session   DrawerSession  `json:"session"`
	Summary   DrawerSummary  `json:"summary"`
	Movements []CashMovement `json:"movements"`
}

type SalesSummaryPayment struct {
	PaymentMethod string `json:"payment_method"`
	Sales         int64  `json:"sales"`
	TotalCents    int64  `json:"total_cents"`
}

type SalesSummaryVariant struct {
	VariantID    string `json:"variant_id"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Qty          int64  `json:"qty"`
	RevenueCents int64  `json:"revenue_cents"`
}

type SalesSummary struct {
	From          time.Time             `json:"from"`
	To            time.Time             `json:"to"`
	Sales         int64                 `json:"sales"`
	SubtotalCents int64                 `json:"subtotal_cents"`
	TaxCents      int64                 `json:"tax_cents"`
	TotalCents    int64                 `json:"total_cents"`
	Returns       int64                 `json:"returns"`
	RefundCents   int64                 `json:"refund_cents"`
	NetCents      int64                 `json:"net_cents"`
	CostCents     int64                 `json:"cost_cents"`
	ByPayment     []SalesSummaryPayment `json:"by_payment"`
	TopVariants   []SalesSummaryVariant `json:"top_variants"`
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

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
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

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
)

const (
	SaleStatusCompleted         = "completed"
	SaleStatusPartiallyReturned = "partially_returned"
	SaleStatusReturned          = "returned"
)

const (
	PurchaseStatusOrdered   = "ordered"
	PurchaseStatusReceived  = "received"
	PurchaseStatusCancelled = "cancelled"
)

const (
	DrawerStatusOpen   = "open"
	DrawerStatusClosed = "closed"
)

const (
	MovementSale    = "sale"
	MovementRefund  = "refund"
	MovementCashIn  = "cash_in"
	MovementCashOut = "cash_out"
)

const (
	VarianceBalanced = "balanced"
	VarianceOver     = "over"
	VarianceShort    = "short"
)

// SellableVariant joins a variant with the product fields checkout needs.
type SellableVariant struct {
	Variant
	ProductName   string
	ProductActive bool
}

// StockCount is the persisted result of a physical count.
type StockCount struct {
	ID          string
	Notes       string
	CountedBy   string
	Lines       []StockCountLine
	Adjustments []StockAdjustment
	CreatedAt   time.Time
}
