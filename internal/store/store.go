package store

import (
	"context"
	"errors"
	"time"

	"github.com/lakshan9910/studio-sub000/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
)

type Repository interface {
	GetSettings(ctx context.Context) (domain.Settings, error)
	SaveSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error)

	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)

	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetVariants(ctx context.Context, variantIDs []string) (map[string]domain.SellableVariant, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListLowStock(ctx context.Context, threshold int) ([]domain.LowStockItem, error)
	ApplyStockCount(ctx context.Context, count domain.StockCount) (*domain.StockCount, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)

	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	// CreateSale decrements stock, stores the sale and, when cash is non-nil,
	// appends the movement to the sale's drawer session in one unit of work.
	// A repeated idempotency key fails with ErrConflict.
	CreateSale(ctx context.Context, sale domain.Sale, cash *domain.CashMovement) (*domain.Sale, error)
	GetReturnedQty(ctx context.Context, saleID string) (map[string]int, error)
	// CreateReturn settles ret.TaxCents against the sale's unrefunded tax under
	// the same lock that checks returnable quantities, then sets RefundCents
	// and the cash movement amount to match.
	CreateReturn(ctx context.Context, ret domain.Return, cash *domain.CashMovement) (*domain.Return, error)
	ListReturns(ctx context.Context, from time.Time, to time.Time) ([]domain.Return, error)

	CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)
	GetPurchase(ctx context.Context, id string) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, status string, limit int) ([]domain.Purchase, error)
	ReceivePurchase(ctx context.Context, id string, receivedBy string, receivedAt time.Time) (*domain.Purchase, error)
	CancelPurchase(ctx context.Context, id string) (*domain.Purchase, error)

	CreateDrawerSession(ctx context.Context, session domain.DrawerSession) (*domain.DrawerSession, error)
	GetOpenDrawerSession(ctx context.Context, terminalID string) (*domain.DrawerSession, error)
	GetDrawerSession(ctx context.Context, id string) (*domain.DrawerSession, error)
	AddCashMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error)
	ListCashMovements(ctx context.Context, sessionID string) ([]domain.CashMovement, error)
	CloseDrawerSession(ctx context.Context, id string, countedCents int64, notes string, closedAt time.Time) (*domain.DrawerSession, error)

	CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error)
	UpdateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error)
	GetEmployee(ctx context.Context, id string) (*domain.Employee, error)
	ListEmployees(ctx context.Context, activeOnly bool) ([]domain.Employee, error)
	CreateLoan(ctx context.Context, loan domain.Loan) (*domain.Loan, error)
	ListLoans(ctx context.Context, employeeID string) ([]domain.Loan, error)
	CreatePayrollRun(ctx context.Context, run domain.PayrollRun) (*domain.PayrollRun, error)
	GetPayrollRun(ctx context.Context, id string) (*domain.PayrollRun, error)
	ListPayrollRuns(ctx context.Context, limit int) ([]domain.PayrollRun, error)
	// FinalizePayrollRun locks the run, reduces every applied loan balance and
	// settles loans that reach zero.
	FinalizePayrollRun(ctx context.Context, id string, finalizedBy string, finalizedAt time.Time) (*domain.PayrollRun, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// SettleRefundTax caps a proposed refund tax at what the sale has left to
// refund. The return that completes a sale takes the exact remainder.
func SettleRefundTax(proposedCents, remainingCents int64, completesSale bool) int64 {
	remainingCents = max(remainingCents, 0)
	if completesSale {
		return remainingCents
	}
	return min(max(proposedCents, 0), remainingCents)
}
