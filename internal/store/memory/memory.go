package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/store"
	"github.com/lakshan9910/studio-sub000/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	settings         domain.Settings
	categories       map[string]domain.Category
	products         map[string]domain.Product
	productByVariant map[string]string
	variantBySKU     map[string]string
	customers        map[string]domain.Customer
	suppliers        map[string]domain.Supplier
	salesByID        map[string]domain.Sale
	salesByIdem      map[string]string
	returns          []domain.Return
	purchasesByID    map[string]domain.Purchase
	stockCounts      []domain.StockCount
	drawersByID      map[string]domain.DrawerSession
	openDrawer       map[string]string
	movements        map[string][]domain.CashMovement
	employeesByID    map[string]domain.Employee
	loansByID        map[string]domain.Loan
	payrollRunsByID  map[string]domain.PayrollRun
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

// New returns an empty store with default settings and no users.
func New() *Store {
	return &Store{
		settings: domain.Settings{
			StoreName:         "Studio Store",
			Currency:          "USD",
			TaxEnabled:        true,
			TaxRatePercent:    8,
			ReceiptFooter:     "Thank you for shopping with us.",
			LowStockThreshold: 10,
			UpdatedAt:         time.Now().UTC(),
		},
		categories:       make(map[string]domain.Category),
		products:         make(map[string]domain.Product),
		productByVariant: make(map[string]string),
		variantBySKU:     make(map[string]string),
		customers:        make(map[string]domain.Customer),
		suppliers:        make(map[string]domain.Supplier),
		salesByID:        make(map[string]domain.Sale),
		salesByIdem:      make(map[string]string),
		returns:          make([]domain.Return, 0, 32),
		purchasesByID:    make(map[string]domain.Purchase),
		drawersByID:      make(map[string]domain.DrawerSession),
		openDrawer:       make(map[string]string),
		movements:        make(map[string][]domain.CashMovement),
		employeesByID:    make(map[string]domain.Employee),
		loansByID:        make(map[string]domain.Loan),
		payrollRunsByID:  make(map[string]domain.PayrollRun),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Passwords come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD and fall
// back to dev defaults with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Warn().Str("component", "memory-store").Msg("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("failed to hash seed password")
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

// NewSeeded returns a store with a demo catalog, staff and users.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, c := range []domain.Category{
		{ID: "cat-beverage", Name: "Beverages"},
		{ID: "cat-snack", Name: "Snacks"},
		{ID: "cat-household", Name: "Household"},
	} {
		c.CreatedAt = now
		s.categories[c.ID] = c
	}

	products := []domain.Product{
		{ID: "prod-coffee", Name: "Cold Brew Coffee", CategoryID: "cat-beverage", Variants: []domain.Variant{
			{ID: "var-coffee-s", SKU: "COF-CB-S", Name: "Small", Barcode: "8990001000011", PriceCents: 299, CostCents: 120, Stock: 120},
			{ID: "var-coffee-l", SKU: "COF-CB-L", Name: "Large", Barcode: "8990001000028", PriceCents: 449, CostCents: 180, Stock: 80},
		}},
		{ID: "prod-water", Name: "Mineral Water", CategoryID: "cat-beverage", Variants: []domain.Variant{
			{ID: "var-water-600", SKU: "WAT-600", Name: "600ml", Barcode: "8990002000010", PriceCents: 129, CostCents: 60, Stock: 200},
		}},
		{ID: "prod-chips", Name: "Cassava Chips", CategoryID: "cat-snack", Variants: []domain.Variant{
			{ID: "var-chips-orig", SKU: "CHP-ORIG", Name: "Original", Barcode: "8990003000019", PriceCents: 549, CostCents: 310, Stock: 60},
			{ID: "var-chips-bbq", SKU: "CHP-BBQ", Name: "Barbecue", Barcode: "8990003000026", PriceCents: 549, CostCents: 310, Stock: 8},
		}},
		{ID: "prod-soap", Name: "Bar Soap", CategoryID: "cat-household", Variants: []domain.Variant{
			{ID: "var-soap-lav", SKU: "SOAP-LAV", Name: "Lavender", PriceCents: 325, CostCents: 150, Stock: 45},
		}},
	}
	for _, p := range products {
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		for i := range p.Variants {
			p.Variants[i].ProductID = p.ID
			s.productByVariant[p.Variants[i].ID] = p.ID
			s.variantBySKU[p.Variants[i].SKU] = p.Variants[i].ID
		}
		s.products[p.ID] = p
	}

	s.suppliers["sup-main"] = domain.Supplier{ID: "sup-main", Name: "Main Distribution Co", Phone: "+1-555-0100", CreatedAt: now}
	s.customers["cust-walkin"] = domain.Customer{ID: "cust-walkin", Name: "Walk-in Customer", CreatedAt: now}

	joined := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	for _, e := range []domain.Employee{
		{
			ID: "emp-ana", Name: "Ana Perera", Position: "Store Supervisor", PayrollType: domain.PayrollTypeMonthly,
			BaseSalaryCents: 300000, OvertimeRateCents: 2500,
			Allowances:          []domain.PayComponent{{Name: "transport", AmountCents: 20000}},
			RecurringDeductions: []domain.PayComponent{{Name: "pension", AmountCents: 24000}},
		},
		{
			ID: "emp-ravi", Name: "Ravi Silva", Position: "Cashier", PayrollType: domain.PayrollTypeWorkingDays,
			BaseSalaryCents: 208000,
			Allowances:      []domain.PayComponent{{Name: "meals", AmountCents: 10000}},
		},
	} {
		e.Active = true
		e.JoinedAt = joined
		e.CreatedAt = now
		e.UpdatedAt = now
		s.employeesByID[e.ID] = e
	}

	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) GetSettings(_ context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.Settings) (*domain.Settings, error) {
	if settings.TaxRatePercent < 0 || settings.TaxRatePercent > 100 || settings.LowStockThreshold < 0 {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	s.settings = settings
	saved := s.settings
	return &saved, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if !inRange(entry.CreatedAt, from, to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[username] = user
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
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// inRange treats zero bounds as open. to is exclusive.
func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

func byCreatedDesc[T any](created func(T) time.Time, id func(T) string) func(a, b T) int {
	return func(a, b T) int {
		if c := created(b).Compare(created(a)); c != 0 {
			return c
		}
		return strings.Compare(id(b), id(a))
	}
}

func cloneProduct(p domain.Product) domain.Product {
	p.Variants = slices.Clone(p.Variants)
	return p
}

func cloneSale(sale domain.Sale) domain.Sale {
	sale.Lines = slices.Clone(sale.Lines)
	return sale
}

func cloneReturn(ret domain.Return) domain.Return {
	ret.Lines = slices.Clone(ret.Lines)
	return ret
}

func clonePurchase(p domain.Purchase) domain.Purchase {
	p.Lines = slices.Clone(p.Lines)
	if p.ReceivedAt != nil {
		at := *p.ReceivedAt
		p.ReceivedAt = &at
	}
	return p
}

func cloneEmployee(e domain.Employee) domain.Employee {
	e.Allowances = slices.Clone(e.Allowances)
	e.RecurringDeductions = slices.Clone(e.RecurringDeductions)
	return e
}

func clonePayrollRun(run domain.PayrollRun) domain.PayrollRun {
	items := make([]domain.PayrollItem, len(run.Items))
	for i, it := range run.Items {
		it.Loans = slices.Clone(it.Loans)
		items[i] = it
	}
	run.Items = items
	if run.FinalizedAt != nil {
		at := *run.FinalizedAt
		run.FinalizedAt = &at
	}
	return run
}
