package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/store"
	"github.com/lakshan9910/studio-sub000/internal/xid"
)

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	name := strings.TrimSpace(category.Name)
	if name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, name) {
			return nil, fmt.Errorf("%w: category %q already exists", store.ErrConflict, name)
		}
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	category.Name = name
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b domain.Category) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	matched := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if query != "" && !productMatches(p, query) {
			continue
		}
		matched = append(matched, p)
	}
	slices.SortFunc(matched, func(a, b domain.Product) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	total := len(matched)
	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = total
	}
	start := (page - 1) * perPage
	if start >= total {
		return []domain.Product{}, total, nil
	}
	end := min(start+perPage, total)

	result := make([]domain.Product, 0, end-start)
	for _, p := range matched[start:end] {
		result = append(result, cloneProduct(p))
	}
	return result, total, nil
}

func productMatches(p domain.Product, query string) bool {
	if strings.Contains(strings.ToLower(p.Name), query) {
		return true
	}
	for _, v := range p.Variants {
		if strings.Contains(strings.ToLower(v.SKU), query) ||
			strings.Contains(strings.ToLower(v.Name), query) ||
			(v.Barcode != "" && strings.Contains(v.Barcode, query)) {
			return true
		}
	}
	return false
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneProduct(p)
	return &found, nil
}

func (s *Store) GetVariants(_ context.Context, variantIDs []string) (map[string]domain.SellableVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.SellableVariant, len(variantIDs))
	for _, id := range variantIDs {
		p, v, ok := s.variantLocked(id)
		if !ok {
			continue
		}
		result[id] = domain.SellableVariant{Variant: *v, ProductName: p.Name, ProductActive: p.Active}
	}
	return result, nil
}

// variantLocked returns the owning product and a pointer into its variant slice.
// The caller must hold s.mu.
func (s *Store) variantLocked(variantID string) (domain.Product, *domain.Variant, bool) {
	productID, ok := s.productByVariant[variantID]
	if !ok {
		return domain.Product{}, nil, false
	}
	p, ok := s.products[productID]
	if !ok {
		return domain.Product{}, nil, false
	}
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			return p, &p.Variants[i], true
		}
	}
	return domain.Product{}, nil, false
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || len(product.Variants) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[product.CategoryID]; !ok {
		return nil, fmt.Errorf("%w: category %s does not exist", store.ErrInvalidInput, product.CategoryID)
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = product.CreatedAt

	seen := make(map[string]struct{}, len(product.Variants))
	variants := make([]domain.Variant, 0, len(product.Variants))
	for _, v := range product.Variants {
		v.SKU = strings.ToUpper(strings.TrimSpace(v.SKU))
		if v.SKU == "" || v.PriceCents < 1 || v.CostCents < 0 || v.Stock < 0 {
			return nil, store.ErrInvalidInput
		}
		if _, dup := seen[v.SKU]; dup {
			return nil, fmt.Errorf("%w: sku %s repeated", store.ErrConflict, v.SKU)
		}
		if _, taken := s.variantBySKU[v.SKU]; taken {
			return nil, fmt.Errorf("%w: sku %s already exists", store.ErrConflict, v.SKU)
		}
		seen[v.SKU] = struct{}{}
		if v.ID == "" {
			v.ID = xid.New("var")
		}
		v.ProductID = product.ID
		variants = append(variants, v)
	}
	product.Variants = variants

	s.products[product.ID] = product
	for _, v := range product.Variants {
		s.productByVariant[v.ID] = product.ID
		s.variantBySKU[v.SKU] = v.ID
	}
	created := cloneProduct(product)
	return &created, nil
}

// UpdateProduct replaces the header fields. Variants, stock and cost are kept.
func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.categories[product.CategoryID]; !ok {
		return nil, fmt.Errorf("%w: category %s does not exist", store.ErrInvalidInput, product.CategoryID)
	}
	existing.Name = product.Name
	existing.CategoryID = product.CategoryID
	existing.Description = product.Description
	existing.Active = product.Active
	existing.UpdatedAt = time.Now().UTC()
	s.products[existing.ID] = existing
	updated := cloneProduct(existing)
	return &updated, nil
}

func (s *Store) ListLowStock(_ context.Context, threshold int) ([]domain.LowStockItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LowStockItem, 0, 16)
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		for _, v := range p.Variants {
			if v.Stock > threshold {
				continue
			}
			result = append(result, domain.LowStockItem{
				ProductID:   p.ID,
				ProductName: p.Name,
				VariantID:   v.ID,
				SKU:         v.SKU,
				Stock:       v.Stock,
				Threshold:   threshold,
			})
		}
	}
	slices.SortFunc(result, func(a, b domain.LowStockItem) int {
		if a.Stock != b.Stock {
			return a.Stock - b.Stock
		}
		return strings.Compare(a.SKU, b.SKU)
	})
	return result, nil
}

func (s *Store) ApplyStockCount(_ context.Context, count domain.StockCount) (*domain.StockCount, error) {
	if len(count.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(count.Lines))
	for _, line := range count.Lines {
		if line.CountedQty < 0 {
			return nil, store.ErrInvalidInput
		}
		if _, dup := seen[line.VariantID]; dup {
			return nil, fmt.Errorf("%w: variant %s counted twice", store.ErrInvalidInput, line.VariantID)
		}
		seen[line.VariantID] = struct{}{}
		if _, _, ok := s.variantLocked(line.VariantID); !ok {
			return nil, fmt.Errorf("%w: variant %s", store.ErrNotFound, line.VariantID)
		}
	}

	if count.ID == "" {
		count.ID = xid.New("count")
	}
	if count.CreatedAt.IsZero() {
		count.CreatedAt = time.Now().UTC()
	}
	count.Adjustments = make([]domain.StockAdjustment, 0, len(count.Lines))
	for _, line := range count.Lines {
		p, v, _ := s.variantLocked(line.VariantID)
		count.Adjustments = append(count.Adjustments, domain.StockAdjustment{
			VariantID:  v.ID,
			SKU:        v.SKU,
			SystemQty:  v.Stock,
			CountedQty: line.CountedQty,
			DeltaQty:   line.CountedQty - v.Stock,
		})
		v.Stock = line.CountedQty
		s.products[p.ID] = p
	}
	s.stockCounts = append(s.stockCounts, count)
	saved := count
	saved.Lines = slices.Clone(count.Lines)
	saved.Adjustments = slices.Clone(count.Adjustments)
	return &saved, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if strings.TrimSpace(supplier.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliers[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		result = append(result, sup)
	}
	slices.SortFunc(result, func(a, b domain.Supplier) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}
