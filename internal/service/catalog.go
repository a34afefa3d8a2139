package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lakshan9910/studio-sub000/internal/document"
	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/store"
)

const maxPerPage = 100

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	filter.Query = strings.TrimSpace(filter.Query)
	filter.CategoryID = strings.TrimSpace(filter.CategoryID)
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = 25
	}
	if filter.PerPage > maxPerPage {
		filter.PerPage = maxPerPage
	}

	products, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return domain.ProductPage{}, err
	}
	return domain.ProductPage{
		Products: products,
		Pagination: domain.Pagination{
			Page:       filter.Page,
			PerPage:    filter.PerPage,
			TotalItems: total,
		},
	}, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	for i := range req.Variants {
		req.Variants[i].SKU = strings.ToUpper(strings.TrimSpace(req.Variants[i].SKU))
		req.Variants[i].Name = strings.TrimSpace(req.Variants[i].Name)
		req.Variants[i].Barcode = strings.TrimSpace(req.Variants[i].Barcode)
	}
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	seen := make(map[string]struct{}, len(req.Variants))
	variants := make([]domain.Variant, 0, len(req.Variants))
	for _, v := range req.Variants {
		if _, dup := seen[v.SKU]; dup {
			return domain.Product{}, fmt.Errorf("%w: sku %s listed twice", store.ErrInvalidInput, v.SKU)
		}
		seen[v.SKU] = struct{}{}
		variants = append(variants, domain.Variant{
			SKU:        v.SKU,
			Name:       v.Name,
			Barcode:    v.Barcode,
			PriceCents: v.PriceCents,
			CostCents:  v.CostCents,
			Stock:      v.Stock,
		})
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:        req.Name,
		CategoryID:  req.CategoryID,
		Description: strings.TrimSpace(req.Description),
		Active:      true,
		Variants:    variants,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,variants=%d", created.Name, len(created.Variants)))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, invalid("name", "required")
		}
		updated.Name = name
	}
	if req.CategoryID != nil {
		updated.CategoryID = strings.TrimSpace(*req.CategoryID)
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("name=%s,category=%s,active=%t", saved.Name, saved.CategoryID, saved.Active))
	return *saved, nil
}

// ImportProducts creates one product per distinct name in the sheet. Category
// cells may hold a category id or name. Products whose SKUs already exist are
// skipped and reported.
func (s *Service) ImportProducts(ctx context.Context, r io.Reader) (domain.ProductImportResult, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.ProductImportResult{}, err
	}

	rows, problems, err := document.ParseProductSheet(r)
	if err != nil {
		return domain.ProductImportResult{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return domain.ProductImportResult{}, err
	}
	categoryByKey := make(map[string]string, len(categories)*2)
	for _, c := range categories {
		categoryByKey[c.ID] = c.ID
		categoryByKey[strings.ToLower(c.Name)] = c.ID
	}

	type pending struct {
		firstRow int
		req      domain.ProductCreateRequest
	}
	order := make([]string, 0)
	grouped := make(map[string]*pending)
	for _, row := range rows {
		key := strings.ToLower(row.ProductName)
		p, ok := grouped[key]
		if !ok {
			categoryID, found := categoryByKey[row.Category]
			if !found {
				categoryID, found = categoryByKey[strings.ToLower(row.Category)]
			}
			if !found {
				problems = append(problems, fmt.Sprintf("row %d: unknown category %q", row.Row, row.Category))
				continue
			}
			p = &pending{firstRow: row.Row, req: domain.ProductCreateRequest{
				Name:        row.ProductName,
				CategoryID:  categoryID,
				Description: row.Description,
			}}
			grouped[key] = p
			order = append(order, key)
		}
		p.req.Variants = append(p.req.Variants, row.Variant)
	}

	result := domain.ProductImportResult{}
	for _, key := range order {
		p := grouped[key]
		if _, err := s.CreateProduct(ctx, p.req); err != nil {
			if errors.Is(err, ErrForbidden) {
				return result, err
			}
			result.Skipped++
			problems = append(problems, fmt.Sprintf("row %d: %s: %v", p.firstRow, p.req.Name, err))
			continue
		}
		result.Created++
	}
	result.Problems = problems
	s.logAudit(ctx, "product_import", "product", "", fmt.Sprintf("created=%d,skipped=%d,problems=%d", result.Created, result.Skipped, len(problems)))
	return result, nil
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Category{}, err
	}
	created, err := s.repo.CreateCategory(ctx, domain.Category{Name: req.Name})
	if err != nil {
		return domain.Category{}, err
	}
	s.logAudit(ctx, "category_create", "category", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

// LowStock lists variants at or below threshold; a threshold below zero uses
// the store setting.
func (s *Service) LowStock(ctx context.Context, threshold int) ([]domain.LowStockItem, error) {
	if threshold < 0 {
		settings, err := s.repo.GetSettings(ctx)
		if err != nil {
			return nil, err
		}
		threshold = settings.LowStockThreshold
	}
	return s.repo.ListLowStock(ctx, threshold)
}

func (s *Service) CountStock(ctx context.Context, req domain.StockCountRequest) (domain.StockCountResponse, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.StockCountResponse{}, err
	}
	if err := s.check(req); err != nil {
		return domain.StockCountResponse{}, err
	}

	saved, err := s.repo.ApplyStockCount(ctx, domain.StockCount{
		Notes:     strings.TrimSpace(req.Notes),
		CountedBy: actor.Username,
		Lines:     req.Lines,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.StockCountResponse{}, err
	}

	changed := 0
	for _, adj := range saved.Adjustments {
		if adj.DeltaQty != 0 {
			changed++
		}
	}
	s.logAudit(ctx, "stock_count", "stock_count", saved.ID, fmt.Sprintf("lines=%d,changed=%d", len(saved.Adjustments), changed))
	return domain.StockCountResponse{
		CountID:     saved.ID,
		Notes:       saved.Notes,
		Adjustments: saved.Adjustments,
		CreatedAt:   saved.CreatedAt,
	}, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}
	created, err := s.repo.CreateCustomer(ctx, domain.Customer{Name: req.Name, Phone: req.Phone, Email: req.Email})
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_create", "customer", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.check(req); err != nil {
		return domain.Supplier{}, err
	}
	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{Name: req.Name, Phone: req.Phone, Email: req.Email})
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_create", "supplier", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}
