package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/store"
	"github.com/lakshan9910/studio-sub000/internal/xid"
)

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, created_at) VALUES ($1, $2, $3)
	`, category.ID, category.Name, category.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err, "category "+category.Name)
	}
	created := category
	return &created, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

const productMatchSQL = `
	($1 = '' OR category_id = $1)
	AND ($2 = '' OR lower(name) LIKE $2 OR EXISTS (
		SELECT 1 FROM variants v
		WHERE v.product_id = products.id
		  AND (lower(v.sku) LIKE $2 OR lower(v.name) LIKE $2 OR v.barcode LIKE $2)
	))`

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	like := ""
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		like = "%" + escapeLike(q) + "%"
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM products WHERE`+productMatchSQL, filter.CategoryID, like).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = max(total, 1)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category_id, description, active, created_at, updated_at
		FROM products
		WHERE`+productMatchSQL+`
		ORDER BY name, id
		LIMIT $3 OFFSET $4
	`, filter.CategoryID, like, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	products, err := scanProducts(rows)
	if err != nil {
		return nil, 0, err
	}
	if err := s.attachVariants(ctx, s.db, products); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func escapeLike(v string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(v)
}

func scanProducts(rows *sql.Rows) ([]domain.Product, error) {
	defer rows.Close()
	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.CategoryID, &p.Description, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Variants = []domain.Variant{}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) attachVariants(ctx context.Context, q queryer, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]string, len(products))
	index := make(map[string]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		index[p.ID] = i
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, sku, name, barcode, price_cents, cost_cents, stock
		FROM variants
		WHERE product_id = ANY($1)
		ORDER BY sku
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.Barcode, &v.PriceCents, &v.CostCents, &v.Stock); err != nil {
			return err
		}
		i := index[v.ProductID]
		products[i].Variants = append(products[i].Variants, v)
	}
	return rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.getProduct(ctx, s.db, id)
}

func (s *Store) getProduct(ctx context.Context, q queryer, id string) (*domain.Product, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, category_id, description, active, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, store.ErrNotFound
	}
	if err := s.attachVariants(ctx, q, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

func (s *Store) GetVariants(ctx context.Context, variantIDs []string) (map[string]domain.SellableVariant, error) {
	result := make(map[string]domain.SellableVariant, len(variantIDs))
	if len(variantIDs) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.product_id, v.sku, v.name, v.barcode, v.price_cents, v.cost_cents, v.stock, p.name, p.active
		FROM variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = ANY($1)
	`, variantIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sv domain.SellableVariant
		if err := rows.Scan(&sv.ID, &sv.ProductID, &sv.SKU, &sv.Name, &sv.Barcode, &sv.PriceCents, &sv.CostCents, &sv.Stock, &sv.ProductName, &sv.ProductActive); err != nil {
			return nil, err
		}
		result[sv.ID] = sv
	}
	return result, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || len(product.Variants) == 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.UpdatedAt = product.CreatedAt

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, name, category_id, description, active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, product.ID, product.Name, product.CategoryID, product.Description, product.Active, product.CreatedAt, product.UpdatedAt)
		if err != nil {
			return mapWriteErr(err, "product")
		}
		for i := range product.Variants {
			v := &product.Variants[i]
			v.SKU = strings.ToUpper(strings.TrimSpace(v.SKU))
			if v.SKU == "" || v.PriceCents < 1 || v.CostCents < 0 || v.Stock < 0 {
				return store.ErrInvalidInput
			}
			if v.ID == "" {
				v.ID = xid.New("var")
			}
			v.ProductID = product.ID
			_, err := tx.ExecContext(ctx, `
				INSERT INTO variants (id, product_id, sku, name, barcode, price_cents, cost_cents, stock)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			`, v.ID, v.ProductID, v.SKU, v.Name, v.Barcode, v.PriceCents, v.CostCents, v.Stock)
			if err != nil {
				return mapWriteErr(err, "sku "+v.SKU)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category_id = $3, description = $4, active = $5, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.CategoryID, product.Description, product.Active)
	if err != nil {
		return nil, mapWriteErr(err, "product")
	}
	if err := expectOneRow(res); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) ListLowStock(ctx context.Context, threshold int) ([]domain.LowStockItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, v.id, v.sku, v.stock
		FROM variants v
		JOIN products p ON p.id = v.product_id
		WHERE p.active = true AND v.stock <= $1
		ORDER BY v.stock, v.sku
	`, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.LowStockItem, 0, 16)
	for rows.Next() {
		item := domain.LowStockItem{Threshold: threshold}
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.VariantID, &item.SKU, &item.Stock); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func (s *Store) ApplyStockCount(ctx context.Context, count domain.StockCount) (*domain.StockCount, error) {
	if len(count.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if count.ID == "" {
		count.ID = xid.New("count")
	}
	if count.CreatedAt.IsZero() {
		count.CreatedAt = time.Now().UTC()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_counts (id, notes, counted_by, created_at) VALUES ($1,$2,$3,$4)
		`, count.ID, count.Notes, count.CountedBy, count.CreatedAt); err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(count.Lines))
		count.Adjustments = make([]domain.StockAdjustment, 0, len(count.Lines))
		for _, line := range count.Lines {
			if line.CountedQty < 0 {
				return store.ErrInvalidInput
			}
			if _, dup := seen[line.VariantID]; dup {
				return fmt.Errorf("%w: variant %s counted twice", store.ErrInvalidInput, line.VariantID)
			}
			seen[line.VariantID] = struct{}{}

			adj := domain.StockAdjustment{VariantID: line.VariantID, CountedQty: line.CountedQty}
			err := tx.QueryRowContext(ctx, `
				SELECT sku, stock FROM variants WHERE id = $1 FOR UPDATE
			`, line.VariantID).Scan(&adj.SKU, &adj.SystemQty)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("%w: variant %s", store.ErrNotFound, line.VariantID)
				}
				return err
			}
			adj.DeltaQty = adj.CountedQty - adj.SystemQty
			if _, err := tx.ExecContext(ctx, `UPDATE variants SET stock = $2 WHERE id = $1`, line.VariantID, line.CountedQty); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO stock_count_lines (count_id, variant_id, sku, system_qty, counted_qty, delta_qty)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, count.ID, adj.VariantID, adj.SKU, adj.SystemQty, adj.CountedQty, adj.DeltaQty); err != nil {
				return err
			}
			count.Adjustments = append(count.Adjustments, adj)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &count, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, created_at) VALUES ($1,$2,$3,$4,$5)
	`, customer.ID, customer.Name, customer.Phone, customer.Email, customer.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err, "customer")
	}
	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, phone, email, created_at FROM customers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Customer, 0, 32)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, created_at FROM customers WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if strings.TrimSpace(supplier.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, email, created_at) VALUES ($1,$2,$3,$4,$5)
	`, supplier.ID, supplier.Name, supplier.Phone, supplier.Email, supplier.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err, "supplier")
	}
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, phone, email, created_at FROM suppliers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Phone, &sup.Email, &sup.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, sup)
	}
	return result, rows.Err()
}
