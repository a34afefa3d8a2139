package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/store"
	"github.com/lakshan9910/studio-sub000/internal/xid"
)

const saleColumns = `id, COALESCE(idempotency_key, ''), terminal_id, session_id, COALESCE(customer_id, ''), cashier,
	payment_method, payment_reference, subtotal_cents, tax_rate_percent, tax_cents, total_cents,
	tendered_cents, change_cents, status, created_at`

func scanSale(row interface{ Scan(...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(&sale.ID, &sale.IdempotencyKey, &sale.TerminalID, &sale.SessionID, &sale.CustomerID, &sale.Cashier,
		&sale.PaymentMethod, &sale.PaymentReference, &sale.SubtotalCents, &sale.TaxRatePercent, &sale.TaxCents, &sale.TotalCents,
		&sale.TenderedCents, &sale.ChangeCents, &sale.Status, &sale.CreatedAt)
	return sale, err
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	return s.findSale(ctx, "idempotency_key", key)
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findSale(ctx, "id", id)
}

func (s *Store) findSale(ctx context.Context, column string, value string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE `+column+` = $1`, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sales := []domain.Sale{sale}
	if err := s.attachSaleLines(ctx, s.db, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (s *Store) attachSaleLines(ctx context.Context, q queryer, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, len(sales))
	index := make(map[string]int, len(sales))
	for i, sale := range sales {
		ids[i] = sale.ID
		index[sale.ID] = i
		sales[i].Lines = []domain.SaleLine{}
	}
	rows, err := q.QueryContext(ctx, `
		SELECT sale_id, variant_id, sku, name, qty, unit_price_cents, unit_cost_cents, line_total_cents
		FROM sale_lines
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var saleID string
		var line domain.SaleLine
		if err := rows.Scan(&saleID, &line.VariantID, &line.SKU, &line.Name, &line.Qty, &line.UnitPriceCents, &line.UnitCostCents, &line.LineTotalCents); err != nil {
			return err
		}
		i := index[saleID]
		sales[i].Lines = append(sales[i].Lines, line)
	}
	return rows.Err()
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		  AND ($3 = '' OR session_id = $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, nullTime(filter.From), nullTime(filter.To), filter.SessionID, limitOrAll(filter.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachSaleLines(ctx, s.db, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, cash *domain.CashMovement) (*domain.Sale, error) {
	if len(sale.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockOpenSession(ctx, tx, sale.SessionID); err != nil {
			return err
		}

		need := make(map[string]int, len(sale.Lines))
		for _, line := range sale.Lines {
			if line.Qty < 1 {
				return store.ErrInvalidInput
			}
			need[line.VariantID] += line.Qty
		}
		ids := make([]string, 0, len(need))
		for id := range need {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		rows, err := tx.QueryContext(ctx, `
			SELECT v.id, v.sku, v.stock, p.active
			FROM variants v
			JOIN products p ON p.id = v.product_id
			WHERE v.id = ANY($1)
			ORDER BY v.id
			FOR UPDATE OF v
		`, ids)
		if err != nil {
			return err
		}
		type stockRow struct {
			sku    string
			stock  int
			active bool
		}
		stock := make(map[string]stockRow, len(ids))
		for rows.Next() {
			var id string
			var r stockRow
			if err := rows.Scan(&id, &r.sku, &r.stock, &r.active); err != nil {
				_ = rows.Close()
				return err
			}
			stock[id] = r
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()

		for _, id := range ids {
			r, ok := stock[id]
			if !ok || !r.active {
				return fmt.Errorf("%w: variant %s is unavailable", store.ErrInvalidInput, id)
			}
			if r.stock < need[id] {
				return fmt.Errorf("%w: %s has %d left", store.ErrInsufficientStock, r.sku, r.stock)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE variants SET stock = stock - $2 WHERE id = $1`, id, need[id]); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO sales (id, idempotency_key, terminal_id, session_id, customer_id, cashier, payment_method,
				payment_reference, subtotal_cents, tax_rate_percent, tax_cents, total_cents, tendered_cents,
				change_cents, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		`, sale.ID, nullIfEmpty(sale.IdempotencyKey), sale.TerminalID, sale.SessionID, nullIfEmpty(sale.CustomerID), sale.Cashier,
			sale.PaymentMethod, sale.PaymentReference, sale.SubtotalCents, sale.TaxRatePercent, sale.TaxCents, sale.TotalCents,
			sale.TenderedCents, sale.ChangeCents, sale.Status, sale.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: idempotency key already used", store.ErrConflict)
			}
			return mapWriteErr(err, "sale")
		}
		for i, line := range sale.Lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sale_lines (sale_id, line_no, variant_id, sku, name, qty, unit_price_cents, unit_cost_cents, line_total_cents)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			`, sale.ID, i+1, line.VariantID, line.SKU, line.Name, line.Qty, line.UnitPriceCents, line.UnitCostCents, line.LineTotalCents); err != nil {
				return err
			}
		}

		if cash != nil {
			m := *cash
			m.SessionID = sale.SessionID
			if m.Reference == "" {
				m.Reference = sale.ID
			}
			if m.CreatedAt.IsZero() {
				m.CreatedAt = sale.CreatedAt
			}
			if _, err := insertMovement(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) GetReturnedQty(ctx context.Context, saleID string) (map[string]int, error) {
	return returnedQty(ctx, s.db, saleID)
}

func returnedQty(ctx context.Context, q queryer, saleID string) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT rl.variant_id, SUM(rl.qty)
		FROM return_lines rl
		JOIN returns r ON r.id = rl.return_id
		WHERE r.sale_id = $1
		GROUP BY rl.variant_id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var variantID string
		var qty int
		if err := rows.Scan(&variantID, &qty); err != nil {
			return nil, err
		}
		result[variantID] = qty
	}
	return result, rows.Err()
}

func (s *Store) CreateReturn(ctx context.Context, ret domain.Return, cash *domain.CashMovement) (*domain.Return, error) {
	if len(ret.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	if cash != nil {
		ret.SessionID = cash.SessionID
	}
	proposedTax := ret.TaxCents

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var saleID string
		var saleTax int64
		err := tx.QueryRowContext(ctx, `SELECT id, tax_cents FROM sales WHERE id = $1 FOR UPDATE`, ret.SaleID).Scan(&saleID, &saleTax)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if cash != nil {
			if err := lockOpenSession(ctx, tx, cash.SessionID); err != nil {
				return err
			}
		}

		sold := make(map[string]int)
		rows, err := tx.QueryContext(ctx, `SELECT variant_id, SUM(qty) FROM sale_lines WHERE sale_id = $1 GROUP BY variant_id`, saleID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var variantID string
			var qty int
			if err := rows.Scan(&variantID, &qty); err != nil {
				_ = rows.Close()
				return err
			}
			sold[variantID] = qty
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()

		returned, err := returnedQty(ctx, tx, saleID)
		if err != nil {
			return err
		}
		for _, line := range ret.Lines {
			if line.Qty < 1 {
				return store.ErrInvalidInput
			}
			returned[line.VariantID] += line.Qty
			if returned[line.VariantID] > sold[line.VariantID] {
				return fmt.Errorf("%w: return qty for %s exceeds sold qty", store.ErrInvalidInput, line.VariantID)
			}
		}

		status := domain.SaleStatusReturned
		for variantID, qty := range sold {
			if returned[variantID] < qty {
				status = domain.SaleStatusPartiallyReturned
				break
			}
		}
		var refundedTax int64
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(tax_cents), 0) FROM returns WHERE sale_id = $1`, saleID).Scan(&refundedTax); err != nil {
			return err
		}
		ret.TaxCents = store.SettleRefundTax(proposedTax, saleTax-refundedTax, status == domain.SaleStatusReturned)
		ret.RefundCents = ret.SubtotalCents + ret.TaxCents

		_, err = tx.ExecContext(ctx, `
			INSERT INTO returns (id, sale_id, session_id, subtotal_cents, tax_cents, refund_cents, refund_method, restock, reason, processed_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, ret.ID, ret.SaleID, nullIfEmpty(ret.SessionID), ret.SubtotalCents, ret.TaxCents, ret.RefundCents, ret.RefundMethod,
			ret.Restock, ret.Reason, ret.ProcessedBy, ret.CreatedAt)
		if err != nil {
			return mapWriteErr(err, "return")
		}
		for i, line := range ret.Lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO return_lines (return_id, line_no, variant_id, sku, qty, unit_price_cents, amount_cents)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
			`, ret.ID, i+1, line.VariantID, line.SKU, line.Qty, line.UnitPriceCents, line.AmountCents); err != nil {
				return err
			}
			if ret.Restock {
				if _, err := tx.ExecContext(ctx, `UPDATE variants SET stock = stock + $2 WHERE id = $1`, line.VariantID, line.Qty); err != nil {
					return err
				}
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE sales SET status = $2 WHERE id = $1`, saleID, status); err != nil {
			return err
		}

		if cash != nil {
			m := *cash
			m.AmountCents = ret.RefundCents
			if m.Reference == "" {
				m.Reference = ret.ID
			}
			if m.CreatedAt.IsZero() {
				m.CreatedAt = ret.CreatedAt
			}
			if _, err := insertMovement(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := ret
	return &created, nil
}

func (s *Store) ListReturns(ctx context.Context, from time.Time, to time.Time) ([]domain.Return, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, COALESCE(session_id, ''), subtotal_cents, tax_cents, refund_cents, refund_method, restock, reason, processed_by, created_at
		FROM returns
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at, id
	`, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	returns := make([]domain.Return, 0, 16)
	index := make(map[string]int)
	for rows.Next() {
		var r domain.Return
		if err := rows.Scan(&r.ID, &r.SaleID, &r.SessionID, &r.SubtotalCents, &r.TaxCents, &r.RefundCents, &r.RefundMethod, &r.Restock, &r.Reason, &r.ProcessedBy, &r.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		r.Lines = []domain.ReturnLine{}
		index[r.ID] = len(returns)
		returns = append(returns, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	if len(returns) == 0 {
		return returns, nil
	}

	ids := make([]string, len(returns))
	for i, r := range returns {
		ids[i] = r.ID
	}
	lineRows, err := s.db.QueryContext(ctx, `
		SELECT return_id, variant_id, sku, qty, unit_price_cents, amount_cents
		FROM return_lines
		WHERE return_id = ANY($1)
		ORDER BY return_id, line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var returnID string
		var line domain.ReturnLine
		if err := lineRows.Scan(&returnID, &line.VariantID, &line.SKU, &line.Qty, &line.UnitPriceCents, &line.AmountCents); err != nil {
			return nil, err
		}
		i := index[returnID]
		returns[i].Lines = append(returns[i].Lines, line)
	}
	return returns, lineRows.Err()
}
