package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/pricing"
	"github.com/lakshan9910/studio-sub000/internal/store"
	"github.com/lakshan9910/studio-sub000/internal/xid"
)

const purchaseColumns = `id, supplier_id, status, notes, total_cents, created_by, created_at, received_by, received_at`

func scanPurchase(row interface{ Scan(...any) error }) (domain.Purchase, error) {
	var p domain.Purchase
	var receivedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.SupplierID, &p.Status, &p.Notes, &p.TotalCents, &p.CreatedBy, &p.CreatedAt, &p.ReceivedBy, &receivedAt); err != nil {
		return domain.Purchase{}, err
	}
	if receivedAt.Valid {
		at := receivedAt.Time
		p.ReceivedAt = &at
	}
	return p, nil
}

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if len(purchase.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	var total int64
	for _, line := range purchase.Lines {
		if line.Qty < 1 || line.UnitCostCents < 1 {
			return nil, store.ErrInvalidInput
		}
		total += int64(line.Qty) * line.UnitCostCents
	}
	if purchase.ID == "" {
		purchase.ID = xid.New("po")
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}
	purchase.Status = domain.PurchaseStatusOrdered
	purchase.TotalCents = total

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchases (id, supplier_id, status, notes, total_cents, created_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, purchase.ID, purchase.SupplierID, purchase.Status, purchase.Notes, purchase.TotalCents, purchase.CreatedBy, purchase.CreatedAt)
		if err != nil {
			return mapWriteErr(err, "supplier "+purchase.SupplierID)
		}
		for i, line := range purchase.Lines {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO purchase_lines (purchase_id, line_no, variant_id, qty, unit_cost_cents)
				VALUES ($1,$2,$3,$4,$5)
			`, purchase.ID, i+1, line.VariantID, line.Qty, line.UnitCostCents)
			if err != nil {
				return mapWriteErr(err, "variant "+line.VariantID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := purchase
	return &created, nil
}

func (s *Store) GetPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	return s.getPurchase(ctx, s.db, id, false)
}

func (s *Store) getPurchase(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	p, err := scanPurchase(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	purchases := []domain.Purchase{p}
	if err := attachPurchaseLines(ctx, q, purchases); err != nil {
		return nil, err
	}
	return &purchases[0], nil
}

func attachPurchaseLines(ctx context.Context, q queryer, purchases []domain.Purchase) error {
	if len(purchases) == 0 {
		return nil
	}
	ids := make([]string, len(purchases))
	index := make(map[string]int, len(purchases))
	for i, p := range purchases {
		ids[i] = p.ID
		index[p.ID] = i
		purchases[i].Lines = []domain.PurchaseLine{}
	}
	rows, err := q.QueryContext(ctx, `
		SELECT purchase_id, variant_id, qty, unit_cost_cents
		FROM purchase_lines
		WHERE purchase_id = ANY($1)
		ORDER BY purchase_id, line_no
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var purchaseID string
		var line domain.PurchaseLine
		if err := rows.Scan(&purchaseID, &line.VariantID, &line.Qty, &line.UnitCostCents); err != nil {
			return err
		}
		i := index[purchaseID]
		purchases[i].Lines = append(purchases[i].Lines, line)
	}
	return rows.Err()
}

func (s *Store) ListPurchases(ctx context.Context, status string, limit int) ([]domain.Purchase, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, limit)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachPurchaseLines(ctx, s.db, purchases); err != nil {
		return nil, err
	}
	return purchases, nil
}

func (s *Store) ReceivePurchase(ctx context.Context, id string, receivedBy string, receivedAt time.Time) (*domain.Purchase, error) {
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	receivedBy = strings.TrimSpace(receivedBy)
	if receivedBy == "" {
		receivedBy = "system"
	}

	var received *domain.Purchase
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		po, err := s.getPurchase(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if po.Status != domain.PurchaseStatusOrdered {
			return fmt.Errorf("%w: purchase is %s", store.ErrConflict, po.Status)
		}
		for _, line := range po.Lines {
			var stock int
			var cost int64
			err := tx.QueryRowContext(ctx, `SELECT stock, cost_cents FROM variants WHERE id = $1 FOR UPDATE`, line.VariantID).Scan(&stock, &cost)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("%w: variant %s", store.ErrNotFound, line.VariantID)
				}
				return err
			}
			if cost < 1 {
				cost = line.UnitCostCents
			}
			newCost := pricing.WeightedCostCents(cost, stock, line.UnitCostCents, line.Qty)
			if _, err := tx.ExecContext(ctx, `
				UPDATE variants SET stock = stock + $2, cost_cents = $3 WHERE id = $1
			`, line.VariantID, line.Qty, newCost); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE purchases SET status = $2, received_by = $3, received_at = $4 WHERE id = $1
		`, id, domain.PurchaseStatusReceived, receivedBy, receivedAt); err != nil {
			return err
		}
		po.Status = domain.PurchaseStatusReceived
		po.ReceivedBy = receivedBy
		po.ReceivedAt = &receivedAt
		received = po
		return nil
	})
	if err != nil {
		return nil, err
	}
	return received, nil
}

func (s *Store) CancelPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	var cancelled *domain.Purchase
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		po, err := s.getPurchase(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if po.Status != domain.PurchaseStatusOrdered {
			return fmt.Errorf("%w: purchase is %s", store.ErrConflict, po.Status)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE purchases SET status = $2 WHERE id = $1`, id, domain.PurchaseStatusCancelled); err != nil {
			return err
		}
		po.Status = domain.PurchaseStatusCancelled
		cancelled = po
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}
