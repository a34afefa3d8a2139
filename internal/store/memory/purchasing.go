package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/pricing"
	"github.com/lakshan9910/studio-sub000/internal/store"
	"github.com/lakshan9910/studio-sub000/internal/xid"
)

func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if len(purchase.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.suppliers[purchase.SupplierID]; !ok {
		return nil, fmt.Errorf("%w: supplier %s does not exist", store.ErrInvalidInput, purchase.SupplierID)
	}
	var total int64
	for _, line := range purchase.Lines {
		if line.Qty < 1 || line.UnitCostCents < 1 {
			return nil, store.ErrInvalidInput
		}
		if _, _, ok := s.variantLocked(line.VariantID); !ok {
			return nil, fmt.Errorf("%w: variant %s does not exist", store.ErrInvalidInput, line.VariantID)
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
	purchase.ReceivedAt = nil
	purchase.ReceivedBy = ""
	s.purchasesByID[purchase.ID] = clonePurchase(purchase)
	created := clonePurchase(purchase)
	return &created, nil
}

func (s *Store) GetPurchase(_ context.Context, id string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.purchasesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := clonePurchase(p)
	return &found, nil
}

func (s *Store) ListPurchases(_ context.Context, status string, limit int) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Purchase, 0, len(s.purchasesByID))
	for _, p := range s.purchasesByID {
		if status != "" && p.Status != status {
			continue
		}
		result = append(result, clonePurchase(p))
	}
	slices.SortFunc(result, byCreatedDesc(
		func(p domain.Purchase) time.Time { return p.CreatedAt },
		func(p domain.Purchase) string { return p.ID },
	))
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ReceivePurchase(_ context.Context, id string, receivedBy string, receivedAt time.Time) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchasesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if po.Status != domain.PurchaseStatusOrdered {
		return nil, fmt.Errorf("%w: purchase is %s", store.ErrConflict, po.Status)
	}
	for _, line := range po.Lines {
		if _, _, ok := s.variantLocked(line.VariantID); !ok {
			return nil, fmt.Errorf("%w: variant %s", store.ErrNotFound, line.VariantID)
		}
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	for _, line := range po.Lines {
		_, v, _ := s.variantLocked(line.VariantID)
		prevCost := v.CostCents
		if prevCost < 1 {
			prevCost = line.UnitCostCents
		}
		v.CostCents = pricing.WeightedCostCents(prevCost, v.Stock, line.UnitCostCents, line.Qty)
		v.Stock += line.Qty
	}

	po.Status = domain.PurchaseStatusReceived
	po.ReceivedBy = strings.TrimSpace(receivedBy)
	if po.ReceivedBy == "" {
		po.ReceivedBy = "system"
	}
	po.ReceivedAt = &receivedAt
	s.purchasesByID[id] = po
	updated := clonePurchase(po)
	return &updated, nil
}

func (s *Store) CancelPurchase(_ context.Context, id string) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchasesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if po.Status != domain.PurchaseStatusOrdered {
		return nil, fmt.Errorf("%w: purchase is %s", store.ErrConflict, po.Status)
	}
	po.Status = domain.PurchaseStatusCancelled
	s.purchasesByID[id] = po
	updated := clonePurchase(po)
	return &updated, nil
}
