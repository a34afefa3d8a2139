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

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.salesByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale := cloneSale(s.salesByID[id])
	return &sale, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneSale(sale)
	return &found, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if !inRange(sale.CreatedAt, filter.From, filter.To) {
			continue
		}
		if filter.SessionID != "" && sale.SessionID != filter.SessionID {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, byCreatedDesc(
		func(x domain.Sale) time.Time { return x.CreatedAt },
		func(x domain.Sale) string { return x.ID },
	))
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, cash *domain.CashMovement) (*domain.Sale, error) {
	if len(sale.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.IdempotencyKey != "" {
		if _, exists := s.salesByIdem[sale.IdempotencyKey]; exists {
			return nil, fmt.Errorf("%w: idempotency key already used", store.ErrConflict)
		}
	}
	if cash != nil || sale.SessionID != "" {
		if err := s.requireOpenSessionLocked(sale.SessionID); err != nil {
			return nil, err
		}
	}
	if sale.CustomerID != "" {
		if _, ok := s.customers[sale.CustomerID]; !ok {
			return nil, fmt.Errorf("%w: customer %s does not exist", store.ErrInvalidInput, sale.CustomerID)
		}
	}

	need := make(map[string]int, len(sale.Lines))
	for _, line := range sale.Lines {
		if line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		need[line.VariantID] += line.Qty
	}
	for variantID, qty := range need {
		p, v, ok := s.variantLocked(variantID)
		if !ok || !p.Active {
			return nil, fmt.Errorf("%w: variant %s is unavailable", store.ErrInvalidInput, variantID)
		}
		if v.Stock < qty {
			return nil, fmt.Errorf("%w: %s has %d left", store.ErrInsufficientStock, v.SKU, v.Stock)
		}
	}
	for variantID, qty := range need {
		_, v, _ := s.variantLocked(variantID)
		v.Stock -= qty
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
	stored := cloneSale(sale)
	s.salesByID[sale.ID] = stored
	if sale.IdempotencyKey != "" {
		s.salesByIdem[sale.IdempotencyKey] = sale.ID
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
		s.appendMovementLocked(m)
	}

	created := cloneSale(stored)
	return &created, nil
}

func (s *Store) GetReturnedQty(_ context.Context, saleID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.returnedQtyLocked(saleID), nil
}

func (s *Store) returnedQtyLocked(saleID string) map[string]int {
	result := make(map[string]int)
	for _, ret := range s.returns {
		if ret.SaleID != saleID {
			continue
		}
		for _, line := range ret.Lines {
			result[line.VariantID] += line.Qty
		}
	}
	return result
}

func (s *Store) refundedTaxLocked(saleID string) int64 {
	var total int64
	for _, ret := range s.returns {
		if ret.SaleID == saleID {
			total += ret.TaxCents
		}
	}
	return total
}

func (s *Store) CreateReturn(_ context.Context, ret domain.Return, cash *domain.CashMovement) (*domain.Return, error) {
	if len(ret.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[ret.SaleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	sold := make(map[string]int, len(sale.Lines))
	for _, line := range sale.Lines {
		sold[line.VariantID] += line.Qty
	}
	returned := s.returnedQtyLocked(sale.ID)
	for _, line := range ret.Lines {
		if line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		returned[line.VariantID] += line.Qty
		if returned[line.VariantID] > sold[line.VariantID] {
			return nil, fmt.Errorf("%w: return qty for %s exceeds sold qty", store.ErrInvalidInput, line.VariantID)
		}
	}
	if cash != nil {
		if err := s.requireOpenSessionLocked(cash.SessionID); err != nil {
			return nil, err
		}
	}

	fully := true
	for variantID, qty := range sold {
		if returned[variantID] < qty {
			fully = false
			break
		}
	}
	ret.TaxCents = store.SettleRefundTax(ret.TaxCents, sale.TaxCents-s.refundedTaxLocked(sale.ID), fully)
	ret.RefundCents = ret.SubtotalCents + ret.TaxCents

	if ret.Restock {
		for _, line := range ret.Lines {
			if _, v, ok := s.variantLocked(line.VariantID); ok {
				v.Stock += line.Qty
			}
		}
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
	s.returns = append(s.returns, cloneReturn(ret))

	if fully {
		sale.Status = domain.SaleStatusReturned
	} else {
		sale.Status = domain.SaleStatusPartiallyReturned
	}
	s.salesByID[sale.ID] = sale

	if cash != nil {
		m := *cash
		m.AmountCents = ret.RefundCents
		if m.Reference == "" {
			m.Reference = ret.ID
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = ret.CreatedAt
		}
		s.appendMovementLocked(m)
	}

	created := cloneReturn(ret)
	return &created, nil
}

func (s *Store) ListReturns(_ context.Context, from time.Time, to time.Time) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Return, 0, len(s.returns))
	for _, ret := range s.returns {
		if inRange(ret.CreatedAt, from, to) {
			result = append(result, cloneReturn(ret))
		}
	}
	slices.SortFunc(result, func(a, b domain.Return) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}
