package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/pricing"
	"github.com/lakshan9910/studio-sub000/internal/store"
)

type soldLine struct {
	sku       string
	qty       int
	unitPrice int64
}

// ProcessReturn refunds part or all of a sale. Admins may return directly;
// cashiers need a valid manager PIN on the request.
func (s *Service) ProcessReturn(ctx context.Context, req domain.ReturnRequest) (domain.Return, error) {
	actor, err := s.authorizeReturn(ctx, req.ManagerPIN)
	if err != nil {
		return domain.Return{}, err
	}
	req.SaleID = strings.TrimSpace(req.SaleID)
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	req.Reason = strings.TrimSpace(req.Reason)
	req.RefundMethod = strings.ToLower(strings.TrimSpace(req.RefundMethod))
	if err := s.check(req); err != nil {
		return domain.Return{}, err
	}

	sale, err := s.repo.GetSale(ctx, req.SaleID)
	if err != nil {
		return domain.Return{}, err
	}

	sold := make(map[string]soldLine, len(sale.Lines))
	for _, l := range sale.Lines {
		cur := sold[l.VariantID]
		if cur.sku == "" {
			cur = soldLine{sku: l.SKU, unitPrice: l.UnitPriceCents}
		}
		cur.qty += l.Qty
		sold[l.VariantID] = cur
	}
	returned, err := s.repo.GetReturnedQty(ctx, sale.ID)
	if err != nil {
		return domain.Return{}, err
	}

	requested := make(map[string]int, len(req.Lines))
	order := make([]string, 0, len(req.Lines))
	for _, l := range req.Lines {
		id := strings.TrimSpace(l.VariantID)
		if _, seen := requested[id]; !seen {
			order = append(order, id)
		}
		requested[id] += l.Qty
	}

	lines := make([]domain.ReturnLine, 0, len(order))
	var subtotal int64
	for _, id := range order {
		line, ok := sold[id]
		if !ok {
			return domain.Return{}, fmt.Errorf("%w: variant %s is not on sale %s", store.ErrInvalidInput, id, sale.ID)
		}
		qty := requested[id]
		if remaining := line.qty - returned[id]; qty > remaining {
			return domain.Return{}, fmt.Errorf("%w: %s has %d returnable, requested %d", store.ErrInvalidInput, line.sku, remaining, qty)
		}
		amount := int64(qty) * line.unitPrice
		subtotal += amount
		lines = append(lines, domain.ReturnLine{
			VariantID:      id,
			SKU:            line.sku,
			Qty:            qty,
			UnitPriceCents: line.unitPrice,
			AmountCents:    amount,
		})
	}

	// The store settles the final figure against tax already refunded.
	var tax int64
	if sale.TaxCents > 0 {
		tax = pricing.LineTaxCents(subtotal, sale.TaxRatePercent)
	}

	if req.RefundMethod == "" {
		req.RefundMethod = sale.PaymentMethod
	}
	ret := domain.Return{
		SaleID:        sale.ID,
		Lines:         lines,
		SubtotalCents: subtotal,
		TaxCents:      tax,
		RefundCents:   subtotal + tax,
		RefundMethod:  req.RefundMethod,
		Restock:       req.Restock,
		Reason:        req.Reason,
		ProcessedBy:   actor.Username,
		CreatedAt:     s.now(),
	}

	var cash *domain.CashMovement
	if ret.RefundMethod == domain.PaymentCash {
		terminal := req.TerminalID
		if terminal == "" {
			terminal = sale.TerminalID
		}
		session, err := s.repo.GetOpenDrawerSession(ctx, terminal)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Return{}, fmt.Errorf("%w: cash refund needs an open drawer on terminal %s", store.ErrConflict, terminal)
			}
			return domain.Return{}, err
		}
		cash = &domain.CashMovement{
			SessionID:   session.ID,
			Kind:        domain.MovementRefund,
			AmountCents: ret.RefundCents,
			Note:        ret.Reason,
			CreatedBy:   actor.Username,
			CreatedAt:   ret.CreatedAt,
		}
	}

	created, err := s.repo.CreateReturn(ctx, ret, cash)
	if err != nil {
		return domain.Return{}, err
	}

	s.metrics.ReturnProcessed(created.RefundCents)
	s.logAudit(ctx, "sale_return", "return", created.ID, fmt.Sprintf("sale=%s,refund=%d,method=%s,restock=%t,reason=%s", created.SaleID, created.RefundCents, created.RefundMethod, created.Restock, created.Reason))
	return *created, nil
}

func (s *Service) authorizeReturn(ctx context.Context, pin string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}
	if actor.Role == domain.RoleAdmin {
		return actor, nil
	}
	if s.verifyPIN == nil || strings.TrimSpace(pin) == "" || !s.verifyPIN(pin) {
		return domain.Actor{}, fmt.Errorf("%w: manager approval required", ErrForbidden)
	}
	return actor, nil
}

func (s *Service) ListReturns(ctx context.Context, from time.Time, to time.Time) ([]domain.Return, error) {
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return nil, invalid("to", "gtfield")
	}
	return s.repo.ListReturns(ctx, from, to)
}
