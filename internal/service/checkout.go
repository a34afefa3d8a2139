package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lakshan9910/studio-sub000/internal/document"
	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/pricing"
	"github.com/lakshan9910/studio-sub000/internal/store"
)

type pricedCart struct {
	lines    []domain.SaleLine
	totals   pricing.Totals
	settings domain.Settings
}

func (s *Service) QuoteCart(ctx context.Context, req domain.QuoteRequest) (domain.QuoteResponse, error) {
	if err := s.check(req); err != nil {
		return domain.QuoteResponse{}, err
	}
	cart, err := s.priceCart(ctx, req.Items)
	if err != nil {
		return domain.QuoteResponse{}, err
	}

	lines := make([]domain.QuoteLine, 0, len(cart.lines))
	for _, l := range cart.lines {
		lines = append(lines, domain.QuoteLine{
			VariantID:      l.VariantID,
			SKU:            l.SKU,
			Name:           l.Name,
			Qty:            l.Qty,
			UnitPriceCents: l.UnitPriceCents,
			LineTotalCents: l.LineTotalCents,
		})
	}
	return domain.QuoteResponse{
		Lines:          lines,
		SubtotalCents:  cart.totals.SubtotalCents,
		TaxEnabled:     cart.settings.TaxEnabled,
		TaxRatePercent: effectiveTaxRate(cart.settings),
		TaxCents:       cart.totals.TaxCents,
		TotalCents:     cart.totals.TotalCents,
	}, nil
}

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.PaymentReference = strings.TrimSpace(req.PaymentReference)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}
	if err := s.check(req); err != nil {
		return domain.CheckoutResponse{}, err
	}

	if req.IdempotencyKey != "" {
		if existing, err := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey); err == nil {
			return domain.CheckoutResponse{Sale: *existing, Duplicate: true}, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return domain.CheckoutResponse{}, err
		}
	}

	session, err := s.repo.GetOpenDrawerSession(ctx, req.TerminalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: terminal %s has no open drawer session", store.ErrConflict, req.TerminalID)
		}
		return domain.CheckoutResponse{}, err
	}

	cart, err := s.priceCart(ctx, req.Items)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	tendered := req.TenderedCents
	var change int64
	if req.PaymentMethod == domain.PaymentCash {
		change, err = pricing.Change(cart.totals.TotalCents, tendered)
		if err != nil {
			return domain.CheckoutResponse{}, &ValidationError{Fields: []FieldError{{
				Field: "tendered_cents",
				Rule:  "gte",
				Param: fmt.Sprintf("%d", cart.totals.TotalCents),
			}}}
		}
	} else {
		if req.PaymentReference == "" {
			return domain.CheckoutResponse{}, invalid("payment_reference", "required")
		}
		tendered = cart.totals.TotalCents
	}

	if req.CustomerID != "" {
		if _, err := s.repo.GetCustomer(ctx, req.CustomerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.CheckoutResponse{}, invalid("customer_id", "exists")
			}
			return domain.CheckoutResponse{}, err
		}
	}

	actor := actorOrSystem(ctx)
	now := s.now()
	sale := domain.Sale{
		IdempotencyKey:   req.IdempotencyKey,
		TerminalID:       req.TerminalID,
		SessionID:        session.ID,
		CustomerID:       req.CustomerID,
		Cashier:          actor.Username,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		Lines:            cart.lines,
		SubtotalCents:    cart.totals.SubtotalCents,
		TaxRatePercent:   effectiveTaxRate(cart.settings),
		TaxCents:         cart.totals.TaxCents,
		TotalCents:       cart.totals.TotalCents,
		TenderedCents:    tendered,
		ChangeCents:      change,
		Status:           domain.SaleStatusCompleted,
		CreatedAt:        now,
	}

	var cash *domain.CashMovement
	if sale.PaymentMethod == domain.PaymentCash {
		cash = &domain.CashMovement{
			SessionID:   session.ID,
			Kind:        domain.MovementSale,
			AmountCents: sale.TotalCents,
			CreatedBy:   actor.Username,
			CreatedAt:   now,
		}
	}

	created, err := s.repo.CreateSale(ctx, sale, cash)
	if err != nil {
		if errors.Is(err, store.ErrConflict) && req.IdempotencyKey != "" {
			if existing, findErr := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey); findErr == nil {
				return domain.CheckoutResponse{Sale: *existing, Duplicate: true}, nil
			}
		}
		return domain.CheckoutResponse{}, err
	}

	s.metrics.SaleCompleted(created.PaymentMethod, created.TotalCents)
	s.logAudit(ctx, "checkout", "sale", created.ID, fmt.Sprintf("terminal=%s,method=%s,total=%d,lines=%d", created.TerminalID, created.PaymentMethod, created.TotalCents, len(created.Lines)))
	return domain.CheckoutResponse{Sale: *created}, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.To.After(filter.From) {
		return nil, invalid("to", "gtfield")
	}
	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) LookupSaleByIdempotency(ctx context.Context, key string) (domain.SaleLookupResponse, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.SaleLookupResponse{}, invalid("idempotency_key", "required")
	}
	sale, err := s.repo.FindSaleByIdempotency(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SaleLookupResponse{Found: false}, nil
		}
		return domain.SaleLookupResponse{}, err
	}
	return domain.SaleLookupResponse{Found: true, Sale: sale}, nil
}

func (s *Service) SaleReceiptPDF(ctx context.Context, id string) ([]byte, error) {
	sale, err := s.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	return document.ReceiptPDF(sale, settings)
}

// priceCart resolves current variant prices and the store tax setting.
// Repeated variants are merged in first-seen order.
func (s *Service) priceCart(ctx context.Context, items []domain.CartItem) (pricedCart, error) {
	merged := normalizeItems(items)
	if len(merged) == 0 {
		return pricedCart{}, invalid("items", "min")
	}

	ids := make([]string, 0, len(merged))
	for _, item := range merged {
		ids = append(ids, item.VariantID)
	}
	variants, err := s.repo.GetVariants(ctx, ids)
	if err != nil {
		return pricedCart{}, err
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return pricedCart{}, err
	}

	lines := make([]domain.SaleLine, 0, len(merged))
	priced := make([]pricing.Line, 0, len(merged))
	for _, item := range merged {
		v, ok := variants[item.VariantID]
		if !ok || !v.ProductActive {
			return pricedCart{}, fmt.Errorf("%w: variant %s is unavailable", store.ErrInvalidInput, item.VariantID)
		}
		name := v.ProductName
		if v.Name != "" {
			name += " " + v.Name
		}
		lines = append(lines, domain.SaleLine{
			VariantID:      v.ID,
			SKU:            v.SKU,
			Name:           name,
			Qty:            item.Qty,
			UnitPriceCents: v.PriceCents,
			UnitCostCents:  v.CostCents,
			LineTotalCents: int64(item.Qty) * v.PriceCents,
		})
		priced = append(priced, pricing.Line{Qty: item.Qty, UnitPriceCents: v.PriceCents})
	}

	return pricedCart{
		lines:    lines,
		totals:   pricing.Quote(priced, settings.TaxEnabled, settings.TaxRatePercent),
		settings: settings,
	}, nil
}

func effectiveTaxRate(settings domain.Settings) float64 {
	if !settings.TaxEnabled {
		return 0
	}
	return settings.TaxRatePercent
}

func normalizeItems(items []domain.CartItem) []domain.CartItem {
	index := make(map[string]int, len(items))
	result := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.VariantID)
		if id == "" || item.Qty < 1 {
			continue
		}
		if i, ok := index[id]; ok {
			result[i].Qty += item.Qty
			continue
		}
		index[id] = len(result)
		result = append(result, domain.CartItem{VariantID: id, Qty: item.Qty})
	}
	return result
}
