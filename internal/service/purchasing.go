package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/lakshan9910/studio-sub000/internal/domain"
)

func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.Purchase, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Purchase{}, err
	}
	req.SupplierID = strings.TrimSpace(req.SupplierID)
	req.Notes = strings.TrimSpace(req.Notes)
	for i := range req.Lines {
		req.Lines[i].VariantID = strings.TrimSpace(req.Lines[i].VariantID)
	}
	if err := s.check(req); err != nil {
		return domain.Purchase{}, err
	}

	created, err := s.repo.CreatePurchase(ctx, domain.Purchase{
		SupplierID: req.SupplierID,
		Notes:      req.Notes,
		Lines:      req.Lines,
		CreatedBy:  actor.Username,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return domain.Purchase{}, err
	}
	s.logAudit(ctx, "purchase_create", "purchase", created.ID, fmt.Sprintf("supplier=%s,lines=%d,total=%d", created.SupplierID, len(created.Lines), created.TotalCents))
	return *created, nil
}

func (s *Service) ListPurchases(ctx context.Context, status string, limit int) ([]domain.Purchase, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", domain.PurchaseStatusOrdered, domain.PurchaseStatusReceived, domain.PurchaseStatusCancelled:
	default:
		return nil, invalid("status", "oneof")
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListPurchases(ctx, status, limit)
}

func (s *Service) GetPurchase(ctx context.Context, id string) (domain.Purchase, error) {
	purchase, err := s.repo.GetPurchase(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Purchase{}, err
	}
	return *purchase, nil
}

// ReceivePurchase books the ordered quantities into stock and re-averages
// each variant's unit cost.
func (s *Service) ReceivePurchase(ctx context.Context, id string) (domain.Purchase, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Purchase{}, err
	}
	received, err := s.repo.ReceivePurchase(ctx, strings.TrimSpace(id), actor.Username, s.now())
	if err != nil {
		return domain.Purchase{}, err
	}
	s.logAudit(ctx, "purchase_receive", "purchase", received.ID, fmt.Sprintf("lines=%d,total=%d", len(received.Lines), received.TotalCents))
	return *received, nil
}

func (s *Service) CancelPurchase(ctx context.Context, id string) (domain.Purchase, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Purchase{}, err
	}
	cancelled, err := s.repo.CancelPurchase(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Purchase{}, err
	}
	s.logAudit(ctx, "purchase_cancel", "purchase", cancelled.ID, "")
	return *cancelled, nil
}
