package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/lakshan9910/studio-sub000/internal/domain"
)

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	return s.repo.GetSettings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.Settings, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Settings{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Settings{}, err
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	if req.StoreName != nil {
		name := strings.TrimSpace(*req.StoreName)
		if name == "" {
			return domain.Settings{}, invalid("store_name", "required")
		}
		settings.StoreName = name
	}
	if req.Currency != nil {
		settings.Currency = strings.ToUpper(strings.TrimSpace(*req.Currency))
	}
	if req.TaxEnabled != nil {
		settings.TaxEnabled = *req.TaxEnabled
	}
	if req.TaxRatePercent != nil {
		settings.TaxRatePercent = *req.TaxRatePercent
	}
	if req.ReceiptFooter != nil {
		settings.ReceiptFooter = strings.TrimSpace(*req.ReceiptFooter)
	}
	if req.LowStockThreshold != nil {
		settings.LowStockThreshold = *req.LowStockThreshold
	}
	settings.UpdatedAt = s.now()

	saved, err := s.repo.SaveSettings(ctx, settings)
	if err != nil {
		return domain.Settings{}, err
	}
	s.logAudit(ctx, "settings_update", "settings", "store", fmt.Sprintf("tax_enabled=%t,tax_rate=%.2f,currency=%s", saved.TaxEnabled, saved.TaxRatePercent, saved.Currency))
	return *saved, nil
}
