package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/lakshan9910/studio-sub000/internal/cache"
	"github.com/lakshan9910/studio-sub000/internal/document"
	"github.com/lakshan9910/studio-sub000/internal/domain"
)

const topVariantLimit = 10

// SalesSummary aggregates sales created and returns processed in [from, to).
// Ranges that end in the past are read through the report cache. CostCents is
// the cost of goods on the sales only; returns do not reduce it.
func (s *Service) SalesSummary(ctx context.Context, from time.Time, to time.Time) (domain.SalesSummary, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.SalesSummary{}, err
	}
	if from.IsZero() || to.IsZero() {
		return domain.SalesSummary{}, invalid("from", "required")
	}
	if !to.After(from) {
		return domain.SalesSummary{}, invalid("to", "gtfield")
	}
	from, to = from.UTC(), to.UTC()

	cacheable := !to.After(s.now())
	key := cache.SalesSummaryKey(from, to)
	if cacheable {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("report cache read failed")
		} else if ok {
			return *cached, nil
		}
	}

	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{From: from, To: to})
	if err != nil {
		return domain.SalesSummary{}, err
	}
	returns, err := s.repo.ListReturns(ctx, from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	summary := summarize(from, to, sales, returns)

	if cacheable {
		if err := s.cache.Set(ctx, key, &summary, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("report cache write failed")
		}
	}
	return summary, nil
}

func (s *Service) SalesSummaryXLSX(ctx context.Context, from time.Time, to time.Time) ([]byte, error) {
	summary, err := s.SalesSummary(ctx, from, to)
	if err != nil {
		return nil, err
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	return document.SalesSummaryXLSX(summary, settings.Currency)
}

func summarize(from, to time.Time, sales []domain.Sale, returns []domain.Return) domain.SalesSummary {
	summary := domain.SalesSummary{
		From:        from,
		To:          to,
		ByPayment:   []domain.SalesSummaryPayment{},
		TopVariants: []domain.SalesSummaryVariant{},
	}

	payments := make(map[string]*domain.SalesSummaryPayment)
	variants := make(map[string]*domain.SalesSummaryVariant)
	for _, sale := range sales {
		summary.Sales++
		summary.SubtotalCents += sale.SubtotalCents
		summary.TaxCents += sale.TaxCents
		summary.TotalCents += sale.TotalCents

		p, ok := payments[sale.PaymentMethod]
		if !ok {
			p = &domain.SalesSummaryPayment{PaymentMethod: sale.PaymentMethod}
			payments[sale.PaymentMethod] = p
		}
		p.Sales++
		p.TotalCents += sale.TotalCents

		for _, line := range sale.Lines {
			summary.CostCents += int64(line.Qty) * line.UnitCostCents
			v, ok := variants[line.VariantID]
			if !ok {
				v = &domain.SalesSummaryVariant{VariantID: line.VariantID, SKU: line.SKU, Name: line.Name}
				variants[line.VariantID] = v
			}
			v.Qty += int64(line.Qty)
			v.RevenueCents += line.LineTotalCents
		}
	}
	for _, ret := range returns {
		summary.Returns++
		summary.RefundCents += ret.RefundCents
	}
	summary.NetCents = summary.TotalCents - summary.RefundCents

	for _, p := range payments {
		summary.ByPayment = append(summary.ByPayment, *p)
	}
	sort.Slice(summary.ByPayment, func(i, j int) bool {
		return summary.ByPayment[i].PaymentMethod < summary.ByPayment[j].PaymentMethod
	})

	for _, v := range variants {
		summary.TopVariants = append(summary.TopVariants, *v)
	}
	sort.Slice(summary.TopVariants, func(i, j int) bool {
		a, b := summary.TopVariants[i], summary.TopVariants[j]
		if a.Qty != b.Qty {
			return a.Qty > b.Qty
		}
		if a.RevenueCents != b.RevenueCents {
			return a.RevenueCents > b.RevenueCents
		}
		return strings.Compare(a.SKU, b.SKU) < 0
	})
	if len(summary.TopVariants) > topVariantLimit {
		summary.TopVariants = summary.TopVariants[:topVariantLimit]
	}
	return summary
}
