package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("POS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POS_TEST_DATABASE_URL to run postgres integration test")
	}
	if err := Migrate(databaseURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestSaleReturnAndDrawerClose(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()

	category, err := s.CreateCategory(ctx, domain.Category{Name: fmt.Sprintf("IT Category %d", stamp)})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	product, err := s.CreateProduct(ctx, domain.Product{
		Name:       "IT Soda",
		CategoryID: category.ID,
		Active:     true,
		Variants: []domain.Variant{
			{SKU: fmt.Sprintf("it-soda-%d", stamp), Name: "Can", PriceCents: 299, CostCents: 100, Stock: 5},
		},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	variant := product.Variants[0]
	if variant.SKU != fmt.Sprintf("IT-SODA-%d", stamp) {
		t.Fatalf("expected upper-cased sku, got %s", variant.SKU)
	}

	terminal := fmt.Sprintf("T-IT-%d", stamp)
	session, err := s.CreateDrawerSession(ctx, domain.DrawerSession{TerminalID: terminal, OpenedBy: "it", OpeningFloatCents: 10000})
	if err != nil {
		t.Fatalf("open drawer: %v", err)
	}
	if _, err := s.CreateDrawerSession(ctx, domain.DrawerSession{TerminalID: terminal, OpenedBy: "it"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on second open drawer, got %v", err)
	}

	sale, err := s.CreateSale(ctx, domain.Sale{
		IdempotencyKey: fmt.Sprintf("idem-it-%d", stamp),
		TerminalID:     terminal,
		SessionID:      session.ID,
		Cashier:        "it",
		PaymentMethod:  domain.PaymentCash,
		Lines: []domain.SaleLine{
			{VariantID: variant.ID, SKU: variant.SKU, Name: "IT Soda Can", Qty: 2, UnitPriceCents: 299, UnitCostCents: 100, LineTotalCents: 598},
		},
		SubtotalCents:  598,
		TaxRatePercent: 8,
		TaxCents:       48,
		TotalCents:     646,
		TenderedCents:  1000,
		ChangeCents:    354,
	}, &domain.CashMovement{Kind: domain.MovementSale, AmountCents: 646, CreatedBy: "it"})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if _, err := s.CreateSale(ctx, domain.Sale{
		TerminalID:    terminal,
		SessionID:     session.ID,
		Cashier:       "it",
		PaymentMethod: domain.PaymentCard,
		Lines:         []domain.SaleLine{{VariantID: variant.ID, Qty: 10, UnitPriceCents: 299, LineTotalCents: 2990}},
		SubtotalCents: 2990,
		TotalCents:    2990,
	}, nil); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	if _, err := s.CreateReturn(ctx, domain.Return{
		SaleID:        sale.ID,
		RefundMethod:  domain.PaymentCash,
		Restock:       true,
		Reason:        "damaged",
		ProcessedBy:   "it",
		Lines:         []domain.ReturnLine{{VariantID: variant.ID, SKU: variant.SKU, Qty: 1, UnitPriceCents: 299, AmountCents: 299}},
		SubtotalCents: 299,
		TaxCents:      24,
		RefundCents:   323,
	}, &domain.CashMovement{SessionID: session.ID, Kind: domain.MovementRefund, AmountCents: 323, CreatedBy: "it"}); err != nil {
		t.Fatalf("create return: %v", err)
	}
	if _, err := s.CreateReturn(ctx, domain.Return{
		SaleID:      sale.ID,
		Reason:      "again",
		ProcessedBy: "it",
		Lines:       []domain.ReturnLine{{VariantID: variant.ID, Qty: 2}},
	}, nil); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected over-return rejection, got %v", err)
	}

	reloaded, err := s.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if reloaded.Status != domain.SaleStatusPartiallyReturned {
		t.Fatalf("expected partially_returned, got %s", reloaded.Status)
	}
	variants, err := s.GetVariants(ctx, []string{variant.ID})
	if err != nil {
		t.Fatalf("get variants: %v", err)
	}
	if got := variants[variant.ID].Stock; got != 4 {
		t.Fatalf("expected stock 4 after sale and restock, got %d", got)
	}

	completing, err := s.CreateReturn(ctx, domain.Return{
		SaleID:        sale.ID,
		RefundMethod:  domain.PaymentCard,
		Reason:        "second can",
		ProcessedBy:   "it",
		Lines:         []domain.ReturnLine{{VariantID: variant.ID, SKU: variant.SKU, Qty: 1, UnitPriceCents: 299, AmountCents: 299}},
		SubtotalCents: 299,
		TaxCents:      23,
		RefundCents:   322,
	}, nil)
	if err != nil {
		t.Fatalf("completing return: %v", err)
	}
	if completing.TaxCents != 24 || completing.RefundCents != 323 {
		t.Fatalf("expected completing return to refund the remaining 24 tax, got tax=%d refund=%d", completing.TaxCents, completing.RefundCents)
	}

	listed, err := s.ListSales(ctx, domain.SaleFilter{SessionID: session.ID})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != sale.ID || listed[0].Status != domain.SaleStatusReturned {
		t.Fatalf("expected the returned sale without a limit, got %+v", listed)
	}

	closed, err := s.CloseDrawerSession(ctx, session.ID, 10323, "end of shift", time.Now().UTC())
	if err != nil {
		t.Fatalf("close drawer: %v", err)
	}
	if closed.ExpectedCashCents != 10323 || closed.VarianceStatus != domain.VarianceBalanced {
		t.Fatalf("unexpected close result: expected=%d status=%s", closed.ExpectedCashCents, closed.VarianceStatus)
	}
}
