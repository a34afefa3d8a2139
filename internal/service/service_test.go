package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/store"
	"github.com/lakshan9910/studio-sub000/internal/store/memory"
)

const testManagerPIN = "482915"

func newTestService() *Service {
	return New(memory.NewSeeded(), Options{
		VerifyManagerPIN: func(pin string) bool { return pin == testManagerPIN },
	})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier})
}

func openDrawer(t *testing.T, svc *Service, ctx context.Context, terminal string, float int64) domain.DrawerResponse {
	t.Helper()
	resp, err := svc.OpenDrawer(ctx, domain.DrawerOpenRequest{TerminalID: terminal, OpeningFloatCents: float})
	if err != nil {
		t.Fatalf("open drawer failed: %v", err)
	}
	return resp
}

func sampleCheckout(terminal, key string) domain.CheckoutRequest {
	return domain.CheckoutRequest{
		TerminalID:     terminal,
		IdempotencyKey: key,
		PaymentMethod:  domain.PaymentCash,
		TenderedCents:  2000,
		Items: []domain.CartItem{
			{VariantID: "var-coffee-s", Qty: 2},
			{VariantID: "var-chips-orig", Qty: 1},
		},
	}
}

func TestQuoteCartAppliesStoreTax(t *testing.T) {
	svc := newTestService()

	quote, err := svc.QuoteCart(context.Background(), domain.QuoteRequest{Items: []domain.CartItem{
		{VariantID: "var-coffee-s", Qty: 1},
		{VariantID: "var-chips-orig", Qty: 1},
		{VariantID: "var-coffee-s", Qty: 1},
	}})
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if len(quote.Lines) != 2 || quote.Lines[0].Qty != 2 {
		t.Fatalf("expected merged lines, got %+v", quote.Lines)
	}
	if quote.SubtotalCents != 1147 || quote.TaxCents != 92 || quote.TotalCents != 1239 {
		t.Fatalf("unexpected totals subtotal=%d tax=%d total=%d", quote.SubtotalCents, quote.TaxCents, quote.TotalCents)
	}

	disabled := false
	if _, err := svc.UpdateSettings(adminCtx(), domain.SettingsUpdateRequest{TaxEnabled: &disabled}); err != nil {
		t.Fatalf("update settings failed: %v", err)
	}
	quote, err = svc.QuoteCart(context.Background(), domain.QuoteRequest{Items: []domain.CartItem{{VariantID: "var-chips-orig", Qty: 1}}})
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if quote.TaxCents != 0 || quote.TotalCents != quote.SubtotalCents || quote.TaxRatePercent != 0 {
		t.Fatalf("expected no tax when disabled, got %+v", quote)
	}
}

func TestQuoteRejectsUnknownVariant(t *testing.T) {
	svc := newTestService()
	_, err := svc.QuoteCart(context.Background(), domain.QuoteRequest{Items: []domain.CartItem{{VariantID: "var-missing", Qty: 1}}})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCheckoutRequiresOpenDrawer(t *testing.T) {
	svc := newTestService()
	_, err := svc.Checkout(cashierCtx(), sampleCheckout("T1", "idem-no-drawer"))
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict without open drawer, got %v", err)
	}
}

func TestCheckoutCashComputesChangeAndPostsMovement(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openDrawer(t, svc, ctx, "T1", 10000)

	resp, err := svc.Checkout(ctx, sampleCheckout("T1", "idem-cash-1"))
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	sale := resp.Sale
	if resp.Duplicate {
		t.Fatalf("first checkout must not be duplicate")
	}
	if sale.TotalCents != 1239 || sale.ChangeCents != 761 || sale.Cashier != "cashier" {
		t.Fatalf("unexpected sale: total=%d change=%d cashier=%s", sale.TotalCents, sale.ChangeCents, sale.Cashier)
	}
	if sale.TotalCents != sale.SubtotalCents+sale.TaxCents {
		t.Fatalf("total must equal subtotal + tax")
	}

	drawer, err := svc.GetOpenDrawer(ctx, "T1")
	if err != nil {
		t.Fatalf("get drawer failed: %v", err)
	}
	if drawer.Summary.CashSalesCents != 1239 || drawer.Summary.ExpectedCashCents != 11239 {
		t.Fatalf("unexpected drawer summary: %+v", drawer.Summary)
	}

	product, err := svc.GetProduct(ctx, "prod-coffee")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.Variants[0].Stock != 118 {
		t.Fatalf("expected stock 118, got %d", product.Variants[0].Stock)
	}
}

func TestCheckoutIdempotentReplay(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openDrawer(t, svc, ctx, "T1", 0)

	first, err := svc.Checkout(ctx, sampleCheckout("T1", "idem-replay"))
	if err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}
	second, err := svc.Checkout(ctx, sampleCheckout("T1", "idem-replay"))
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !second.Duplicate || second.Sale.ID != first.Sale.ID {
		t.Fatalf("expected duplicate of %s, got %+v", first.Sale.ID, second)
	}

	lookup, err := svc.LookupSaleByIdempotency(ctx, "idem-replay")
	if err != nil || !lookup.Found || lookup.Sale.ID != first.Sale.ID {
		t.Fatalf("lookup mismatch: %+v err=%v", lookup, err)
	}
	missing, err := svc.LookupSaleByIdempotency(ctx, "idem-unknown")
	if err != nil || missing.Found {
		t.Fatalf("expected not found lookup, got %+v err=%v", missing, err)
	}

	drawer, err := svc.GetOpenDrawer(ctx, "T1")
	if err != nil {
		t.Fatalf("get drawer failed: %v", err)
	}
	if len(drawer.Movements) != 1 {
		t.Fatalf("replay must not post a second movement, got %d", len(drawer.Movements))
	}
}

func TestCheckoutPaymentValidation(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openDrawer(t, svc, ctx, "T1", 0)

	short := sampleCheckout("T1", "idem-short")
	short.TenderedCents = 1000
	_, err := svc.Checkout(ctx, short)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields[0].Field != "tendered_cents" {
		t.Fatalf("expected tendered validation error, got %v", err)
	}

	card := sampleCheckout("T1", "idem-card")
	card.PaymentMethod = domain.PaymentCard
	card.TenderedCents = 0
	if _, err := svc.Checkout(ctx, card); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected missing reference to fail, got %v", err)
	}
	card.PaymentReference = "AUTH-7781"
	resp, err := svc.Checkout(ctx, card)
	if err != nil {
		t.Fatalf("card checkout failed: %v", err)
	}
	if resp.Sale.TenderedCents != resp.Sale.TotalCents || resp.Sale.ChangeCents != 0 {
		t.Fatalf("card sale should tender exact total: %+v", resp.Sale)
	}

	drawer, _ := svc.GetOpenDrawer(ctx, "T1")
	if drawer.Summary.CashSalesCents != 0 {
		t.Fatalf("card sale must not touch the drawer, got %d", drawer.Summary.CashSalesCents)
	}

	bad := sampleCheckout("T1", "idem-bad-method")
	bad.PaymentMethod = "crypto"
	if _, err := svc.Checkout(ctx, bad); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected unsupported method to fail, got %v", err)
	}
}

func TestCheckoutInsufficientStock(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openDrawer(t, svc, ctx, "T1", 0)

	req := sampleCheckout("T1", "idem-bbq")
	req.TenderedCents = 100000
	req.Items = []domain.CartItem{{VariantID: "var-chips-bbq", Qty: 9}}
	if _, err := svc.Checkout(ctx, req); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestReturnRequiresAdminOrManagerPIN(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openDrawer(t, svc, ctx, "T1", 5000)
	sale, err := svc.Checkout(ctx, sampleCheckout("T1", "idem-ret"))
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	req := domain.ReturnRequest{
		SaleID:  sale.Sale.ID,
		Restock: true,
		Reason:  "damaged seal",
		Lines:   []domain.ReturnLineRequest{{VariantID: "var-coffee-s", Qty: 1}},
	}
	if _, err := svc.ProcessReturn(ctx, req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden without pin, got %v", err)
	}
	req.ManagerPIN = "000000"
	if _, err := svc.ProcessReturn(ctx, req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden with wrong pin, got %v", err)
	}

	req.ManagerPIN = testManagerPIN
	ret, err := svc.ProcessReturn(ctx, req)
	if err != nil {
		t.Fatalf("return failed: %v", err)
	}
	if ret.SubtotalCents != 299 || ret.TaxCents != 24 || ret.RefundCents != 323 {
		t.Fatalf("unexpected refund: %+v", ret)
	}
	if ret.RefundMethod != domain.PaymentCash || ret.ProcessedBy != "cashier" {
		t.Fatalf("unexpected return metadata: %+v", ret)
	}

	drawer, _ := svc.GetOpenDrawer(ctx, "T1")
	if drawer.Summary.CashRefundsCents != 323 || drawer.Summary.ExpectedCashCents != 5000+1239-323 {
		t.Fatalf("unexpected drawer after refund: %+v", drawer.Summary)
	}

	updated, _ := svc.GetSale(ctx, sale.Sale.ID)
	if updated.Status != domain.SaleStatusPartiallyReturned {
		t.Fatalf("expected partially returned, got %s", updated.Status)
	}
}

func TestReturnRejectsOverReturnAndRefundsRemainingTax(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openDrawer(t, svc, ctx, "T1", 0)
	sale, err := svc.Checkout(ctx, sampleCheckout("T1", "idem-over"))
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	admin := adminCtx()
	first, err := svc.ProcessReturn(admin, domain.ReturnRequest{
		SaleID:       sale.Sale.ID,
		RefundMethod: domain.PaymentTransfer,
		Reason:       "customer changed mind",
		Lines:        []domain.ReturnLineRequest{{VariantID: "var-coffee-s", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("first return failed: %v", err)
	}
	if first.TaxCents != 48 {
		t.Fatalf("expected tax 48 on 598, got %d", first.TaxCents)
	}

	_, err = svc.ProcessReturn(admin, domain.ReturnRequest{
		SaleID: sale.Sale.ID,
		Reason: "again",
		Lines:  []domain.ReturnLineRequest{{VariantID: "var-coffee-s", Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected over-return rejection, got %v", err)
	}

	last, err := svc.ProcessReturn(admin, domain.ReturnRequest{
		SaleID:       sale.Sale.ID,
		RefundMethod: domain.PaymentTransfer,
		Reason:       "stale",
		Lines:        []domain.ReturnLineRequest{{VariantID: "var-chips-orig", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("last return failed: %v", err)
	}
	if first.TaxCents+last.TaxCents != sale.Sale.TaxCents {
		t.Fatalf("refunded tax %d+%d must equal collected %d", first.TaxCents, last.TaxCents, sale.Sale.TaxCents)
	}
	if first.RefundCents+last.RefundCents != sale.Sale.TotalCents {
		t.Fatalf("full return must refund the sale total")
	}

	updated, _ := svc.GetSale(ctx, sale.Sale.ID)
	if updated.Status != domain.SaleStatusReturned {
		t.Fatalf("expected returned status, got %s", updated.Status)
	}
}

func TestDrawerCloseReportsVariance(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openDrawer(t, svc, ctx, "T1", 10000)

	if _, err := svc.OpenDrawer(ctx, domain.DrawerOpenRequest{TerminalID: "T1"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected second open to conflict, got %v", err)
	}
	if _, err := svc.Checkout(ctx, sampleCheckout("T1", "idem-close")); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if _, err := svc.RecordCashMovement(ctx, domain.DrawerMovementRequest{
		TerminalID:  "T1",
		Kind:        domain.MovementCashOut,
		AmountCents: 500,
		Note:        "courier tip",
	}); err != nil {
		t.Fatalf("cash out failed: %v", err)
	}
	if _, err := svc.RecordCashMovement(ctx, domain.DrawerMovementRequest{
		TerminalID:  "T1",
		Kind:        domain.MovementSale,
		AmountCents: 500,
		Note:        "forged",
	}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("manual sale movements must be rejected, got %v", err)
	}

	closed, err := svc.CloseDrawer(ctx, domain.DrawerCloseRequest{TerminalID: "T1", CountedCashCents: 10700})
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if closed.Summary.ExpectedCashCents != 10739 || closed.Summary.VarianceCents != -39 {
		t.Fatalf("unexpected close summary: %+v", closed.Summary)
	}
	if closed.Session.Status != domain.DrawerStatusClosed || closed.Session.VarianceStatus != domain.VarianceShort {
		t.Fatalf("unexpected closed session: %+v", closed.Session)
	}

	if _, err := svc.GetOpenDrawer(ctx, "T1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no open drawer after close, got %v", err)
	}
	again, err := svc.GetDrawerSession(ctx, closed.Session.ID)
	if err != nil || again.Summary.VarianceStatus != domain.VarianceShort {
		t.Fatalf("closed session lookup mismatch: %+v err=%v", again.Summary, err)
	}
	openDrawer(t, svc, ctx, "T1", 0)
}

func TestCreateProductRequiresAdminAndValidates(t *testing.T) {
	svc := newTestService()
	req := domain.ProductCreateRequest{
		Name:       "Oat Milk",
		CategoryID: "cat-beverage",
		Variants: []domain.VariantInput{
			{SKU: "oat-1l", Name: "1L", PriceCents: 399, CostCents: 210, Stock: 12},
		},
	}
	if _, err := svc.CreateProduct(cashierCtx(), req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for cashier, got %v", err)
	}

	created, err := svc.CreateProduct(adminCtx(), req)
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	if created.Variants[0].SKU != "OAT-1L" || !created.Active {
		t.Fatalf("unexpected product: %+v", created)
	}

	if _, err := svc.CreateProduct(adminCtx(), req); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate sku conflict, got %v", err)
	}

	bad := req
	bad.Variants = []domain.VariantInput{{SKU: "X", Name: "x", PriceCents: 0}}
	_, err = svc.CreateProduct(adminCtx(), bad)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields[0].Field != "variants[0].price_cents" {
		t.Fatalf("expected price validation error, got %v", err)
	}

	bad = req
	bad.CategoryID = "cat-missing"
	bad.Variants = []domain.VariantInput{{SKU: "OAT-2L", Name: "2L", PriceCents: 699}}
	if _, err := svc.CreateProduct(adminCtx(), bad); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected unknown category rejection, got %v", err)
	}

	page, err := svc.ListProducts(context.Background(), domain.ProductFilter{Query: "oat"})
	if err != nil || page.Pagination.TotalItems != 1 || page.Products[0].ID != created.ID {
		t.Fatalf("search mismatch: %+v err=%v", page, err)
	}

	logs, err := svc.ListAuditLogs(adminCtx(), time.Time{}, time.Time{}, 10)
	if err != nil || len(logs) == 0 || logs[0].Action != "product_create" {
		t.Fatalf("expected product_create audit log, got %+v err=%v", logs, err)
	}
}

func TestImportProductsFromWorkbook(t *testing.T) {
	svc := newTestService()

	f := excelize.NewFile()
	rows := [][]any{
		{"name", "category", "sku", "variant", "price", "cost", "stock"},
		{"Green Tea", "Beverages", "TEA-G-S", "Small", "2.49", "1.10", "12"},
		{"Green Tea", "Beverages", "TEA-G-L", "Large", "3.99", "1.60", "6"},
		{"Dish Soap", "cat-household", "DISH-1", "", "4.25", "", "3"},
		{"Rice", "Grains", "RICE-1", "", "9.00", "", ""},
		{"Duplicate", "Snacks", "CHP-ORIG", "", "1.00", "", ""},
	}
	for i, values := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &values); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	_ = f.Close()

	result, err := svc.ImportProducts(adminCtx(), &buf)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.Created != 2 || result.Skipped != 1 || len(result.Problems) != 2 {
		t.Fatalf("unexpected import result: %+v", result)
	}

	page, _ := svc.ListProducts(context.Background(), domain.ProductFilter{Query: "TEA-G"})
	if len(page.Products) != 1 || len(page.Products[0].Variants) != 2 {
		t.Fatalf("expected one tea product with two variants, got %+v", page.Products)
	}
}

func TestCountStockRecordsAdjustments(t *testing.T) {
	svc := newTestService()
	resp, err := svc.CountStock(adminCtx(), domain.StockCountRequest{
		Notes: "weekly count",
		Lines: []domain.StockCountLine{
			{VariantID: "var-soap-lav", CountedQty: 40},
			{VariantID: "var-water-600", CountedQty: 200},
		},
	})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if len(resp.Adjustments) != 2 || resp.Adjustments[0].DeltaQty != -5 || resp.Adjustments[1].DeltaQty != 0 {
		t.Fatalf("unexpected adjustments: %+v", resp.Adjustments)
	}

	low, err := svc.LowStock(context.Background(), -1)
	if err != nil {
		t.Fatalf("low stock failed: %v", err)
	}
	found := false
	for _, item := range low {
		if item.VariantID == "var-chips-bbq" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected var-chips-bbq below default threshold, got %+v", low)
	}
}

func TestPurchaseReceiveAveragesCost(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	po, err := svc.CreatePurchase(ctx, domain.PurchaseCreateRequest{
		SupplierID: "sup-main",
		Lines:      []domain.PurchaseLine{{VariantID: "var-chips-bbq", Qty: 8, UnitCostCents: 350}},
	})
	if err != nil {
		t.Fatalf("create purchase failed: %v", err)
	}
	if po.Status != domain.PurchaseStatusOrdered || po.TotalCents != 2800 {
		t.Fatalf("unexpected purchase: %+v", po)
	}

	received, err := svc.ReceivePurchase(ctx, po.ID)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if received.Status != domain.PurchaseStatusReceived || received.ReceivedBy != "admin" {
		t.Fatalf("unexpected received purchase: %+v", received)
	}
	if _, err := svc.ReceivePurchase(ctx, po.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected second receive to conflict, got %v", err)
	}
	if _, err := svc.CancelPurchase(ctx, po.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected cancel of received purchase to conflict, got %v", err)
	}

	product, _ := svc.GetProduct(ctx, "prod-chips")
	bbq := product.Variants[1]
	if bbq.Stock != 16 || bbq.CostCents != 330 {
		t.Fatalf("expected stock 16 cost 330, got stock=%d cost=%d", bbq.Stock, bbq.CostCents)
	}

	if _, err := svc.CreatePurchase(ctx, domain.PurchaseCreateRequest{
		SupplierID: "sup-missing",
		Lines:      []domain.PurchaseLine{{VariantID: "var-chips-bbq", Qty: 1, UnitCostCents: 1}},
	}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected unknown supplier rejection, got %v", err)
	}
}

func TestPayrollRunLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	loan, err := svc.IssueLoan(ctx, domain.LoanCreateRequest{EmployeeID: "emp-ana", PrincipalCents: 30000, InstallmentCents: 10000})
	if err != nil {
		t.Fatalf("issue loan failed: %v", err)
	}

	run, err := svc.GeneratePayrollRun(ctx, domain.PayrollRunRequest{
		PeriodStart: "2026-03-01",
		PeriodEnd:   "2026-03-31",
		Inputs: []domain.PayrollInput{
			{EmployeeID: "emp-ana", OvertimeHours: 10, BonusCents: 5000, AbsentDays: 1},
		},
	})
	if err != nil {
		t.Fatalf("generate run failed: %v", err)
	}
	if run.Status != domain.PayrollRunDraft || len(run.Items) != 2 {
		t.Fatalf("unexpected run: %+v", run)
	}

	items := map[string]domain.PayrollItem{}
	for _, it := range run.Items {
		items[it.EmployeeID] = it
	}
	ana := items["emp-ana"]
	if ana.GrossCents != 340000 || ana.TotalDeductionsCents != 34000 || ana.NetCents != 306000 {
		t.Fatalf("unexpected ana item: gross=%d deductions=%d net=%d", ana.GrossCents, ana.TotalDeductionsCents, ana.NetCents)
	}
	ravi := items["emp-ravi"]
	if ravi.DivisorDays != 26 || ravi.OvertimeRateCents != 1500 || ravi.NetCents != 218000 {
		t.Fatalf("unexpected ravi item: %+v", ravi)
	}
	if run.TotalNetCents != 524000 {
		t.Fatalf("expected total net 524000, got %d", run.TotalNetCents)
	}

	finalized, err := svc.FinalizePayrollRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if finalized.Status != domain.PayrollRunFinalized || finalized.FinalizedBy != "admin" {
		t.Fatalf("unexpected finalized run: %+v", finalized)
	}
	if _, err := svc.FinalizePayrollRun(ctx, run.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected second finalize to conflict, got %v", err)
	}

	loans, _ := svc.ListLoans(ctx, "emp-ana")
	if len(loans) != 1 || loans[0].ID != loan.ID || loans[0].BalanceCents != 20000 {
		t.Fatalf("expected loan balance 20000, got %+v", loans)
	}

	_, err = svc.GeneratePayrollRun(ctx, domain.PayrollRunRequest{PeriodStart: "2026-03-31", PeriodEnd: "2026-04-29"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected overlap with finalized run to conflict, got %v", err)
	}
	if _, err := svc.GeneratePayrollRun(ctx, domain.PayrollRunRequest{PeriodStart: "2026-04-01", PeriodEnd: "2026-04-30"}); err != nil {
		t.Fatalf("next period should be allowed: %v", err)
	}

	if _, err := svc.PayslipPDF(ctx, run.ID, "emp-ana"); err != nil {
		t.Fatalf("payslip failed: %v", err)
	}
	if _, err := svc.PayslipPDF(ctx, run.ID, "emp-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected missing payslip not found, got %v", err)
	}
}

func TestFinalizeRejectsDraftWithStaleLoanDeduction(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	loan, err := svc.IssueLoan(ctx, domain.LoanCreateRequest{EmployeeID: "emp-ana", PrincipalCents: 70000, InstallmentCents: 50000})
	if err != nil {
		t.Fatalf("issue loan failed: %v", err)
	}
	anaDeduction := func(run domain.PayrollRun) int64 {
		for _, it := range run.Items {
			if it.EmployeeID == "emp-ana" {
				return it.LoanDeductionsCents
			}
		}
		t.Fatalf("run %s has no item for emp-ana", run.ID)
		return 0
	}

	jan, err := svc.GeneratePayrollRun(ctx, domain.PayrollRunRequest{PeriodStart: "2026-01-01", PeriodEnd: "2026-01-31"})
	if err != nil {
		t.Fatalf("generate jan failed: %v", err)
	}
	feb, err := svc.GeneratePayrollRun(ctx, domain.PayrollRunRequest{PeriodStart: "2026-02-01", PeriodEnd: "2026-02-28"})
	if err != nil {
		t.Fatalf("generate feb failed: %v", err)
	}
	if anaDeduction(jan) != 50000 || anaDeduction(feb) != 50000 {
		t.Fatalf("expected both drafts to deduct the 50000 installment")
	}

	if _, err := svc.FinalizePayrollRun(ctx, jan.ID); err != nil {
		t.Fatalf("finalize jan failed: %v", err)
	}
	if _, err := svc.FinalizePayrollRun(ctx, feb.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected stale feb draft to conflict, got %v", err)
	}
	loans, _ := svc.ListLoans(ctx, "emp-ana")
	if len(loans) != 1 || loans[0].BalanceCents != 20000 || loans[0].Status != domain.LoanStatusActive {
		t.Fatalf("expected rejected finalize to leave balance 20000, got %+v", loans)
	}
	if stale, _ := svc.GetPayrollRun(ctx, feb.ID); stale.Status != domain.PayrollRunDraft {
		t.Fatalf("expected feb to stay draft, got %s", stale.Status)
	}

	regenerated, err := svc.GeneratePayrollRun(ctx, domain.PayrollRunRequest{PeriodStart: "2026-02-01", PeriodEnd: "2026-02-28"})
	if err != nil {
		t.Fatalf("regenerate feb failed: %v", err)
	}
	if got := anaDeduction(regenerated); got != 20000 {
		t.Fatalf("expected regenerated deduction capped at balance 20000, got %d", got)
	}
	if _, err := svc.FinalizePayrollRun(ctx, regenerated.ID); err != nil {
		t.Fatalf("finalize regenerated feb failed: %v", err)
	}

	loans, _ = svc.ListLoans(ctx, "emp-ana")
	if loans[0].ID != loan.ID || loans[0].BalanceCents != 0 || loans[0].Status != domain.LoanStatusSettled {
		t.Fatalf("expected settled loan, got %+v", loans[0])
	}
	if withheld := anaDeduction(jan) + anaDeduction(regenerated); withheld != loan.PrincipalCents {
		t.Fatalf("expected %d withheld in total, got %d", loan.PrincipalCents, withheld)
	}
}

func TestFinalizeRejectsNegativeNet(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	run, err := svc.GeneratePayrollRun(ctx, domain.PayrollRunRequest{
		PeriodStart: "2026-05-01",
		PeriodEnd:   "2026-05-31",
		Inputs:      []domain.PayrollInput{{EmployeeID: "emp-ravi", AdHocDeductionsCents: 500000}},
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := svc.FinalizePayrollRun(ctx, run.ID); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected negative net rejection, got %v", err)
	}

	_, err = svc.GeneratePayrollRun(ctx, domain.PayrollRunRequest{
		PeriodStart: "2026-06-01",
		PeriodEnd:   "2026-06-30",
		Inputs:      []domain.PayrollInput{{EmployeeID: "emp-ravi", AbsentDays: 27}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected absent days above divisor to fail, got %v", err)
	}
}

func TestPayrollRequiresAdmin(t *testing.T) {
	svc := newTestService()
	if _, err := svc.ListEmployees(cashierCtx(), true); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.GeneratePayrollRun(context.Background(), domain.PayrollRunRequest{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden without actor, got %v", err)
	}
}

type countingCache struct {
	gets, sets int
	stored     map[string]domain.SalesSummary
}

func (c *countingCache) Get(_ context.Context, key string) (*domain.SalesSummary, bool, error) {
	c.gets++
	v, ok := c.stored[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *countingCache) Set(_ context.Context, key string, value *domain.SalesSummary, _ time.Duration) error {
	c.sets++
	c.stored[key] = *value
	return nil
}

func TestSalesSummaryAggregatesAndCachesPastRanges(t *testing.T) {
	rc := &countingCache{stored: map[string]domain.SalesSummary{}}
	svc := New(memory.NewSeeded(), Options{Cache: rc})
	ctx := adminCtx()
	openDrawer(t, svc, ctx, "T1", 0)

	if _, err := svc.Checkout(ctx, sampleCheckout("T1", "idem-sum-1")); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	card := sampleCheckout("T1", "idem-sum-2")
	card.PaymentMethod = domain.PaymentCard
	card.PaymentReference = "AUTH-1"
	card.Items = []domain.CartItem{{VariantID: "var-coffee-s", Qty: 1}}
	sale, err := svc.Checkout(ctx, card)
	if err != nil {
		t.Fatalf("card checkout failed: %v", err)
	}
	if _, err := svc.ProcessReturn(ctx, domain.ReturnRequest{
		SaleID:       sale.Sale.ID,
		RefundMethod: domain.PaymentCard,
		Reason:       "wrong size",
		Lines:        []domain.ReturnLineRequest{{VariantID: "var-coffee-s", Qty: 1}},
	}); err != nil {
		t.Fatalf("return failed: %v", err)
	}

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	summary, err := svc.SalesSummary(ctx, from, to)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.Sales != 2 || summary.TotalCents != 1239+323 || summary.RefundCents != 323 || summary.NetCents != 1239 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.ByPayment) != 2 || summary.ByPayment[0].PaymentMethod != domain.PaymentCard {
		t.Fatalf("unexpected payment breakdown: %+v", summary.ByPayment)
	}
	if summary.TopVariants[0].VariantID != "var-coffee-s" || summary.TopVariants[0].Qty != 3 {
		t.Fatalf("unexpected top variant: %+v", summary.TopVariants[0])
	}
	if rc.gets != 0 || rc.sets != 0 {
		t.Fatalf("open-ended range must bypass cache, gets=%d sets=%d", rc.gets, rc.sets)
	}

	past := time.Now().UTC().Add(-time.Minute)
	if _, err := svc.SalesSummary(ctx, from, past); err != nil {
		t.Fatalf("past summary failed: %v", err)
	}
	if _, err := svc.SalesSummary(ctx, from, past); err != nil {
		t.Fatalf("cached summary failed: %v", err)
	}
	if rc.gets != 2 || rc.sets != 1 {
		t.Fatalf("expected one miss then hit, gets=%d sets=%d", rc.gets, rc.sets)
	}

	if _, err := svc.SalesSummary(cashierCtx(), from, to); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for cashier, got %v", err)
	}
	if _, err := svc.SalesSummary(ctx, to, from); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected inverted range rejection, got %v", err)
	}
}
