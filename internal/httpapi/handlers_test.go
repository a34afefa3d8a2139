package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/obs"
	"github.com/lakshan9910/studio-sub000/internal/service"
	"github.com/lakshan9910/studio-sub000/internal/store/memory"
)

const testManagerPIN = "739154"

func newTestAPI(t *testing.T) *API {
	t.Helper()
	return newTestAPIWithOptions(t, Options{AllowedOrigins: []string{"*"}})
}

func newTestAPIWithOptions(t *testing.T, opts Options) *API {
	t.Helper()
	repo := memory.NewSeeded()
	auth := NewAuthManager(testSecret, time.Hour, testManagerPIN, repo)
	svc := service.New(repo, service.Options{VerifyManagerPIN: auth.ValidateManagerPIN})
	return New(svc, auth, opts)
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler, username, password string) string {
	t.Helper()
	rec := doRequest(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s failed: %d %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.AccessToken
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	h := newTestAPI(t).Handler()
	rec := doRequest(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["ok"] != true {
		t.Fatalf("unexpected health body %v", body)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	h := newTestAPI(t).Handler()
	rec := doRequest(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if token := login(t, h, "cashier", "cashier123"); token == "" {
		t.Fatalf("expected cashier token")
	}
}

func TestProtectedRoutesRequireTokenAndRole(t *testing.T) {
	h := newTestAPI(t).Handler()

	if rec := doRequest(t, h, http.MethodGet, "/api/v1/products", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/api/v1/products", "not-a-token", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", rec.Code)
	}

	cashier := login(t, h, "cashier", "cashier123")
	if rec := doRequest(t, h, http.MethodGet, "/api/v1/products", cashier, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected cashier to list products, got %d", rec.Code)
	}
	create := domain.ProductCreateRequest{
		Name:       "Tea",
		CategoryID: "cat-beverage",
		Variants:   []domain.VariantInput{{SKU: "tea-1", Name: "Tea", PriceCents: 300}},
	}
	if rec := doRequest(t, h, http.MethodPost, "/api/v1/products", cashier, create); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier product create, got %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/api/v1/payroll/runs", cashier, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier payroll access, got %d", rec.Code)
	}
}

func TestDecodeRejectsUnknownFieldsAndEmptyBody(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashier := login(t, h, "cashier", "cashier123")

	rec := doRequest(t, h, http.MethodPost, "/api/v1/cart/quote", cashier, `{"items":[{"variant_id":"var-coffee-s","qty":1}],"discount":5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/api/v1/cart/quote", cashier, "")
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "request body is required") {
		t.Fatalf("expected 400 for empty body, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestValidationErrorsListFields(t *testing.T) {
	h := newTestAPI(t).Handler()
	admin := login(t, h, "admin", "admin123")

	create := domain.ProductCreateRequest{
		Name:       "Tea",
		CategoryID: "cat-beverage",
		Variants:   []domain.VariantInput{{SKU: "tea-1", Name: "Tea", PriceCents: 0}},
	}
	rec := doRequest(t, h, http.MethodPost, "/api/v1/products", admin, create)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[struct {
		Error   string               `json:"error"`
		Details []service.FieldError `json:"details"`
	}](t, rec)
	if body.Error != "validation failed" || len(body.Details) != 1 || body.Details[0].Field != "variants[0].price_cents" {
		t.Fatalf("unexpected validation body %+v", body)
	}
}

func TestCheckoutFlowOverHTTP(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashier := login(t, h, "cashier", "cashier123")

	checkout := domain.CheckoutRequest{
		TerminalID:     "T9",
		IdempotencyKey: "http-sale-1",
		PaymentMethod:  domain.PaymentCash,
		TenderedCents:  2000,
		Items: []domain.CartItem{
			{VariantID: "var-coffee-s", Qty: 2},
			{VariantID: "var-chips-orig", Qty: 1},
		},
	}
	if rec := doRequest(t, h, http.MethodPost, "/api/v1/checkout", cashier, checkout); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 without an open drawer, got %d %s", rec.Code, rec.Body.String())
	}

	rec := doRequest(t, h, http.MethodPost, "/api/v1/drawer/open", cashier, domain.DrawerOpenRequest{TerminalID: "T9", OpeningFloatCents: 5000})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 drawer open, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/checkout", cashier, checkout)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 checkout, got %d %s", rec.Code, rec.Body.String())
	}
	first := decodeBody[domain.CheckoutResponse](t, rec)
	if first.Duplicate || first.Sale.TotalCents != 1239 || first.Sale.ChangeCents != 761 {
		t.Fatalf("unexpected sale %+v", first)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/checkout", cashier, checkout)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", rec.Code)
	}
	replay := decodeBody[domain.CheckoutResponse](t, rec)
	if !replay.Duplicate || replay.Sale.ID != first.Sale.ID {
		t.Fatalf("expected duplicate of %s, got %+v", first.Sale.ID, replay)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/checkout/idempotency/http-sale-1", cashier, nil)
	lookup := decodeBody[domain.SaleLookupResponse](t, rec)
	if !lookup.Found || lookup.Sale == nil || lookup.Sale.ID != first.Sale.ID {
		t.Fatalf("unexpected lookup %+v", lookup)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/sales/"+first.Sale.ID+"/receipt.pdf", cashier, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != contentTypePDF {
		t.Fatalf("expected pdf receipt, got %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("receipt body is not a pdf")
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/drawer/active?terminal_id=T9", cashier, nil)
	drawer := decodeBody[domain.DrawerResponse](t, rec)
	if drawer.Summary.ExpectedCashCents != 6239 {
		t.Fatalf("expected drawer 6239, got %+v", drawer.Summary)
	}

	if rec := doRequest(t, h, http.MethodGet, "/api/v1/sales/sale-missing", cashier, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing sale, got %d", rec.Code)
	}
}

func TestCheckoutUsesIdempotencyHeader(t *testing.T) {
	h := newTestAPI(t).Handler()
	cashier := login(t, h, "cashier", "cashier123")
	doRequest(t, h, http.MethodPost, "/api/v1/drawer/open", cashier, domain.DrawerOpenRequest{TerminalID: "T1", OpeningFloatCents: 0})

	body := `{"terminal_id":"T1","payment_method":"card","payment_reference":"AUTH-1","items":[{"variant_id":"var-coffee-s","qty":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+cashier)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "hdr-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[domain.CheckoutResponse](t, rec)
	if resp.Sale.IdempotencyKey != "hdr-1" {
		t.Fatalf("expected header key to be used, got %q", resp.Sale.IdempotencyKey)
	}
}

func TestPayrollEndpoints(t *testing.T) {
	h := newTestAPI(t).Handler()
	admin := login(t, h, "admin", "admin123")

	rec := doRequest(t, h, http.MethodPost, "/api/v1/payroll/runs", admin, domain.PayrollRunRequest{PeriodStart: "2026-03-01", PeriodEnd: "2026-03-31"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[struct {
		Run domain.PayrollRun `json:"run"`
	}](t, rec)
	runID := body.Run.ID
	if runID == "" || body.Run.Status != domain.PayrollRunDraft {
		t.Fatalf("unexpected run %+v", body.Run)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/payroll/runs/"+runID+"/export.xlsx", admin, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != contentTypeXLSX {
		t.Fatalf("expected xlsx export, got %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "payroll-"+runID+".xlsx") {
		t.Fatalf("unexpected disposition %q", rec.Header().Get("Content-Disposition"))
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/payroll/runs/"+runID+"/payslips/emp-ana.pdf", admin, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != contentTypePDF {
		t.Fatalf("expected payslip pdf, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/payroll/runs/"+runID+"/finalize", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected finalize 200, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := doRequest(t, h, http.MethodPost, "/api/v1/payroll/runs/"+runID+"/finalize", admin, nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected second finalize to conflict, got %d", rec.Code)
	}
}

func TestSalesReportRejectsBadDates(t *testing.T) {
	h := newTestAPI(t).Handler()
	admin := login(t, h, "admin", "admin123")

	if rec := doRequest(t, h, http.MethodGet, "/api/v1/reports/sales?from=2026-01-01&to=2026-01-31", admin, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 report, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := doRequest(t, h, http.MethodGet, "/api/v1/reports/sales?from=yesterday", admin, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
	rec := doRequest(t, h, http.MethodGet, "/api/v1/reports/sales.xlsx?from=2026-01-01&to=2026-01-31", admin, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != contentTypeXLSX {
		t.Fatalf("expected xlsx report, got %d", rec.Code)
	}
}

func TestCashierUserManagement(t *testing.T) {
	h := newTestAPI(t).Handler()
	admin := login(t, h, "admin", "admin123")

	rec := doRequest(t, h, http.MethodPost, "/api/v1/users/cashiers", admin, domain.CashierCreateRequest{Username: "till2", Password: "till2-pass"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := doRequest(t, h, http.MethodPost, "/api/v1/users/cashiers", admin, domain.CashierCreateRequest{Username: "till2", Password: "till2-pass"}); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 duplicate, got %d", rec.Code)
	}
	if token := login(t, h, "till2", "till2-pass"); token == "" {
		t.Fatalf("expected new cashier to log in")
	}
}

func TestMetricsEndpointServedWhenConfigured(t *testing.T) {
	reg := prometheus.NewRegistry()
	api := newTestAPIWithOptions(t, Options{
		Metrics:        obs.NewHTTPMetrics("pos_test", reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	h := api.Handler()

	doRequest(t, h, http.MethodGet, "/healthz", "", nil)
	rec := doRequest(t, h, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pos_test_http_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}

	plain := newTestAPI(t).Handler()
	if rec := doRequest(t, plain, http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics handler, got %d", rec.Code)
	}
}
