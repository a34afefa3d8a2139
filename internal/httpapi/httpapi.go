package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/obs"
	"github.com/lakshan9910/studio-sub000/internal/service"
	"github.com/lakshan9910/studio-sub000/internal/store"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 10 << 20
)

type Options struct {
	AllowedOrigins []string
	Logger         zerolog.Logger
	// Metrics instruments every request when set.
	Metrics *obs.HTTPMetrics
	// MetricsHandler is served on /metrics when set.
	MetricsHandler http.Handler
}

type API struct {
	service        *service.Service
	auth           *AuthManager
	allowedOrigins []string
	log            zerolog.Logger
	httpMetrics    *obs.HTTPMetrics
	metricsHandler http.Handler
	loginLimiter   *attemptLimiter
	pinLimiter     *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &API{
		service:        svc,
		auth:           auth,
		allowedOrigins: origins,
		log:            opts.Logger.With().Str("component", "httpapi").Logger(),
		httpMetrics:    opts.Metrics,
		metricsHandler: opts.MetricsHandler,
		loginLimiter:   newAttemptLimiter(5, time.Minute),
		pinLimiter:     newAttemptLimiter(8, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

// Allow records an attempt for key and reports whether it is within the
// sliding window budget.
func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[key][:0]
	for _, ts := range l.entries[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	if a.httpMetrics != nil {
		r.Use(a.httpMetrics.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: a.log}.Middleware)
	r.Use(limitBody)

	r.Get("/healthz", a.handleHealth)
	if a.metricsHandler != nil {
		r.Handle("/metrics", a.metricsHandler)
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Post("/auth/login", a.handleLogin)

		v.Group(func(staff chi.Router) {
			staff.Use(a.requireAuth(domain.RoleCashier, domain.RoleAdmin))

			staff.Get("/products", a.handleListProducts)
			staff.Get("/products/{id}", a.handleGetProduct)
			staff.Get("/categories", a.handleListCategories)
			staff.Get("/inventory/low-stock", a.handleLowStock)
			staff.Get("/customers", a.handleListCustomers)
			staff.Post("/customers", a.handleCreateCustomer)
			staff.Get("/suppliers", a.handleListSuppliers)
			staff.Get("/settings", a.handleGetSettings)

			staff.Post("/cart/quote", a.handleQuote)
			staff.Post("/checkout", a.handleCheckout)
			staff.Get("/checkout/idempotency/{key}", a.handleCheckoutLookup)
			staff.Get("/sales", a.handleListSales)
			staff.Get("/sales/{id}", a.handleGetSale)
			staff.Get("/sales/{id}/receipt.pdf", a.handleSaleReceipt)
			staff.Post("/returns", a.handleCreateReturn)

			staff.Post("/drawer/open", a.handleDrawerOpen)
			staff.Get("/drawer/active", a.handleDrawerActive)
			staff.Post("/drawer/movements", a.handleDrawerMovement)
			staff.Post("/drawer/close", a.handleDrawerClose)
			staff.Get("/drawer/sessions/{id}", a.handleDrawerSession)
		})

		v.Group(func(admin chi.Router) {
			admin.Use(a.requireAuth(domain.RoleAdmin))

			admin.Post("/products", a.handleCreateProduct)
			admin.Patch("/products/{id}", a.handleUpdateProduct)
			admin.Post("/products/import", a.handleImportProducts)
			admin.Post("/categories", a.handleCreateCategory)
			admin.Post("/inventory/counts", a.handleStockCount)
			admin.Post("/suppliers", a.handleCreateSupplier)
			admin.Patch("/settings", a.handleUpdateSettings)
			admin.Get("/returns", a.handleListReturns)

			admin.Get("/purchases", a.handleListPurchases)
			admin.Post("/purchases", a.handleCreatePurchase)
			admin.Get("/purchases/{id}", a.handleGetPurchase)
			admin.Post("/purchases/{id}/receive", a.handleReceivePurchase)
			admin.Post("/purchases/{id}/cancel", a.handleCancelPurchase)

			admin.Get("/employees", a.handleListEmployees)
			admin.Post("/employees", a.handleCreateEmployee)
			admin.Get("/employees/{id}", a.handleGetEmployee)
			admin.Patch("/employees/{id}", a.handleUpdateEmployee)
			admin.Get("/loans", a.handleListLoans)
			admin.Post("/loans", a.handleIssueLoan)
			admin.Get("/payroll/runs", a.handleListPayrollRuns)
			admin.Post("/payroll/runs", a.handleGeneratePayrollRun)
			admin.Get("/payroll/runs/{id}", a.handleGetPayrollRun)
			admin.Post("/payroll/runs/{id}/finalize", a.handleFinalizePayrollRun)
			admin.Get("/payroll/runs/{id}/export.xlsx", a.handlePayrollExport)
			admin.Get("/payroll/runs/{id}/payslips/{employeeID}.pdf", a.handlePayslip)

			admin.Get("/reports/sales", a.handleSalesReport)
			admin.Get("/reports/sales.xlsx", a.handleSalesReportExport)
			admin.Get("/audit-logs", a.handleAuditLogs)
			admin.Get("/users/cashiers", a.handleListCashiers)
			admin.Post("/users/cashiers", a.handleCreateCashier)
		})
	})

	return r
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if len(authorization) < 7 || !strings.EqualFold(authorization[:7], "bearer ") {
				writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}
			actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[7:]))
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			if !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}
			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// limitBody caps request bodies. Multipart uploads get a larger allowance.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && r.Method != http.MethodGet {
			limit := int64(maxJSONBody)
			if strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
				limit = maxUploadBody
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow("login:" + clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}
	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListCashiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers(r.Context())})
}

func (a *API) handleCreateCashier(w http.ResponseWriter, r *http.Request) {
	var req domain.CashierCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cashier, err := a.auth.CreateCashier(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
}

// decodeJSON reads a single JSON object into dest, writing a 400 or 413 and
// returning false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(dest)
	if err == nil && decoder.More() {
		err = errors.New("request body must contain a single JSON object")
	}
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit))
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, errors.New("request body is required"))
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %v", err))
	}
	return false
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	if parsed, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && parsed > 0 {
		limit = parsed
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// parseTimeParam accepts RFC 3339 timestamps or YYYY-MM-DD dates. A date used
// as an upper bound covers the whole day.
func parseTimeParam(raw string, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a date or RFC 3339 timestamp", store.ErrInvalidInput, raw)
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := parseTimeParam(r.URL.Query().Get("from"), false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseTimeParam(r.URL.Query().Get("to"), true)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func statusFor(err error) int {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInactiveAccount), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, status, err)
		return
	}
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, status, map[string]any{"error": "validation failed", "details": verr.Fields})
		return
	}
	writeError(w, status, err)
}

// writeError writes {"error": msg}. 5xx bodies carry a generic message only.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFile(w http.ResponseWriter, contentType string, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
