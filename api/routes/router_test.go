package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rrsoftech/agencypay-backend/internal/milestones"
	"github.com/rrsoftech/agencypay-backend/internal/orders"
	"github.com/rrsoftech/agencypay-backend/internal/providers"
	"github.com/rrsoftech/agencypay-backend/internal/reconcile"
	"github.com/rrsoftech/agencypay-backend/internal/settings"
	"github.com/rrsoftech/agencypay-backend/internal/transactions"
	pkgAuth "github.com/rrsoftech/agencypay-backend/pkg/auth"
	"github.com/rrsoftech/agencypay-backend/pkg/config"
	"github.com/rrsoftech/agencypay-backend/pkg/db/models"
	"github.com/rrsoftech/agencypay-backend/pkg/enums"
	pkgerrors "github.com/rrsoftech/agencypay-backend/pkg/errors"
	"github.com/rrsoftech/agencypay-backend/pkg/logger"
	"github.com/rrsoftech/agencypay-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubRateStore struct{}

func (stubRateStore) IncrWithTTL(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

type stubProvidersService struct{}

func (stubProvidersService) List(context.Context, enums.UserRole) ([]models.PaymentProvider, error) {
	return []models.PaymentProvider{}, nil
}

func (stubProvidersService) Get(context.Context, enums.UserRole, uuid.UUID) (*models.PaymentProvider, error) {
	return &models.PaymentProvider{}, nil
}

func (stubProvidersService) Create(_ context.Context, role enums.UserRole, _ providers.UpsertProviderInput) (*models.PaymentProvider, error) {
	if !role.IsOwner() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "owner role required")
	}
	return &models.PaymentProvider{}, nil
}

func (stubProvidersService) Update(_ context.Context, role enums.UserRole, _ uuid.UUID, _ providers.UpsertProviderInput) (*models.PaymentProvider, error) {
	if !role.IsOwner() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "owner role required")
	}
	return &models.PaymentProvider{}, nil
}

type stubOrdersService struct{}

func (stubOrdersService) Create(context.Context, orders.CreateOrderInput) (*models.Order, error) {
	return &models.Order{}, nil
}

func (stubOrdersService) Get(context.Context, orders.GetOrderInput) (*models.Order, error) {
	return &models.Order{}, nil
}

func (stubOrdersService) List(context.Context, orders.ListOrdersInput) ([]models.Order, *pagination.Cursor, error) {
	return []models.Order{}, nil, nil
}

func (stubOrdersService) UpdateStatus(context.Context, orders.UpdateStatusInput) (*models.Order, error) {
	return &models.Order{}, nil
}

func (stubOrdersService) ConvertQuote(context.Context, orders.ConvertQuoteInput) (*models.Order, error) {
	return &models.Order{}, nil
}

func (stubOrdersService) RecomputeStatus(context.Context, *gorm.DB, uuid.UUID) error {
	return nil
}

type stubMilestonesService struct {
	initiated int
}

func (s *stubMilestonesService) Create(context.Context, milestones.CreateMilestoneInput) (*models.Milestone, error) {
	return &models.Milestone{}, nil
}

func (s *stubMilestonesService) ListByOrder(context.Context, milestones.ListMilestonesInput) ([]models.Milestone, error) {
	return []models.Milestone{}, nil
}

func (s *stubMilestonesService) Update(context.Context, milestones.UpdateMilestoneInput) (*models.Milestone, error) {
	return &models.Milestone{}, nil
}

func (s *stubMilestonesService) InitiatePayment(_ context.Context, input milestones.InitiatePaymentInput) (*milestones.PaymentInstructions, error) {
	if input.ProviderCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid or inactive payment provider")
	}
	s.initiated++
	return &milestones.PaymentInstructions{TransactionID: uuid.New()}, nil
}

type stubTransactionsService struct{}

func (stubTransactionsService) Get(context.Context, transactions.GetTransactionInput) (*models.Transaction, error) {
	return &models.Transaction{}, nil
}

func (stubTransactionsService) List(context.Context, transactions.ListTransactionsInput) ([]models.Transaction, *pagination.Cursor, error) {
	return []models.Transaction{}, nil, nil
}

type stubReconcileService struct {
	ipnTokens []string
}

func (s *stubReconcileService) HandleIPN(_ context.Context, input reconcile.IPNInput) (*models.Transaction, error) {
	if input.IPNToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ipn_token required")
	}
	s.ipnTokens = append(s.ipnTokens, input.IPNToken)
	return &models.Transaction{ID: uuid.New(), Status: enums.TransactionStatusSuccess}, nil
}

func (s *stubReconcileService) ReconcilePending(context.Context) (reconcile.PollSummary, error) {
	return reconcile.PollSummary{}, nil
}

func (s *stubReconcileService) SubmitProof(context.Context, reconcile.SubmitProofInput) (*models.Transaction, error) {
	return &models.Transaction{}, nil
}

func (s *stubReconcileService) Approve(context.Context, reconcile.ReviewInput) (*models.Transaction, error) {
	return &models.Transaction{}, nil
}

func (s *stubReconcileService) Reject(context.Context, reconcile.ReviewInput) (*models.Transaction, error) {
	return &models.Transaction{}, nil
}

type stubSettingsService struct{}

func (stubSettingsService) Get(context.Context) (*models.SiteSettings, error) {
	return &models.SiteSettings{}, nil
}

func (stubSettingsService) Update(_ context.Context, role enums.UserRole, _ settings.UpdateSettingsInput) (*models.SiteSettings, error) {
	if !role.IsOwner() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "owner role required")
	}
	return &models.SiteSettings{}, nil
}

var routerJWT = config.JWTConfig{
	Secret:            "router-test-secret",
	Issuer:            "agencypay",
	ExpirationMinutes: 15,
}

func newTestRouter(t *testing.T) (http.Handler, *stubReconcileService, *stubMilestonesService) {
	t.Helper()

	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: routerJWT,
		RateLimit: config.RateLimitConfig{
			WebhookWindow:  time.Minute,
			WebhookIPLimit: 100,
		},
	}
	logg := logger.New(logger.Options{ServiceName: "router-test"})

	recSvc := &stubReconcileService{}
	milestoneSvc := &stubMilestonesService{}

	handler := NewRouter(cfg, logg, stubPinger{}, stubPinger{}, stubRateStore{}, Services{
		Providers:    stubProvidersService{},
		Orders:       stubOrdersService{},
		Milestones:   milestoneSvc,
		Transactions: stubTransactionsService{},
		Reconcile:    recSvc,
		Settings:     stubSettingsService{},
	})
	return handler, recSvc, milestoneSvc
}

func bearerToken(t *testing.T, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(routerJWT, time.Now().UTC(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Email:  "router@rrsoftech.com",
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthRoutesAreOpen(t *testing.T) {
	handler, _, _ := newTestRouter(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s expected 200, got %d", path, resp.Code)
		}
	}
}

func TestWebhookSkipsAuth(t *testing.T) {
	handler, recSvc, _ := newTestRouter(t)

	form := url.Values{}
	form.Set("ipn_token", "tok-router")
	form.Set("status", "ACCEPT")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/riskpay", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 from webhook, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(recSvc.ipnTokens) != 1 || recSvc.ipnTokens[0] != "tok-router" {
		t.Fatalf("expected token forwarded to service, got %v", recSvc.ipnTokens)
	}
}

func TestWebhookRejectsMissingToken(t *testing.T) {
	handler, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/riskpay", strings.NewReader("status=ACCEPT"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing token, got %d", resp.Code)
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	handler, _, _ := newTestRouter(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/orders"},
		{http.MethodGet, "/api/v1/milestones"},
		{http.MethodGet, "/api/v1/transactions"},
		{http.MethodGet, "/api/v1/settings"},
	}
	for _, p := range paths {
		req := httptest.NewRequest(p.method, p.path, nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s expected 401, got %d", p.method, p.path, resp.Code)
		}
	}
}

func TestProviderCatalogIsPublic(t *testing.T) {
	handler, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("anonymous provider list expected 200, got %d", resp.Code)
	}

	// A token, when present, still has to be valid.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token expected 401, got %d", resp.Code)
	}
}

func TestOwnerGates(t *testing.T) {
	handler, _, _ := newTestRouter(t)

	body := `{"provider_name_code":"usdt","display_name":"USDT","type":"CRYPTO"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/providers", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken(t, enums.UserRoleEmployee))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("employee creating provider expected 403, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/providers", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken(t, enums.UserRoleOwner))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("owner creating provider expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	req = httptest.NewRequest(http.MethodPut, "/api/v1/settings", strings.NewReader(`{"site_email":"ops@rrsoftech.com"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken(t, enums.UserRoleEmployee))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("employee updating settings expected 403, got %d", resp.Code)
	}
}

func TestStaffGates(t *testing.T) {
	handler, _, _ := newTestRouter(t)

	orderID := uuid.New()
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/orders/"+orderID.String()+"/status", strings.NewReader(`{"status":"ACTIVE"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken(t, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("customer patching order status expected 403, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/quotes/"+uuid.NewString()+"/convert", nil)
	req.Header.Set("Authorization", bearerToken(t, enums.UserRoleCustomer))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("customer converting quote expected 403, got %d", resp.Code)
	}
}

func TestInitiatePaymentIsCustomerReachable(t *testing.T) {
	handler, _, milestoneSvc := newTestRouter(t)

	milestoneID := uuid.New()
	req := httptest.NewRequest(
		http.MethodPost,
		"/api/v1/milestones/"+milestoneID.String()+"/initiate-payment",
		strings.NewReader(`{"provider_code":"usdt"}`),
	)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken(t, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 from initiate-payment, got %d: %s", resp.Code, resp.Body.String())
	}
	if milestoneSvc.initiated != 1 {
		t.Fatalf("expected one payment initiation, got %d", milestoneSvc.initiated)
	}
}
