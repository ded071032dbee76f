package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	internalorders "github.com/aurelia-commerce/storefront-backend/internal/orders"
	"github.com/aurelia-commerce/storefront-backend/internal/returns"
	pkgauth "github.com/aurelia-commerce/storefront-backend/pkg/auth"
	"github.com/aurelia-commerce/storefront-backend/pkg/config"
	"github.com/aurelia-commerce/storefront-backend/pkg/db/models"
	"github.com/aurelia-commerce/storefront-backend/pkg/enums"
	pkgerrors "github.com/aurelia-commerce/storefront-backend/pkg/errors"
	"github.com/aurelia-commerce/storefront-backend/pkg/types"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubOrdersService struct {
	lastActor types.Identity
}

func (s *stubOrdersService) Checkout(ctx context.Context, actor types.Identity, input internalorders.CheckoutInput) (*models.Order, error) {
	s.lastActor = actor
	return &models.Order{ID: uuid.New(), OrderNumber: 1001, Email: input.Email, Status: enums.OrderStatusPendingPayment}, nil
}

func (s *stubOrdersService) ConfirmPayment(ctx context.Context, actor types.Identity, orderID uuid.UUID, input internalorders.ConfirmPaymentInput) (*models.Order, error) {
	return &models.Order{ID: orderID, Status: enums.OrderStatusPaid}, nil
}

func (s *stubOrdersService) Cancel(ctx context.Context, actor types.Identity, orderID uuid.UUID, input internalorders.CancelInput) (*models.Order, error) {
	return &models.Order{ID: orderID, Status: enums.OrderStatusCancelled}, nil
}

func (s *stubOrdersService) Expire(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return false, nil
}

func (s *stubOrdersService) GetDetail(ctx context.Context, actor types.Identity, orderID uuid.UUID) (*internalorders.OrderDetail, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *stubOrdersService) ListForUser(ctx context.Context, actor types.Identity) ([]models.Order, error) {
	s.lastActor = actor
	return nil, nil
}

type stubReturnsService struct{}

func (stubReturnsService) Request(ctx context.Context, actor types.Identity, orderID uuid.UUID, input returns.RequestInput) (*models.Order, error) {
	return &models.Order{ID: orderID, Status: enums.OrderStatusReturnRequested}, nil
}

func (stubReturnsService) Decide(ctx context.Context, actor types.Identity, orderID uuid.UUID, input returns.DecisionInput) (*models.Order, error) {
	return &models.Order{ID: orderID, Status: enums.OrderStatusReturned}, nil
}

func (stubReturnsService) Reject(ctx context.Context, actor types.Identity, orderID uuid.UUID, input returns.RejectInput) (*models.Order, error) {
	return &models.Order{ID: orderID, Status: enums.OrderStatusPaid}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev"},
		JWT: config.JWTConfig{
			Secret:            "router-test-secret",
			Issuer:            "storefront-test",
			ExpirationMinutes: 10,
		},
	}
}

func testRouter(t *testing.T, ordersSvc internalorders.Service, returnsSvc returns.Service) http.Handler {
	t.Helper()
	return NewRouter(Deps{
		Config:         testConfig(),
		DB:             stubPinger{},
		OrdersService:  ordersSvc,
		ReturnsService: returnsSvc,
	})
}

func mintToken(t *testing.T, cfg *config.Config, role enums.MemberRole) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLive(t *testing.T) {
	router := testRouter(t, &stubOrdersService{}, stubReturnsService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if env := rec.Header().Get("X-Storefront-Env"); env != "dev" {
		t.Fatalf("env header = %q", env)
	}
}

func TestOrdersRequireAuth(t *testing.T) {
	router := testRouter(t, &stubOrdersService{}, stubReturnsService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestOrdersListWithToken(t *testing.T) {
	svc := &stubOrdersService{}
	router := testRouter(t, svc, stubReturnsService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testConfig(), enums.MemberRoleCustomer))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if svc.lastActor.UserID == uuid.Nil {
		t.Fatal("identity not threaded to service")
	}
}

func TestAdminRoutesRejectCustomers(t *testing.T) {
	router := testRouter(t, &stubOrdersService{}, stubReturnsService{})

	body := strings.NewReader(`{"accepted":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/"+uuid.NewString()+"/returns/decision", body)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testConfig(), enums.MemberRoleCustomer))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestAdminDecisionWithAdminToken(t *testing.T) {
	router := testRouter(t, &stubOrdersService{}, stubReturnsService{})

	body := strings.NewReader(`{"accepted":[{"item_id":"` + uuid.NewString() + `","quantity":1}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/"+uuid.NewString()+"/returns/decision", body)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testConfig(), enums.MemberRoleAdmin))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestGuestCheckout(t *testing.T) {
	svc := &stubOrdersService{}
	router := testRouter(t, svc, stubReturnsService{})

	payload := map[string]any{
		"email": "guest@example.com",
		"items": []map[string]any{
			{"product_id": uuid.NewString(), "quantity": 1},
		},
		"shipping": map[string]any{
			"name":    "Robin Vega",
			"street":  "Calle Mayor 1",
			"city":    "Madrid",
			"zip":     "28013",
			"country": "ES",
		},
	}
	raw, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(string(raw)))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if svc.lastActor.UserID != uuid.Nil {
		t.Fatal("guest checkout should carry an empty identity")
	}
}

func TestCheckoutRejectsMalformedBody(t *testing.T) {
	router := testRouter(t, &stubOrdersService{}, stubReturnsService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"items":[]}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
