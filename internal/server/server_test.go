package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"coffeeshop/internal/config"
	"coffeeshop/internal/handler"
	infraRepo "coffeeshop/internal/infra/repository"
	"coffeeshop/internal/infra/token"
	"coffeeshop/internal/server"
	"coffeeshop/internal/testutil"
	"coffeeshop/internal/usecase"
	auth "coffeeshop/internal/usecase/auth_usecase"
	"coffeeshop/internal/validator"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// =====================
// テスト用の部品
// =====================

type fakeGateway struct {
	mu   sync.Mutex
	refs []string
}

func (g *fakeGateway) CreatePayment(ctx context.Context, req usecase.PaymentRequest) (usecase.PaymentSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refs = append(g.refs, req.Reference)
	return usecase.PaymentSession{URL: "https://pay.example/" + req.Reference, GatewayOrderID: fmt.Sprintf("TP-%d", len(g.refs))}, nil
}

type countingNotifier struct {
	mu       sync.Mutex
	customer int
	company  int
}

func (n *countingNotifier) SendCustomerConfirmation(ctx context.Context, m usecase.OrderMail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.customer++
	return nil
}

func (n *countingNotifier) SendCompanyNotification(ctx context.Context, m usecase.OrderMail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.company++
	return nil
}

type env struct {
	e        *echo.Echo
	db       *gorm.DB
	notifier *countingNotifier
}

func newEnv(t *testing.T) env {
	t.Helper()

	gdb := testutil.NewSQLite(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		FEURL:              "https://shop.example",
		CheckoutSuccessURL: "https://shop.example/checkout/success",
		CheckoutFailureURL: "https://shop.example/checkout/failure",
		Tilopay: config.TilopayConfig{
			CodeFields:        []string{"code"},
			ReferenceFields:   []string{"orderNumber"},
			TransactionFields: []string{"tpt", "tilopayOrderId"},
		},
	}

	users := infraRepo.NewUserGormRepository(gdb)
	products := infraRepo.NewProductGormRepository(gdb)
	carts := infraRepo.NewCartGormRepository(gdb)
	orders := infraRepo.NewOrderGormRepository(gdb)
	items := infraRepo.NewOrderItemGormRepository(gdb)
	events := infraRepo.NewPaymentEventGormRepository(gdb)
	jwtSvc := token.NewJWTService("e2e-secret", time.Hour)
	clock := usecase.SystemClock{}
	notifier := &countingNotifier{}

	cartUC := usecase.NewCartUsecase(carts, carts, products, log)
	checkout := usecase.NewCheckoutUsecase(infraRepo.NewTxManagerGorm(gdb), orders, users, &fakeGateway{},
		validator.NewCheckoutValidator(), clock, "CRC", log)
	reconciler := usecase.NewPaymentReconciler(orders, items, users, events, cartUC, notifier,
		usecase.NewInlineDispatcher(log), usecase.NewOutcomeClassifier([]string{"1"}, []string{"0"}), clock, log)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)

	h := server.Handlers{
		Health: handler.NewHealthHandler(sqlDB),
		Auth: handler.NewAuthHandler(
			auth.NewRegisterUserUsecase(users, auth.NewBcryptPasswordHasher(bcrypt.MinCost)),
			auth.NewLoginUsecase(users, auth.NewBcryptPasswordVerifier(), jwtSvc, clock),
			auth.NewLogoutUsecase(users),
			auth.NewChangeEmailUsecase(users),
			auth.NewChangePasswordUsecase(users, auth.NewBcryptPasswordVerifier(), auth.NewBcryptPasswordHasher(bcrypt.MinCost)),
		),
		Product:    handler.NewProductHandler(usecase.NewProductUsecase(products)),
		Cart:       handler.NewCartHandler(cartUC),
		Order:      handler.NewOrderHandler(usecase.NewOrderUsecase(orders, items)),
		Payment:    handler.NewPaymentHandler(checkout, reconciler, handler.NewPaymentHandlerConfig(cfg), log),
		AdminOrder: handler.NewAdminOrderHandler(usecase.NewAdminOrderUsecase(orders, items, events, cartUC, log)),
	}
	srv := server.New(cfg, log, h, jwtSvc, users, nil)

	return env{e: srv.Echo(), db: gdb, notifier: notifier}
}

func (en env) do(t *testing.T, method string, path string, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = strings.NewReader(string(b))
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	en.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (en env) signup(t *testing.T, email string) string {
	t.Helper()

	rec := en.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Ana Mora", "email": email, "password": "cafe-de-altura",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = en.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": email, "password": "cafe-de-altura",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out auth.LoginOutput
	decode(t, rec, &out)
	return out.Token.AccessToken
}

// =====================
// シナリオ
// =====================

func TestCheckoutAndReturn_PaysOnceAndEmptiesCart(t *testing.T) {
	en := newEnv(t)
	p := testutil.CreateProduct(t, en.db, "Tarrazú", "4500")
	tok := en.signup(t, "ana@example.com")

	rec := en.do(t, http.MethodPost, "/cart", tok, map[string]int64{"product_id": p.ID, "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = en.do(t, http.MethodPost, "/payment/process", tok, map[string]interface{}{
		"cartItems":   []map[string]interface{}{{"product_id": p.ID, "quantity": 2, "price": 4500}},
		"amount":      9000,
		"phone":       "8888-1234",
		"address":     "Calle 5",
		"city":        "Heredia",
		"postal_code": "40101",
		"country":     "CR",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var co usecase.CheckoutOutput
	decode(t, rec, &co)
	require.NotEmpty(t, co.OrderReference)

	// ブラウザの戻りとwebhookが両方届く
	ret := "/payment/return?code=1&orderNumber=" + url.QueryEscape(co.OrderReference)
	rec = en.do(t, http.MethodGet, ret, "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://shop.example/checkout/success"))

	rec = en.do(t, http.MethodPost, "/payment/webhook", "", map[string]string{"orderNumber": co.OrderReference, "code": "1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "already_confirmed")

	assert.Equal(t, 1, en.notifier.customer)
	assert.Equal(t, 1, en.notifier.company)

	rec = en.do(t, http.MethodGet, "/cart", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cart usecase.CartResponse
	decode(t, rec, &cart)
	assert.Empty(t, cart.Items)

	rec = en.do(t, http.MethodGet, fmt.Sprintf("/orders/%d", co.OrderID), tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"paid"`)
}

func TestCheckout_AmountMismatchCreatesNothing(t *testing.T) {
	en := newEnv(t)
	p := testutil.CreateProduct(t, en.db, "Tarrazú", "4500")
	tok := en.signup(t, "ana@example.com")

	rec := en.do(t, http.MethodPost, "/payment/process", tok, map[string]interface{}{
		"cartItems":   []map[string]interface{}{{"product_id": p.ID, "quantity": 2, "price": 1}},
		"amount":      2,
		"address":     "Calle 5",
		"city":        "Heredia",
		"postal_code": "40101",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var n int64
	require.NoError(t, en.db.Table("orders").Count(&n).Error)
	assert.Zero(t, n)
}

func TestLogout_InvalidatesToken(t *testing.T) {
	en := newEnv(t)
	tok := en.signup(t, "ana@example.com")

	rec := en.do(t, http.MethodPost, "/auth/logout", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = en.do(t, http.MethodGet, "/cart", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePassword_OldTokenAndPasswordStopWorking(t *testing.T) {
	en := newEnv(t)
	tok := en.signup(t, "ana@example.com")

	rec := en.do(t, http.MethodPut, "/user-settings/password", tok, map[string]string{
		"currentPassword": "wrong-password", "newPassword": "tueste-oscuro",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = en.do(t, http.MethodPut, "/user-settings/password", tok, map[string]string{
		"currentPassword": "cafe-de-altura", "newPassword": "tueste-oscuro",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// 変更前のトークンは使えない
	rec = en.do(t, http.MethodGet, "/cart", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = en.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "ana@example.com", "password": "cafe-de-altura"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = en.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "ana@example.com", "password": "tueste-oscuro"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChangeEmail_DuplicateIs409(t *testing.T) {
	en := newEnv(t)
	en.signup(t, "luis@example.com")
	tok := en.signup(t, "ana@example.com")

	rec := en.do(t, http.MethodPut, "/user-settings/email", tok, map[string]string{"email": "Luis@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = en.do(t, http.MethodPut, "/user-settings/email", tok, map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = en.do(t, http.MethodPut, "/user-settings/email", tok, map[string]string{"email": "ana.mora@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"email":"ana.mora@example.com"`)

	// メール変更ではログアウトしない
	rec = en.do(t, http.MethodGet, "/cart", tok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutes_RequireAdmin(t *testing.T) {
	en := newEnv(t)
	tok := en.signup(t, "ana@example.com")

	rec := en.do(t, http.MethodGet, "/admin/orders/review", tok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthz(t *testing.T) {
	en := newEnv(t)

	rec := en.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}
